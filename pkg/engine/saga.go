package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/ledger"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/storage"
)

// SagaController drives ordered execution of saga steps with forward or
// backward compensation on failure. Steps run strictly in definition
// order; dependencies gate whether a step may run, they never reorder the
// sequence.
type SagaController struct {
	store  storage.Store
	ledger *ledger.Ledger
	runner SagaStepRunner
	comp   CompensationRunner
	em     emitter
	logger Logger
}

func NewSagaController(store storage.Store, lg *ledger.Ledger, runner SagaStepRunner, comp CompensationRunner, sink Sink, logger Logger) *SagaController {
	return &SagaController{
		store:  store,
		ledger: lg,
		runner: runner,
		comp:   comp,
		em:     emitter{sink: sink, logger: logger},
		logger: logger,
	}
}

// StartSaga validates the definition, creates the execution record and
// runs the steps to a terminal state. The execution id is returned even
// when the saga fails so callers can consult the persisted snapshot; the
// live ledger entry is removed once terminal.
func (s *SagaController) StartSaga(ctx context.Context, def models.SagaDefinition, initialData map[string]any) (string, error) {
	if err := ValidateSagaDefinition(def); err != nil {
		return "", err
	}

	data := make(map[string]any, len(initialData))
	for k, v := range initialData {
		data[k] = v
	}
	exec := models.SagaExecution{
		ExecutionID: ledger.NewID(),
		SagaID:      def.ID,
		Status:      models.RunningSagaStatus,
		Data:        data,
		StartTime:   time.Now(),
	}
	if err := s.ledger.CreateSaga(exec); err != nil {
		return "", err
	}
	s.em.emit(models.SagaStartedEvent, exec.ExecutionID, map[string]any{
		"saga_id": def.ID,
		"name":    def.Name,
	})

	err := s.run(ctx, def, exec.ExecutionID)
	s.ledger.RemoveSaga(exec.ExecutionID)
	return exec.ExecutionID, err
}

func (s *SagaController) run(ctx context.Context, def models.SagaDefinition, execID string) error {
	for i, step := range def.Steps {
		current, ok := s.ledger.GetSaga(execID)
		if !ok {
			return errors.Wrapf(ledger.ErrNotFound, "saga execution %s", execID)
		}
		if current.Status == models.CancelledSagaStatus {
			s.logger.Infof("Saga execution %s cancelled, stopping before step %s", execID, step.ID)
			s.snapshot(current)
			return nil
		}

		if _, err := s.ledger.UpdateSaga(execID, func(e *models.SagaExecution) error {
			e.CurrentStepIndex = i
			return nil
		}); err != nil {
			return err
		}

		stepErr := s.runStep(ctx, step, execID, current)
		if stepErr == nil {
			updated, err := s.ledger.UpdateSaga(execID, func(e *models.SagaExecution) error {
				e.MarkCompleted(step.ID)
				return nil
			})
			if err != nil {
				return err
			}
			s.snapshot(updated)
			s.em.emit(models.SagaStepCompletedEvent, execID, map[string]any{
				"saga_id": def.ID,
				"step_id": step.ID,
			})
			continue
		}

		// forward progress stops at the first failure; compensation takes over
		failed, err := s.ledger.UpdateSaga(execID, func(e *models.SagaExecution) error {
			e.Status = models.FailedSagaStatus
			e.FailedSteps = append(e.FailedSteps, models.StepFailure{
				StepID:    step.ID,
				Error:     stepErr.Error(),
				Timestamp: time.Now(),
			})
			return nil
		})
		if err != nil {
			return err
		}
		s.em.emit(models.SagaFailedEvent, execID, map[string]any{
			"saga_id": def.ID,
			"step_id": step.ID,
			"error":   stepErr.Error(),
		})
		return s.compensate(ctx, def, execID, failed, stepErr)
	}

	final, err := s.ledger.UpdateSaga(execID, func(e *models.SagaExecution) error {
		e.Status = models.CompletedSagaStatus
		now := time.Now()
		e.CompletedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrTerminal) {
			return nil
		}
		return err
	}
	s.snapshot(final)
	s.em.emit(models.SagaCompletedEvent, execID, map[string]any{
		"saga_id":         def.ID,
		"completed_steps": len(final.CompletedSteps),
	})
	return nil
}

// runStep verifies dependencies, applies the per-step timeout and merges
// returned data into the saga data.
func (s *SagaController) runStep(ctx context.Context, step models.SagaStep, execID string, current models.SagaExecution) error {
	for _, dep := range step.Dependencies {
		if !current.HasCompleted(dep) {
			return errors.Wrapf(ErrDependencyNotMet, "step %s requires %s", step.ID, dep)
		}
	}

	stepCtx := ctx
	if step.TimeoutMs > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout())
		defer cancel()
	}

	out, err := s.runner.RunSagaStep(stepCtx, step, current.Data)
	if err != nil {
		return err
	}
	if len(out) > 0 {
		if _, err := s.ledger.UpdateSaga(execID, func(e *models.SagaExecution) error {
			if e.Data == nil {
				e.Data = map[string]any{}
			}
			for k, v := range out {
				e.Data[k] = v
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// CancelSaga flips a running saga to cancelled. Cancellation is observed,
// not preemptive: the in-flight step finishes and the run loop stops at
// the next step boundary.
func (s *SagaController) CancelSaga(executionID string) error {
	current, ok := s.ledger.GetSaga(executionID)
	if !ok {
		return errors.Wrapf(ErrNotFound, "saga execution %s", executionID)
	}
	if current.Status != models.RunningSagaStatus {
		return nil
	}
	final, err := s.ledger.UpdateSaga(executionID, func(e *models.SagaExecution) error {
		if e.Status != models.RunningSagaStatus {
			return nil
		}
		e.Status = models.CancelledSagaStatus
		now := time.Now()
		e.CompletedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrTerminal) {
			return nil
		}
		return err
	}
	if final.Status != models.CancelledSagaStatus {
		return nil
	}
	s.em.emit(models.SagaCancelledEvent, executionID, map[string]any{
		"saga_id": final.SagaID,
	})
	s.logger.Infof("Saga execution %s cancelled", executionID)
	return nil
}

// GetSagaExecution returns the live record, falling back to the persisted
// snapshot once the execution has been evicted from the ledger.
func (s *SagaController) GetSagaExecution(id string) (models.SagaExecution, bool) {
	if exec, ok := s.ledger.GetSaga(id); ok {
		return exec, true
	}
	exec, err := s.store.GetSagaSnapshot(id)
	if err != nil {
		return models.SagaExecution{}, false
	}
	return exec, true
}

// ListSagaExecutions returns all live (non-terminal) saga records.
func (s *SagaController) ListSagaExecutions() []models.SagaExecution {
	return s.ledger.ListSagas()
}

func (s *SagaController) snapshot(exec models.SagaExecution) {
	if err := s.store.SaveSagaSnapshot(exec); err != nil {
		s.logger.Errorf("Failed to persist snapshot for saga execution %s: %v", exec.ExecutionID, err)
	}
}
