package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// compensate applies the definition's compensation policy after the first
// step failure and records the terminal compensated or compensation_failed
// state. The original step error is re-raised on success; a compensation
// failure supersedes it.
func (s *SagaController) compensate(ctx context.Context, def models.SagaDefinition, execID string, failed models.SagaExecution, stepErr error) error {
	policy := def.CompensationPolicy
	budget := newCompensationBudget(policy.MaxCompensations)

	var compErr error
	switch policy.Strategy {
	case models.ForwardCompensation:
		compErr = s.compensateForward(ctx, def, execID, failed, budget)
	case models.MixedCompensation:
		compErr = s.compensateBackward(ctx, def, execID, failed, policy.ParallelCompensation, budget)
		if compErr == nil {
			compErr = s.compensateForward(ctx, def, execID, failed, budget)
		}
	default:
		compErr = s.compensateBackward(ctx, def, execID, failed, policy.ParallelCompensation, budget)
	}

	if compErr != nil {
		final, err := s.ledger.UpdateSaga(execID, func(e *models.SagaExecution) error {
			e.Status = models.CompensationFailedSagaStatus
			now := time.Now()
			e.CompletedAt = &now
			return nil
		})
		if err != nil {
			s.logger.Errorf("Failed to record compensation failure for saga execution %s: %v", execID, err)
		} else {
			s.snapshot(final)
		}
		s.em.emit(models.SagaCompensationFailedEvent, execID, map[string]any{
			"saga_id": def.ID,
			"error":   compErr.Error(),
		})
		return compErr
	}

	final, err := s.ledger.UpdateSaga(execID, func(e *models.SagaExecution) error {
		e.Status = models.CompensatedSagaStatus
		now := time.Now()
		e.CompletedAt = &now
		return nil
	})
	if err != nil {
		s.logger.Errorf("Failed to record compensation for saga execution %s: %v", execID, err)
	} else {
		s.snapshot(final)
	}
	s.em.emit(models.SagaCompensatedEvent, execID, map[string]any{
		"saga_id": def.ID,
	})
	return &StepExecutionError{ExecutionID: execID, StepID: currentStepID(def, failed), Err: stepErr}
}

// compensateBackward walks the completed steps in reverse, invoking each
// declared compensation action with the accumulated data. A compensation
// failure aborts the remaining walk. With parallel compensation the walk
// fans out and the first failure wins.
func (s *SagaController) compensateBackward(ctx context.Context, def models.SagaDefinition, execID string, failed models.SagaExecution, parallel bool, budget *compensationBudget) error {
	var steps []models.SagaStep
	for i := len(failed.CompletedSteps) - 1; i >= 0; i-- {
		step, ok := sagaStepByID(def, failed.CompletedSteps[i])
		if !ok || step.Compensation == "" {
			continue
		}
		steps = append(steps, step)
	}

	if !parallel {
		for _, step := range steps {
			if !budget.take() {
				s.logger.Warnf("Compensation budget exhausted for saga execution %s, skipping %s", execID, step.ID)
				return nil
			}
			if err := s.runCompensation(ctx, execID, step, failed.Data); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, step := range steps {
		if !budget.take() {
			s.logger.Warnf("Compensation budget exhausted for saga execution %s, skipping %s", execID, step.ID)
			break
		}
		wg.Add(1)
		go func(step models.SagaStep) {
			defer wg.Done()
			if err := s.runCompensation(ctx, execID, step, failed.Data); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(step)
	}
	wg.Wait()
	return firstErr
}

// compensateForward walks the remaining, not-yet-executed steps in
// definition order, invoking each declared compensation action as
// pre-registered cleanup.
func (s *SagaController) compensateForward(ctx context.Context, def models.SagaDefinition, execID string, failed models.SagaExecution, budget *compensationBudget) error {
	for i := failed.CurrentStepIndex + 1; i < len(def.Steps); i++ {
		step := def.Steps[i]
		if step.Compensation == "" {
			continue
		}
		if !budget.take() {
			s.logger.Warnf("Compensation budget exhausted for saga execution %s, skipping %s", execID, step.ID)
			return nil
		}
		if err := s.runCompensation(ctx, execID, step, failed.Data); err != nil {
			return err
		}
	}
	return nil
}

func (s *SagaController) runCompensation(ctx context.Context, execID string, step models.SagaStep, data map[string]any) error {
	s.logger.Infof("Compensating step %s (%s) for saga execution %s", step.ID, step.Compensation, execID)
	if err := s.comp.Compensate(ctx, step.Compensation, data); err != nil {
		return &CompensationError{ExecutionID: execID, StepID: step.ID, Err: err}
	}
	return nil
}

// compensationBudget bounds the total number of compensation invocations
// across the whole unwind. Zero means unbounded.
type compensationBudget struct {
	mu        sync.Mutex
	remaining int
	unbounded bool
}

func newCompensationBudget(max int) *compensationBudget {
	return &compensationBudget{remaining: max, unbounded: max <= 0}
}

func (b *compensationBudget) take() bool {
	if b.unbounded {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining == 0 {
		return false
	}
	b.remaining--
	return true
}

func sagaStepByID(def models.SagaDefinition, id string) (models.SagaStep, bool) {
	for _, s := range def.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return models.SagaStep{}, false
}

func currentStepID(def models.SagaDefinition, exec models.SagaExecution) string {
	if exec.CurrentStepIndex >= 0 && exec.CurrentStepIndex < len(def.Steps) {
		return def.Steps[exec.CurrentStepIndex].ID
	}
	if n := len(exec.FailedSteps); n > 0 {
		return exec.FailedSteps[n-1].StepID
	}
	return ""
}
