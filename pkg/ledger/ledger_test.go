package ledger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/ledger"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

func newWorkflowExec(id string) models.WorkflowExecution {
	return models.WorkflowExecution{
		ID:         id,
		WorkflowID: "wf-1",
		Status:     models.PendingExecutionStatus,
		Context:    map[string]any{"k": "v"},
		StartedAt:  time.Now(),
	}
}

func TestLedgerWorkflowLifecycle(t *testing.T) {
	t.Run("CreateAndGet", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateWorkflow(newWorkflowExec("e1")))

		exec, ok := l.GetWorkflow("e1")
		assert.True(t, ok)
		assert.Equal(t, "e1", exec.ID)
		assert.Equal(t, models.PendingExecutionStatus, exec.Status)
	})

	t.Run("DuplicateIDRejected", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateWorkflow(newWorkflowExec("e1")))
		err := l.CreateWorkflow(newWorkflowExec("e1"))
		assert.True(t, errors.Is(err, ledger.ErrDuplicateID))
	})

	t.Run("GetReturnsCopies", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateWorkflow(newWorkflowExec("e1")))

		first, _ := l.GetWorkflow("e1")
		first.Context["k"] = "mutated"
		first.Status = models.FailedExecutionStatus

		second, _ := l.GetWorkflow("e1")
		assert.Equal(t, "v", second.Context["k"])
		assert.Equal(t, models.PendingExecutionStatus, second.Status)
	})

	t.Run("RepeatedGetIsIdempotent", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateWorkflow(newWorkflowExec("e1")))
		first, _ := l.GetWorkflow("e1")
		for i := 0; i < 10; i++ {
			again, ok := l.GetWorkflow("e1")
			assert.True(t, ok)
			assert.Equal(t, first, again)
		}
	})

	t.Run("UpdateUnknownID", func(t *testing.T) {
		l := ledger.New()
		_, err := l.UpdateWorkflow("missing", func(e *models.WorkflowExecution) error { return nil })
		assert.True(t, errors.Is(err, ledger.ErrNotFound))
	})

	t.Run("TerminalStatusIsFinal", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateWorkflow(newWorkflowExec("e1")))

		_, err := l.UpdateWorkflow("e1", func(e *models.WorkflowExecution) error {
			e.Status = models.CompletedExecutionStatus
			e.Finish(time.Now())
			return nil
		})
		assert.NoError(t, err)

		_, err = l.UpdateWorkflow("e1", func(e *models.WorkflowExecution) error {
			e.Status = models.RunningExecutionStatus
			return nil
		})
		assert.True(t, errors.Is(err, ledger.ErrTerminal))

		exec, _ := l.GetWorkflow("e1")
		assert.Equal(t, models.CompletedExecutionStatus, exec.Status)
	})

	t.Run("FailedUpdateLeavesRecordUntouched", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateWorkflow(newWorkflowExec("e1")))
		boom := errors.New("boom")
		_, err := l.UpdateWorkflow("e1", func(e *models.WorkflowExecution) error {
			e.Status = models.RunningExecutionStatus
			return boom
		})
		assert.Equal(t, boom, err)
		exec, _ := l.GetWorkflow("e1")
		assert.Equal(t, models.PendingExecutionStatus, exec.Status)
	})

	t.Run("RemoveEvicts", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateWorkflow(newWorkflowExec("e1")))
		assert.True(t, l.RemoveWorkflow("e1"))
		assert.False(t, l.RemoveWorkflow("e1"))
		_, ok := l.GetWorkflow("e1")
		assert.False(t, ok)
	})
}

func TestLedgerSagaLifecycle(t *testing.T) {
	newSagaExec := func(id string) models.SagaExecution {
		return models.SagaExecution{
			ExecutionID: id,
			SagaID:      "saga-1",
			Status:      models.RunningSagaStatus,
			Data:        map[string]any{"amount": 10},
			StartTime:   time.Now(),
		}
	}

	t.Run("CreateUpdateRemove", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateSaga(newSagaExec("s1")))

		updated, err := l.UpdateSaga("s1", func(e *models.SagaExecution) error {
			e.MarkCompleted("step1")
			e.MarkCompleted("step1")
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"step1"}, updated.CompletedSteps)

		assert.True(t, l.RemoveSaga("s1"))
		_, ok := l.GetSaga("s1")
		assert.False(t, ok)
	})

	t.Run("TerminalSagaIsFinal", func(t *testing.T) {
		l := ledger.New()
		assert.NoError(t, l.CreateSaga(newSagaExec("s1")))
		_, err := l.UpdateSaga("s1", func(e *models.SagaExecution) error {
			e.Status = models.CompensatedSagaStatus
			return nil
		})
		assert.NoError(t, err)

		_, err = l.UpdateSaga("s1", func(e *models.SagaExecution) error {
			e.Status = models.RunningSagaStatus
			return nil
		})
		assert.True(t, errors.Is(err, ledger.ErrTerminal))
	})
}

// Different execution ids must proceed fully independently; the same id is
// serialized. Hammering both shapes under the race detector is the test.
func TestLedgerConcurrentUpdates(t *testing.T) {
	l := ledger.New()
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		exec := newWorkflowExec(id)
		exec.Context = map[string]any{"count": 0}
		assert.NoError(t, l.CreateWorkflow(exec))
	}

	const updatesPerID = 50
	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < updatesPerID; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := l.UpdateWorkflow(id, func(e *models.WorkflowExecution) error {
					e.Context["count"] = e.Context["count"].(int) + 1
					return nil
				})
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		exec, ok := l.GetWorkflow(id)
		assert.True(t, ok)
		assert.Equal(t, updatesPerID, exec.Context["count"], "updates for id %s must be serialized", id)
	}
}
