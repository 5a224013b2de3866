package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	internal_storage "github.com/Dijital-Vizyon/flowforge-nexus/internal/storage"
	"github.com/Dijital-Vizyon/flowforge-nexus/internal/testutil"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/storage"
)

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	// Helper to create a transactional store
	newTxStore := func(t *testing.T) *internal_storage.PostgresStore {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		txStore, err := store.Begin()
		assert.NoError(t, err)
		t.Cleanup(func() { txStore.Rollback() })
		return txStore.(*internal_storage.PostgresStore)
	}

	sampleDefinition := func(name string) models.WorkflowDefinition {
		return models.WorkflowDefinition{
			Name:     name,
			Version:  1,
			Status:   models.DraftDefinitionStatus,
			Triggers: []models.Trigger{{EventType: "order.created"}},
			Steps: []models.Step{
				{ID: "step1", Type: models.ActionStepType, Next: []string{"step2"}},
				{ID: "step2", Type: models.ActionStepType,
					RetryPolicy: &models.RetryPolicy{MaxAttempts: 3, Backoff: models.ExponentialBackoff, DelayMs: 100}},
			},
		}
	}

	t.Run("SaveAndGetWorkflowDefinition", func(t *testing.T) {
		store := newTxStore(t)
		id, err := store.SaveWorkflowDefinition(sampleDefinition("SaveTest"))
		assert.NoError(t, err)
		assert.NotEmpty(t, id)

		saved, err := store.GetWorkflowDefinition(id)
		assert.NoError(t, err)
		assert.Equal(t, "SaveTest", saved.Name)
		assert.Equal(t, models.DraftDefinitionStatus, saved.Status)
		assert.Len(t, saved.Steps, 2)
		// the retry policy survives the JSONB round-trip intact
		assert.Equal(t, models.ExponentialBackoff, saved.Steps[1].RetryPolicy.Backoff)
		assert.Equal(t, int64(100), saved.Steps[1].RetryPolicy.DelayMs)
	})

	t.Run("GetNonExistingDefinition", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetWorkflowDefinition("no-such-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("FindByNamePicksHighestPublishedVersion", func(t *testing.T) {
		store := newTxStore(t)

		v1 := sampleDefinition("FindTest")
		v1.Status = models.PublishedDefinitionStatus
		v1.Active = true
		_, err := store.SaveWorkflowDefinition(v1)
		assert.NoError(t, err)

		v2 := sampleDefinition("FindTest")
		v2.Version = 2
		v2.Status = models.PublishedDefinitionStatus
		v2.Active = true
		_, err = store.SaveWorkflowDefinition(v2)
		assert.NoError(t, err)

		v3 := sampleDefinition("FindTest")
		v3.Version = 3 // still draft, must not be picked
		_, err = store.SaveWorkflowDefinition(v3)
		assert.NoError(t, err)

		found, err := store.FindWorkflowDefinition("FindTest")
		assert.NoError(t, err)
		assert.Equal(t, 2, found.Version)
	})

	t.Run("FindByIDBeatsName", func(t *testing.T) {
		store := newTxStore(t)
		id, err := store.SaveWorkflowDefinition(sampleDefinition("ByIDTest"))
		assert.NoError(t, err)

		found, err := store.FindWorkflowDefinition(id)
		assert.NoError(t, err)
		assert.Equal(t, id, found.ID)
	})

	t.Run("UpdateWorkflowDefinitionStatus", func(t *testing.T) {
		store := newTxStore(t)
		id, err := store.SaveWorkflowDefinition(sampleDefinition("StatusTest"))
		assert.NoError(t, err)

		err = store.UpdateWorkflowDefinitionStatus(id, models.PublishedDefinitionStatus, true)
		assert.NoError(t, err)

		updated, err := store.GetWorkflowDefinition(id)
		assert.NoError(t, err)
		assert.Equal(t, models.PublishedDefinitionStatus, updated.Status)
		assert.True(t, updated.Active)
		assert.True(t, updated.Executable())
	})

	t.Run("UpdateStatusOfMissingDefinition", func(t *testing.T) {
		store := newTxStore(t)
		err := store.UpdateWorkflowDefinitionStatus("no-such-id", models.PublishedDefinitionStatus, true)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListWorkflowDefinitions", func(t *testing.T) {
		store := newTxStore(t)

		published := sampleDefinition("ListActive")
		published.Status = models.PublishedDefinitionStatus
		published.Active = true
		_, err := store.SaveWorkflowDefinition(published)
		assert.NoError(t, err)
		_, err = store.SaveWorkflowDefinition(sampleDefinition("ListDraft"))
		assert.NoError(t, err)

		all, err := store.ListWorkflowDefinitions(false)
		assert.NoError(t, err)
		assert.Len(t, all, 2)

		active, err := store.ListWorkflowDefinitions(true)
		assert.NoError(t, err)
		assert.Len(t, active, 1)
		assert.Equal(t, "ListActive", active[0].Name)
	})

	t.Run("SaveAndGetSagaDefinition", func(t *testing.T) {
		store := newTxStore(t)
		id, err := store.SaveSagaDefinition(models.SagaDefinition{
			Name: "trip-booking",
			CompensationPolicy: models.CompensationPolicy{
				Strategy:         models.BackwardCompensation,
				MaxCompensations: 5,
			},
			Steps: []models.SagaStep{
				{ID: "book_flight", Action: "reserve_flight", Compensation: "cancel_flight", TimeoutMs: 5000},
				{ID: "book_hotel", Action: "reserve_hotel", Dependencies: []string{"book_flight"}},
			},
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, id)

		saved, err := store.GetSagaDefinition(id)
		assert.NoError(t, err)
		assert.Equal(t, "trip-booking", saved.Name)
		assert.Equal(t, models.BackwardCompensation, saved.CompensationPolicy.Strategy)
		assert.Len(t, saved.Steps, 2)
		assert.Equal(t, []string{"book_flight"}, saved.Steps[1].Dependencies)

		list, err := store.ListSagaDefinitions()
		assert.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("GetNonExistingSagaDefinition", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetSagaDefinition("no-such-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("WorkflowSnapshotUpsert", func(t *testing.T) {
		store := newTxStore(t)
		exec := models.WorkflowExecution{
			ID:         "exec-1",
			WorkflowID: "wf-1",
			Status:     models.RunningExecutionStatus,
			Context:    map[string]any{"order_id": "o-1"},
			StartedAt:  time.Now(),
		}
		assert.NoError(t, store.SaveWorkflowSnapshot(exec))

		// the latest snapshot wins
		now := time.Now()
		exec.Status = models.CompletedExecutionStatus
		exec.CompletedAt = &now
		exec.DurationMs = 42
		assert.NoError(t, store.SaveWorkflowSnapshot(exec))

		saved, err := store.GetWorkflowSnapshot("exec-1")
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedExecutionStatus, saved.Status)
		assert.Equal(t, int64(42), saved.DurationMs)
		assert.Equal(t, "o-1", saved.Context["order_id"])

		_, err = store.GetWorkflowSnapshot("no-such-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SagaSnapshotUpsert", func(t *testing.T) {
		store := newTxStore(t)
		exec := models.SagaExecution{
			ExecutionID:    "saga-exec-1",
			SagaID:         "saga-1",
			Status:         models.RunningSagaStatus,
			Data:           map[string]any{"trip": "t-1"},
			CompletedSteps: []string{"book_flight"},
			StartTime:      time.Now(),
		}
		assert.NoError(t, store.SaveSagaSnapshot(exec))

		exec.Status = models.CompensatedSagaStatus
		exec.FailedSteps = []models.StepFailure{{StepID: "charge_card", Error: "declined", Timestamp: time.Now()}}
		assert.NoError(t, store.SaveSagaSnapshot(exec))

		saved, err := store.GetSagaSnapshot("saga-exec-1")
		assert.NoError(t, err)
		assert.Equal(t, models.CompensatedSagaStatus, saved.Status)
		assert.Equal(t, []string{"book_flight"}, saved.CompletedSteps)
		assert.Len(t, saved.FailedSteps, 1)

		_, err = store.GetSagaSnapshot("no-such-id")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CommittedDataOutlivesTheStore", func(t *testing.T) {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		txStore, err := store.Begin()
		assert.NoError(t, err)

		id, err := txStore.SaveWorkflowDefinition(sampleDefinition("CommitTest"))
		assert.NoError(t, err)
		assert.NoError(t, txStore.Commit())

		fresh, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		assert.NoError(t, err)
		defer fresh.Close()
		saved, err := fresh.GetWorkflowDefinition(id)
		assert.NoError(t, err)
		assert.Equal(t, "CommitTest", saved.Name)
	})
}
