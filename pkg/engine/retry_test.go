package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

func TestBackoffDelay(t *testing.T) {
	t.Run("Fixed", func(t *testing.T) {
		p := models.RetryPolicy{Backoff: models.FixedBackoff, DelayMs: 100}
		assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 1))
		assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 5))
	})

	t.Run("Linear", func(t *testing.T) {
		p := models.RetryPolicy{Backoff: models.LinearBackoff, DelayMs: 100}
		assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 1))
		assert.Equal(t, 200*time.Millisecond, backoffDelay(p, 2))
		assert.Equal(t, 500*time.Millisecond, backoffDelay(p, 5))
	})

	t.Run("Exponential", func(t *testing.T) {
		p := models.RetryPolicy{Backoff: models.ExponentialBackoff, DelayMs: 100}
		assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 1))
		assert.Equal(t, 200*time.Millisecond, backoffDelay(p, 2))
		assert.Equal(t, 400*time.Millisecond, backoffDelay(p, 3))
		assert.Equal(t, 800*time.Millisecond, backoffDelay(p, 4))
	})

	t.Run("MaxDelayCapsGrowth", func(t *testing.T) {
		p := models.RetryPolicy{Backoff: models.ExponentialBackoff, DelayMs: 100, MaxDelayMs: 300}
		assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 1))
		assert.Equal(t, 200*time.Millisecond, backoffDelay(p, 2))
		assert.Equal(t, 300*time.Millisecond, backoffDelay(p, 3))
		assert.Equal(t, 300*time.Millisecond, backoffDelay(p, 10))
	})

	t.Run("UnknownKindFallsBackToFixed", func(t *testing.T) {
		p := models.RetryPolicy{Backoff: "fibonacci", DelayMs: 100}
		assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 3))
	})

	t.Run("AttemptClampedToOne", func(t *testing.T) {
		p := models.RetryPolicy{Backoff: models.LinearBackoff, DelayMs: 100}
		assert.Equal(t, 100*time.Millisecond, backoffDelay(p, 0))
	})
}

func TestSleep(t *testing.T) {
	t.Run("NonPositiveReturnsImmediately", func(t *testing.T) {
		assert.NoError(t, sleep(context.Background(), 0))
		assert.NoError(t, sleep(context.Background(), -time.Second))
	})

	t.Run("CancelledContextAborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		start := time.Now()
		err := sleep(ctx, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestConfigHelpers(t *testing.T) {
	t.Run("ConfigDuration", func(t *testing.T) {
		assert.Equal(t, 250*time.Millisecond, configDuration(map[string]any{"duration_ms": 250}))
		// float64 is what JSON decoding hands us
		assert.Equal(t, 250*time.Millisecond, configDuration(map[string]any{"duration_ms": float64(250)}))
		assert.Equal(t, time.Duration(0), configDuration(map[string]any{}))
	})

	t.Run("ConfigInt", func(t *testing.T) {
		assert.Equal(t, 3, configInt(map[string]any{"iterations": 3}, "iterations", 1))
		assert.Equal(t, 1, configInt(map[string]any{}, "iterations", 1))
		assert.Equal(t, 1, configInt(map[string]any{"iterations": "three"}, "iterations", 1))
	})

	t.Run("ParallelBranches", func(t *testing.T) {
		step := models.Step{Config: map[string]any{"steps": []string{"a", "b"}}}
		assert.Equal(t, []string{"a", "b"}, parallelBranches(step))

		decoded := models.Step{Config: map[string]any{"steps": []any{"a", "b"}}}
		assert.Equal(t, []string{"a", "b"}, parallelBranches(decoded))

		assert.Nil(t, parallelBranches(models.Step{Config: map[string]any{}}))
	})

	t.Run("ConfigConditions", func(t *testing.T) {
		typed := map[string]any{"conditions": []models.Condition{{Field: "x", Operator: models.OpExists}}}
		conds, err := configConditions(typed)
		assert.NoError(t, err)
		assert.Len(t, conds, 1)

		decoded := map[string]any{"conditions": []any{
			map[string]any{"field": "amount", "operator": "gt", "value": 10},
		}}
		conds, err = configConditions(decoded)
		assert.NoError(t, err)
		assert.Len(t, conds, 1)
		assert.Equal(t, "amount", conds[0].Field)
		assert.Equal(t, models.OpGt, conds[0].Operator)

		conds, err = configConditions(map[string]any{})
		assert.NoError(t, err)
		assert.Nil(t, conds)
	})
}
