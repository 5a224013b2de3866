package engine

import (
	"context"
	"time"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// backoffDelay computes the wait before the given retry. attempt is
// 1-based: the delay applied after the attempt-th failure.
//
//	fixed:       delay
//	linear:      delay * attempt
//	exponential: delay * 2^(attempt-1)
//
// The result is capped at MaxDelay when one is configured.
func backoffDelay(p models.RetryPolicy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Delay()
	var d time.Duration
	switch p.Backoff {
	case models.LinearBackoff:
		d = base * time.Duration(attempt)
	case models.ExponentialBackoff:
		d = base << uint(attempt-1)
	default:
		d = base
	}
	if max := p.MaxDelay(); max > 0 && d > max {
		d = max
	}
	return d
}

// sleep is a context-aware timed suspension, not a busy-wait.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
