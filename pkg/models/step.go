package models

import "time"

type StepType string

const (
	ActionStepType    StepType = "action"
	ConditionStepType StepType = "condition"
	LoopStepType      StepType = "loop"
	ParallelStepType  StepType = "parallel"
	DelayStepType     StepType = "delay"
)

// Step is a unit of work within a workflow definition. Successors are
// referenced by id in Next; Dependencies gate when the step may run.
type Step struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Type         StepType       `json:"type"`
	Config       map[string]any `json:"config,omitempty"`
	Next         []string       `json:"next,omitempty"`
	ErrorHandler string         `json:"error_handler,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	RetryPolicy  *RetryPolicy   `json:"retry_policy,omitempty"`
}

type BackoffKind string

const (
	FixedBackoff       BackoffKind = "fixed"
	LinearBackoff      BackoffKind = "linear"
	ExponentialBackoff BackoffKind = "exponential"
)

// RetryPolicy controls re-execution of a failed step. Delay and MaxDelay
// are milliseconds so policies survive a round-trip through JSONB.
type RetryPolicy struct {
	MaxAttempts int         `json:"max_attempts"`
	Backoff     BackoffKind `json:"backoff"`
	DelayMs     int64       `json:"delay_ms"`
	MaxDelayMs  int64       `json:"max_delay_ms,omitempty"`
}

// Delay returns the configured base delay as a duration.
func (p RetryPolicy) Delay() time.Duration {
	return time.Duration(p.DelayMs) * time.Millisecond
}

// MaxDelay returns the configured cap, or zero when unset.
func (p RetryPolicy) MaxDelay() time.Duration {
	return time.Duration(p.MaxDelayMs) * time.Millisecond
}
