package models

import "time"

type CompensationStrategy string

const (
	BackwardCompensation CompensationStrategy = "backward"
	ForwardCompensation  CompensationStrategy = "forward"
	MixedCompensation    CompensationStrategy = "mixed"
)

// CompensationPolicy controls how a saga is unwound after a step failure.
type CompensationPolicy struct {
	Strategy             CompensationStrategy `json:"strategy"`
	MaxCompensations     int                  `json:"max_compensations,omitempty"`
	ParallelCompensation bool                 `json:"parallel_compensation,omitempty"`
}

// SagaDefinition is an ordered sequence of steps representing a distributed
// transaction with compensating actions.
type SagaDefinition struct {
	ID                 string             `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	Steps              []SagaStep         `json:"steps"`
	CompensationPolicy CompensationPolicy `json:"compensation_policy"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
}

// SagaStep runs its Action forward and, when set, its Compensation on
// downstream failure. Dependencies name step ids that must have completed
// first; they gate execution but never reorder the sequence.
type SagaStep struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Action       string   `json:"action"`
	Compensation string   `json:"compensation,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	TimeoutMs    int64    `json:"timeout_ms,omitempty"`
}

// Timeout returns the per-step timeout, or zero when unset.
func (s SagaStep) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

type SagaStatus string

const (
	RunningSagaStatus            SagaStatus = "running"
	CompletedSagaStatus          SagaStatus = "completed"
	FailedSagaStatus             SagaStatus = "failed"
	CompensatedSagaStatus        SagaStatus = "compensated"
	CompensationFailedSagaStatus SagaStatus = "compensation_failed"
	CancelledSagaStatus          SagaStatus = "cancelled"
)

// Terminal reports whether the saga status is final.
func (s SagaStatus) Terminal() bool {
	switch s {
	case CompletedSagaStatus, CompensatedSagaStatus, CompensationFailedSagaStatus, CancelledSagaStatus:
		return true
	}
	return false
}

// StepFailure records one failed saga step. Every failure encountered is
// recorded, not just the first.
type StepFailure struct {
	StepID    string    `json:"step_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SagaExecution is the in-memory run record of a saga instance.
type SagaExecution struct {
	ExecutionID      string         `json:"execution_id" db:"execution_id"`
	SagaID           string         `json:"saga_id" db:"saga_id"`
	Status           SagaStatus     `json:"status" db:"status"`
	CurrentStepIndex int            `json:"current_step_index"`
	Data             map[string]any `json:"data,omitempty"`
	CompletedSteps   []string       `json:"completed_steps,omitempty"`
	FailedSteps      []StepFailure  `json:"failed_steps,omitempty"`
	StartTime        time.Time      `json:"start_time"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// MarkCompleted appends a step id to CompletedSteps, keeping the list free
// of duplicates.
func (e *SagaExecution) MarkCompleted(stepID string) {
	for _, id := range e.CompletedSteps {
		if id == stepID {
			return
		}
	}
	e.CompletedSteps = append(e.CompletedSteps, stepID)
}

// HasCompleted reports whether the step id is in CompletedSteps.
func (e *SagaExecution) HasCompleted(stepID string) bool {
	for _, id := range e.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// Clone returns a copy with its own data and slices.
func (e SagaExecution) Clone() SagaExecution {
	out := e
	if e.Data != nil {
		out.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	out.CompletedSteps = append([]string(nil), e.CompletedSteps...)
	out.FailedSteps = append([]StepFailure(nil), e.FailedSteps...)
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
