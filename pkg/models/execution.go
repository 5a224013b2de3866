package models

import "time"

type ExecutionStatus string

const (
	PendingExecutionStatus   ExecutionStatus = "pending"
	RunningExecutionStatus   ExecutionStatus = "running"
	CompletedExecutionStatus ExecutionStatus = "completed"
	FailedExecutionStatus    ExecutionStatus = "failed"
	CancelledExecutionStatus ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final. No transition leaves a
// terminal status.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case CompletedExecutionStatus, FailedExecutionStatus, CancelledExecutionStatus:
		return true
	}
	return false
}

// WorkflowExecution is the mutable run record of a single workflow instance.
type WorkflowExecution struct {
	ID          string          `json:"id" db:"id"`
	WorkflowID  string          `json:"workflow_id" db:"workflow_id"`
	Status      ExecutionStatus `json:"status" db:"status"`
	CurrentStep string          `json:"current_step,omitempty"`
	Context     map[string]any  `json:"context,omitempty"`
	Result      map[string]any  `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Finish stamps the terminal bookkeeping exactly once: CompletedAt and
// DurationMs are only written on the first terminal transition.
func (e *WorkflowExecution) Finish(at time.Time) {
	if e.CompletedAt != nil {
		return
	}
	e.CompletedAt = &at
	d := at.Sub(e.StartedAt)
	if d < 0 {
		d = 0
	}
	e.DurationMs = d.Milliseconds()
}

// Clone returns a copy with its own context and result maps so callers
// cannot mutate ledger-owned state.
func (e WorkflowExecution) Clone() WorkflowExecution {
	out := e
	if e.Context != nil {
		out.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			out.Context[k] = v
		}
	}
	if e.Result != nil {
		out.Result = make(map[string]any, len(e.Result))
		for k, v := range e.Result {
			out.Result[k] = v
		}
	}
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

// Event is an inbound occurrence that may trigger workflow executions.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}
