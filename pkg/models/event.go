package models

import "time"

// Lifecycle event names emitted through the notification sink.
const (
	ExecutionStartedEvent   = "execution.started"
	ExecutionCompletedEvent = "execution.completed"
	ExecutionFailedEvent    = "execution.failed"
	ExecutionCancelledEvent = "execution.cancelled"

	SagaStartedEvent            = "saga.started"
	SagaStepCompletedEvent      = "saga.step.completed"
	SagaCompletedEvent          = "saga.completed"
	SagaFailedEvent             = "saga.failed"
	SagaCompensatedEvent        = "saga.compensated"
	SagaCompensationFailedEvent = "saga.compensation_failed"
	SagaCancelledEvent          = "saga.cancelled"
)

// LifecycleEvent is an outbound notification about an execution transition.
type LifecycleEvent struct {
	Name        string         `json:"name"`
	ExecutionID string         `json:"execution_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	EmittedAt   time.Time      `json:"emitted_at"`
}
