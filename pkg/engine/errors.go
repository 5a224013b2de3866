package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Sentinel error kinds. Callers classify failures with errors.Is.
var (
	// ErrNotFound marks an unknown definition or execution.
	ErrNotFound = errors.New("not found")
	// ErrNoMatchingTrigger marks an event no trigger of the definition matched.
	ErrNoMatchingTrigger = errors.New("no matching trigger")
	// ErrDependencyNotMet marks a step selected while a declared dependency
	// has not completed.
	ErrDependencyNotMet = errors.New("dependency not met")
)

// ValidationError reports why a definition was rejected before any
// execution record was created.
type ValidationError struct {
	Definition string
	Reasons    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("definition %s failed validation: %s", e.Definition, strings.Join(e.Reasons, "; "))
}

// StepExecutionError wraps a step runner failure with enough context to
// reconstruct what failed.
type StepExecutionError struct {
	ExecutionID string
	StepID      string
	Err         error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("execution %s: step %s failed: %v", e.ExecutionID, e.StepID, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// CompensationError wraps a failed compensation action. A failed
// compensation is a top-level, user-visible failure, never silently
// absorbed.
type CompensationError struct {
	ExecutionID string
	StepID      string
	Err         error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("execution %s: compensation for step %s failed: %v", e.ExecutionID, e.StepID, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}
