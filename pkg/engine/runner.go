package engine

import (
	"context"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// Logger defines the logging interface for the engines.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// StepResult is the output of a workflow step. Data is merged into the
// execution context; NextSteps optionally overrides the step's static
// successors.
type StepResult struct {
	Data      map[string]any
	NextSteps []string
}

// StepRunner executes one workflow step's business logic given the
// accumulated execution context. Pure function contract, no orchestration
// knowledge.
type StepRunner interface {
	RunStep(ctx context.Context, step models.Step, execCtx map[string]any) (StepResult, error)
}

// StepRunnerFunc adapts a function to StepRunner.
type StepRunnerFunc func(ctx context.Context, step models.Step, execCtx map[string]any) (StepResult, error)

func (f StepRunnerFunc) RunStep(ctx context.Context, step models.Step, execCtx map[string]any) (StepResult, error) {
	return f(ctx, step, execCtx)
}

// SagaStepRunner executes one saga step's forward action against the
// accumulated saga data and returns data to merge back.
type SagaStepRunner interface {
	RunSagaStep(ctx context.Context, step models.SagaStep, data map[string]any) (map[string]any, error)
}

// SagaStepRunnerFunc adapts a function to SagaStepRunner.
type SagaStepRunnerFunc func(ctx context.Context, step models.SagaStep, data map[string]any) (map[string]any, error)

func (f SagaStepRunnerFunc) RunSagaStep(ctx context.Context, step models.SagaStep, data map[string]any) (map[string]any, error) {
	return f(ctx, step, data)
}

// CompensationRunner executes one named compensating action given the
// accumulated saga data.
type CompensationRunner interface {
	Compensate(ctx context.Context, action string, data map[string]any) error
}

// CompensationRunnerFunc adapts a function to CompensationRunner.
type CompensationRunnerFunc func(ctx context.Context, action string, data map[string]any) error

func (f CompensationRunnerFunc) Compensate(ctx context.Context, action string, data map[string]any) error {
	return f(ctx, action, data)
}
