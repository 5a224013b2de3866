package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// ActionFunc is one registered unit of business logic.
type ActionFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// CompensationFunc is one registered compensating action.
type CompensationFunc func(ctx context.Context, data map[string]any) error

// ActionRegistry is a name-keyed dispatcher implementing the step and
// compensation runner contracts. Workflow steps select their action via
// the "action" config key; saga steps via their Action reference.
type ActionRegistry struct {
	mu            sync.RWMutex
	actions       map[string]ActionFunc
	compensations map[string]CompensationFunc
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		actions:       make(map[string]ActionFunc),
		compensations: make(map[string]CompensationFunc),
	}
}

// RegisterAction binds a name to business logic. Re-registering replaces
// the previous binding.
func (r *ActionRegistry) RegisterAction(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

// RegisterCompensation binds a compensating action name.
func (r *ActionRegistry) RegisterCompensation(name string, fn CompensationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations[name] = fn
}

func (r *ActionRegistry) RunStep(ctx context.Context, step models.Step, execCtx map[string]any) (StepResult, error) {
	name, _ := step.Config["action"].(string)
	if name == "" {
		name = step.ID
	}
	r.mu.RLock()
	fn, ok := r.actions[name]
	r.mu.RUnlock()
	if !ok {
		return StepResult{}, errors.Errorf("action '%s' is not registered", name)
	}
	data, err := fn(ctx, execCtx)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Data: data}, nil
}

func (r *ActionRegistry) RunSagaStep(ctx context.Context, step models.SagaStep, data map[string]any) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.actions[step.Action]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("action '%s' is not registered", step.Action)
	}
	return fn(ctx, data)
}

func (r *ActionRegistry) Compensate(ctx context.Context, action string, data map[string]any) error {
	r.mu.RLock()
	fn, ok := r.compensations[action]
	r.mu.RUnlock()
	if !ok {
		return errors.Errorf("compensation '%s' is not registered", action)
	}
	return fn(ctx, data)
}
