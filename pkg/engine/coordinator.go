package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/graph"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/ledger"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/storage"
)

// Coordinator drives a single workflow instance from a triggering event
// through its step graph to completion, cancellation or failure. Many
// executions run concurrently; within one execution steps run sequentially
// unless a step is typed parallel.
type Coordinator struct {
	store  storage.Store
	ledger *ledger.Ledger
	runner StepRunner
	em     emitter
	logger Logger
}

func NewCoordinator(store storage.Store, lg *ledger.Ledger, runner StepRunner, sink Sink, logger Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		ledger: lg,
		runner: runner,
		em:     emitter{sink: sink, logger: logger},
		logger: logger,
	}
}

// Execute looks up and validates the definition, matches the event against
// its triggers and walks the step graph to a terminal state. Lookup,
// validation and trigger-match failures are reported before any execution
// record is created.
func (c *Coordinator) Execute(ctx context.Context, workflowID string, event models.Event, initCtx map[string]any) (models.WorkflowExecution, error) {
	def, err := c.store.FindWorkflowDefinition(workflowID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.WorkflowExecution{}, errors.Wrapf(ErrNotFound, "workflow definition %s", workflowID)
		}
		return models.WorkflowExecution{}, errors.Wrapf(err, "lookup of workflow definition %s", workflowID)
	}
	if !def.Executable() {
		return models.WorkflowExecution{}, errors.Wrapf(ErrNotFound, "workflow definition %s is %s, not executable", workflowID, def.Status)
	}
	if err := ValidateWorkflowDefinition(def); err != nil {
		return models.WorkflowExecution{}, err
	}

	startSteps := c.matchTriggers(def, event)
	if len(startSteps) == 0 {
		return models.WorkflowExecution{}, errors.Wrapf(ErrNoMatchingTrigger, "workflow %s, event type %q", def.ID, event.Type)
	}

	execCtx := make(map[string]any, len(initCtx)+len(event.Payload))
	for k, v := range event.Payload {
		execCtx[k] = v
	}
	for k, v := range initCtx {
		execCtx[k] = v
	}

	exec := models.WorkflowExecution{
		ID:         ledger.NewID(),
		WorkflowID: def.ID,
		Status:     models.PendingExecutionStatus,
		Context:    execCtx,
		StartedAt:  time.Now(),
	}
	if err := c.ledger.CreateWorkflow(exec); err != nil {
		return models.WorkflowExecution{}, err
	}
	c.em.emit(models.ExecutionStartedEvent, exec.ID, map[string]any{
		"workflow_id": def.ID,
		"event_type":  event.Type,
	})

	if _, err := c.ledger.UpdateWorkflow(exec.ID, func(e *models.WorkflowExecution) error {
		e.Status = models.RunningExecutionStatus
		return nil
	}); err != nil {
		return models.WorkflowExecution{}, err
	}

	final, walkErr := c.walk(ctx, def, exec.ID, startSteps)
	if walkErr != nil {
		final = c.fail(exec.ID, walkErr)
		return final, walkErr
	}
	return final, nil
}

// matchTriggers returns the start steps of every trigger matching the
// event. Triggers without an explicit step list contribute the graph's
// default entry points.
func (c *Coordinator) matchTriggers(def models.WorkflowDefinition, event models.Event) []string {
	var starts []string
	seen := make(map[string]bool)
	for _, t := range def.Triggers {
		if !MatchTrigger(t, event) {
			continue
		}
		steps := t.Steps
		if len(steps) == 0 {
			steps = graph.EntryPoints(WorkflowNodes(def.Steps))
		}
		for _, id := range steps {
			if !seen[id] {
				seen[id] = true
				starts = append(starts, id)
			}
		}
	}
	return starts
}

// walk drains the pending-step queue. Each iteration picks the first
// queued step whose dependencies are satisfied, executes it, then queues
// its successors. Cancellation is observed, not preemptive: a cancel takes
// effect at the next step boundary.
func (c *Coordinator) walk(ctx context.Context, def models.WorkflowDefinition, execID string, startSteps []string) (models.WorkflowExecution, error) {
	nodes := WorkflowNodes(def.Steps)
	completed := make(map[string]bool)
	queue := append([]string(nil), startSteps...)
	queued := make(map[string]bool, len(queue))
	for _, id := range queue {
		queued[id] = true
	}

	for len(queue) > 0 {
		current, ok := c.ledger.GetWorkflow(execID)
		if !ok {
			return models.WorkflowExecution{}, errors.Wrapf(ledger.ErrNotFound, "workflow execution %s", execID)
		}
		if current.Status == models.CancelledExecutionStatus {
			c.logger.Infof("Execution %s cancelled, stopping before next step", execID)
			return current, nil
		}

		ready := graph.ReadySet(nodes, queue, completed)
		if len(ready) == 0 {
			return models.WorkflowExecution{}, &StepExecutionError{
				ExecutionID: execID,
				StepID:      queue[0],
				Err:         errors.Wrapf(ErrDependencyNotMet, "no queued step is ready, stuck on %v", queue),
			}
		}
		stepID := ready[0]
		queue = removeID(queue, stepID)

		step, found := def.StepByID(stepID)
		if !found {
			return models.WorkflowExecution{}, &StepExecutionError{
				ExecutionID: execID,
				StepID:      stepID,
				Err:         errors.New("step not found in definition"),
			}
		}

		successors, err := c.executeStep(ctx, def, execID, step, completed)
		if err != nil {
			return models.WorkflowExecution{}, err
		}
		completed[stepID] = true

		for _, next := range successors {
			if !completed[next] && !queued[next] {
				queued[next] = true
				queue = append(queue, next)
			}
		}
	}

	final, err := c.ledger.UpdateWorkflow(execID, func(e *models.WorkflowExecution) error {
		e.Status = models.CompletedExecutionStatus
		e.Result = e.Context
		e.Finish(time.Now())
		return nil
	})
	if err != nil {
		// a concurrent cancel won the terminal transition
		if errors.Is(err, ledger.ErrTerminal) {
			current, _ := c.ledger.GetWorkflow(execID)
			return current, nil
		}
		return models.WorkflowExecution{}, err
	}
	c.snapshot(final)
	c.em.emit(models.ExecutionCompletedEvent, final.ID, map[string]any{
		"workflow_id": final.WorkflowID,
		"duration_ms": final.DurationMs,
	})
	c.logger.Infof("Execution %s completed in %dms", final.ID, final.DurationMs)
	return final, nil
}

// executeStep runs one step according to its type and failure policy and
// returns the successor ids to queue.
func (c *Coordinator) executeStep(ctx context.Context, def models.WorkflowDefinition, execID string, step models.Step, completed map[string]bool) ([]string, error) {
	exec, err := c.ledger.UpdateWorkflow(execID, func(e *models.WorkflowExecution) error {
		e.CurrentStep = step.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, runErr := c.runTyped(ctx, def, execID, step, exec.Context, completed)
	if runErr != nil {
		if step.ErrorHandler == "" {
			return nil, &StepExecutionError{ExecutionID: execID, StepID: step.ID, Err: runErr}
		}
		handler, ok := def.StepByID(step.ErrorHandler)
		if !ok {
			return nil, &StepExecutionError{
				ExecutionID: execID,
				StepID:      step.ID,
				Err:         errors.Wrapf(runErr, "error handler %s not found", step.ErrorHandler),
			}
		}
		c.logger.Infof("Step %s failed, running error handler %s: %v", step.ID, handler.ID, runErr)
		handlerCtx := exec.Context
		if handlerCtx == nil {
			handlerCtx = map[string]any{}
		}
		handlerCtx["error"] = runErr.Error()
		handlerCtx["failed_step"] = step.ID
		result, runErr = c.runTyped(ctx, def, execID, handler, handlerCtx, completed)
		if runErr != nil {
			return nil, &StepExecutionError{ExecutionID: execID, StepID: handler.ID, Err: runErr}
		}
	}

	updated, err := c.ledger.UpdateWorkflow(execID, func(e *models.WorkflowExecution) error {
		if e.Context == nil {
			e.Context = map[string]any{}
		}
		for k, v := range result.Data {
			e.Context[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.snapshot(updated)

	// a condition's routing decision is authoritative: an empty route ends
	// that path instead of falling back to the static successors
	if step.Type == models.ConditionStepType {
		return result.NextSteps, nil
	}
	if len(result.NextSteps) > 0 {
		return result.NextSteps, nil
	}
	return step.Next, nil
}

// runTyped dispatches on the step type. Action and loop steps reach the
// step runner; condition, delay and parallel steps are orchestration-level.
func (c *Coordinator) runTyped(ctx context.Context, def models.WorkflowDefinition, execID string, step models.Step, execCtx map[string]any, completed map[string]bool) (StepResult, error) {
	switch step.Type {
	case models.ConditionStepType:
		return c.runCondition(step, execCtx)
	case models.DelayStepType:
		return StepResult{}, sleep(ctx, configDuration(step.Config))
	case models.ParallelStepType:
		return c.runParallel(ctx, def, execID, step, execCtx, completed)
	case models.LoopStepType:
		return c.runLoop(ctx, step, execCtx)
	default:
		return c.runWithRetry(ctx, step, execCtx)
	}
}

// runCondition evaluates the configured conditions against the execution
// context and routes to next[0] on true, next[1] on false. A branch that
// does not exist routes nowhere.
func (c *Coordinator) runCondition(step models.Step, execCtx map[string]any) (StepResult, error) {
	conds, err := configConditions(step.Config)
	if err != nil {
		return StepResult{}, err
	}
	hold := EvaluateConditions(conds, execCtx)
	var successors []string
	switch {
	case hold && len(step.Next) > 0:
		successors = step.Next[:1]
	case !hold && len(step.Next) > 1:
		successors = step.Next[1:2]
	}
	return StepResult{
		Data:      map[string]any{step.ID + ".result": hold},
		NextSteps: successors,
	}, nil
}

// runParallel fans the configured branch steps out concurrently. The step
// completes when every branch finishes; any branch failure fails the
// aggregate and the step's own error-handler semantics apply.
func (c *Coordinator) runParallel(ctx context.Context, def models.WorkflowDefinition, execID string, step models.Step, execCtx map[string]any, completed map[string]bool) (StepResult, error) {
	branches := parallelBranches(step)
	if len(branches) == 0 {
		return StepResult{}, errors.Errorf("parallel step %s configures no branch steps", step.ID)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		merged   = map[string]any{}
		firstErr error
	)
	for _, branchID := range branches {
		branch, ok := def.StepByID(branchID)
		if !ok {
			return StepResult{}, errors.Errorf("parallel step %s references unknown step %s", step.ID, branchID)
		}
		wg.Add(1)
		go func(branch models.Step) {
			defer wg.Done()
			res, err := c.runWithRetry(ctx, branch, execCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "branch %s", branch.ID)
				}
				return
			}
			for k, v := range res.Data {
				merged[k] = v
			}
		}(branch)
	}
	wg.Wait()
	if firstErr != nil {
		return StepResult{}, firstErr
	}
	for _, branchID := range branches {
		completed[branchID] = true
	}
	return StepResult{Data: merged}, nil
}

// runLoop re-invokes the runner for the configured iteration count,
// merging data each pass. The pass number is exposed to the runner.
func (c *Coordinator) runLoop(ctx context.Context, step models.Step, execCtx map[string]any) (StepResult, error) {
	iterations := configInt(step.Config, "iterations", 1)
	merged := map[string]any{}
	loopCtx := make(map[string]any, len(execCtx)+1)
	for k, v := range execCtx {
		loopCtx[k] = v
	}
	for i := 0; i < iterations; i++ {
		loopCtx["iteration"] = i
		res, err := c.runWithRetry(ctx, step, loopCtx)
		if err != nil {
			return StepResult{}, errors.Wrapf(err, "iteration %d", i)
		}
		for k, v := range res.Data {
			merged[k] = v
			loopCtx[k] = v
		}
	}
	return StepResult{Data: merged}, nil
}

// runWithRetry honors the step's retry policy: up to MaxAttempts attempts
// with fixed, linear or exponential backoff between them.
func (c *Coordinator) runWithRetry(ctx context.Context, step models.Step, execCtx map[string]any) (StepResult, error) {
	attempts := 1
	if step.RetryPolicy != nil && step.RetryPolicy.MaxAttempts > 1 {
		attempts = step.RetryPolicy.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := c.runner.RunStep(ctx, step, execCtx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt < attempts {
			delay := backoffDelay(*step.RetryPolicy, attempt)
			c.logger.Infof("Step %s attempt %d/%d failed, retrying in %s: %v", step.ID, attempt, attempts, delay, err)
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return StepResult{}, sleepErr
			}
		}
	}
	return StepResult{}, lastErr
}

// fail records the terminal failed state and re-raises nothing itself; the
// caller propagates the original error.
func (c *Coordinator) fail(execID string, cause error) models.WorkflowExecution {
	final, err := c.ledger.UpdateWorkflow(execID, func(e *models.WorkflowExecution) error {
		e.Status = models.FailedExecutionStatus
		e.Error = cause.Error()
		e.Finish(time.Now())
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrTerminal) {
			current, _ := c.ledger.GetWorkflow(execID)
			return current
		}
		c.logger.Errorf("Failed to record failure for execution %s: %v", execID, err)
		return models.WorkflowExecution{}
	}
	c.snapshot(final)
	c.em.emit(models.ExecutionFailedEvent, final.ID, map[string]any{
		"workflow_id": final.WorkflowID,
		"error":       final.Error,
	})
	return final
}

// CancelExecution flips a running execution to cancelled. Cancellation is
// observed, not preemptive: an in-flight step runner call is not
// interrupted and the cancel takes effect at the next step boundary.
// Calling it on an already-terminal execution is a no-op, not an error.
func (c *Coordinator) CancelExecution(id string) error {
	current, ok := c.ledger.GetWorkflow(id)
	if !ok {
		return errors.Wrapf(ErrNotFound, "workflow execution %s", id)
	}
	if current.Status.Terminal() {
		return nil
	}
	if current.Status != models.RunningExecutionStatus {
		return nil
	}
	final, err := c.ledger.UpdateWorkflow(id, func(e *models.WorkflowExecution) error {
		if e.Status != models.RunningExecutionStatus {
			return nil
		}
		e.Status = models.CancelledExecutionStatus
		e.Finish(time.Now())
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrTerminal) {
			return nil
		}
		return err
	}
	if final.Status != models.CancelledExecutionStatus {
		return nil
	}
	c.snapshot(final)
	c.em.emit(models.ExecutionCancelledEvent, final.ID, map[string]any{
		"workflow_id": final.WorkflowID,
	})
	c.logger.Infof("Execution %s cancelled", id)
	return nil
}

// GetExecution returns the live record, falling back to the persisted
// snapshot for evicted executions. Absence is reported distinctly from a
// failed execution.
func (c *Coordinator) GetExecution(id string) (models.WorkflowExecution, bool) {
	if exec, ok := c.ledger.GetWorkflow(id); ok {
		return exec, true
	}
	exec, err := c.store.GetWorkflowSnapshot(id)
	if err != nil {
		return models.WorkflowExecution{}, false
	}
	return exec, true
}

// ListExecutions returns all live execution records.
func (c *Coordinator) ListExecutions() []models.WorkflowExecution {
	return c.ledger.ListWorkflows()
}

// Cleanup evicts a terminal execution from the live ledger. Persisted
// snapshots survive via the state store.
func (c *Coordinator) Cleanup(id string) bool {
	exec, ok := c.ledger.GetWorkflow(id)
	if !ok || !exec.Status.Terminal() {
		return false
	}
	return c.ledger.RemoveWorkflow(id)
}

func (c *Coordinator) snapshot(exec models.WorkflowExecution) {
	if err := c.store.SaveWorkflowSnapshot(exec); err != nil {
		c.logger.Errorf("Failed to persist snapshot for execution %s: %v", exec.ID, err)
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
