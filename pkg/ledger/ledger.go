// Package ledger is the process-wide registry of live executions. It owns
// lifecycle transitions: mutation of a given execution's record is
// serialized per execution id, different ids proceed independently, and no
// transition ever leaves a terminal status.
package ledger

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

var (
	// ErrNotFound is returned when no live execution carries the id.
	ErrNotFound = errors.New("execution not found")
	// ErrDuplicateID is returned when an execution id is already registered.
	ErrDuplicateID = errors.New("execution id already registered")
	// ErrTerminal is returned when a mutation would leave a terminal status.
	ErrTerminal = errors.New("execution already terminal")
)

type workflowEntry struct {
	mu   sync.Mutex
	exec models.WorkflowExecution
}

type sagaEntry struct {
	mu   sync.Mutex
	exec models.SagaExecution
}

// Ledger holds live workflow and saga execution records. Tests inject a
// fresh instance; nothing here is process-global.
type Ledger struct {
	mu        sync.RWMutex
	workflows map[string]*workflowEntry
	sagas     map[string]*sagaEntry
}

func New() *Ledger {
	return &Ledger{
		workflows: make(map[string]*workflowEntry),
		sagas:     make(map[string]*sagaEntry),
	}
}

// NewID allocates a fresh execution id.
func NewID() string {
	return uuid.NewString()
}

// CreateWorkflow registers a new workflow execution record.
func (l *Ledger) CreateWorkflow(exec models.WorkflowExecution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.workflows[exec.ID]; exists {
		return errors.Wrapf(ErrDuplicateID, "workflow execution %s", exec.ID)
	}
	l.workflows[exec.ID] = &workflowEntry{exec: exec.Clone()}
	return nil
}

// GetWorkflow returns a copy of the record, if live.
func (l *Ledger) GetWorkflow(id string) (models.WorkflowExecution, bool) {
	l.mu.RLock()
	entry, ok := l.workflows[id]
	l.mu.RUnlock()
	if !ok {
		return models.WorkflowExecution{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.exec.Clone(), true
}

// UpdateWorkflow applies fn to the record under the per-id lock and returns
// the updated copy. Transitions out of a terminal status are rejected and
// the record is left untouched.
func (l *Ledger) UpdateWorkflow(id string, fn func(*models.WorkflowExecution) error) (models.WorkflowExecution, error) {
	l.mu.RLock()
	entry, ok := l.workflows[id]
	l.mu.RUnlock()
	if !ok {
		return models.WorkflowExecution{}, errors.Wrapf(ErrNotFound, "workflow execution %s", id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	before := entry.exec.Status
	next := entry.exec.Clone()
	if err := fn(&next); err != nil {
		return models.WorkflowExecution{}, err
	}
	if before.Terminal() && next.Status != before {
		return models.WorkflowExecution{}, errors.Wrapf(ErrTerminal, "workflow execution %s is %s", id, before)
	}
	entry.exec = next
	return next.Clone(), nil
}

// RemoveWorkflow evicts the record from the live ledger. Persisted
// snapshots survive via the state store.
func (l *Ledger) RemoveWorkflow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.workflows[id]; !ok {
		return false
	}
	delete(l.workflows, id)
	return true
}

// ListWorkflows returns copies of all live workflow execution records.
func (l *Ledger) ListWorkflows() []models.WorkflowExecution {
	l.mu.RLock()
	entries := make([]*workflowEntry, 0, len(l.workflows))
	for _, e := range l.workflows {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]models.WorkflowExecution, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.exec.Clone())
		e.mu.Unlock()
	}
	return out
}

// CreateSaga registers a new saga execution record.
func (l *Ledger) CreateSaga(exec models.SagaExecution) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.sagas[exec.ExecutionID]; exists {
		return errors.Wrapf(ErrDuplicateID, "saga execution %s", exec.ExecutionID)
	}
	l.sagas[exec.ExecutionID] = &sagaEntry{exec: exec.Clone()}
	return nil
}

// GetSaga returns a copy of the record, if live.
func (l *Ledger) GetSaga(id string) (models.SagaExecution, bool) {
	l.mu.RLock()
	entry, ok := l.sagas[id]
	l.mu.RUnlock()
	if !ok {
		return models.SagaExecution{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.exec.Clone(), true
}

// UpdateSaga applies fn to the record under the per-id lock.
func (l *Ledger) UpdateSaga(id string, fn func(*models.SagaExecution) error) (models.SagaExecution, error) {
	l.mu.RLock()
	entry, ok := l.sagas[id]
	l.mu.RUnlock()
	if !ok {
		return models.SagaExecution{}, errors.Wrapf(ErrNotFound, "saga execution %s", id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	before := entry.exec.Status
	next := entry.exec.Clone()
	if err := fn(&next); err != nil {
		return models.SagaExecution{}, err
	}
	if before.Terminal() && next.Status != before {
		return models.SagaExecution{}, errors.Wrapf(ErrTerminal, "saga execution %s is %s", id, before)
	}
	entry.exec = next
	return next.Clone(), nil
}

// RemoveSaga evicts the record from the live ledger.
func (l *Ledger) RemoveSaga(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sagas[id]; !ok {
		return false
	}
	delete(l.sagas, id)
	return true
}

// ListSagas returns copies of all live saga execution records.
func (l *Ledger) ListSagas() []models.SagaExecution {
	l.mu.RLock()
	entries := make([]*sagaEntry, 0, len(l.sagas))
	for _, e := range l.sagas {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]models.SagaExecution, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.exec.Clone())
		e.mu.Unlock()
	}
	return out
}
