package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// mockStore implements Store with in-memory storage
type mockStore struct {
	mu        sync.RWMutex
	workflows map[string]models.WorkflowDefinition
	sagas     map[string]models.SagaDefinition
	wfSnaps   map[string]models.WorkflowExecution
	sagaSnaps map[string]models.SagaExecution
}

// NewMockStore returns an in-memory Store for tests and examples.
func NewMockStore() Store {
	return &mockStore{
		workflows: make(map[string]models.WorkflowDefinition),
		sagas:     make(map[string]models.SagaDefinition),
		wfSnaps:   make(map[string]models.WorkflowExecution),
		sagaSnaps: make(map[string]models.SagaExecution),
	}
}

func (m *mockStore) Begin() (Store, error) {
	return &mockTx{mockStore: m}, nil
}

// Commit and Rollback on the root store are autocommit no-ops; only a view
// handed out by Begin carries transaction state.
func (m *mockStore) Commit() error { return nil }

func (m *mockStore) Rollback() error { return nil }

// mockTx is one transactional view over the shared store. Writes land in
// the shared maps immediately; commit state is per view, so sequential
// Begin/Commit pairs stay independent.
type mockTx struct {
	*mockStore
	committed bool
}

func (t *mockTx) Begin() (Store, error) {
	return &mockTx{mockStore: t.mockStore}, nil
}

func (t *mockTx) Commit() error {
	if t.committed {
		return errors.New("already committed")
	}
	t.committed = true
	return nil
}

func (t *mockTx) Rollback() error {
	if t.committed {
		return errors.New("cannot rollback committed transaction")
	}
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveWorkflowDefinition(d models.WorkflowDefinition) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	for _, existing := range m.workflows {
		if existing.Name == d.Name && existing.Version == d.Version && existing.ID != d.ID {
			return "", errors.Errorf("definition '%s' version %d already exists", d.Name, d.Version)
		}
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	m.workflows[d.ID] = d
	return d.ID, nil
}

func (m *mockStore) GetWorkflowDefinition(id string) (models.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.workflows[id]
	if !ok {
		return models.WorkflowDefinition{}, ErrNotFound
	}
	return d, nil
}

func (m *mockStore) FindWorkflowDefinition(idOrName string) (models.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.workflows[idOrName]; ok {
		return d, nil
	}
	var best models.WorkflowDefinition
	found := false
	for _, d := range m.workflows {
		if d.Name != idOrName {
			continue
		}
		if !found || d.Version > best.Version {
			best = d
			found = true
		}
	}
	if !found {
		return models.WorkflowDefinition{}, ErrNotFound
	}
	return best, nil
}

func (m *mockStore) ListWorkflowDefinitions(onlyActive bool) ([]models.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.WorkflowDefinition{}
	for _, d := range m.workflows {
		if onlyActive && !d.Executable() {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *mockStore) UpdateWorkflowDefinitionStatus(id string, status models.DefinitionStatus, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.workflows[id]
	if !ok {
		return ErrNotFound
	}
	d.Status = status
	d.Active = active
	d.UpdatedAt = time.Now()
	m.workflows[id] = d
	return nil
}

func (m *mockStore) SaveSagaDefinition(d models.SagaDefinition) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	m.sagas[d.ID] = d
	return d.ID, nil
}

func (m *mockStore) GetSagaDefinition(id string) (models.SagaDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.sagas[id]
	if !ok {
		return models.SagaDefinition{}, ErrNotFound
	}
	return d, nil
}

func (m *mockStore) ListSagaDefinitions() ([]models.SagaDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.SagaDefinition{}
	for _, d := range m.sagas {
		out = append(out, d)
	}
	return out, nil
}

func (m *mockStore) SaveWorkflowSnapshot(e models.WorkflowExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wfSnaps[e.ID] = e.Clone()
	return nil
}

func (m *mockStore) GetWorkflowSnapshot(id string) (models.WorkflowExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.wfSnaps[id]
	if !ok {
		return models.WorkflowExecution{}, ErrNotFound
	}
	return e.Clone(), nil
}

func (m *mockStore) SaveSagaSnapshot(e models.SagaExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sagaSnaps[e.ExecutionID] = e.Clone()
	return nil
}

func (m *mockStore) GetSagaSnapshot(id string) (models.SagaExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sagaSnaps[id]
	if !ok {
		return models.SagaExecution{}, ErrNotFound
	}
	return e.Clone(), nil
}
