package storage

import (
	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence operations for FlowForge: the definition
// repository plus the execution snapshot store. The engines consume this
// interface and are otherwise storage-agnostic.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Workflow definition repository
	SaveWorkflowDefinition(d models.WorkflowDefinition) (string, error)
	GetWorkflowDefinition(id string) (models.WorkflowDefinition, error)
	// FindWorkflowDefinition resolves by id first, then by name picking the
	// highest published version.
	FindWorkflowDefinition(idOrName string) (models.WorkflowDefinition, error)
	ListWorkflowDefinitions(onlyActive bool) ([]models.WorkflowDefinition, error)
	UpdateWorkflowDefinitionStatus(id string, status models.DefinitionStatus, active bool) error

	// Saga definition repository
	SaveSagaDefinition(d models.SagaDefinition) (string, error)
	GetSagaDefinition(id string) (models.SagaDefinition, error)
	ListSagaDefinitions() ([]models.SagaDefinition, error)

	// Execution snapshot store
	SaveWorkflowSnapshot(e models.WorkflowExecution) error
	GetWorkflowSnapshot(id string) (models.WorkflowExecution, error)
	SaveSagaSnapshot(e models.SagaExecution) error
	GetSagaSnapshot(id string) (models.SagaExecution, error)
}
