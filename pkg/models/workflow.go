package models

import "time"

type DefinitionStatus string

const (
	DraftDefinitionStatus      DefinitionStatus = "draft"
	PublishedDefinitionStatus  DefinitionStatus = "published"
	DeprecatedDefinitionStatus DefinitionStatus = "deprecated"
	ArchivedDefinitionStatus   DefinitionStatus = "archived"
)

// WorkflowDefinition is a versioned, triggerable definition of a step graph.
// A definition is immutable once published; (Name, Version) is unique.
type WorkflowDefinition struct {
	ID          string           `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Version     int              `json:"version" db:"version"`
	Description string           `json:"description,omitempty" db:"description"`
	Status      DefinitionStatus `json:"status" db:"status"`
	Active      bool             `json:"active" db:"active"`
	Triggers    []Trigger        `json:"triggers"`
	Steps       []Step           `json:"steps"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// Executable reports whether the definition may be run.
// Only published definitions still flagged active are executable.
func (d WorkflowDefinition) Executable() bool {
	return d.Status == PublishedDefinitionStatus && d.Active
}

// StepByID returns the step with the given id, if present.
func (d WorkflowDefinition) StepByID(id string) (Step, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Trigger binds an event type (plus an optional filter and condition list)
// to a workflow's entry steps. When Steps is empty the entry steps default
// to the roots of the step graph.
type Trigger struct {
	EventType  string         `json:"event_type"`
	Filter     map[string]any `json:"filter,omitempty"`
	Conditions []Condition    `json:"conditions,omitempty"`
	Steps      []string       `json:"steps,omitempty"`
}

// Condition is a single declarative predicate evaluated against an event
// payload or an execution context.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Supported condition operators.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
	OpExists   = "exists"
)
