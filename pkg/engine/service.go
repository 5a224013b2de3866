package engine

import (
	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/graph"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/storage"
)

// Service manages workflow and saga definitions. Definitions move through
// draft -> published -> deprecated/archived; only published definitions
// still flagged active are executable.
type Service struct {
	store  storage.Store
	logger Logger
}

func NewService(store storage.Store, logger Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateWorkflowDefinition validates and persists a new definition in
// draft status.
func (s *Service) CreateWorkflowDefinition(d models.WorkflowDefinition) (id string, err error) {
	if err := ValidateWorkflowDefinition(d); err != nil {
		return "", err
	}
	if d.Version <= 0 {
		d.Version = 1
	}
	d.Status = models.DraftDefinitionStatus
	d.Active = false

	txStore, err := s.store.Begin()
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	id, err = txStore.SaveWorkflowDefinition(d)
	if err != nil {
		return "", err
	}
	s.logger.Infof("Created workflow definition '%s' version %d with ID %s", d.Name, d.Version, id)
	return id, nil
}

// PublishWorkflowDefinition moves a draft definition to published+active.
func (s *Service) PublishWorkflowDefinition(id string) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	d, err := txStore.GetWorkflowDefinition(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "workflow definition %s", id)
		}
		return err
	}
	if d.Status != models.DraftDefinitionStatus {
		return errors.Errorf("definition %s is %s, only drafts can be published", id, d.Status)
	}
	if err = txStore.UpdateWorkflowDefinitionStatus(id, models.PublishedDefinitionStatus, true); err != nil {
		return err
	}
	s.logger.Infof("Published workflow definition %s", id)
	return nil
}

// DeprecateWorkflowDefinition retires a published definition. Running
// executions are unaffected; new executions are refused.
func (s *Service) DeprecateWorkflowDefinition(id string) error {
	if err := s.store.UpdateWorkflowDefinitionStatus(id, models.DeprecatedDefinitionStatus, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "workflow definition %s", id)
		}
		return err
	}
	s.logger.Infof("Deprecated workflow definition %s", id)
	return nil
}

func (s *Service) GetWorkflowDefinition(id string) (models.WorkflowDefinition, error) {
	d, err := s.store.GetWorkflowDefinition(id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.WorkflowDefinition{}, errors.Wrapf(ErrNotFound, "workflow definition %s", id)
	}
	return d, err
}

func (s *Service) ListWorkflowDefinitions(onlyActive bool) ([]models.WorkflowDefinition, error) {
	return s.store.ListWorkflowDefinitions(onlyActive)
}

// CreateSagaDefinition validates and persists a saga definition.
func (s *Service) CreateSagaDefinition(d models.SagaDefinition) (string, error) {
	if err := ValidateSagaDefinition(d); err != nil {
		return "", err
	}
	id, err := s.store.SaveSagaDefinition(d)
	if err != nil {
		return "", err
	}
	s.logger.Infof("Created saga definition '%s' with ID %s", d.Name, id)
	return id, nil
}

func (s *Service) GetSagaDefinition(id string) (models.SagaDefinition, error) {
	d, err := s.store.GetSagaDefinition(id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.SagaDefinition{}, errors.Wrapf(ErrNotFound, "saga definition %s", id)
	}
	return d, err
}

func (s *Service) ListSagaDefinitions() ([]models.SagaDefinition, error) {
	return s.store.ListSagaDefinitions()
}

// ValidateWorkflowDefinition checks required fields, reference integrity
// and acyclicity. Orphaned steps are rejected: they could never run.
func ValidateWorkflowDefinition(d models.WorkflowDefinition) error {
	var reasons []string
	if d.Name == "" {
		reasons = append(reasons, "name is required")
	}
	if len(d.Steps) == 0 {
		reasons = append(reasons, "at least one step is required")
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.ID == "" {
			reasons = append(reasons, "step id is required")
			continue
		}
		if seen[step.ID] {
			reasons = append(reasons, "duplicate step id '"+step.ID+"'")
		}
		seen[step.ID] = true
		switch step.Type {
		case models.ActionStepType, models.ConditionStepType, models.LoopStepType,
			models.ParallelStepType, models.DelayStepType:
		default:
			reasons = append(reasons, "step '"+step.ID+"' has unknown type '"+string(step.Type)+"'")
		}
		if p := step.RetryPolicy; p != nil && p.MaxAttempts < 1 {
			reasons = append(reasons, "step '"+step.ID+"' retry policy needs max_attempts >= 1")
		}
	}
	for _, t := range d.Triggers {
		if t.EventType == "" {
			reasons = append(reasons, "trigger event_type is required")
		}
		for _, id := range t.Steps {
			if !seen[id] {
				reasons = append(reasons, "trigger references unknown step '"+id+"'")
			}
		}
	}

	nodes := WorkflowNodes(d.Steps)
	for _, ref := range graph.ValidateReferences(nodes) {
		reasons = append(reasons, "dangling step reference '"+ref+"'")
	}
	for _, step := range d.Steps {
		if step.Type != models.ParallelStepType {
			continue
		}
		for _, branch := range parallelBranches(step) {
			if !seen[branch] {
				reasons = append(reasons, "parallel step '"+step.ID+"' references unknown step '"+branch+"'")
			}
		}
	}
	if cyclic, participants := graph.DetectCycle(nodes); cyclic {
		reasons = append(reasons, "step graph contains a cycle through "+joinIDs(participants))
	} else {
		entries := entryPoints(d)
		for _, orphan := range graph.Orphans(nodes, entries) {
			reasons = append(reasons, "step '"+orphan+"' is orphaned")
		}
	}

	if len(reasons) > 0 {
		name := d.ID
		if name == "" {
			name = d.Name
		}
		return &ValidationError{Definition: name, Reasons: reasons}
	}
	return nil
}

// ValidateSagaDefinition checks required fields, dependency integrity and
// acyclicity of the dependency relation.
func ValidateSagaDefinition(d models.SagaDefinition) error {
	var reasons []string
	if d.Name == "" {
		reasons = append(reasons, "name is required")
	}
	if len(d.Steps) == 0 {
		reasons = append(reasons, "at least one step is required")
	}
	switch d.CompensationPolicy.Strategy {
	case models.BackwardCompensation, models.ForwardCompensation, models.MixedCompensation, "":
	default:
		reasons = append(reasons, "unknown compensation strategy '"+string(d.CompensationPolicy.Strategy)+"'")
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.ID == "" {
			reasons = append(reasons, "step id is required")
			continue
		}
		if seen[step.ID] {
			reasons = append(reasons, "duplicate step id '"+step.ID+"'")
		}
		seen[step.ID] = true
		if step.Action == "" {
			reasons = append(reasons, "step '"+step.ID+"' needs an action")
		}
	}

	nodes := SagaNodes(d.Steps)
	for _, ref := range graph.ValidateReferences(nodes) {
		reasons = append(reasons, "dangling dependency reference '"+ref+"'")
	}
	if cyclic, participants := graph.DetectCycle(nodes); cyclic {
		reasons = append(reasons, "dependencies contain a cycle through "+joinIDs(participants))
	}

	if len(reasons) > 0 {
		name := d.ID
		if name == "" {
			name = d.Name
		}
		return &ValidationError{Definition: name, Reasons: reasons}
	}
	return nil
}

// WorkflowNodes converts workflow steps to resolver nodes. Parallel steps
// contribute their configured branch ids as successor edges, so a fan-out
// root counts as an entry point and its branches as referenced steps.
func WorkflowNodes(steps []models.Step) []graph.Node {
	nodes := make([]graph.Node, 0, len(steps))
	for _, s := range steps {
		next := s.Next
		if s.Type == models.ParallelStepType {
			if branches := parallelBranches(s); len(branches) > 0 {
				next = append(append([]string(nil), s.Next...), branches...)
			}
		}
		nodes = append(nodes, graph.Node{
			ID:           s.ID,
			Next:         next,
			ErrorHandler: s.ErrorHandler,
			Dependencies: s.Dependencies,
		})
	}
	return nodes
}

// SagaNodes converts saga steps to resolver nodes. Only dependency edges
// exist; the forward sequence is definition order, not a graph walk.
func SagaNodes(steps []models.SagaStep) []graph.Node {
	nodes := make([]graph.Node, 0, len(steps))
	for _, s := range steps {
		nodes = append(nodes, graph.Node{ID: s.ID, Dependencies: s.Dependencies})
	}
	return nodes
}

// entryPoints collects trigger-named entry steps, falling back to the
// graph's default entry points when no trigger names any.
func entryPoints(d models.WorkflowDefinition) []string {
	var entries []string
	for _, t := range d.Triggers {
		entries = append(entries, t.Steps...)
	}
	if len(entries) == 0 {
		entries = graph.EntryPoints(WorkflowNodes(d.Steps))
	}
	return entries
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += "'" + id + "'"
	}
	return out
}
