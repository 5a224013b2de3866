package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/storage"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore persists definitions and execution snapshots. Triggers,
// steps and execution state ride in JSONB payload columns; the indexed
// columns carry what queries filter on.
type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

type workflowDefinitionRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Version   int       `db:"version"`
	Status    string    `db:"status"`
	Active    bool      `db:"active"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r workflowDefinitionRow) decode() (models.WorkflowDefinition, error) {
	var d models.WorkflowDefinition
	if err := json.Unmarshal(r.Payload, &d); err != nil {
		return models.WorkflowDefinition{}, fmt.Errorf("decode definition %s: %w", r.ID, err)
	}
	d.ID = r.ID
	d.Status = models.DefinitionStatus(r.Status)
	d.Active = r.Active
	d.CreatedAt = r.CreatedAt
	d.UpdatedAt = r.UpdatedAt
	return d, nil
}

// SaveWorkflowDefinition inserts a definition and returns its id.
func (s *PostgresStore) SaveWorkflowDefinition(d models.WorkflowDefinition) (string, error) {
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode definition: %w", err)
	}
	var id string
	err = s.db.QueryRowx(`
		INSERT INTO workflow_definitions (id, name, version, status, active, payload, created_at, updated_at)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		d.ID, d.Name, d.Version, d.Status, d.Active, payload, d.CreatedAt, d.UpdatedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save workflow definition: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetWorkflowDefinition(id string) (models.WorkflowDefinition, error) {
	var row workflowDefinitionRow
	err := s.db.Get(&row, "SELECT id, name, version, status, active, payload, created_at, updated_at FROM workflow_definitions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	return row.decode()
}

// FindWorkflowDefinition resolves by id first, then by name picking the
// highest published version.
func (s *PostgresStore) FindWorkflowDefinition(idOrName string) (models.WorkflowDefinition, error) {
	d, err := s.GetWorkflowDefinition(idOrName)
	if err == nil {
		return d, nil
	}
	if err != storage.ErrNotFound {
		return models.WorkflowDefinition{}, err
	}
	var row workflowDefinitionRow
	err = s.db.Get(&row, `
		SELECT id, name, version, status, active, payload, created_at, updated_at
		FROM workflow_definitions
		WHERE name = $1 AND status = 'published'
		ORDER BY version DESC LIMIT 1`, idOrName)
	if err == sql.ErrNoRows {
		return models.WorkflowDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	return row.decode()
}

func (s *PostgresStore) ListWorkflowDefinitions(onlyActive bool) ([]models.WorkflowDefinition, error) {
	query := "SELECT id, name, version, status, active, payload, created_at, updated_at FROM workflow_definitions ORDER BY created_at DESC"
	if onlyActive {
		query = "SELECT id, name, version, status, active, payload, created_at, updated_at FROM workflow_definitions WHERE status = 'published' AND active ORDER BY created_at DESC"
	}
	var rows []workflowDefinitionRow
	if err := s.db.Select(&rows, query); err != nil {
		return nil, err
	}
	out := make([]models.WorkflowDefinition, 0, len(rows))
	for _, row := range rows {
		d, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *PostgresStore) UpdateWorkflowDefinitionStatus(id string, status models.DefinitionStatus, active bool) error {
	res, err := s.db.Exec(`
		UPDATE workflow_definitions
		SET status = $1, active = $2, payload = jsonb_set(jsonb_set(payload, '{status}', to_jsonb($1::text)), '{active}', to_jsonb($2::boolean)), updated_at = CURRENT_TIMESTAMP
		WHERE id = $3`, status, active, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type sagaDefinitionRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

func (r sagaDefinitionRow) decode() (models.SagaDefinition, error) {
	var d models.SagaDefinition
	if err := json.Unmarshal(r.Payload, &d); err != nil {
		return models.SagaDefinition{}, fmt.Errorf("decode saga definition %s: %w", r.ID, err)
	}
	d.ID = r.ID
	d.CreatedAt = r.CreatedAt
	return d, nil
}

func (s *PostgresStore) SaveSagaDefinition(d models.SagaDefinition) (string, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode saga definition: %w", err)
	}
	var id string
	err = s.db.QueryRowx(`
		INSERT INTO saga_definitions (id, name, payload, created_at)
		VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4)
		RETURNING id`,
		d.ID, d.Name, payload, d.CreatedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save saga definition: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetSagaDefinition(id string) (models.SagaDefinition, error) {
	var row sagaDefinitionRow
	err := s.db.Get(&row, "SELECT id, name, payload, created_at FROM saga_definitions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.SagaDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.SagaDefinition{}, err
	}
	return row.decode()
}

func (s *PostgresStore) ListSagaDefinitions() ([]models.SagaDefinition, error) {
	var rows []sagaDefinitionRow
	if err := s.db.Select(&rows, "SELECT id, name, payload, created_at FROM saga_definitions ORDER BY created_at DESC"); err != nil {
		return nil, err
	}
	out := make([]models.SagaDefinition, 0, len(rows))
	for _, row := range rows {
		d, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SaveWorkflowSnapshot upserts an execution snapshot; a snapshot is
// written after every step so the latest state always wins.
func (s *PostgresStore) SaveWorkflowSnapshot(e models.WorkflowExecution) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", e.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO workflow_snapshots (id, workflow_id, status, payload, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload, updated_at = CURRENT_TIMESTAMP`,
		e.ID, e.WorkflowID, e.Status, payload)
	return err
}

func (s *PostgresStore) GetWorkflowSnapshot(id string) (models.WorkflowExecution, error) {
	var payload []byte
	err := s.db.Get(&payload, "SELECT payload FROM workflow_snapshots WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowExecution{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowExecution{}, err
	}
	var e models.WorkflowExecution
	if err := json.Unmarshal(payload, &e); err != nil {
		return models.WorkflowExecution{}, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) SaveSagaSnapshot(e models.SagaExecution) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode saga snapshot %s: %w", e.ExecutionID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO saga_snapshots (id, saga_id, status, payload, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload, updated_at = CURRENT_TIMESTAMP`,
		e.ExecutionID, e.SagaID, e.Status, payload)
	return err
}

func (s *PostgresStore) GetSagaSnapshot(id string) (models.SagaExecution, error) {
	var payload []byte
	err := s.db.Get(&payload, "SELECT payload FROM saga_snapshots WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.SagaExecution{}, storage.ErrNotFound
	}
	if err != nil {
		return models.SagaExecution{}, err
	}
	var e models.SagaExecution
	if err := json.Unmarshal(payload, &e); err != nil {
		return models.SagaExecution{}, fmt.Errorf("decode saga snapshot %s: %w", id, err)
	}
	return e, nil
}
