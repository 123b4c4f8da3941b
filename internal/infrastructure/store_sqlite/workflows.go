package store_sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davarch/workflow-monitor/internal/domain"
)

func (s *Store) CreateWorkflow(ctx context.Context, w domain.Workflow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (uuid, name, active, created_at) VALUES (?, ?, ?, ?)`,
		w.UUID.String(), w.Name, boolToInt(w.Active), formatTime(w.CreatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (s *Store) AllWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid, name, active, created_at FROM workflows ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Workflow
	for rows.Next() {
		var (
			w       domain.Workflow
			id      string
			active  int
			created string
		)
		if err := rows.Scan(&id, &w.Name, &active, &created); err != nil {
			return nil, err
		}
		w.UUID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("workflow uuid %q: %w", id, err)
		}
		w.Active = active != 0
		w.CreatedAt = parseTime(created)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) SetWorkflowActive(ctx context.Context, name string, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET active = ? WHERE name = ? AND active != ?`,
		boolToInt(active), name, boolToInt(active),
	)
	if err != nil {
		return false, fmt.Errorf("update workflow active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) AddVersion(ctx context.Context, v domain.WorkflowVersion) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_versions (workflow_uuid, version, uri, submitter_id, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		v.WorkflowUUID.String(), v.Version, v.URI, nullableID(v.SubmitterID), formatTime(v.CreatedAt),
	)
	if isUniqueViolation(err) {
		return 0, domain.ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) Versions(ctx context.Context, workflow uuid.UUID) ([]domain.WorkflowVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_uuid, version, uri, submitter_id, link_checked_at, created_at
         FROM workflow_versions WHERE workflow_uuid = ? ORDER BY created_at`,
		workflow.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) LatestVersion(ctx context.Context, workflow uuid.UUID) (*domain.WorkflowVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_uuid, version, uri, submitter_id, link_checked_at, created_at
         FROM workflow_versions WHERE workflow_uuid = ?
         ORDER BY created_at DESC LIMIT 1`,
		workflow.String(),
	)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest version: %w", err)
	}
	return &v, nil
}

func (s *Store) TouchVersionLink(ctx context.Context, versionID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflow_versions SET link_checked_at = ? WHERE id = ?`,
		formatTime(at), versionID,
	)
	if err != nil {
		return fmt.Errorf("touch version link: %w", err)
	}
	return nil
}

func (s *Store) AddSuite(ctx context.Context, suite domain.Suite) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO suites (version_id, name) VALUES (?, ?)`,
		suite.VersionID, suite.Name,
	)
	if err != nil {
		return 0, fmt.Errorf("insert suite: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) AddInstance(ctx context.Context, inst domain.TestInstance) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO test_instances (suite_id, name, service_url, resource)
         VALUES (?, ?, ?, ?)`,
		inst.SuiteID, inst.Name, inst.ServiceURL, inst.Resource,
	)
	if err != nil {
		return 0, fmt.Errorf("insert test instance: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) SuitesWithInstances(ctx context.Context, versionID int64) ([]domain.Suite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version_id, name FROM suites WHERE version_id = ? ORDER BY id`,
		versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list suites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suites []domain.Suite
	for rows.Next() {
		var suite domain.Suite
		if err := rows.Scan(&suite.ID, &suite.VersionID, &suite.Name); err != nil {
			return nil, err
		}
		suites = append(suites, suite)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range suites {
		instances, err := s.instancesForSuite(ctx, suites[i].ID)
		if err != nil {
			return nil, err
		}
		suites[i].Instances = instances
	}
	return suites, nil
}

func (s *Store) instancesForSuite(ctx context.Context, suiteID int64) ([]domain.TestInstance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, suite_id, name, service_url, resource
         FROM test_instances WHERE suite_id = ? ORDER BY id`,
		suiteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.TestInstance
	for rows.Next() {
		var inst domain.TestInstance
		if err := rows.Scan(&inst.ID, &inst.SuiteID, &inst.Name, &inst.ServiceURL, &inst.Resource); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (domain.WorkflowVersion, error) {
	var (
		v         domain.WorkflowVersion
		wfID      string
		submitter sql.NullInt64
		checked   sql.NullString
		created   string
	)
	if err := row.Scan(&v.ID, &wfID, &v.Version, &v.URI, &submitter, &checked, &created); err != nil {
		return v, err
	}
	parsed, err := uuid.Parse(wfID)
	if err != nil {
		return v, fmt.Errorf("version workflow uuid %q: %w", wfID, err)
	}
	v.WorkflowUUID = parsed
	if submitter.Valid {
		v.SubmitterID = submitter.Int64
	}
	if checked.Valid {
		t := parseTime(checked.String)
		v.LinkCheckedAt = &t
	}
	v.CreatedAt = parseTime(created)
	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
