package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , project_id
  , name
  , template_id
  , status
  , graph
  , current_node_id
  , results
  , owner
  , created_at
  , started_at
  , completed_at
  , updated_at
`

var workflowSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
}

// List returns paginated and filtered workflows.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	sortColumn, ok := workflowSortColumns[opts.SortBy]
	if !ok {
		return nil, fmt.Errorf("invalid sort field: %s", opts.SortBy)
	}

	sortOrder := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	conditions := []string{"deleted_at IS NULL"}
	args := []any{}

	if opts.ProjectID != "" {
		args = append(args, opts.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}

	if opts.Owner != "" {
		args = append(args, opts.Owner)
		conditions = append(conditions, fmt.Sprintf("owner = $%d", len(args)))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var totalCount int64

	countQuery := "SELECT COUNT(*) FROM workflows WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}

	args = append(args, opts.Limit, opts.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM workflows WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		workflowColumns, where, sortColumn, sortOrder, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.ProjectWorkflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return &persistence.WorkflowListResult{
		Workflows:   workflows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(workflows)) < totalCount,
	}, nil
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.ProjectWorkflow, error) {
	query := "SELECT " + workflowColumns + " FROM workflows WHERE id = $1 AND deleted_at IS NULL"

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Save upserts a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.ProjectWorkflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	graphJSON, err := json.Marshal(workflow.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	resultsJSON, err := json.Marshal(workflow.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	query := `
		INSERT INTO workflows (
			id, project_id, name, template_id, status, graph, current_node_id,
			results, owner, created_at, started_at, completed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			graph = EXCLUDED.graph,
			current_node_id = EXCLUDED.current_node_id,
			results = EXCLUDED.results,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.ProjectID,
		workflow.Name,
		nullString(workflow.TemplateID),
		string(workflow.Status),
		graphJSON,
		nullStringPtr(workflow.CurrentNodeID),
		resultsJSON,
		workflow.Owner,
		workflow.CreatedAt,
		nullTimePtr(workflow.StartedAt),
		nullTimePtr(workflow.CompletedAt),
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete soft deletes a workflow. Deleting a missing workflow is a no-op.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query := "UPDATE workflows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL"

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.ProjectWorkflow, error) {
	var (
		workflow      models.ProjectWorkflow
		templateID    sql.NullString
		currentNodeID sql.NullString
		graphJSON     []byte
		resultsJSON   []byte
		owner         sql.NullString
		startedAt     sql.NullTime
		completedAt   sql.NullTime
		status        string
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.ProjectID,
		&workflow.Name,
		&templateID,
		&status,
		&graphJSON,
		&currentNodeID,
		&resultsJSON,
		&owner,
		&workflow.CreatedAt,
		&startedAt,
		&completedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatus(status)
	workflow.TemplateID = templateID.String
	workflow.Owner = owner.String

	if currentNodeID.Valid {
		workflow.CurrentNodeID = &currentNodeID.String
	}

	if startedAt.Valid {
		t := startedAt.Time
		workflow.StartedAt = &t
	}

	if completedAt.Valid {
		t := completedAt.Time
		workflow.CompletedAt = &t
	}

	if err := json.Unmarshal(graphJSON, &workflow.Graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	if err := json.Unmarshal(resultsJSON, &workflow.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}

	return &workflow, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}
