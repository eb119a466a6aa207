package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// ExecutionRepository handles execution-record database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , status
  , log
  , error_message
  , results
  , started_at
  , completed_at
`

// Save upserts an execution record.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	logJSON, err := json.Marshal(execution.Log)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log: %w", err)
	}

	resultsJSON, err := json.Marshal(execution.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal execution results: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, status, log, error_message, results, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			log = EXCLUDED.log,
			error_message = EXCLUDED.error_message,
			results = EXCLUDED.results,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		string(execution.Status),
		logJSON,
		nullString(execution.ErrorMessage),
		resultsJSON,
		execution.StartedAt,
		nullTimePtr(execution.CompletedAt),
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// GetByID returns an execution record by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := "SELECT " + executionColumns + " FROM workflow_executions WHERE id = $1"

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// GetByWorkflow returns every execution of a workflow, newest first.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	query := "SELECT " + executionColumns + " FROM workflow_executions WHERE workflow_id = $1 ORDER BY started_at DESC"

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// Prune deletes terminal executions that completed before the cutoff.
func (r *ExecutionRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM workflow_executions
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND completed_at IS NOT NULL
		  AND completed_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}

	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned executions: %w", err)
	}

	return pruned, nil
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution    models.WorkflowExecution
		status       string
		logJSON      []byte
		resultsJSON  []byte
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&status,
		&logJSON,
		&errorMessage,
		&resultsJSON,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.ErrorMessage = errorMessage.String

	if completedAt.Valid {
		t := completedAt.Time
		execution.CompletedAt = &t
	}

	if err := json.Unmarshal(logJSON, &execution.Log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
	}

	if err := json.Unmarshal(resultsJSON, &execution.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution results: %w", err)
	}

	return &execution, nil
}
