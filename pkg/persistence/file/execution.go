package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// ExecutionRepository handles execution-record file operations.
type ExecutionRepository struct {
	root string
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

// Save writes the execution record. Records are overwritten in place;
// the engine only ever appends to the log between saves.
func (er *ExecutionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	err := os.MkdirAll(path.Join(er.root, "executions"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, err)
	}

	filePath := path.Join(er.root, "executions", execution.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByID retrieves an execution record by its ID.
func (er *ExecutionRepository) GetByID(_ context.Context, executionID string) (*models.WorkflowExecution, error) {
	filePath := filepath.Clean(path.Join(er.root, "executions", executionID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("GetByID", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	var execution models.WorkflowExecution

	err = json.Unmarshal(body, &execution)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", executionID, err)
	}

	return &execution, nil
}

// GetByWorkflow returns every execution of a workflow, newest first.
func (er *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	all, err := er.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0)

	for _, execution := range all {
		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

// Prune deletes terminal executions that completed before the cutoff and
// returns how many were removed.
func (er *ExecutionRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	all, err := er.loadAll(ctx)
	if err != nil {
		return 0, err
	}

	var pruned int64

	for _, execution := range all {
		if !execution.Status.IsTerminal() {
			continue
		}

		if execution.CompletedAt == nil || !execution.CompletedAt.Before(olderThan) {
			continue
		}

		filePath := path.Join(er.root, "executions", execution.ID+".json")
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return pruned, fmt.Errorf("failed to prune execution %s: %w", execution.ID, err)
		}

		pruned++
	}

	return pruned, nil
}

func (er *ExecutionRepository) loadAll(ctx context.Context) ([]*models.WorkflowExecution, error) {
	root := os.DirFS(path.Join(er.root, "executions"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		executionID := file[:len(file)-5]

		execution, err := er.GetByID(ctx, executionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
		}

		executions = append(executions, execution)
	}

	return executions, nil
}
