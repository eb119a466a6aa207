package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Workflow provides workflow lifecycle operations on top of the
// persistence layer. Execution control (start/pause/resume/cancel) is
// the engine's job; this service owns the stored representation.
type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence) *Workflow {
	return &Workflow{persistence: p}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	ProjectID string
	Owner     string
	Status    *models.WorkflowStatus

	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.ProjectWorkflow `json:"workflows"`
	TotalCount  int64                     `json:"total_count"`
	HasNextPage bool                      `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	result, err := w.persistence.ListWorkflows(ctx, persistence.ListWorkflowsOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		ProjectID: req.ProjectID,
		Owner:     req.Owner,
		Status:    req.Status,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "name"}
	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil {
		allowedStatuses := []models.WorkflowStatus{
			models.WorkflowStatusDraft,
			models.WorkflowStatusRunning,
			models.WorkflowStatusPaused,
			models.WorkflowStatusCompleted,
			models.WorkflowStatusFailed,
			models.WorkflowStatusCancelled,
		}

		if !slices.Contains(allowedStatuses, *req.Status) {
			return NewValidationError(
				"validateListWorkflowsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.ProjectWorkflow, error) {
	return w.persistence.WorkflowByID(ctx, id)
}

// Create adds a new draft workflow.
func (w *Workflow) Create(ctx context.Context, workflow *models.ProjectWorkflow) (*models.ProjectWorkflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	if len(workflow.Graph.Nodes) == 0 {
		return nil, ErrNodesRequired
	}

	now := time.Now().UTC()
	workflow.ID = "wf-" + uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Results == nil {
		workflow.Results = make(map[string]map[string]any)
	}

	err := w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// CreateFromTemplate instantiates a published template into a fresh
// draft workflow and bumps the template's usage counter.
func (w *Workflow) CreateFromTemplate(ctx context.Context, templateID, projectID, owner string) (*models.ProjectWorkflow, error) {
	template, err := w.persistence.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if !template.Published {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotPublished, templateID)
	}

	if template.Visibility == models.TemplateVisibilityPrivate && template.Owner != owner {
		return nil, persistence.NewTemplateError("CreateFromTemplate", templateID, persistence.ErrTemplateNotFound)
	}

	now := time.Now().UTC()
	workflow := template.Instantiate("wf-"+uuid.New().String(), projectID, owner, now)

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save instantiated workflow: %w", err)
	}

	template.UsageCount++
	if err := w.persistence.SaveTemplate(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to update template usage count: %w", err)
	}

	return workflow, nil
}

// Update modifies an existing workflow. Only draft workflows accept
// graph edits; a workflow with a live execution is refused.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.ProjectWorkflow) (*models.ProjectWorkflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusRunning || existing.Status == models.WorkflowStatusPaused {
		return nil, fmt.Errorf("%w: workflow %s is %s", ErrCannotModifyActive, workflowID, existing.Status)
	}

	workflow.ID = workflowID
	workflow.ProjectID = existing.ProjectID
	workflow.TemplateID = existing.TemplateID
	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	err = w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID. Workflows with a live execution
// must be cancelled first.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	existing, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if existing.Status == models.WorkflowStatusRunning || existing.Status == models.WorkflowStatusPaused {
		return fmt.Errorf("%w: workflow %s is %s", ErrCannotModifyActive, workflowID, existing.Status)
	}

	err = w.persistence.DeleteWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Executions returns a workflow's run history, newest first.
func (w *Workflow) Executions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	if _, err := w.persistence.WorkflowByID(ctx, workflowID); err != nil {
		return nil, err
	}

	return w.persistence.ExecutionsByWorkflow(ctx, workflowID)
}

// ExecutionByID returns one execution record.
func (w *Workflow) ExecutionByID(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return w.persistence.ExecutionByID(ctx, executionID)
}
