// Package persistence provides the data storage abstraction for
// workflows, templates and execution logs.
package persistence

import (
	"context"
	"time"

	"github.com/storycut/storycut/pkg/models"
)

// ListWorkflowsOptions controls filtering, sorting and pagination for
// workflow listing.
type ListWorkflowsOptions struct {
	ProjectID string
	Owner     string
	Status    *models.WorkflowStatus
	Limit     int
	Offset    int
	SortBy    string // created_at, updated_at or name
	SortOrder string // asc or desc
}

// WorkflowListResult is a page of workflows plus pagination metadata.
type WorkflowListResult struct {
	Workflows   []*models.ProjectWorkflow
	TotalCount  int64
	HasNextPage bool
}

// WorkflowRepository stores live workflow instances.
type WorkflowRepository interface {
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	WorkflowByID(ctx context.Context, id string) (*models.ProjectWorkflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.ProjectWorkflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// TemplateRepository stores workflow blueprints.
type TemplateRepository interface {
	Templates(ctx context.Context) ([]*models.WorkflowTemplate, error)
	TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
}

// ExecutionRepository stores execution run records. Records are write-
// heavy during a run and immutable once terminal; PruneExecutions is the
// retention hook for housekeeping jobs.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	PruneExecutions(ctx context.Context, olderThan time.Time) (int64, error)
}

// Persistence is the full storage surface used by the services and the
// engine.
type Persistence interface {
	WorkflowRepository
	TemplateRepository
	ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
