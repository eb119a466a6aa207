// Package file provides JSON file based persistence, suitable for local
// development and tests.
package file

import (
	"context"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// Persistence stores workflows, templates and executions as JSON files
// under one root directory.
type Persistence struct {
	workflowRepo  *WorkflowRepository
	templateRepo  *TemplateRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a file-based persistence layer rooted at dir.
func NewPersistence(dir string) *Persistence {
	return &Persistence{
		workflowRepo:  NewWorkflowRepository(dir),
		templateRepo:  NewTemplateRepository(dir),
		executionRepo: NewExecutionRepository(dir),
	}
}

func (p *Persistence) ListWorkflows(ctx context.Context, opts persistence.ListWorkflowsOptions) (*persistence.WorkflowListResult, error) {
	return p.workflowRepo.List(ctx, opts)
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.ProjectWorkflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.ProjectWorkflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Delete(ctx, id)
}

func (p *Persistence) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	return p.templateRepo.GetAll(ctx)
}

func (p *Persistence) TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return p.templateRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error {
	return p.templateRepo.Save(ctx, template)
}

func (p *Persistence) DeleteTemplate(ctx context.Context, id string) error {
	return p.templateRepo.Delete(ctx, id)
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executionRepo.Save(ctx, execution)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return p.executionRepo.GetByWorkflow(ctx, workflowID)
}

func (p *Persistence) PruneExecutions(ctx context.Context, olderThan time.Time) (int64, error) {
	return p.executionRepo.Prune(ctx, olderThan)
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
