package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
)

// ErrTemplateNotFound is returned when a template is not found.
var ErrTemplateNotFound = persistence.ErrTemplateNotFound

// Template provides template management: blueprints are drafted, then
// published, after which only the usage counter may change.
type Template struct {
	persistence persistence.Persistence
}

// NewTemplate creates a new template service.
func NewTemplate(p persistence.Persistence) *Template {
	return &Template{persistence: p}
}

// List returns templates visible to the requesting owner: their own
// plus every public one.
func (t *Template) List(ctx context.Context, owner string) ([]*models.WorkflowTemplate, error) {
	all, err := t.persistence.Templates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	visible := make([]*models.WorkflowTemplate, 0, len(all))

	for _, template := range all {
		if template.Visibility == models.TemplateVisibilityPublic || template.Owner == owner {
			visible = append(visible, template)
		}
	}

	return visible, nil
}

// FetchByID retrieves a template by its ID.
func (t *Template) FetchByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	return t.persistence.TemplateByID(ctx, id)
}

// Create adds a new unpublished template.
func (t *Template) Create(ctx context.Context, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrWorkflowNil
	}

	if strings.TrimSpace(template.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	if len(template.Graph.Nodes) == 0 {
		return nil, ErrNodesRequired
	}

	now := time.Now().UTC()
	template.ID = "tpl-" + uuid.New().String()
	template.Published = false
	template.UsageCount = 0
	template.CreatedAt = now
	template.UpdatedAt = now

	if template.Visibility == "" {
		template.Visibility = models.TemplateVisibilityPrivate
	}

	if err := t.persistence.SaveTemplate(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return template, nil
}

// CreateFromWorkflow snapshots an existing workflow's graph into a new
// unpublished template. Run state never leaks into the blueprint.
func (t *Template) CreateFromWorkflow(ctx context.Context, workflowID, name, owner string, visibility models.TemplateVisibility) (*models.WorkflowTemplate, error) {
	workflow, err := t.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = workflow.Name
	}

	template := &models.WorkflowTemplate{
		Name:        name,
		Description: fmt.Sprintf("Created from workflow %s", workflow.Name),
		Graph:       copyGraph(workflow.Graph),
		Owner:       owner,
		Visibility:  visibility,
	}

	return t.Create(ctx, template)
}

// Update modifies an unpublished template. Published templates are
// immutable apart from their usage counter.
func (t *Template) Update(ctx context.Context, templateID string, template *models.WorkflowTemplate) (*models.WorkflowTemplate, error) {
	if template == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := t.persistence.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if existing.Published {
		return nil, fmt.Errorf("%w: %s", ErrTemplateImmutable, templateID)
	}

	template.ID = templateID
	template.Owner = existing.Owner
	template.Published = false
	template.UsageCount = existing.UsageCount
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now().UTC()

	if err := t.persistence.SaveTemplate(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return template, nil
}

// Publish marks a template as published, freezing its graph.
func (t *Template) Publish(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	template, err := t.persistence.TemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if template.Published {
		return template, nil
	}

	template.Published = true
	template.UpdatedAt = time.Now().UTC()

	if err := t.persistence.SaveTemplate(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to publish template: %w", err)
	}

	return template, nil
}

// Delete removes a template. The persistence layer refuses while any
// workflow instance still references it.
func (t *Template) Delete(ctx context.Context, templateID string) error {
	if _, err := t.persistence.TemplateByID(ctx, templateID); err != nil {
		return err
	}

	return t.persistence.DeleteTemplate(ctx, templateID)
}

func copyGraph(g models.Graph) models.Graph {
	copied := models.Graph{
		Nodes:       make([]*models.WorkflowNode, 0, len(g.Nodes)),
		Connections: make([]*models.Connection, 0, len(g.Connections)),
	}

	for _, node := range g.Nodes {
		config := make(map[string]any, len(node.Config))
		for k, v := range node.Config {
			config[k] = v
		}

		copied.Nodes = append(copied.Nodes, &models.WorkflowNode{
			ID:      node.ID,
			Type:    node.Type,
			Name:    node.Name,
			Config:  config,
			Enabled: node.Enabled,
		})
	}

	for _, conn := range g.Connections {
		copied.Connections = append(copied.Connections, &models.Connection{
			ID:         conn.ID,
			SourcePort: conn.SourcePort,
			TargetPort: conn.TargetPort,
		})
	}

	return copied
}
