package services_test

import (
	"context"
	"testing"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
	"github.com/storycut/storycut/pkg/persistence/file"
	"github.com/storycut/storycut/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftTemplate(name, owner string, visibility models.TemplateVisibility) *models.WorkflowTemplate {
	return &models.WorkflowTemplate{
		Name:       name,
		Owner:      owner,
		Visibility: visibility,
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true},
			},
		},
	}
}

func TestCreateTemplateDefaults(t *testing.T) {
	svc := services.NewTemplate(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	template, err := svc.Create(ctx, &models.WorkflowTemplate{
		Name:  "pipeline",
		Owner: "alex",
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true},
			},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, template.ID)
	assert.False(t, template.Published)
	assert.Equal(t, models.TemplateVisibilityPrivate, template.Visibility)
	assert.Equal(t, int64(0), template.UsageCount)
}

func TestListFiltersPrivateTemplatesOfOthers(t *testing.T) {
	svc := services.NewTemplate(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	_, err := svc.Create(ctx, draftTemplate("mine", "alex", models.TemplateVisibilityPrivate))
	require.NoError(t, err)

	_, err = svc.Create(ctx, draftTemplate("theirs", "sam", models.TemplateVisibilityPrivate))
	require.NoError(t, err)

	_, err = svc.Create(ctx, draftTemplate("shared", "sam", models.TemplateVisibilityPublic))
	require.NoError(t, err)

	visible, err := svc.List(ctx, "alex")
	require.NoError(t, err)
	require.Len(t, visible, 2)

	names := []string{visible[0].Name, visible[1].Name}
	assert.Contains(t, names, "mine")
	assert.Contains(t, names, "shared")
}

func TestPublishedTemplateIsImmutable(t *testing.T) {
	svc := services.NewTemplate(file.NewPersistence(t.TempDir()))
	ctx := context.Background()

	template, err := svc.Create(ctx, draftTemplate("pipeline", "alex", models.TemplateVisibilityPublic))
	require.NoError(t, err)

	// Unpublished templates accept edits.
	template.Description = "renders a short film"
	_, err = svc.Update(ctx, template.ID, template)
	require.NoError(t, err)

	published, err := svc.Publish(ctx, template.ID)
	require.NoError(t, err)
	assert.True(t, published.Published)

	// Publish is idempotent.
	_, err = svc.Publish(ctx, template.ID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, template.ID, template)
	assert.ErrorIs(t, err, services.ErrTemplateImmutable)
	assert.True(t, services.IsConflictError(err))
}

func TestCreateFromWorkflowSnapshotsGraph(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	wfService := services.NewWorkflow(p)
	tplService := services.NewTemplate(p)
	ctx := context.Background()

	workflow, err := wfService.Create(ctx, draftWorkflow("cut trailer"))
	require.NoError(t, err)

	template, err := tplService.CreateFromWorkflow(ctx, workflow.ID, "trailer pipeline", "alex", models.TemplateVisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, "trailer pipeline", template.Name)
	assert.False(t, template.Published)
	require.Len(t, template.Graph.Nodes, 1)
	assert.Equal(t, "render", template.Graph.Nodes[0].Type)

	// The snapshot is a copy: workflow edits don't reach the template.
	workflow.Graph.Nodes[0].Name = "changed"

	reloaded, err := tplService.FetchByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Render", reloaded.Graph.Nodes[0].Name)
}

func TestDeleteTemplateNotFound(t *testing.T) {
	svc := services.NewTemplate(file.NewPersistence(t.TempDir()))

	err := svc.Delete(context.Background(), "ghost")
	assert.True(t, persistence.IsTemplateNotFound(err))
}
