package services_test

import (
	"context"
	"testing"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence/file"
	"github.com/storycut/storycut/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflowService(t *testing.T) (*services.Workflow, *services.Template) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return services.NewWorkflow(p), services.NewTemplate(p)
}

func draftWorkflow(name string) *models.ProjectWorkflow {
	return &models.ProjectWorkflow{
		ProjectID: "project-1",
		Name:      name,
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true},
			},
		},
		Owner: "alex",
	}
}

func TestCreateWorkflowAssignsIDAndDraftStatus(t *testing.T) {
	svc, _ := newWorkflowService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, draftWorkflow("cut trailer"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.NotNil(t, created.Results)

	loaded, err := svc.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "cut trailer", loaded.Name)
}

func TestCreateWorkflowValidation(t *testing.T) {
	svc, _ := newWorkflowService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, nil)
	assert.ErrorIs(t, err, services.ErrWorkflowNil)

	_, err = svc.Create(ctx, &models.ProjectWorkflow{ProjectID: "project-1", Name: "  "})
	assert.ErrorIs(t, err, services.ErrWorkflowNameRequired)

	empty := draftWorkflow("no nodes")
	empty.Graph.Nodes = nil
	_, err = svc.Create(ctx, empty)
	assert.ErrorIs(t, err, services.ErrNodesRequired)

	assert.True(t, services.IsValidationError(err))
}

func TestUpdateRefusesActiveWorkflow(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	svc := services.NewWorkflow(p)
	ctx := context.Background()

	created, err := svc.Create(ctx, draftWorkflow("cut trailer"))
	require.NoError(t, err)

	// A client cannot flip status through Update; the stored value wins.
	edited := draftWorkflow("cut trailer v2")
	edited.Status = models.WorkflowStatusCompleted

	updated, err := svc.Update(ctx, created.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, updated.Status)
	assert.Equal(t, "cut trailer v2", updated.Name)

	// Once the engine has it running, edits are refused.
	updated.Status = models.WorkflowStatusRunning
	require.NoError(t, p.SaveWorkflow(ctx, updated))

	_, err = svc.Update(ctx, created.ID, draftWorkflow("cut trailer v3"))
	assert.ErrorIs(t, err, services.ErrCannotModifyActive)
	assert.True(t, services.IsConflictError(err))
}

func TestDeleteRefusesActiveWorkflow(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	svc := services.NewWorkflow(p)
	ctx := context.Background()

	created, err := svc.Create(ctx, draftWorkflow("cut trailer"))
	require.NoError(t, err)

	created.Status = models.WorkflowStatusRunning
	require.NoError(t, p.SaveWorkflow(ctx, created))

	err = svc.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, services.ErrCannotModifyActive)
	assert.True(t, services.IsConflictError(err))

	created.Status = models.WorkflowStatusCancelled
	require.NoError(t, p.SaveWorkflow(ctx, created))
	assert.NoError(t, svc.Delete(ctx, created.ID))
}

func TestFetchByIDNotFound(t *testing.T) {
	svc, _ := newWorkflowService(t)

	_, err := svc.FetchByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, services.ErrWorkflowNotFound)
}

func TestListWorkflowsRejectsBadSort(t *testing.T) {
	svc, _ := newWorkflowService(t)

	_, err := svc.ListWorkflows(context.Background(), services.ListWorkflowsRequest{SortBy: "owner"})
	assert.ErrorIs(t, err, services.ErrInvalidSortField)
	assert.True(t, services.IsValidationError(err))
}

func TestCreateFromTemplate(t *testing.T) {
	wfService, tplService := newWorkflowService(t)
	ctx := context.Background()

	template, err := tplService.Create(ctx, &models.WorkflowTemplate{
		Name:       "short film pipeline",
		Owner:      "alex",
		Visibility: models.TemplateVisibilityPublic,
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true,
					Config: map[string]any{"resolution": "4k"}},
			},
		},
		DefaultConfigs: map[string]map[string]any{
			"render": {"resolution": "1080p", "fps": float64(24)},
		},
	})
	require.NoError(t, err)

	// Unpublished templates cannot be instantiated.
	_, err = wfService.CreateFromTemplate(ctx, template.ID, "project-1", "sam")
	assert.ErrorIs(t, err, services.ErrTemplateNotPublished)

	_, err = tplService.Publish(ctx, template.ID)
	require.NoError(t, err)

	workflow, err := wfService.CreateFromTemplate(ctx, template.ID, "project-1", "sam")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
	assert.Equal(t, template.ID, workflow.TemplateID)
	assert.Equal(t, "project-1", workflow.ProjectID)

	// Node config wins over template defaults, defaults fill the gaps.
	require.Len(t, workflow.Graph.Nodes, 1)
	assert.Equal(t, "4k", workflow.Graph.Nodes[0].Config["resolution"])
	assert.Equal(t, float64(24), workflow.Graph.Nodes[0].Config["fps"])

	// Usage counter bumped.
	reloaded, err := tplService.FetchByID(ctx, template.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.UsageCount)
}

func TestCreateFromPrivateTemplateRequiresOwner(t *testing.T) {
	wfService, tplService := newWorkflowService(t)
	ctx := context.Background()

	template, err := tplService.Create(ctx, &models.WorkflowTemplate{
		Name:       "personal pipeline",
		Owner:      "alex",
		Visibility: models.TemplateVisibilityPrivate,
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true},
			},
		},
	})
	require.NoError(t, err)

	_, err = tplService.Publish(ctx, template.ID)
	require.NoError(t, err)

	_, err = wfService.CreateFromTemplate(ctx, template.ID, "project-1", "sam")
	assert.ErrorIs(t, err, services.ErrTemplateNotFound)

	_, err = wfService.CreateFromTemplate(ctx, template.ID, "project-1", "alex")
	assert.NoError(t, err)
}

func TestTemplateEditsDoNotLeakIntoInstances(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	wfService := services.NewWorkflow(p)
	tplService := services.NewTemplate(p)
	ctx := context.Background()

	template, err := tplService.Create(ctx, &models.WorkflowTemplate{
		Name:       "pipeline",
		Owner:      "alex",
		Visibility: models.TemplateVisibilityPublic,
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true,
					Config: map[string]any{"resolution": "1080p"}},
			},
		},
	})
	require.NoError(t, err)

	_, err = tplService.Publish(ctx, template.ID)
	require.NoError(t, err)

	workflow, err := wfService.CreateFromTemplate(ctx, template.ID, "project-1", "alex")
	require.NoError(t, err)

	// Mutate the template's in-memory graph after instantiation.
	template.Graph.Nodes[0].Config["resolution"] = "8k"

	loaded, err := wfService.FetchByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "1080p", loaded.Graph.Nodes[0].Config["resolution"])
}
