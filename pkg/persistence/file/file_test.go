package file_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/persistence"
	"github.com/storycut/storycut/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkflow(id, projectID, owner string) *models.ProjectWorkflow {
	return &models.ProjectWorkflow{
		ID:        id,
		ProjectID: projectID,
		Name:      "workflow " + id,
		Status:    models.WorkflowStatusDraft,
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true},
			},
		},
		Results: make(map[string]map[string]any),
		Owner:   owner,
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := testWorkflow("wf-1", "project-1", "alex")
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	loaded, err := p.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.ID)
	assert.Equal(t, "project-1", loaded.ProjectID)
	require.Len(t, loaded.Graph.Nodes, 1)
	assert.Equal(t, "render", loaded.Graph.Nodes[0].Type)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestWorkflowByIDNotFound(t *testing.T) {
	p := file.NewPersistence(t.TempDir())

	_, err := p.WorkflowByID(context.Background(), "ghost")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestDeleteWorkflowIsIdempotent(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, p.SaveWorkflow(ctx, testWorkflow("wf-1", "project-1", "alex")))
	require.NoError(t, p.DeleteWorkflow(ctx, "wf-1"))
	require.NoError(t, p.DeleteWorkflow(ctx, "wf-1"))

	_, err := p.WorkflowByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestListWorkflowsFiltersAndPaginates(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		workflow := testWorkflow(fmt.Sprintf("wf-%d", i), "project-1", "alex")
		require.NoError(t, p.SaveWorkflow(ctx, workflow))
	}

	require.NoError(t, p.SaveWorkflow(ctx, testWorkflow("wf-other", "project-2", "sam")))

	result, err := p.ListWorkflows(ctx, persistence.ListWorkflowsOptions{
		ProjectID: "project-1",
		Limit:     3,
		SortBy:    "name",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Workflows, 3)
	assert.Equal(t, "workflow wf-0", result.Workflows[0].Name)

	result, err = p.ListWorkflows(ctx, persistence.ListWorkflowsOptions{
		ProjectID: "project-1",
		Limit:     3,
		Offset:    3,
		SortBy:    "name",
		SortOrder: "asc",
	})
	require.NoError(t, err)
	assert.False(t, result.HasNextPage)
	assert.Len(t, result.Workflows, 2)
}

func TestListWorkflowsRejectsUnknownSortField(t *testing.T) {
	p := file.NewPersistence(t.TempDir())

	_, err := p.ListWorkflows(context.Background(), persistence.ListWorkflowsOptions{
		SortBy: "owner; DROP TABLE workflows",
	})
	assert.Error(t, err)
}

func TestTemplateRoundTrip(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	template := &models.WorkflowTemplate{
		ID:         "tpl-1",
		Name:       "short film pipeline",
		Owner:      "alex",
		Visibility: models.TemplateVisibilityPublic,
		Published:  true,
		Graph: models.Graph{
			Nodes: []*models.WorkflowNode{
				{ID: "render-1", Type: "render", Name: "Render", Enabled: true},
			},
		},
	}
	require.NoError(t, p.SaveTemplate(ctx, template))

	loaded, err := p.TemplateByID(ctx, "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "short film pipeline", loaded.Name)
	assert.True(t, loaded.Published)

	all, err := p.Templates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = p.TemplateByID(ctx, "ghost")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestExecutionsByWorkflowNewestFirst(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		execution := &models.WorkflowExecution{
			ID:         fmt.Sprintf("exec-%d", i),
			WorkflowID: "wf-1",
			Status:     models.ExecutionStatusCompleted,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			Results:    make(map[string]map[string]any),
		}
		require.NoError(t, p.SaveExecution(ctx, execution))
	}

	executions, err := p.ExecutionsByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, executions, 3)
	assert.Equal(t, "exec-2", executions[0].ID)
	assert.Equal(t, "exec-0", executions[2].ID)
}

func TestPruneExecutionsKeepsRecentAndRunning(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()

	executions := []*models.WorkflowExecution{
		{ID: "exec-old", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted, StartedAt: old, CompletedAt: &old},
		{ID: "exec-recent", WorkflowID: "wf-1", Status: models.ExecutionStatusFailed, StartedAt: recent, CompletedAt: &recent},
		{ID: "exec-live", WorkflowID: "wf-1", Status: models.ExecutionStatusRunning, StartedAt: old},
	}
	for _, execution := range executions {
		require.NoError(t, p.SaveExecution(ctx, execution))
	}

	pruned, err := p.PruneExecutions(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = p.ExecutionByID(ctx, "exec-old")
	assert.True(t, persistence.IsExecutionNotFound(err))

	_, err = p.ExecutionByID(ctx, "exec-live")
	assert.NoError(t, err)
}
