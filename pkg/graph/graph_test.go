package graph_test

import (
	"testing"

	"github.com/storycut/storycut/pkg/graph"
	"github.com/storycut/storycut/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Type: "render", Name: id, Enabled: true}
}

func edge(from, to string) *models.Connection {
	return &models.Connection{
		ID:         from + "->" + to,
		SourcePort: models.MakePortID(from, "output"),
		TargetPort: models.MakePortID(to, "input"),
	}
}

func TestTopoOrderLinearChain(t *testing.T) {
	arena, err := graph.Build(models.Graph{
		Nodes:       []*models.WorkflowNode{node("a"), node("b"), node("c")},
		Connections: []*models.Connection{edge("a", "b"), edge("b", "c")},
	})
	require.NoError(t, err)

	order, err := arena.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoOrderStableOnTies(t *testing.T) {
	// Two independent sources: insertion order decides who goes first.
	arena, err := graph.Build(models.Graph{
		Nodes:       []*models.WorkflowNode{node("b"), node("a"), node("c")},
		Connections: []*models.Connection{edge("b", "c"), edge("a", "c")},
	})
	require.NoError(t, err)

	order, err := arena.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, order)
}

func TestBuildRejectsCycle(t *testing.T) {
	arena, err := graph.Build(models.Graph{
		Nodes:       []*models.WorkflowNode{node("a"), node("b")},
		Connections: []*models.Connection{edge("a", "b"), edge("b", "a")},
	})
	require.NoError(t, err)

	_, err = arena.TopoOrder()
	assert.ErrorIs(t, err, graph.ErrCyclicGraph)
}

func TestBuildRejectsDanglingPort(t *testing.T) {
	_, err := graph.Build(models.Graph{
		Nodes:       []*models.WorkflowNode{node("a")},
		Connections: []*models.Connection{edge("a", "ghost")},
	})
	assert.ErrorIs(t, err, graph.ErrDanglingPort)
}

func TestBuildRejectsDuplicateNode(t *testing.T) {
	_, err := graph.Build(models.Graph{
		Nodes: []*models.WorkflowNode{node("a"), node("a")},
	})
	assert.ErrorIs(t, err, graph.ErrDuplicateNode)
}

func TestBuildRejectsMalformedPortID(t *testing.T) {
	_, err := graph.Build(models.Graph{
		Nodes: []*models.WorkflowNode{node("a"), node("b")},
		Connections: []*models.Connection{
			{ID: "bad", SourcePort: "no-colon", TargetPort: models.MakePortID("b", "input")},
		},
	})
	assert.ErrorIs(t, err, graph.ErrInvalidPortID)
}

func TestUpstreamDownstream(t *testing.T) {
	arena, err := graph.Build(models.Graph{
		Nodes:       []*models.WorkflowNode{node("a"), node("b"), node("c")},
		Connections: []*models.Connection{edge("a", "c"), edge("b", "c")},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a", "b"}, arena.Upstream("c"))
	assert.Equal(t, []string{"c"}, arena.Downstream("a"))
	assert.Empty(t, arena.Upstream("a"))
}

func TestValidate(t *testing.T) {
	err := graph.Validate(models.Graph{
		Nodes:       []*models.WorkflowNode{node("a"), node("b")},
		Connections: []*models.Connection{edge("a", "b")},
	})
	assert.NoError(t, err)
}
