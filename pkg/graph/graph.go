// Package graph provides the arena representation of a workflow graph and
// the pure traversals the execution engine runs over it. Nodes and edges
// live in an indexed arena with adjacency lists, never as mutable object
// references between node records.
package graph

import (
	"errors"
	"fmt"

	"github.com/storycut/storycut/pkg/models"
)

var (
	// ErrCyclicGraph indicates the node graph contains at least one cycle.
	ErrCyclicGraph = errors.New("workflow graph contains a cycle")

	// ErrDanglingPort indicates a connection references a node that does not exist.
	ErrDanglingPort = errors.New("connection references unknown node")

	// ErrInvalidPortID indicates a port id is not in "{node_id}:{port_name}" form.
	ErrInvalidPortID = errors.New("invalid port id format")

	// ErrDuplicateNode indicates two nodes share the same id.
	ErrDuplicateNode = errors.New("duplicate node id in graph")
)

// Arena holds the indexed node records and their adjacency lists. It is
// immutable after Build; all traversals are read-only.
type Arena struct {
	nodes []*models.WorkflowNode
	index map[string]int
	out   [][]int
	in    [][]int
}

// Build indexes the graph definition into an arena. It fails fast on
// duplicate node ids, malformed port ids and connections that reference
// nodes missing from the graph.
func Build(g models.Graph) (*Arena, error) {
	arena := &Arena{
		nodes: make([]*models.WorkflowNode, 0, len(g.Nodes)),
		index: make(map[string]int, len(g.Nodes)),
		out:   make([][]int, len(g.Nodes)),
		in:    make([][]int, len(g.Nodes)),
	}

	for i, node := range g.Nodes {
		if _, exists := arena.index[node.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
		}

		arena.index[node.ID] = i
		arena.nodes = append(arena.nodes, node)
	}

	for _, conn := range g.Connections {
		sourceNode, _, ok := models.ParsePortID(conn.SourcePort)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPortID, conn.SourcePort)
		}

		targetNode, _, ok := models.ParsePortID(conn.TargetPort)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPortID, conn.TargetPort)
		}

		from, ok := arena.index[sourceNode]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDanglingPort, conn.SourcePort)
		}

		to, ok := arena.index[targetNode]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDanglingPort, conn.TargetPort)
		}

		arena.out[from] = append(arena.out[from], to)
		arena.in[to] = append(arena.in[to], from)
	}

	return arena, nil
}

// Len returns the number of nodes in the arena.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// Node returns the node record with the given id, or nil.
func (a *Arena) Node(nodeID string) *models.WorkflowNode {
	i, ok := a.index[nodeID]
	if !ok {
		return nil
	}

	return a.nodes[i]
}

// Upstream returns the ids of nodes with an edge into nodeID.
func (a *Arena) Upstream(nodeID string) []string {
	i, ok := a.index[nodeID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(a.in[i]))
	for _, from := range a.in[i] {
		ids = append(ids, a.nodes[from].ID)
	}

	return ids
}

// Downstream returns the ids of nodes nodeID has an edge into.
func (a *Arena) Downstream(nodeID string) []string {
	i, ok := a.index[nodeID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(a.out[i]))
	for _, to := range a.out[i] {
		ids = append(ids, a.nodes[to].ID)
	}

	return ids
}

// TopoOrder returns every node id in a deterministic topological order.
// Ties between independent ready nodes break by node-insertion order, so
// the same graph always walks the same way. Returns ErrCyclicGraph when
// not every node can be ordered.
func (a *Arena) TopoOrder() ([]string, error) {
	indegree := make([]int, len(a.nodes))
	for i := range a.nodes {
		indegree[i] = len(a.in[i])
	}

	order := make([]string, 0, len(a.nodes))
	visited := make([]bool, len(a.nodes))

	for len(order) < len(a.nodes) {
		next := -1

		for i := range a.nodes {
			if !visited[i] && indegree[i] == 0 {
				next = i

				break
			}
		}

		if next == -1 {
			return nil, ErrCyclicGraph
		}

		visited[next] = true
		order = append(order, a.nodes[next].ID)

		for _, to := range a.out[next] {
			indegree[to]--
		}
	}

	return order, nil
}

// Validate runs the structural checks without materializing the order.
func Validate(g models.Graph) error {
	arena, err := Build(g)
	if err != nil {
		return err
	}

	_, err = arena.TopoOrder()

	return err
}
