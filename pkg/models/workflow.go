// Package models defines the core domain models for node-based video production workflows.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a project workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not yet started
	WorkflowStatusRunning   WorkflowStatus = "running"   // An execution is in progress
	WorkflowStatusPaused    WorkflowStatus = "paused"    // Execution suspended at a safe point
	WorkflowStatusCompleted WorkflowStatus = "completed" // Terminal, every reachable node succeeded
	WorkflowStatusFailed    WorkflowStatus = "failed"    // Terminal, a node failed or timed out
	WorkflowStatusCancelled WorkflowStatus = "cancelled" // Terminal, cancelled by a caller
)

// IsTerminal reports whether no further execution is possible from this status.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// Graph is the node/edge definition shared by templates and live workflows.
type Graph struct {
	Nodes       []*WorkflowNode `json:"nodes"`
	Connections []*Connection   `json:"connections"`
}

// ProjectWorkflow is a live workflow instance bound to one project.
// The graph is a snapshot: edits to the originating template never leak
// into an instance after creation.
type ProjectWorkflow struct {
	ID            string                    `json:"id"`
	ProjectID     string                    `json:"project_id"  validate:"required"`
	Name          string                    `json:"name"        validate:"required,min=3"`
	TemplateID    string                    `json:"template_id,omitempty"`
	Status        WorkflowStatus            `json:"status"      validate:"required"`
	Graph         Graph                     `json:"graph"`
	CurrentNodeID *string                   `json:"current_node_id,omitempty"`
	Results       map[string]map[string]any `json:"results"`
	Owner         string                    `json:"owner"`
	CreatedAt     time.Time                 `json:"created_at"`
	StartedAt     *time.Time                `json:"started_at,omitempty"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// NodeByID returns the node instance with the given id, or nil.
func (w *ProjectWorkflow) NodeByID(nodeID string) *WorkflowNode {
	for _, node := range w.Graph.Nodes {
		if node.ID == nodeID {
			return node
		}
	}

	return nil
}
