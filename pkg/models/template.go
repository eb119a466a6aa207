package models

import "time"

// TemplateVisibility controls who can instantiate a template.
type TemplateVisibility string

const (
	TemplateVisibilityPrivate TemplateVisibility = "private"
	TemplateVisibilityPublic  TemplateVisibility = "public"
)

// WorkflowTemplate is an immutable-once-published blueprint for project
// workflows. Only the usage counter changes after publication, and a
// template is never deleted while an instance references it.
type WorkflowTemplate struct {
	ID             string                    `json:"id"`
	Name           string                    `json:"name"       validate:"required,min=3"`
	Description    string                    `json:"description"`
	Graph          Graph                     `json:"graph"`
	DefaultConfigs map[string]map[string]any `json:"default_configs,omitempty"`
	Owner          string                    `json:"owner"      validate:"required"`
	Visibility     TemplateVisibility        `json:"visibility" validate:"required,oneof=private public"`
	UsageCount     int64                     `json:"usage_count"`
	Published      bool                      `json:"published"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Instantiate copies the template graph into a fresh draft workflow bound
// to the given project. Node configs fall back to the template defaults
// where the node carries none of its own.
func (t *WorkflowTemplate) Instantiate(id, projectID, owner string, now time.Time) *ProjectWorkflow {
	graph := Graph{
		Nodes:       make([]*WorkflowNode, 0, len(t.Graph.Nodes)),
		Connections: make([]*Connection, 0, len(t.Graph.Connections)),
	}

	for _, node := range t.Graph.Nodes {
		copied := &WorkflowNode{
			ID:      node.ID,
			Type:    node.Type,
			Name:    node.Name,
			Enabled: node.Enabled,
			Config:  make(map[string]any, len(node.Config)),
		}

		for k, v := range t.DefaultConfigs[node.Type] {
			copied.Config[k] = v
		}

		for k, v := range node.Config {
			copied.Config[k] = v
		}

		graph.Nodes = append(graph.Nodes, copied)
	}

	for _, conn := range t.Graph.Connections {
		graph.Connections = append(graph.Connections, &Connection{
			ID:         conn.ID,
			SourcePort: conn.SourcePort,
			TargetPort: conn.TargetPort,
		})
	}

	return &ProjectWorkflow{
		ID:         id,
		ProjectID:  projectID,
		Name:       t.Name,
		TemplateID: t.ID,
		Status:     WorkflowStatusDraft,
		Graph:      graph,
		Results:    make(map[string]map[string]any),
		Owner:      owner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
