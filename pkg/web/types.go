// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/protocol"
)

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	ProjectID string       `json:"project_id" validate:"required"`
	Name      string       `json:"name"       validate:"required,min=3"`
	Graph     models.Graph `json:"graph"`
	Owner     string       `json:"owner"      validate:"required"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name  *string       `json:"name,omitempty" validate:"omitempty,min=3"`
	Graph *models.Graph `json:"graph,omitempty"`
}

// CreateFromTemplateRequest represents the request body for instantiating a
// published template into a project workflow.
type CreateFromTemplateRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Owner     string `json:"owner"      validate:"required"`
}

// CreateTemplateRequest represents the request body for creating a new template.
type CreateTemplateRequest struct {
	Name           string                    `json:"name"        validate:"required,min=3"`
	Description    string                    `json:"description"`
	Graph          models.Graph              `json:"graph"`
	DefaultConfigs map[string]map[string]any `json:"default_configs,omitempty"`
	Owner          string                    `json:"owner"       validate:"required"`
	Visibility     string                    `json:"visibility"  validate:"omitempty,oneof=private public"`
}

// UpdateTemplateRequest represents the request body for updating an
// unpublished template. All fields are optional to support partial updates.
type UpdateTemplateRequest struct {
	Name           *string                   `json:"name,omitempty" validate:"omitempty,min=3"`
	Description    *string                   `json:"description,omitempty"`
	Graph          *models.Graph             `json:"graph,omitempty"`
	DefaultConfigs map[string]map[string]any `json:"default_configs,omitempty"`
}

// CreateTemplateFromWorkflowRequest represents the request body for
// snapshotting an existing workflow's graph into a new template.
type CreateTemplateFromWorkflowRequest struct {
	Name       string `json:"name"`
	Owner      string `json:"owner"      validate:"required"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=private public"`
}

// CancelWorkflowRequest represents the optional request body for cancelling
// a running workflow.
type CancelWorkflowRequest struct {
	Reason string `json:"reason"`
}

// NodeTypeResponse describes one registered node type in the catalog.
type NodeTypeResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
	Inputs      []string       `json:"inputs"`
	Outputs     []string       `json:"outputs"`
}

// TransformNodeTypeResponse flattens a registered factory into its catalog entry.
func TransformNodeTypeResponse(factory protocol.NodeFactory) NodeTypeResponse {
	arity := factory.Ports()

	return NodeTypeResponse{
		ID:          factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
		Inputs:      arity.Inputs,
		Outputs:     arity.Outputs,
	}
}
