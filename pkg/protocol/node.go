// Package protocol defines the interfaces and contracts for pluggable node types.
package protocol

import "github.com/storycut/storycut/pkg/models"

// NodeFactory describes one registered node type: its identity, its
// configuration schema and its port arity. Factories are registered once
// at process start and consulted read-only afterwards.
type NodeFactory interface {
	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any

	// Ports returns the input/output port arity for this node type
	Ports() models.PortArity
}
