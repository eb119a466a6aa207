// Package registry provides the static catalog of node types available to
// workflow graphs. Registration happens once at process start; every call
// after that is read-only.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[string]protocol.NodeFactory
	order         []string
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:        logger,
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

// Register adds a node factory to the catalog. A second registration for
// the same type id fails with ErrDuplicateNodeType.
func (r *Registry) Register(factory protocol.NodeFactory) error {
	if _, exists := r.nodeFactories[factory.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeType, factory.ID())
	}

	r.nodeFactories[factory.ID()] = factory
	r.order = append(r.order, factory.ID())

	r.logger.Debug("Registered node type", "node_type", factory.ID())

	return nil
}

// Resolve returns the factory for the given node type id.
func (r *Registry) Resolve(nodeType string) (protocol.NodeFactory, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	return factory, nil
}

// Ports returns the input/output port arity for the given node type id.
func (r *Registry) Ports(nodeType string) (models.PortArity, error) {
	factory, err := r.Resolve(nodeType)
	if err != nil {
		return models.PortArity{}, err
	}

	return factory.Ports(), nil
}

// ValidateConfig validates a node configuration against the node type's
// JSON schema. Every violation is collected into one SchemaViolationError
// so the caller sees all missing and mistyped fields together.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	factory, err := r.Resolve(nodeType)
	if err != nil {
		return err
	}

	schemaLoader := gojsonschema.NewGoLoader(factory.Schema())

	if config == nil {
		config = map[string]any{}
	}

	documentLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate config for node type %s: %w", nodeType, err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}

	return &SchemaViolationError{NodeType: nodeType, Violations: violations}
}

// AvailableNodes returns every registered factory in registration order.
func (r *Registry) AvailableNodes() []protocol.NodeFactory {
	factories := make([]protocol.NodeFactory, 0, len(r.order))
	for _, id := range r.order {
		factories = append(factories, r.nodeFactories[id])
	}

	return factories
}

// HealthCheck reports whether the registry holds at least one node type.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.nodeFactories) == 0 {
		return "Node registry is empty", false
	}

	return fmt.Sprintf("Node registry holds %d node types", len(r.nodeFactories)), true
}
