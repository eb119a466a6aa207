package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateNodeType indicates a node type id is already registered.
	ErrDuplicateNodeType = errors.New("node type already registered")

	// ErrUnknownNodeType indicates no factory is registered for the node type id.
	ErrUnknownNodeType = errors.New("node type not registered")
)

// SchemaViolationError reports every missing or mistyped configuration
// field at once, not just the first one found.
type SchemaViolationError struct {
	NodeType   string
	Violations []string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("config for node type %q violates schema: %s",
		e.NodeType, strings.Join(e.Violations, "; "))
}

// IsSchemaViolation checks whether err reports a config schema violation.
func IsSchemaViolation(err error) bool {
	var violation *SchemaViolationError

	return errors.As(err, &violation)
}

// IsDuplicateNodeType checks whether err reports a duplicate registration.
func IsDuplicateNodeType(err error) bool {
	return errors.Is(err, ErrDuplicateNodeType)
}

// IsUnknownNodeType checks whether err reports an unregistered node type.
func IsUnknownNodeType(err error) bool {
	return errors.Is(err, ErrUnknownNodeType)
}
