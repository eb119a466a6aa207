package engine

import "errors"

var (
	// ErrInvalidGraph indicates the node graph has a cycle, a dangling
	// port reference, or a node that fails type/config validation. The
	// workflow is rejected before any job is submitted.
	ErrInvalidGraph = errors.New("invalid workflow graph")

	// ErrAlreadyRunning indicates the workflow already has a live execution.
	ErrAlreadyRunning = errors.New("workflow already running")

	// ErrInvalidTransition indicates a pause/resume/cancel call outside
	// the states that allow it.
	ErrInvalidTransition = errors.New("invalid workflow state transition")

	// ErrWorkflowNotKnown indicates the engine holds no state for the
	// workflow id.
	ErrWorkflowNotKnown = errors.New("workflow not known to engine")
)

// IsValidationError reports whether err rejects a workflow before
// execution (bad graph or bad node config). Never retried.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidGraph)
}
