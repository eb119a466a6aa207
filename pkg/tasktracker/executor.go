package tasktracker

import (
	"context"

	"github.com/storycut/storycut/pkg/models"
)

// JobSpec is everything the external executor needs to run one node: the
// node's resolved config plus the outputs of every upstream node.
type JobSpec struct {
	WorkflowID  string                    `json:"workflow_id"`
	ExecutionID string                    `json:"execution_id"`
	NodeID      string                    `json:"node_id"`
	NodeType    string                    `json:"node_type"`
	Config      map[string]any            `json:"config"`
	Inputs      map[string]map[string]any `json:"inputs"` // Upstream results keyed by node id
}

// Executor is the client of the external render job executor. The tracker
// is its sole caller.
type Executor interface {
	// Submit hands the spec to the executor and returns its opaque job id.
	Submit(ctx context.Context, spec JobSpec) (string, error)

	// Status returns the executor's view of the job, plus any result
	// payload once the job has finished.
	Status(ctx context.Context, jobID string) (models.TaskStatus, map[string]any, error)

	// Cancel requests cancellation. Best-effort: the job may still
	// complete after the request.
	Cancel(ctx context.Context, jobID string) error
}

// Update is the typed completion event the tracker emits when a job
// reaches a terminal status. Consumers read these from Updates(); the
// tracker never calls engine code from its own goroutines.
type Update struct {
	JobID       string
	WorkflowID  string
	ExecutionID string
	NodeID      string
	Status      models.TaskStatus
	Payload     map[string]any
	Error       string
}
