package models

import "time"

// ExecutionStatus represents the state of one workflow execution run.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the execution can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// ExecutionLogEntry is one append-only line in an execution log.
type ExecutionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id,omitempty"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
}

// Execution log event names.
const (
	ExecutionEventStarted       = "execution.started"
	ExecutionEventNodeSubmitted = "node.submitted"
	ExecutionEventNodeSkipped   = "node.skipped"
	ExecutionEventNodeSucceeded = "node.succeeded"
	ExecutionEventNodeFailed    = "node.failed"
	ExecutionEventNodeCancelled = "node.cancelled"
	ExecutionEventNodeTimedOut  = "node.timed_out"
	ExecutionEventCompleted     = "execution.completed"
	ExecutionEventFailed        = "execution.failed"
	ExecutionEventCancelled     = "execution.cancelled"
	ExecutionEventPaused        = "execution.paused"
	ExecutionEventResumed       = "execution.resumed"
	ExecutionEventLateResult    = "node.late_result"
)

// WorkflowExecution is one run record for a ProjectWorkflow. The log is
// append-only and the whole record is immutable once Status is terminal.
type WorkflowExecution struct {
	ID           string                    `json:"id"`
	WorkflowID   string                    `json:"workflow_id"`
	Status       ExecutionStatus           `json:"status"`
	Log          []ExecutionLogEntry       `json:"log"`
	ErrorMessage string                    `json:"error_message,omitempty"`
	Results      map[string]map[string]any `json:"results"`
	StartedAt    time.Time                 `json:"started_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
}

// AppendLog appends one entry to the execution log.
func (e *WorkflowExecution) AppendLog(nodeID, event, message string) {
	e.Log = append(e.Log, ExecutionLogEntry{
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		Event:     event,
		Message:   message,
	})
}
