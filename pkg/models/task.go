package models

import "time"

// TaskStatus represents the last known state of an external render job.
// Transitions are monotonic: pending -> running -> terminal, and a terminal
// status never changes again.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusTimedOut  TaskStatus = "timed-out"
)

// IsTerminal reports whether the job can no longer change state.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimedOut:
		return true
	default:
		return false
	}
}

// rank orders statuses so reconciliation never moves a job backwards.
func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusRunning:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether moving from s to next respects monotonicity.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}

	return next.rank() >= s.rank()
}

// TaskRecord correlates one node execution with one external asynchronous
// job. Owned exclusively by the task tracker; everything else reads only.
type TaskRecord struct {
	JobID        string     `json:"job_id"`
	NodeID       string     `json:"node_id"`
	WorkflowID   string     `json:"workflow_id"`
	ExecutionID  string     `json:"execution_id"`
	Status       TaskStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	LastPolledAt time.Time  `json:"last_polled_at"`
	LateResult   bool       `json:"late_result,omitempty"` // Success arrived after cancellation
}
