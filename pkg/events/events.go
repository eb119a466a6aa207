// Package events defines event types and structures for workflow and
// collaboration lifecycle notifications.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/storycut/storycut/pkg/models"
)

type EventType string

// Bus topics.
const Topic = "storycut.events"                            // Workflow lifecycle events
const CollaborationTopic = "storycut.collaboration.events" // Document edit broadcasts

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"

	// Node events within an execution.
	NodeSubmittedEvent EventType = "node.submitted"
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"

	// Collaboration events.
	DocumentEditedEvent EventType = "document.edited"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	WorkflowName string `json:"workflow_name"`
	NodeCount    int    `json:"node_count"`
	Initiator    string `json:"initiator"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string                    `json:"execution_id"`
	DurationMs    int64                     `json:"duration_ms"`
	NodesExecuted int                       `json:"nodes_executed"`
	Results       map[string]map[string]any `json:"results,omitempty"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	FailedNodeID  string `json:"failed_node_id"`
	Error         string `json:"error"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	PausedAtNode string `json:"paused_at_node,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type NodeSubmitted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	NodeType    string `json:"node_type"`
	JobID       string `json:"job_id"`
}

func (e NodeSubmitted) GetType() EventType {
	return NodeSubmittedEvent
}

type NodeCompleted struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	NodeID      string            `json:"node_id"`
	Status      models.NodeStatus `json:"status"`
	OutputData  map[string]any    `json:"output_data,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	TimedOut    bool   `json:"timed_out,omitempty"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// DocumentEdited mirrors a hub broadcast onto the bus so detached
// observers (progress dashboards, audit) see room activity without
// holding a session.
type DocumentEdited struct {
	BaseEvent

	DocumentID string          `json:"document_id"`
	ClientID   string          `json:"client_id"`
	Seq        uint64          `json:"seq"`
	Payload    json.RawMessage `json:"payload"`
}

func (e DocumentEdited) GetType() EventType {
	return DocumentEditedEvent
}
