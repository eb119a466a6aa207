// Package engine advances project workflows through their node graphs,
// one external job per node, recording every transition into an
// append-only execution log.
//
// All operations on a single workflow run inside that workflow's
// exclusive section: no two Step or OnTaskUpdate calls for the same
// workflow execute concurrently. That serialization, together with the
// per-(execution, node) submission set, is what makes node submission
// at-most-once even under duplicate callback delivery.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storycut/storycut/pkg/eventbus"
	"github.com/storycut/storycut/pkg/events"
	"github.com/storycut/storycut/pkg/graph"
	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/registry"
	"github.com/storycut/storycut/pkg/tasktracker"
)

// TaskSubmitter is the slice of the task tracker the engine drives.
type TaskSubmitter interface {
	Submit(ctx context.Context, spec tasktracker.JobSpec) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

// Store is the engine's view of the persistence layer: load/save of
// workflows and append-only execution records.
type Store interface {
	SaveWorkflow(ctx context.Context, workflow *models.ProjectWorkflow) error
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error
}

// Engine drives ProjectWorkflow instances through their graphs.
type Engine struct {
	logger    *slog.Logger
	registry  *registry.Registry
	submitter TaskSubmitter
	store     Store
	publisher eventbus.EventPublisher

	mu        sync.Mutex
	workflows map[string]*workflowState
}

// workflowState is everything the engine tracks for one workflow. Its
// own mutex is the per-workflow exclusive section.
type workflowState struct {
	mu sync.Mutex

	workflow  *models.ProjectWorkflow
	execution *models.WorkflowExecution
	arena     *graph.Arena
	order     []string

	submitted map[string]bool   // node id -> submitted in this execution
	done      map[string]bool   // node id -> terminal result recorded
	jobs      map[string]string // job id -> node id
	inflight  string            // node id currently executing, "" when idle
}

func NewEngine(
	logger *slog.Logger,
	reg *registry.Registry,
	submitter TaskSubmitter,
	store Store,
	publisher eventbus.EventPublisher,
) *Engine {
	return &Engine{
		logger:    logger.With("module", "engine"),
		registry:  reg,
		submitter: submitter,
		store:     store,
		publisher: publisher,
		workflows: make(map[string]*workflowState),
	}
}

// Start validates the workflow graph and opens a new execution. It fails
// with ErrInvalidGraph before creating any execution record when the
// graph has a cycle, a dangling port, an unknown node type or a config
// that violates its schema, and with ErrAlreadyRunning when an execution
// is live.
func (e *Engine) Start(ctx context.Context, workflow *models.ProjectWorkflow) (*models.WorkflowExecution, error) {
	state := e.state(workflow.ID, workflow)

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.workflow.Status == models.WorkflowStatusRunning || state.workflow.Status == models.WorkflowStatusPaused {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, workflow.ID)
	}

	arena, order, err := e.validateGraph(workflow.Graph)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:         "exec-" + uuid.New().String(),
		WorkflowID: workflow.ID,
		Status:     models.ExecutionStatusRunning,
		Results:    make(map[string]map[string]any),
		StartedAt:  now,
	}
	execution.AppendLog("", models.ExecutionEventStarted,
		fmt.Sprintf("execution started with %d nodes", len(order)))

	state.workflow = workflow
	state.execution = execution
	state.arena = arena
	state.order = order
	state.submitted = make(map[string]bool)
	state.done = make(map[string]bool)
	state.jobs = make(map[string]string)
	state.inflight = ""

	workflow.Status = models.WorkflowStatusRunning
	workflow.StartedAt = &now
	workflow.UpdatedAt = now

	if workflow.Results == nil {
		workflow.Results = make(map[string]map[string]any)
	}

	e.publish(ctx, workflow.ID, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID:  execution.ID,
		WorkflowName: workflow.Name,
		NodeCount:    len(order),
		Initiator:    workflow.Owner,
	})

	e.step(ctx, state)

	if err := e.save(ctx, state); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Workflow execution started",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"nodes", len(order),
	)

	return execution, nil
}

// validateGraph runs the structural and config checks. Everything it
// rejects is a ValidationError: local, reported before any submission,
// never retried.
func (e *Engine) validateGraph(g models.Graph) (*graph.Arena, []string, error) {
	arena, err := graph.Build(g)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	order, err := arena.TopoOrder()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	for _, node := range g.Nodes {
		if _, err := e.registry.Resolve(node.Type); err != nil {
			return nil, nil, fmt.Errorf("%w: node %s: %w", ErrInvalidGraph, node.ID, err)
		}

		if err := e.registry.ValidateConfig(node.Type, node.Config); err != nil {
			return nil, nil, fmt.Errorf("%w: node %s: %w", ErrInvalidGraph, node.ID, err)
		}
	}

	return arena, order, nil
}

// Step advances the cursor to the next topologically-ready node and
// submits it. Exposed for callers that re-arm stepping explicitly; the
// engine also steps internally after every successful node.
func (e *Engine) Step(ctx context.Context, workflowID string) error {
	state, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	e.step(ctx, state)

	return e.save(ctx, state)
}

// step submits the next ready node. Must hold state.mu. Under the
// single-lane policy at most one node is in flight per workflow; a call
// while a node is in flight is a no-op.
func (e *Engine) step(ctx context.Context, state *workflowState) {
	if state.execution == nil || state.execution.Status != models.ExecutionStatusRunning {
		return
	}

	if state.inflight != "" {
		return
	}

	for {
		nodeID, ok := e.nextReady(state)
		if !ok {
			if len(state.done) == state.arena.Len() {
				e.complete(ctx, state)
			}

			return
		}

		node := state.arena.Node(nodeID)
		if !node.Enabled {
			// Disabled nodes pass through untouched: no job, empty result.
			state.done[nodeID] = true
			state.execution.AppendLog(nodeID, models.ExecutionEventNodeSkipped, "node disabled, skipping")

			continue
		}

		e.submitNode(ctx, state, node)

		return
	}
}

// nextReady returns the first node in topological order that has not run
// and whose upstream nodes all have results.
func (e *Engine) nextReady(state *workflowState) (string, bool) {
	for _, nodeID := range state.order {
		if state.done[nodeID] || state.submitted[nodeID] {
			continue
		}

		ready := true

		for _, upstream := range state.arena.Upstream(nodeID) {
			if !state.done[upstream] {
				ready = false

				break
			}
		}

		if ready {
			return nodeID, true
		}
	}

	return "", false
}

func (e *Engine) submitNode(ctx context.Context, state *workflowState, node *models.WorkflowNode) {
	// Marked before the submit call: even if the submit path is ever
	// re-entered for this node, the second pass sees it and backs off.
	state.submitted[node.ID] = true
	state.inflight = node.ID
	state.workflow.CurrentNodeID = &node.ID

	inputs := make(map[string]map[string]any)
	for _, upstream := range state.arena.Upstream(node.ID) {
		inputs[upstream] = state.execution.Results[upstream]
	}

	spec := tasktracker.JobSpec{
		WorkflowID:  state.workflow.ID,
		ExecutionID: state.execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Config:      node.Config,
		Inputs:      inputs,
	}

	jobID, err := e.submitter.Submit(ctx, spec)
	if err != nil {
		state.execution.AppendLog(node.ID, models.ExecutionEventNodeFailed,
			fmt.Sprintf("submission failed: %v", err))
		e.fail(ctx, state, node.ID, err.Error(), false)

		return
	}

	state.jobs[jobID] = node.ID
	state.execution.AppendLog(node.ID, models.ExecutionEventNodeSubmitted,
		fmt.Sprintf("submitted as job %s", jobID))

	e.publish(ctx, state.workflow.ID, events.NodeSubmitted{
		BaseEvent:   events.NewBaseEvent(events.NodeSubmittedEvent, state.workflow.ID),
		ExecutionID: state.execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		JobID:       jobID,
	})
}

// OnTaskUpdate is the single entry point for task completions. Updates
// are delivered from the tracker's channel; duplicates and stale updates
// are logged and ignored, never fatal.
func (e *Engine) OnTaskUpdate(ctx context.Context, update tasktracker.Update) {
	state, err := e.lookup(update.WorkflowID)
	if err != nil {
		e.logger.WarnContext(ctx, "Task update for unknown workflow",
			"workflow_id", update.WorkflowID, "job_id", update.JobID)

		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.execution == nil || state.execution.ID != update.ExecutionID {
		e.logger.InfoContext(ctx, "Ignoring update for stale execution",
			"workflow_id", update.WorkflowID, "execution_id", update.ExecutionID)

		return
	}

	if state.execution.Status.IsTerminal() || state.done[update.NodeID] {
		// Duplicate or post-terminal delivery: tolerated, no state change,
		// no duplicate log entry.
		e.logger.InfoContext(ctx, "Ignoring duplicate task update",
			"workflow_id", update.WorkflowID,
			"node_id", update.NodeID,
			"status", string(update.Status),
		)

		return
	}

	switch update.Status {
	case models.TaskStatusSucceeded:
		e.succeed(ctx, state, update)
	case models.TaskStatusFailed:
		state.execution.AppendLog(update.NodeID, models.ExecutionEventNodeFailed, update.Error)
		e.fail(ctx, state, update.NodeID, update.Error, false)
	case models.TaskStatusTimedOut:
		state.execution.AppendLog(update.NodeID, models.ExecutionEventNodeTimedOut, update.Error)
		e.fail(ctx, state, update.NodeID, update.Error, true)
	case models.TaskStatusCancelled:
		state.execution.AppendLog(update.NodeID, models.ExecutionEventNodeCancelled, "job cancelled")
		e.cancel(ctx, state, "job cancelled")
	default:
		e.logger.WarnContext(ctx, "Non-terminal task update delivered",
			"job_id", update.JobID, "status", string(update.Status))

		return
	}

	if err := e.save(ctx, state); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist workflow state",
			"workflow_id", update.WorkflowID, "error", err)
	}
}

func (e *Engine) succeed(ctx context.Context, state *workflowState, update tasktracker.Update) {
	now := time.Now().UTC()

	state.done[update.NodeID] = true
	state.inflight = ""
	state.execution.Results[update.NodeID] = update.Payload
	state.workflow.Results[update.NodeID] = update.Payload
	state.workflow.UpdatedAt = now

	state.execution.AppendLog(update.NodeID, models.ExecutionEventNodeSucceeded, "node completed")

	e.publish(ctx, state.workflow.ID, events.NodeCompleted{
		BaseEvent:   events.NewBaseEvent(events.NodeCompletedEvent, state.workflow.ID),
		ExecutionID: state.execution.ID,
		NodeID:      update.NodeID,
		Status:      models.NodeStatusSuccess,
		OutputData:  update.Payload,
	})

	// Pause takes effect here, at the safe point after the in-flight
	// node's callback: no new job is issued until resume.
	if state.workflow.Status == models.WorkflowStatusPaused {
		return
	}

	e.step(ctx, state)
}

func (e *Engine) complete(ctx context.Context, state *workflowState) {
	now := time.Now().UTC()

	state.execution.Status = models.ExecutionStatusCompleted
	state.execution.CompletedAt = &now
	state.execution.AppendLog("", models.ExecutionEventCompleted, "all nodes completed")

	state.workflow.Status = models.WorkflowStatusCompleted
	state.workflow.CurrentNodeID = nil
	state.workflow.CompletedAt = &now
	state.workflow.UpdatedAt = now

	e.publish(ctx, state.workflow.ID, events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, state.workflow.ID),
		ExecutionID:   state.execution.ID,
		DurationMs:    now.Sub(state.execution.StartedAt).Milliseconds(),
		NodesExecuted: len(state.done),
		Results:       state.execution.Results,
	})

	e.logger.InfoContext(ctx, "Workflow execution completed",
		"workflow_id", state.workflow.ID, "execution_id", state.execution.ID)
}

// fail halts the workflow. Downstream nodes of the failed node are never
// submitted: a failed node poisons everything depending on it.
func (e *Engine) fail(ctx context.Context, state *workflowState, nodeID, message string, timedOut bool) {
	now := time.Now().UTC()

	state.done[nodeID] = true
	state.inflight = ""

	state.execution.Status = models.ExecutionStatusFailed
	state.execution.ErrorMessage = message
	state.execution.CompletedAt = &now
	state.execution.AppendLog(nodeID, models.ExecutionEventFailed,
		fmt.Sprintf("execution failed at node %s: %s", nodeID, message))

	state.workflow.Status = models.WorkflowStatusFailed
	state.workflow.UpdatedAt = now

	e.publish(ctx, state.workflow.ID, events.NodeFailed{
		BaseEvent:   events.NewBaseEvent(events.NodeFailedEvent, state.workflow.ID),
		ExecutionID: state.execution.ID,
		NodeID:      nodeID,
		Error:       message,
		TimedOut:    timedOut,
	})

	e.publish(ctx, state.workflow.ID, events.ExecutionFailed{
		BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, state.workflow.ID),
		ExecutionID:   state.execution.ID,
		FailedNodeID:  nodeID,
		Error:         message,
		DurationMs:    now.Sub(state.execution.StartedAt).Milliseconds(),
		NodesExecuted: len(state.done),
	})

	e.logger.ErrorContext(ctx, "Workflow execution failed",
		"workflow_id", state.workflow.ID,
		"execution_id", state.execution.ID,
		"node_id", nodeID,
		"error", message,
	)
}

func (e *Engine) cancel(ctx context.Context, state *workflowState, reason string) {
	now := time.Now().UTC()

	state.inflight = ""

	state.execution.Status = models.ExecutionStatusCancelled
	state.execution.CompletedAt = &now
	state.execution.AppendLog("", models.ExecutionEventCancelled, reason)

	state.workflow.Status = models.WorkflowStatusCancelled
	state.workflow.UpdatedAt = now

	e.publish(ctx, state.workflow.ID, events.ExecutionCancelled{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, state.workflow.ID),
		ExecutionID: state.execution.ID,
		Reason:      reason,
		DurationMs:  now.Sub(state.execution.StartedAt).Milliseconds(),
	})
}

// Pause stops issuing new jobs but leaves the in-flight one running.
func (e *Engine) Pause(ctx context.Context, workflowID string) error {
	state, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	switch state.workflow.Status {
	case models.WorkflowStatusPaused:
		return nil
	case models.WorkflowStatusRunning:
	default:
		return fmt.Errorf("%w: cannot pause workflow in status %s", ErrInvalidTransition, state.workflow.Status)
	}

	state.workflow.Status = models.WorkflowStatusPaused
	state.workflow.UpdatedAt = time.Now().UTC()
	state.execution.Status = models.ExecutionStatusPaused
	state.execution.AppendLog("", models.ExecutionEventPaused, "execution paused")

	pausedAt := ""
	if state.workflow.CurrentNodeID != nil {
		pausedAt = *state.workflow.CurrentNodeID
	}

	e.publish(ctx, workflowID, events.ExecutionPaused{
		BaseEvent:    events.NewBaseEvent(events.ExecutionPausedEvent, workflowID),
		ExecutionID:  state.execution.ID,
		PausedAtNode: pausedAt,
	})

	return e.save(ctx, state)
}

// Resume re-arms stepping from the same cursor.
func (e *Engine) Resume(ctx context.Context, workflowID string) error {
	state, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	switch state.workflow.Status {
	case models.WorkflowStatusRunning:
		return nil
	case models.WorkflowStatusPaused:
	default:
		return fmt.Errorf("%w: cannot resume workflow in status %s", ErrInvalidTransition, state.workflow.Status)
	}

	state.workflow.Status = models.WorkflowStatusRunning
	state.workflow.UpdatedAt = time.Now().UTC()
	state.execution.Status = models.ExecutionStatusRunning
	state.execution.AppendLog("", models.ExecutionEventResumed, "execution resumed")

	e.publish(ctx, workflowID, events.ExecutionResumed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumedEvent, workflowID),
		ExecutionID: state.execution.ID,
	})

	e.step(ctx, state)

	return e.save(ctx, state)
}

// Cancel terminates the execution. The in-flight job receives a
// best-effort cancel request; a success arriving afterwards is ignored
// because the execution is already terminal.
func (e *Engine) Cancel(ctx context.Context, workflowID, reason string) error {
	state, err := e.lookup(workflowID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	switch state.workflow.Status {
	case models.WorkflowStatusRunning, models.WorkflowStatusPaused:
	default:
		return fmt.Errorf("%w: cannot cancel workflow in status %s", ErrInvalidTransition, state.workflow.Status)
	}

	if state.inflight != "" {
		for jobID, nodeID := range state.jobs {
			if nodeID == state.inflight {
				if err := e.submitter.Cancel(ctx, jobID); err != nil {
					e.logger.WarnContext(ctx, "Failed to cancel in-flight job",
						"job_id", jobID, "error", err)
				}
			}
		}
	}

	if reason == "" {
		reason = "cancelled by caller"
	}

	e.cancel(ctx, state, reason)

	return e.save(ctx, state)
}

// Status returns copies of the workflow and its current execution.
func (e *Engine) Status(workflowID string) (models.ProjectWorkflow, models.WorkflowExecution, error) {
	state, err := e.lookup(workflowID)
	if err != nil {
		return models.ProjectWorkflow{}, models.WorkflowExecution{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	workflow := *state.workflow

	var execution models.WorkflowExecution
	if state.execution != nil {
		execution = *state.execution
		execution.Log = append([]models.ExecutionLogEntry(nil), state.execution.Log...)
	}

	return workflow, execution, nil
}

// Pump consumes tracker updates until the channel closes or the context
// ends. Run it once per engine, typically in the worker binary.
func (e *Engine) Pump(ctx context.Context, updates <-chan tasktracker.Update) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			e.OnTaskUpdate(ctx, update)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) state(workflowID string, workflow *models.ProjectWorkflow) *workflowState {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.workflows[workflowID]
	if !ok {
		state = &workflowState{workflow: workflow}
		e.workflows[workflowID] = state
	}

	return state
}

func (e *Engine) lookup(workflowID string) (*workflowState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotKnown, workflowID)
	}

	return state, nil
}

func (e *Engine) save(ctx context.Context, state *workflowState) error {
	if e.store == nil {
		return nil
	}

	if err := e.store.SaveWorkflow(ctx, state.workflow); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	if state.execution != nil {
		if err := e.store.SaveExecution(ctx, state.execution); err != nil {
			return fmt.Errorf("failed to save execution: %w", err)
		}
	}

	return nil
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", string(event.GetType()), "error", err)
	}
}
