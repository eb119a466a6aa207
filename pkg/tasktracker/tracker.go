// Package tasktracker correlates node executions with the external
// asynchronous render jobs that carry them out. It owns every TaskRecord:
// the engine and everything else only read them.
package tasktracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storycut/storycut/pkg/models"
)

const updateBuffer = 64

// Config tunes polling and timeout behavior.
type Config struct {
	Backoff      BackoffPolicy
	PollInterval time.Duration
	JobTimeout   time.Duration // Zero disables the per-job timeout
}

// DefaultConfig returns the tracker configuration used by the worker binary.
func DefaultConfig() Config {
	return Config{
		Backoff:      DefaultBackoffPolicy(),
		PollInterval: 2 * time.Second,
		JobTimeout:   30 * time.Minute,
	}
}

// Tracker maps external job ids to their last known status. It polls the
// executor, reconciles push callbacks, and emits a typed Update on its
// channel whenever a job reaches a terminal status.
type Tracker struct {
	executor Executor
	logger   *slog.Logger
	config   Config

	mu      sync.Mutex
	records map[string]*models.TaskRecord

	updates chan Update
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewTracker(executor Executor, logger *slog.Logger, config Config) *Tracker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}

	if config.Backoff.MaxAttempts <= 0 {
		config.Backoff = DefaultBackoffPolicy()
	}

	return &Tracker{
		executor: executor,
		logger:   logger.With("module", "tasktracker"),
		config:   config,
		records:  make(map[string]*models.TaskRecord),
		updates:  make(chan Update, updateBuffer),
		stopCh:   make(chan struct{}),
	}
}

// Updates is the channel terminal job transitions are emitted on. The
// owning workflow's serialized section is the intended sole consumer.
func (t *Tracker) Updates() <-chan Update {
	return t.updates
}

// Submit hands one node execution to the external executor. Transient
// submission errors are retried with bounded exponential backoff; once
// attempts are exhausted the error wraps ErrTaskFailed.
func (t *Tracker) Submit(ctx context.Context, spec JobSpec) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= t.config.Backoff.MaxAttempts; attempt++ {
		jobID, err := t.executor.Submit(ctx, spec)
		if err == nil {
			t.track(jobID, spec, attempt)

			return jobID, nil
		}

		lastErr = fmt.Errorf("%w: %w", ErrSubmission, err)

		t.logger.WarnContext(ctx, "Job submission attempt failed",
			"workflow_id", spec.WorkflowID,
			"node_id", spec.NodeID,
			"attempt", attempt,
			"error", err,
		)

		if attempt == t.config.Backoff.MaxAttempts {
			break
		}

		select {
		case <-time.After(t.config.Backoff.Backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("%w: node %s: %w", ErrTaskFailed, spec.NodeID, lastErr)
}

func (t *Tracker) track(jobID string, spec JobSpec, attempts int) {
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[jobID] = &models.TaskRecord{
		JobID:       jobID,
		NodeID:      spec.NodeID,
		WorkflowID:  spec.WorkflowID,
		ExecutionID: spec.ExecutionID,
		Status:      models.TaskStatusPending,
		Attempts:    attempts,
		SubmittedAt: now,
	}
}

// Poll returns the tracker's current view of the job.
func (t *Tracker) Poll(jobID string) (models.TaskStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[jobID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}

	return record.Status, nil
}

// Record returns a copy of the task record for the job.
func (t *Tracker) Record(jobID string) (models.TaskRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[jobID]
	if !ok {
		return models.TaskRecord{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}

	return *record, nil
}

// Cancel requests cancellation from the executor and marks the record
// cancelled. Best-effort: the external job may still complete afterwards,
// in which case the late success is recorded but emits no update.
func (t *Tracker) Cancel(ctx context.Context, jobID string) error {
	t.mu.Lock()
	record, ok := t.records[jobID]

	if !ok {
		t.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}

	if record.Status.IsTerminal() {
		t.mu.Unlock()

		return nil
	}

	t.mu.Unlock()

	if err := t.executor.Cancel(ctx, jobID); err != nil {
		t.logger.WarnContext(ctx, "Executor cancel request failed",
			"job_id", jobID, "error", err)
	}

	t.Reconcile(ctx, jobID, models.TaskStatusCancelled, nil, "cancelled by caller")

	return nil
}

// Reconcile applies an observed status to the task record and emits an
// Update when the job newly reaches a terminal status. Transitions are
// monotonic: anything arriving for an already-terminal record is recorded
// as a late result (or dropped) and never re-emitted, which makes
// duplicate delivery harmless.
func (t *Tracker) Reconcile(ctx context.Context, jobID string, status models.TaskStatus, payload map[string]any, message string) {
	t.mu.Lock()

	record, ok := t.records[jobID]
	if !ok {
		t.mu.Unlock()
		t.logger.WarnContext(ctx, "Status update for unknown job", "job_id", jobID)

		return
	}

	record.LastPolledAt = time.Now().UTC()

	if record.Status == status {
		t.mu.Unlock()

		return
	}

	if !record.Status.CanTransitionTo(status) {
		late := record.Status == models.TaskStatusCancelled && status == models.TaskStatusSucceeded
		if late {
			record.LateResult = true
		}

		t.mu.Unlock()

		t.logger.InfoContext(ctx, "Dropping non-monotonic task transition",
			"job_id", jobID,
			"recorded_status", string(status),
			"late_result", late,
		)

		return
	}

	record.Status = status
	update := Update{
		JobID:       record.JobID,
		WorkflowID:  record.WorkflowID,
		ExecutionID: record.ExecutionID,
		NodeID:      record.NodeID,
		Status:      status,
		Payload:     payload,
		Error:       message,
	}

	t.mu.Unlock()

	if status.IsTerminal() {
		select {
		case t.updates <- update:
		case <-ctx.Done():
		}
	}
}

// Start launches the background poll loop.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)

	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.pollOnce(ctx)
			case <-t.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts the poll loop down and closes the updates channel.
func (t *Tracker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
	close(t.updates)
}

func (t *Tracker) pollOnce(ctx context.Context) {
	for _, jobID := range t.activeJobs() {
		t.pollJob(ctx, jobID)
	}
}

func (t *Tracker) activeJobs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	jobs := make([]string, 0, len(t.records))

	for id, record := range t.records {
		if !record.Status.IsTerminal() {
			jobs = append(jobs, id)
		}
	}

	return jobs
}

func (t *Tracker) pollJob(ctx context.Context, jobID string) {
	if t.timedOut(ctx, jobID) {
		return
	}

	status, payload, err := t.executor.Status(ctx, jobID)
	if err != nil {
		// Transient poll failure: keep the last known status and retry on
		// the next tick.
		t.logger.WarnContext(ctx, "Job status poll failed", "job_id", jobID, "error", err)

		return
	}

	message := ""
	if status == models.TaskStatusFailed {
		message = "executor reported job failure"
	}

	t.Reconcile(ctx, jobID, status, payload, message)
}

func (t *Tracker) timedOut(ctx context.Context, jobID string) bool {
	if t.config.JobTimeout <= 0 {
		return false
	}

	t.mu.Lock()
	record, ok := t.records[jobID]

	expired := ok && !record.Status.IsTerminal() &&
		time.Since(record.SubmittedAt) > t.config.JobTimeout
	t.mu.Unlock()

	if !expired {
		return false
	}

	t.Reconcile(ctx, jobID, models.TaskStatusTimedOut, nil,
		fmt.Sprintf("job exceeded configured timeout of %s", t.config.JobTimeout))

	return true
}
