package tasktracker_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/tasktracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor scripts submission failures and job statuses.
type fakeExecutor struct {
	mu            sync.Mutex
	failSubmits   int
	submits       int
	cancelled     []string
	statuses      map[string]models.TaskStatus
	payloads      map[string]map[string]any
	nextJobNumber int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		statuses: make(map[string]models.TaskStatus),
		payloads: make(map[string]map[string]any),
	}
}

func (f *fakeExecutor) Submit(_ context.Context, _ tasktracker.JobSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submits++
	if f.failSubmits > 0 {
		f.failSubmits--

		return "", errors.New("executor unreachable")
	}

	f.nextJobNumber++
	jobID := fmt.Sprintf("job-%d", f.nextJobNumber)
	f.statuses[jobID] = models.TaskStatusRunning

	return jobID, nil
}

func (f *fakeExecutor) Status(_ context.Context, jobID string) (models.TaskStatus, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.statuses[jobID]
	if !ok {
		return "", nil, errors.New("no such job")
	}

	return status, f.payloads[jobID], nil
}

func (f *fakeExecutor) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, jobID)

	return nil
}

func (f *fakeExecutor) finish(jobID string, status models.TaskStatus, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statuses[jobID] = status
	f.payloads[jobID] = payload
}

func fastConfig() tasktracker.Config {
	return tasktracker.Config{
		Backoff: tasktracker.BackoffPolicy{
			InitialInterval:    time.Millisecond,
			MaximumInterval:    5 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaxAttempts:        3,
		},
		PollInterval: 5 * time.Millisecond,
		JobTimeout:   time.Minute,
	}
}

func spec(nodeID string) tasktracker.JobSpec {
	return tasktracker.JobSpec{
		WorkflowID:  "wf-1",
		ExecutionID: "exec-1",
		NodeID:      nodeID,
		NodeType:    "render",
		Config:      map[string]any{"resolution": "1080p"},
	}
}

func TestSubmitRetriesTransientErrors(t *testing.T) {
	executor := newFakeExecutor()
	executor.failSubmits = 2

	tracker := tasktracker.NewTracker(executor, slog.Default(), fastConfig())

	jobID, err := tracker.Submit(context.Background(), spec("node-a"))
	require.NoError(t, err)
	assert.Equal(t, 3, executor.submits)

	record, err := tracker.Record(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, record.Status)
	assert.Equal(t, 3, record.Attempts)
}

func TestSubmitExhaustsRetries(t *testing.T) {
	executor := newFakeExecutor()
	executor.failSubmits = 10

	tracker := tasktracker.NewTracker(executor, slog.Default(), fastConfig())

	_, err := tracker.Submit(context.Background(), spec("node-a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, tasktracker.ErrTaskFailed)
	assert.ErrorIs(t, err, tasktracker.ErrSubmission)
	assert.Equal(t, 3, executor.submits)
}

func TestPollEmitsTerminalUpdate(t *testing.T) {
	executor := newFakeExecutor()
	tracker := tasktracker.NewTracker(executor, slog.Default(), fastConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jobID, err := tracker.Submit(ctx, spec("node-a"))
	require.NoError(t, err)

	tracker.Start(ctx)
	defer tracker.Stop()

	executor.finish(jobID, models.TaskStatusSucceeded, map[string]any{"artifact": "s3://out.mp4"})

	select {
	case update := <-tracker.Updates():
		assert.Equal(t, jobID, update.JobID)
		assert.Equal(t, "node-a", update.NodeID)
		assert.Equal(t, models.TaskStatusSucceeded, update.Status)
		assert.Equal(t, "s3://out.mp4", update.Payload["artifact"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for update")
	}
}

func TestJobTimeout(t *testing.T) {
	executor := newFakeExecutor()

	config := fastConfig()
	config.JobTimeout = 10 * time.Millisecond

	tracker := tasktracker.NewTracker(executor, slog.Default(), config)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := tracker.Submit(ctx, spec("node-a"))
	require.NoError(t, err)

	tracker.Start(ctx)
	defer tracker.Stop()

	select {
	case update := <-tracker.Updates():
		assert.Equal(t, models.TaskStatusTimedOut, update.Status)
		assert.Contains(t, update.Error, "timeout")
	case <-ctx.Done():
		t.Fatal("timed out waiting for timeout update")
	}
}

func TestCancelIsBestEffortAndLateSuccessDoesNotResurrect(t *testing.T) {
	executor := newFakeExecutor()
	tracker := tasktracker.NewTracker(executor, slog.Default(), fastConfig())

	ctx := context.Background()

	jobID, err := tracker.Submit(ctx, spec("node-a"))
	require.NoError(t, err)

	require.NoError(t, tracker.Cancel(ctx, jobID))
	assert.Contains(t, executor.cancelled, jobID)

	select {
	case update := <-tracker.Updates():
		assert.Equal(t, models.TaskStatusCancelled, update.Status)
	default:
		t.Fatal("expected cancelled update")
	}

	// The external job completes anyway. The late success is recorded on
	// the task record but no second update is emitted.
	tracker.Reconcile(ctx, jobID, models.TaskStatusSucceeded, map[string]any{"artifact": "late"}, "")

	record, err := tracker.Record(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, record.Status)
	assert.True(t, record.LateResult)

	select {
	case update := <-tracker.Updates():
		t.Fatalf("unexpected update after terminal status: %+v", update)
	default:
	}
}

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	executor := newFakeExecutor()
	tracker := tasktracker.NewTracker(executor, slog.Default(), fastConfig())

	ctx := context.Background()

	jobID, err := tracker.Submit(ctx, spec("node-a"))
	require.NoError(t, err)

	tracker.Reconcile(ctx, jobID, models.TaskStatusFailed, nil, "boom")

	// A stale "running" poll result must not reopen the failed job.
	tracker.Reconcile(ctx, jobID, models.TaskStatusRunning, nil, "")

	status, err := tracker.Poll(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, status)
}

func TestPollUnknownJob(t *testing.T) {
	tracker := tasktracker.NewTracker(newFakeExecutor(), slog.Default(), fastConfig())

	_, err := tracker.Poll("ghost")
	assert.ErrorIs(t, err, tasktracker.ErrUnknownJob)
}
