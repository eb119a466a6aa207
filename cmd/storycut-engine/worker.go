// Package main provides the Storycut engine worker: it drives workflow
// executions against the render farm and runs storage housekeeping.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/storycut/storycut/pkg/engine"
	"github.com/storycut/storycut/pkg/eventbus"
	"github.com/storycut/storycut/pkg/events"
	"github.com/storycut/storycut/pkg/otelhelper"
	"github.com/storycut/storycut/pkg/persistence"
	"github.com/storycut/storycut/pkg/registry"
	"github.com/storycut/storycut/pkg/tasktracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Worker struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	tracer      trace.Tracer

	executorURL   string
	retentionDays int

	tracker *tasktracker.Tracker
	engine  *engine.Engine
	cron    *cron.Cron
}

func NewWorker(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
	executorURL string,
	retentionDays int,
) *Worker {
	return &Worker{
		logger:        logger,
		persistence:   persistence,
		registry:      registry,
		eventBus:      eventBus,
		tracer:        tracer,
		executorURL:   executorURL,
		retentionDays: retentionDays,
	}
}

// Run starts the tracker poll loop, the engine update pump and the
// housekeeping cron, then blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	executor := tasktracker.NewHTTPExecutor(w.executorURL)
	w.tracker = tasktracker.NewTracker(executor, w.logger, tasktracker.DefaultConfig())
	w.tracker.Start(ctx)

	w.engine = engine.NewEngine(w.logger, w.registry, w.tracker, w.persistence, w.eventBus)

	if err := w.subscribeLifecycleEvents(ctx); err != nil {
		return err
	}

	w.startHousekeeping(ctx)

	w.logger.InfoContext(ctx, "Engine worker running",
		"executor_url", w.executorURL,
		"retention_days", w.retentionDays)

	w.engine.Pump(ctx, w.tracker.Updates())

	w.shutdown(ctx)

	return nil
}

// subscribeLifecycleEvents mirrors execution lifecycle events into the
// worker log so operators see run progress without a database query.
func (w *Worker) subscribeLifecycleEvents(ctx context.Context) error {
	logEvent := func(ctx context.Context, event any) error {
		switch e := event.(type) {
		case *events.ExecutionCompleted:
			w.logger.InfoContext(ctx, "Execution completed",
				"workflow_id", e.WorkflowID,
				"execution_id", e.ExecutionID,
				"nodes_executed", e.NodesExecuted)
		case *events.ExecutionFailed:
			w.logger.WarnContext(ctx, "Execution failed",
				"workflow_id", e.WorkflowID,
				"execution_id", e.ExecutionID,
				"failed_node_id", e.FailedNodeID,
				"error", e.Error)
		}

		return nil
	}

	if err := w.eventBus.Handle(events.ExecutionCompletedEvent, logEvent); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.ExecutionFailedEvent, logEvent); err != nil {
		return err
	}

	return w.eventBus.Subscribe(ctx)
}

// startHousekeeping schedules the nightly prune of terminal execution
// records older than the retention window.
func (w *Worker) startHousekeeping(ctx context.Context) {
	w.cron = cron.New()

	_, err := w.cron.AddFunc("0 3 * * *", func() {
		w.pruneExecutions(ctx)
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to schedule execution prune", "error", err)

		return
	}

	w.cron.Start()
}

func (w *Worker) pruneExecutions(ctx context.Context) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "housekeeping.prune_executions",
		attribute.Int("retention_days", w.retentionDays))
	defer span.End()

	cutoff := time.Now().UTC().AddDate(0, 0, -w.retentionDays)

	pruned, err := w.persistence.PruneExecutions(ctx, cutoff)
	if err != nil {
		otelhelper.SetError(span, err)
		w.logger.ErrorContext(ctx, "Execution prune failed", "error", err)

		return
	}

	span.SetAttributes(attribute.Int64("pruned", pruned))
	w.logger.InfoContext(ctx, "Pruned old executions", "count", pruned, "cutoff", cutoff)
}

func (w *Worker) shutdown(ctx context.Context) {
	if w.cron != nil {
		cronCtx := w.cron.Stop()
		<-cronCtx.Done()
	}

	if w.tracker != nil {
		w.tracker.Stop()
	}

	w.logger.InfoContext(ctx, "Engine worker stopped")
}
