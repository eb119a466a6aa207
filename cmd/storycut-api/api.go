// Package main provides the Storycut API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/storycut/storycut/pkg/engine"
	"github.com/storycut/storycut/pkg/eventbus"
	"github.com/storycut/storycut/pkg/persistence"
	"github.com/storycut/storycut/pkg/registry"
	"github.com/storycut/storycut/pkg/services"
	"github.com/storycut/storycut/pkg/tasktracker"
	"github.com/storycut/storycut/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	executorURL string
	validate    *validator.Validate

	tracker *tasktracker.Tracker
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	executorURL string,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		executorURL: executorURL,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// App wires the service layer, an in-process execution engine and the
// HTTP surface into one fiber application.
func (a *API) App(ctx context.Context) *fiber.App {
	workflowService := services.NewWorkflow(a.persistence)
	templateService := services.NewTemplate(a.persistence)

	executor := tasktracker.NewHTTPExecutor(a.executorURL)
	a.tracker = tasktracker.NewTracker(executor, a.logger, tasktracker.DefaultConfig())
	a.tracker.Start(ctx)

	eng := engine.NewEngine(a.logger, a.registry, a.tracker, a.persistence, a.eventBus)
	go eng.Pump(ctx, a.tracker.Updates())

	handlers := web.NewAPIHandlers(workflowService, templateService, eng, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Storycut API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)

	// Run control:
	w.Post("/:id/start", handlers.StartWorkflow)
	w.Post("/:id/pause", handlers.PauseWorkflow)
	w.Post("/:id/resume", handlers.ResumeWorkflow)
	w.Post("/:id/cancel", handlers.CancelWorkflow)
	w.Get("/:id/status", handlers.GetWorkflowStatus)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)
	w.Post("/:id/create-template", handlers.CreateTemplateFromWorkflow)

	tpl := app.Group("/templates")
	tpl.Get("/", handlers.GetTemplates)
	tpl.Post("/", handlers.CreateTemplate)
	tpl.Get("/:id", handlers.GetTemplate)
	tpl.Patch("/:id", handlers.UpdateTemplate)
	tpl.Delete("/:id", handlers.DeleteTemplate)
	tpl.Post("/:id/publish", handlers.PublishTemplate)
	tpl.Post("/:templateId/instantiate", handlers.CreateWorkflowFromTemplate)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/node-types", handlers.GetNodeTypes)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App(ctx)

	return app.Listen(":" + strconv.Itoa(port))
}

func (a *API) Shutdown() {
	if a.tracker != nil {
		a.tracker.Stop()
	}
}
