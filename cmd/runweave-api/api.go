// Package main provides the runweave API server implementation.
package main

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/runweave/runweave/pkg/confirmation"
	"github.com/runweave/runweave/pkg/engine"
	"github.com/runweave/runweave/pkg/eventbus"
	"github.com/runweave/runweave/pkg/eventlog"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/registry"
	"github.com/runweave/runweave/pkg/runs"
	"github.com/runweave/runweave/pkg/supervision"
	"github.com/runweave/runweave/pkg/web"
)

type API struct {
	logger              *slog.Logger
	persistence         persistence.Persistence
	registry            *registry.Registry
	tools               *registry.ToolCatalog
	eventBus            eventbus.EventBus
	tracer              trace.Tracer
	auditDir            string
	confirmationTimeout time.Duration
	validate            *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	tools *registry.ToolCatalog,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	auditDir string,
	confirmationTimeout time.Duration,
) *API {
	return &API{
		logger:              logger,
		persistence:         store,
		registry:            reg,
		tools:               tools,
		eventBus:            bus,
		tracer:              tracer,
		auditDir:            auditDir,
		confirmationTimeout: confirmationTimeout,
		validate:            validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() (*fiber.App, error) {
	log := eventlog.NewLog(a.persistence.EventRepository(), a.logger, a.eventBus)
	runManager := runs.NewManager(a.persistence.RunRepository(), log, a.logger)
	confirmations := confirmation.NewManager(a.persistence.ConfirmationRepository(), log, a.logger, a.confirmationTimeout)

	audit, err := supervision.NewFileAuditSink(a.auditDir)
	if err != nil {
		return nil, err
	}

	gate := supervision.NewGate(supervision.DefaultPolicy(), audit, a.logger)

	eng := engine.NewEngine(runManager, a.persistence.WorkflowRepository(), log,
		confirmations, gate, a.registry, a.tools, a.tracer, a.logger)

	handlers := web.NewAPIHandlers(runManager, eng, log, confirmations, gate,
		a.persistence, a.tools, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Runweave API")
	})

	r := app.Group("/runs")
	r.Post("/", handlers.CreateRun)
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/execute", handlers.StartExecution)
	r.Get("/:id/events", handlers.ReplayEvents)

	w := app.Group("/workflows")
	w.Post("/", handlers.SaveWorkflow)
	w.Get("/:id", handlers.GetWorkflow)

	cf := app.Group("/confirmations")
	cf.Get("/:id", handlers.GetConfirmation)
	cf.Post("/:id/resolve", handlers.ResolveConfirmation)

	app.Get("/health", handlers.HealthCheck)

	return app, nil
}

func (a *API) Start(port int) error {
	app, err := a.App()
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
