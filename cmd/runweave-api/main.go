package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/runweave/runweave/pkg/cmd"
	"github.com/runweave/runweave/pkg/log"
	"github.com/runweave/runweave/pkg/otelhelper"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/registry"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "runweave-api",
		Usage:                 "Create, execute and follow workflow runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "confirmation-store",
				Usage:   "External confirmation store URL (redis://host:port); empty keeps confirmations in the database",
				Sources: cli.EnvVars("CONFIRMATION_STORE"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus transport (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "audit-dir",
				Usage:   "Directory for the supervision audit trail",
				Value:   "./audit",
				Sources: cli.EnvVars("AUDIT_DIR"),
			},
			&cli.DurationFlag{
				Name:    "confirmation-timeout",
				Usage:   "How long a confirmation request may stay pending",
				Value:   5 * time.Minute,
				Sources: cli.EnvVars("CONFIRMATION_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Runweave API")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			confirmations, err := cmd.NewConfirmationStore(ctx, logger, command.String("confirmation-store"))
			if err != nil {
				return err
			}

			if confirmations != nil {
				store = persistence.WithConfirmationStore(store, confirmations)
			}

			bus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var tracer trace.Tracer

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "runweave-api")
				if err != nil {
					return err
				}
			}

			tools := registry.NewToolCatalog()
			reg := cmd.NewRegistry(logger, tools, tools)

			api := NewAPI(
				logger,
				store,
				reg,
				tools,
				bus,
				tracer,
				command.String("audit-dir"),
				command.Duration("confirmation-timeout"),
			)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
