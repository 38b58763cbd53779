package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/orchonhq/orchon/pkg/cmd"
	"github.com/orchonhq/orchon/pkg/executor"
	"github.com/orchonhq/orchon/pkg/log"
	"github.com/orchonhq/orchon/pkg/otelhelper"
	"github.com/orchonhq/orchon/pkg/scheduler"
)

const defaultPort = 9090

func main() {
	command := &cli.Command{
		Name:                  "orchon",
		Usage:                 "Run the workflow automation engine",
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
				Usage:    "Database connection URL for persistence (e.g. file://./data)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Maximum concurrent workflow instance runs",
				Value:   executor.DefaultWorkers,
				Sources: cli.EnvVars("ORCHON_WORKERS"),
			},
			&cli.DurationFlag{
				Name:    "tick-interval",
				Usage:   "Scheduler poll interval",
				Value:   scheduler.DefaultTickInterval,
				Sources: cli.EnvVars("ORCHON_TICK_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "event-queue",
				Usage:   "Redis list to consume external events from (empty disables)",
				Sources: cli.EnvVars("ORCHON_EVENT_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the event queue source",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("ORCHON_TRACING"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("engine")
	logger.InfoContext(ctx, "Initializing Orchon engine")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if command.Bool("tracing") {
		if _, err := otelhelper.NewTracer(ctx, "orchon"); err != nil {
			logger.WarnContext(ctx, "Tracing disabled: exporter setup failed", "error", err)
		}
	}

	registry := cmd.NewRegistry(logger)
	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	persistence := cmd.NewPersistence(command.String("database-url"))

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := persistence.Close(closeCtx); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	engine := NewEngine(logger, persistence, registry, eventBus, EngineConfig{
		Workers:      command.Int("workers"),
		TickInterval: command.Duration("tick-interval"),
		EventQueue:   command.String("event-queue"),
		RedisAddr:    command.String("redis-addr"),
	})

	return engine.Start(ctx, command.Int("port"))
}
