// Package main provides the orchon engine binary: REST API, cron
// scheduler, dispatcher and executor in one process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/orchonhq/orchon/pkg/dispatcher"
	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/executor"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/registry"
	"github.com/orchonhq/orchon/pkg/scheduler"
	"github.com/orchonhq/orchon/pkg/services"
	"github.com/orchonhq/orchon/pkg/sources/queue"
	"github.com/orchonhq/orchon/pkg/web"
)

const shutdownTimeout = 30 * time.Second

type Engine struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate

	executor   *executor.Executor
	scheduler  *scheduler.Scheduler
	dispatcher *dispatcher.Dispatcher
	source     *queue.Source
}

type EngineConfig struct {
	Workers      int
	TickInterval time.Duration

	// EventQueue names a Redis list to consume external events from.
	// Empty disables the queue source.
	EventQueue string
	RedisAddr  string
}

func NewEngine(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	config EngineConfig,
) *Engine {
	exec := executor.NewExecutor(p, eventBus, reg, config.Workers)

	engine := &Engine{
		logger:      logger,
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		executor:    exec,
		scheduler:   scheduler.NewScheduler(p, eventBus, scheduler.WithTickInterval(config.TickInterval)),
		dispatcher:  dispatcher.NewDispatcher(p, eventBus, exec),
	}

	if config.EventQueue != "" {
		source, err := queue.NewSource(map[string]any{
			"queue":      config.EventQueue,
			"connection": map[string]any{"addr": config.RedisAddr},
		}, eventBus, logger)
		if err != nil {
			logger.Error("Invalid queue source configuration", "error", err)
		} else {
			engine.source = source
		}
	}

	return engine
}

func (e *Engine) App() *fiber.App {
	workflowService := services.NewWorkflow(e.persistence, e.registry, e.executor)
	instanceService := services.NewInstance(e.persistence, e.executor)
	taskService := services.NewTask(e.persistence, e.registry)

	handlers := web.NewAPIHandlers(workflowService, instanceService, taskService, e.validate, e.registry, e.eventBus)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Orchon Engine")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

// Start runs the engine until ctx is cancelled, then drains in-flight
// work before returning.
func (e *Engine) Start(ctx context.Context, port int) error {
	if err := e.dispatcher.Start(ctx); err != nil {
		return err
	}

	go func() {
		if err := e.scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("Scheduler stopped unexpectedly", "error", err)
		}
	}()

	if e.source != nil {
		if err := e.source.Start(ctx); err != nil {
			e.logger.ErrorContext(ctx, "Queue source failed to start", "error", err)
		}
	}

	app := e.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	e.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		e.logger.Error("HTTP server shutdown failed", "error", err)
	}

	if e.source != nil {
		if err := e.source.Stop(shutdownCtx); err != nil {
			e.logger.Error("Queue source shutdown failed", "error", err)
		}
	}

	if err := e.executor.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("Executor drain failed", "error", err)
	}

	return nil
}
