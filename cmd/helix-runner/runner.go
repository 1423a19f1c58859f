// Package main provides the helix-runner binary: a single process hosting
// the trigger API, the event dispatcher and the delay scheduler.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/robfig/cron/v3"

	"github.com/helixcrm/automation/pkg/actions/dealstage"
	"github.com/helixcrm/automation/pkg/actions/email"
	"github.com/helixcrm/automation/pkg/actions/proforma"
	"github.com/helixcrm/automation/pkg/actions/stock"
	"github.com/helixcrm/automation/pkg/actions/task"
	"github.com/helixcrm/automation/pkg/actions/webhook"
	"github.com/helixcrm/automation/pkg/eventbus"
	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/registry"
	"github.com/helixcrm/automation/pkg/web"
	"github.com/helixcrm/automation/pkg/workflow"
)

type Runner struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	eventBus     *eventbus.WatermillEventBus
	dispatcher   *workflow.Dispatcher
	scheduler    *workflow.DelayScheduler
	dispatchCron string
	cron         *cron.Cron
}

func NewRunner(
	log *slog.Logger,
	persist persistence.Persistence,
	dispatchCron string,
	batchSize int,
) *Runner {
	bus, _ := eventbus.NewGoChannelEventBus(watermill.NewSlogLogger(log))

	reg := registry.NewRegistry(log)
	reg.Register(email.NewAction(persist.CRM(), log))
	reg.Register(dealstage.NewAction(persist.CRM(), log))
	reg.Register(task.NewAction(persist.CRM(), log))
	reg.Register(webhook.NewAction(log))
	reg.Register(proforma.NewAction(persist.CRM(), log))
	reg.Register(stock.NewAction(persist.CRM(), log))

	executor := workflow.NewExecutor(log, persist, reg, bus)

	return &Runner{
		logger:       log,
		persistence:  persist,
		eventBus:     bus,
		dispatcher:   workflow.NewDispatcher(log, persist, executor, batchSize),
		scheduler:    workflow.NewDelayScheduler(log, persist, executor),
		dispatchCron: dispatchCron,
	}
}

func (r *Runner) App() *fiber.App {
	handlers := web.NewAPIHandlers(r.logger, r.persistence, r.dispatcher, r.scheduler)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Helix Automation Runner")
	})

	app.Post("/run", handlers.Run)
	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start launches the background dispatch schedule and the trigger API, then
// blocks until SIGINT/SIGTERM.
func (r *Runner) Start(ctx context.Context, port int) error {
	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := r.cron.AddFunc(r.dispatchCron, func() {
		if err := r.dispatcher.DispatchPass(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Dispatch pass failed", "error", err)
		}

		if err := r.scheduler.RunDuePass(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Delay pass failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.InfoContext(ctx, "Dispatch schedule started", "cron", r.dispatchCron)

	app := r.App()

	go func() {
		if err := app.Listen(":" + strconv.Itoa(port)); err != nil {
			r.logger.ErrorContext(ctx, "API server stopped", "error", err)
		}
	}()

	r.logger.InfoContext(ctx, "Runner started", "port", port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	r.logger.InfoContext(ctx, "Shutting down runner...")

	<-r.cron.Stop().Done()

	return app.Shutdown()
}

func (r *Runner) Close(ctx context.Context) {
	if err := r.eventBus.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}
}
