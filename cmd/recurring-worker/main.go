package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"projection/internal/cli"
	"projection/internal/log"
	"projection/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentRecurring)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting recurring-worker")

	// AMQP is optional here: projections are announced to the export worker
	// when a broker is configured.
	be := cli.InitBackend(context.Background(), logger, cfg)

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithDefaultUserID(cfg.DefaultUserID),
	}
	if be.Publisher != nil {
		opts = append(opts, services.WithPublisher(be.Publisher))
	}
	service := services.NewProjectionService(be.Repository, opts...)
	processor := services.NewRecurringProcessor(service, cfg.RecurringHorizonMonths)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	run := func() {
		count, err := processor.ProjectRecurring(ctx)
		if err != nil {
			logger.Error("Recurring projection failed", log.FieldError, err)
			return
		}
		logger.Info("Recurring projection finished", "created", count)
	}

	// Run initial processing on startup
	logger.Info("Running initial recurring projection...")
	run()

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.RecurringSchedule, run); err != nil {
		logger.Error("Invalid recurring schedule", log.FieldError, err, "schedule", cfg.RecurringSchedule)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Recurring projection scheduled",
		"schedule", cfg.RecurringSchedule,
		"horizon_months", cfg.RecurringHorizonMonths)

	cli.WaitForShutdown(ctx, done)

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(10 * time.Second):
		logger.Warn("Timed out waiting for running projection")
	}
	if err := be.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", log.FieldError, err)
	}
	logger.Info("Recurring-worker shutdown complete")
}
