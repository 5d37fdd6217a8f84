package main

import (
	"context"
	"errors"
	"os"
	"time"

	"projection/internal/amqp"
	"projection/internal/cli"
	"projection/internal/log"
	"projection/internal/services"
	gsheet "projection/internal/sheets/google"
	"projection/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting projection-worker")

	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Export configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	// The worker reads straight from storage and never publishes, so the
	// backend is opened without AMQP and the board is never cached.
	noEvents := *cfg
	noEvents.AMQPURL = ""
	be := cli.InitBackend(context.Background(), logger, &noEvents)
	service := services.NewProjectionService(be.Repository,
		services.WithLogger(logger),
		services.WithDefaultUserID(cfg.DefaultUserID))

	exporter, err := gsheet.NewExporter(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	exportWorker := worker.NewExportWorker(service, exporter, cfg.BoardMonthsBack, cfg.BoardMonthsForward, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	// Export once on startup so the sheet reflects changes made while the
	// worker was down.
	logger.Info("Performing startup export...")
	if err := exportWorker.Export(ctx); err != nil {
		logger.Error("Startup export failed", log.FieldError, err)
	}

	go func() {
		if err := amqpClient.ConsumeTransactionEvents(ctx, exportWorker.HandleTransactionEvent); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Event consumption failed", log.FieldError, err)
			}
		}
	}()

	go exportWorker.RunPeriodic(ctx, cfg.ExportInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Projection-worker stopped", "last_export", exportWorker.LastExport())
}
