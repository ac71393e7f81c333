// Command bilancio-worker consumes ledger events from the queue and
// appends statement rows to the configured export target. With a
// spreadsheet configured rows land in Google Sheets; without one the
// worker keeps them in memory, which is only useful for local runs.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/export"
	"bilancio/internal/export/google"
	"bilancio/internal/export/memory"
	"bilancio/internal/log"
	"bilancio/internal/storage"
	"bilancio/internal/worker"
)

func main() {
	godotenv.Load()

	logger := log.New(log.Config{Level: slog.LevelInfo, Component: log.ComponentWorker})
	slog.SetDefault(logger.Logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", log.FieldError, err)
		os.Exit(1)
	}
	defer repo.Close()

	var writer export.StatementWriter
	if cfg.GoogleSpreadsheetID != "" {
		sheets, err := google.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to create sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = sheets
		logger.Info("Exporting to Google Sheets",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.LedgerSheetName)
	} else {
		writer = memory.NewWriter()
		logger.Warn("No spreadsheet configured, exported rows stay in memory")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	exporter := worker.NewExportWorker(repo, writer)

	logger.Info("Export worker started", "queue", cfg.AMQPQueue)
	if err := client.ConsumeWithReconnect(ctx, exporter.HandleEnvelope); err != nil && ctx.Err() == nil {
		logger.Error("Consumer stopped", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Export worker stopped")
}
