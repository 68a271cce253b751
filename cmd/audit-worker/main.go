// Command audit-worker consumes the expense event feed and appends each
// event to the audit log table.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cantiere/internal/amqp"
	"cantiere/internal/config"
	applog "cantiere/internal/log"
	"cantiere/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logCfg := applog.DefaultConfig()
	logCfg.Component = applog.ComponentAudit
	logger := applog.New(logCfg)
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL must be set for the audit worker")
		os.Exit(1)
	}

	repo, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to event feed", "error", err, "url", cfg.AMQPURL)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info("Audit worker started", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	handler := func(msg *amqp.ExpenseEventMessage) error {
		entry := storage.AuditEntry{
			ExpenseID:  msg.ExpenseID,
			VentureID:  msg.VentureID,
			Operation:  msg.Operation,
			Actor:      msg.Actor,
			Detail:     msg.Detail,
			OccurredAt: msg.Timestamp,
		}
		if entry.OccurredAt.IsZero() {
			entry.OccurredAt = time.Now().UTC()
		}
		if err := repo.AppendAudit(ctx, entry); err != nil {
			logger.Error("Failed to append audit entry",
				"expense_id", msg.ExpenseID, "operation", msg.Operation, "error", err)
			return err
		}
		logger.Info("Audit entry recorded",
			"expense_id", msg.ExpenseID, "operation", msg.Operation, "actor", msg.Actor)
		return nil
	}

	if err := client.ConsumeExpenseEvents(ctx, handler); err != nil && ctx.Err() == nil {
		logger.Error("Consumer stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("Audit worker stopped gracefully")
}
