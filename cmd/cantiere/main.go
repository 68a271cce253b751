package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cantiere/internal/amqp"
	"cantiere/internal/auth"
	"cantiere/internal/config"
	"cantiere/internal/docstore"
	ddrive "cantiere/internal/docstore/drive"
	dmem "cantiere/internal/docstore/memory"
	apphttp "cantiere/internal/http"
	"cantiere/internal/ledger"
	lgoogle "cantiere/internal/ledger/google"
	lmem "cantiere/internal/ledger/memory"
	applog "cantiere/internal/log"
	"cantiere/internal/services"
	"cantiere/internal/storage"
)

func main() {
	// Load .env for local development; production sets real env vars.
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ledgerClient := buildLedgerClient(cfg, logger)

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Event feed unavailable, continuing without it", "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("Event feed connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	lifecycle := services.NewLifecycleManager(repo, ledgerClient, events)
	ventures := services.NewVentureService(repo, ledgerClient)
	engine := services.NewAggregationEngine(repo)

	opts := apphttp.DefaultOptions()
	opts.DashboardCacheTTL = cfg.DashboardCacheTTL
	opts.Docs = buildDocStore(cfg, logger)
	srv := apphttp.NewServer(":"+cfg.Port, auth.NewVerifier(cfg.JWTSecret), lifecycle, ventures, engine, opts)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting cantiere server",
		"port", cfg.Port,
		"ledger_backend", cfg.LedgerBackend,
		"events_enabled", events != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

// buildDocStore selects the attachment store. A nil return disables
// inline uploads; expenses can still carry externally produced
// attachment references.
func buildDocStore(cfg *config.Config, logger *applog.Logger) docstore.Store {
	switch cfg.DocstoreBackend {
	case "drive":
		store, err := ddrive.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Drive attachment store", "error", err)
			os.Exit(1)
		}
		logger.Info("Drive attachment store initialized")
		return store
	case "memory":
		logger.Info("In-memory attachment store initialized")
		return dmem.New()
	default:
		logger.Info("Attachment uploads disabled")
		return nil
	}
}

// buildLedgerClient selects the ledger backend and wraps it with the
// configured retry policy. A nil return disables mirroring entirely.
func buildLedgerClient(cfg *config.Config, logger *applog.Logger) ledger.Client {
	var inner ledger.Client
	switch cfg.LedgerBackend {
	case "google":
		client, err := lgoogle.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google ledger client", "error", err)
			os.Exit(1)
		}
		inner = client
		logger.Info("Google ledger backend initialized")
	case "memory":
		inner = lmem.New()
		logger.Info("In-memory ledger backend initialized")
	default:
		logger.Info("Ledger mirroring disabled")
		return nil
	}

	policies := ledger.DefaultPolicies()
	policies.Create = ledger.Policy{MaxAttempts: cfg.LedgerMaxAttempts, Delay: cfg.LedgerCreateDelay}
	policies.Append = ledger.Policy{MaxAttempts: cfg.LedgerMaxAttempts, Delay: 0}
	policies.Update = ledger.Policy{MaxAttempts: cfg.LedgerMaxAttempts, Delay: cfg.LedgerUpdateDelay}
	policies.Delete = ledger.Policy{MaxAttempts: cfg.LedgerMaxAttempts, Delay: cfg.LedgerUpdateDelay}
	return ledger.WithRetry(inner, policies)
}
