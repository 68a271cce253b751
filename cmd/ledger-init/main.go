// Command ledger-init provisions an external ledger for a venture that
// has none, for example after a create-time provisioning failure.
//
// Usage: ledger-init -venture <venture-id>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"cantiere/internal/config"
	"cantiere/internal/ledger"
	lgoogle "cantiere/internal/ledger/google"
	lmem "cantiere/internal/ledger/memory"
	applog "cantiere/internal/log"
	"cantiere/internal/services"
	"cantiere/internal/storage"
)

func main() {
	_ = godotenv.Load()

	ventureID := flag.String("venture", "", "venture id to provision a ledger for")
	flag.Parse()
	if *ventureID == "" {
		fmt.Fprintln(os.Stderr, "usage: ledger-init -venture <venture-id>")
		os.Exit(2)
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var client ledger.Client
	switch cfg.LedgerBackend {
	case "google":
		client, err = lgoogle.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google ledger client", "error", err)
			os.Exit(1)
		}
	case "memory":
		client = lmem.New()
	default:
		logger.Error("LEDGER_BACKEND must be set to provision a ledger")
		os.Exit(1)
	}
	client = ledger.WithRetry(client, ledger.DefaultPolicies())

	svc := services.NewVentureService(repo, client)
	v, err := svc.ProvisionLedger(ctx, *ventureID)
	if err != nil {
		logger.Error("Ledger provisioning failed", "venture_id", *ventureID, "error", err)
		os.Exit(1)
	}

	logger.Info("Ledger provisioned", "venture_id", v.ID, "ledger_id", v.LedgerID)
	fmt.Println(v.LedgerID)
}
