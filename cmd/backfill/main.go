package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hiddenbook/otc-watcher/internal/core/config"
	"github.com/hiddenbook/otc-watcher/internal/core/logging"
	"github.com/hiddenbook/otc-watcher/internal/infra/ledger"
	"github.com/hiddenbook/otc-watcher/internal/infra/storage/postgres"
	"github.com/hiddenbook/otc-watcher/internal/ingest"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	migrationsDir := flag.String("migrations", "migrations", "Path to goose migrations")
	limit := flag.Int("limit", 0, "Max signatures to fetch (overrides config)")
	before := flag.String("before", "", "Start paging before this signature (overrides config)")
	batchSize := flag.Int("batch-size", 0, "Transaction fetch batch size (overrides config)")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("info")
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if *isDebug {
		level = "debug"
	}
	log := logging.Setup(level)

	backfillCfg := ingest.BackfillConfig{
		Limit:     cfg.Backfill.Limit,
		Before:    cfg.Backfill.Before,
		BatchSize: cfg.Backfill.BatchSize,
	}
	if *limit > 0 {
		backfillCfg.Limit = *limit
	}
	if *before != "" {
		backfillCfg.Before = *before
	}
	if *batchSize > 0 {
		backfillCfg.BatchSize = *batchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the run on SIGINT/SIGTERM; the adapter stops at the next
	// batch boundary.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Received signal, stopping backfill...", "signal", sig.String())
		cancel()
	}()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Error("Failed to init db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(db, *migrationsDir); err != nil {
		log.Error("Failed to migrate db", "error", err)
		os.Exit(1)
	}

	client, err := ledger.NewClient(ctx, ledger.Config{
		RPCURL:     cfg.Ledger.RPCURL,
		WSURL:      cfg.Ledger.WSURL,
		Program:    cfg.ProgramID(),
		MPCProgram: cfg.MPCProgramID(),
	}, log)
	if err != nil {
		log.Error("Failed to init ledger client", "error", err)
		os.Exit(1)
	}

	handler := ingest.NewHandler(
		postgres.NewRawEventRepo(db),
		postgres.NewDealRepo(db),
		postgres.NewOfferRepo(db),
		postgres.NewBalanceRepo(db),
		nil,
		log,
	)

	adapter := ingest.NewBackfillAdapter(client, cfg.ProgramID(), backfillCfg, log)

	log.Info("Starting backfill",
		"program", cfg.Ledger.Program,
		"limit", backfillCfg.Limit,
		"before", backfillCfg.Before,
		"batch_size", backfillCfg.BatchSize,
	)

	if err := adapter.Start(ctx, handler.Handle); err != nil && ctx.Err() == nil {
		log.Error("Backfill failed", "error", err)
		os.Exit(1)
	}
}
