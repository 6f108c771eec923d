package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hiddenbook/otc-watcher/internal/core/config"
	"github.com/hiddenbook/otc-watcher/internal/core/logging"
	"github.com/hiddenbook/otc-watcher/internal/health"
	"github.com/hiddenbook/otc-watcher/internal/infra/ledger"
	redisclient "github.com/hiddenbook/otc-watcher/internal/infra/redis"
	"github.com/hiddenbook/otc-watcher/internal/infra/storage/postgres"
	"github.com/hiddenbook/otc-watcher/internal/ingest"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	migrationsDir := flag.String("migrations", "migrations", "Path to goose migrations")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// No .env is fine; config expansion falls back to the process
		// environment.
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
	log.Info("Logger initialized", "level", level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
	db.StartMetricsCollector(ctx)

	var deadLetter ingest.DeadLetter
	var deadLetterRepo *redisclient.DeadLetterRepo
	checkers := []health.Checker{
		health.CheckFunc{CheckName: "database", Fn: db.Health},
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Error("Failed to init redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		deadLetterRepo = redisclient.NewDeadLetterRepo(redisClient)
		deadLetter = deadLetterRepo
		checkers = append(checkers, health.CheckFunc{CheckName: "redis", Fn: redisClient.Health})
		log.Info("Dead-letter queue enabled", "addr", cfg.Redis.Addr)
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
	checkers = append(checkers, health.CheckFunc{CheckName: "ledger", Fn: client.Health})

	handler := ingest.NewHandler(
		postgres.NewRawEventRepo(db),
		postgres.NewDealRepo(db),
		postgres.NewOfferRepo(db),
		postgres.NewBalanceRepo(db),
		deadLetter,
		log,
	)

	adapter := ingest.NewLiveAdapter(client, cfg.ProgramID(), log)

	healthServer := health.NewServer(cfg.Server.Port, checkers...)
	if deadLetterRepo != nil {
		healthServer.Handle("/dead-letters", deadLetterRepo.InspectHandler())
	}
	go func() {
		if err := healthServer.Start(); err != nil && ctx.Err() == nil {
			log.Error("Health server stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- adapter.Start(ctx, handler.Handle)
	}()

	log.Info("Indexer is running",
		"program", cfg.Ledger.Program,
		"rpc_url", cfg.Ledger.RPCURL,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down...", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("Ingestion stopped", "error", err)
			exitCode = 1
		}
	}

	cancel()
	if err := adapter.Stop(); err != nil {
		log.Error("Error stopping adapter", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping health server", "error", err)
	}

	log.Info("Indexer stopped gracefully")
	os.Exit(exitCode)
}
