package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"

	"github.com/hiddenbook/otc-watcher/internal/core/config"
	"github.com/hiddenbook/otc-watcher/internal/core/logging"
	"github.com/hiddenbook/otc-watcher/internal/crank"
	"github.com/hiddenbook/otc-watcher/internal/health"
	"github.com/hiddenbook/otc-watcher/internal/infra/ledger"
	"github.com/hiddenbook/otc-watcher/internal/infra/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
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

	if cfg.Cranker.PayerKeyPath == "" {
		log.Error("cranker.payer_key_path is required")
		os.Exit(1)
	}
	payer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.Cranker.PayerKeyPath)
	if err != nil {
		log.Error("Failed to load payer key", "path", cfg.Cranker.PayerKeyPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Error("Failed to init db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.StartMetricsCollector(ctx)

	client, err := ledger.NewClient(ctx, ledger.Config{
		RPCURL:          cfg.Ledger.RPCURL,
		WSURL:           cfg.Ledger.WSURL,
		Program:         cfg.ProgramID(),
		MPCProgram:      cfg.MPCProgramID(),
		ClusterOffset:   cfg.Ledger.ClusterOffset,
		Payer:           payer,
		FinalizeTimeout: cfg.Cranker.FinalizeTimeout(),
	}, log)
	if err != nil {
		log.Error("Failed to init ledger client", "error", err)
		os.Exit(1)
	}

	loop := crank.NewLoop(
		postgres.NewDealRepo(db),
		postgres.NewOfferRepo(db),
		crank.NewLedgerExecutor(client, log),
		crank.LoopConfig{
			Interval:  cfg.Cranker.Interval(),
			BatchSize: cfg.Cranker.BatchSize,
		},
		log,
	)

	healthServer := health.NewServer(cfg.Server.Port,
		health.CheckFunc{CheckName: "database", Fn: db.Health},
		health.CheckFunc{CheckName: "ledger", Fn: client.Health},
	)
	go func() {
		if err := healthServer.Start(); err != nil && ctx.Err() == nil {
			log.Error("Health server stopped", "error", err)
		}
	}()

	log.Info("Cranker starting",
		"program", cfg.Ledger.Program,
		"payer", payer.PublicKey().String(),
		"interval", cfg.Cranker.Interval().String(),
		"batch_size", cfg.Cranker.BatchSize,
	)

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal, shutting down...", "signal", sig.String())

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping health server", "error", err)
	}

	log.Info("Cranker stopped gracefully")
}
