package config

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v2"
)

// Defaults applied when the file omits a value.
const (
	defaultPort              = 8080
	defaultCrankIntervalMS   = 10000
	defaultCrankBatchSize    = 10
	defaultFinalizeTimeoutMS = 90000
	defaultBackfillLimit     = 1000
	defaultBackfillBatchSize = 100

	// minCrankIntervalMS is the lower bound on the poll interval;
	// anything tighter hammers the store and the ledger for no gain.
	minCrankIntervalMS = 1000
)

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded, so secrets can stay out of it.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Cranker.IntervalMS == 0 {
		cfg.Cranker.IntervalMS = defaultCrankIntervalMS
	}
	if cfg.Cranker.BatchSize == 0 {
		cfg.Cranker.BatchSize = defaultCrankBatchSize
	}
	if cfg.Cranker.FinalizeTimeoutMS == 0 {
		cfg.Cranker.FinalizeTimeoutMS = defaultFinalizeTimeoutMS
	}
	if cfg.Backfill.Limit == 0 {
		cfg.Backfill.Limit = defaultBackfillLimit
	}
	if cfg.Backfill.BatchSize == 0 {
		cfg.Backfill.BatchSize = defaultBackfillBatchSize
	}
}

// Validate checks the invariants every process relies on. Violations
// are startup-time fatal.
func (cfg *AppConfig) Validate() error {
	if cfg.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	if cfg.Ledger.WSURL == "" {
		return fmt.Errorf("ledger.ws_url is required")
	}
	if cfg.Ledger.Program == "" {
		return fmt.Errorf("ledger.program is required")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.Ledger.Program); err != nil {
		return fmt.Errorf("invalid ledger.program %q: %w", cfg.Ledger.Program, err)
	}
	if cfg.Ledger.MPCProgram != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.Ledger.MPCProgram); err != nil {
			return fmt.Errorf("invalid ledger.mpc_program %q: %w", cfg.Ledger.MPCProgram, err)
		}
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}
	if cfg.Cranker.IntervalMS < minCrankIntervalMS {
		return fmt.Errorf("cranker.interval_ms must be >= %d, got %d", minCrankIntervalMS, cfg.Cranker.IntervalMS)
	}
	if cfg.Cranker.BatchSize < 1 {
		return fmt.Errorf("cranker.batch_size must be >= 1, got %d", cfg.Cranker.BatchSize)
	}
	if cfg.Backfill.Limit < 1 {
		return fmt.Errorf("backfill.limit must be >= 1, got %d", cfg.Backfill.Limit)
	}
	if cfg.Backfill.BatchSize < 1 {
		return fmt.Errorf("backfill.batch_size must be >= 1, got %d", cfg.Backfill.BatchSize)
	}
	return nil
}

// ProgramID returns the parsed target program identity. Call after
// Validate.
func (cfg *AppConfig) ProgramID() solana.PublicKey {
	pk, _ := solana.PublicKeyFromBase58(cfg.Ledger.Program)
	return pk
}

// MPCProgramID returns the parsed MPC network program identity, or the
// zero key when unset.
func (cfg *AppConfig) MPCProgramID() solana.PublicKey {
	if cfg.Ledger.MPCProgram == "" {
		return solana.PublicKey{}
	}
	pk, _ := solana.PublicKeyFromBase58(cfg.Ledger.MPCProgram)
	return pk
}
