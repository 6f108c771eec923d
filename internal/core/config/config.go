package config

import (
	"time"

	redisclient "github.com/hiddenbook/otc-watcher/internal/infra/redis"
	"github.com/hiddenbook/otc-watcher/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration shared by the
// indexer, backfill, and cranker processes.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Ledger   LedgerConfig       `yaml:"ledger"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Cranker  CrankerConfig      `yaml:"cranker"`
	Backfill BackfillConfig     `yaml:"backfill"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LedgerConfig holds ledger endpoints and program identities.
type LedgerConfig struct {
	RPCURL        string `yaml:"rpc_url"`
	WSURL         string `yaml:"ws_url"`
	Program       string `yaml:"program"`
	MPCProgram    string `yaml:"mpc_program"`
	ClusterOffset uint32 `yaml:"cluster_offset"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// CrankerConfig holds the crank process settings.
type CrankerConfig struct {
	IntervalMS        int    `yaml:"interval_ms"`
	BatchSize         int    `yaml:"batch_size"`
	PayerKeyPath      string `yaml:"payer_key_path"`
	FinalizeTimeoutMS int    `yaml:"finalize_timeout_ms"`
}

// Interval returns the poll interval as a duration.
func (c CrankerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// FinalizeTimeout returns the finalization bound as a duration.
func (c CrankerConfig) FinalizeTimeout() time.Duration {
	return time.Duration(c.FinalizeTimeoutMS) * time.Millisecond
}

// BackfillConfig holds the bounded backfill run parameters. Limit and
// BatchSize can be overridden by flags.
type BackfillConfig struct {
	Limit     int    `yaml:"limit"`
	Before    string `yaml:"before"`
	BatchSize int    `yaml:"batch_size"`
}
