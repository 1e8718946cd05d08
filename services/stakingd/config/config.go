package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration to support TOML unmarshalling from human
// readable strings ("30s", "10m").
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for stakingd.
type Config struct {
	ListenAddress string        `toml:"listen"`
	DatabasePath  string        `toml:"database"`
	EventLogPath  string        `toml:"event_log"`
	CursorPath    string        `toml:"cursor"`
	ReportDir     string        `toml:"report_dir"`
	AdminSecret   string        `toml:"admin_secret"`
	RateLimit     RateConfig    `toml:"rate_limit"`
	Custody       CustodyConfig `toml:"custody"`
	Ledger        LedgerConfig  `toml:"ledger"`
	Rewards       RewardsConfig `toml:"rewards"`
	Sweep         SweepConfig   `toml:"sweep"`
}

// RateConfig bounds per-client request throughput on the public endpoints.
type RateConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// CustodyConfig points at the custody service holding staked assets.
type CustodyConfig struct {
	Endpoint     string   `toml:"endpoint"`
	APIKey       string   `toml:"api_key"`
	VaultAccount string   `toml:"vault_account"`
	Timeout      Duration `toml:"timeout"`
}

// LedgerConfig points at the reward ledger that executes transfers.
type LedgerConfig struct {
	Endpoint string   `toml:"endpoint"`
	APIKey   string   `toml:"api_key"`
	Timeout  Duration `toml:"timeout"`
}

// RewardsConfig tunes the accrual schedule.
type RewardsConfig struct {
	WeeklyBaseUnits string            `toml:"weekly_base_units"`
	SecondsPerWeek  uint64            `toml:"seconds_per_week"`
	Multipliers     map[string]uint32 `toml:"multipliers"`
	MaxInFlight     int               `toml:"max_in_flight"`
}

// SweepConfig tunes the reconciliation loop.
type SweepConfig struct {
	Interval           Duration `toml:"interval"`
	BatchSize          int      `toml:"batch_size"`
	IndeterminateAfter Duration `toml:"indeterminate_after"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7085"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/stakingd.sqlite"
	}
	if cfg.EventLogPath == "" {
		cfg.EventLogPath = "/var/data/stakingd-events"
	}
	if cfg.CursorPath == "" {
		cfg.CursorPath = "/var/data/stakingd-cursor.db"
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = "/var/data/stakingd-reports"
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 50
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 100
	}
	if cfg.Custody.VaultAccount == "" {
		cfg.Custody.VaultAccount = "stake-vault"
	}
	if cfg.Custody.Timeout.Duration == 0 {
		cfg.Custody.Timeout.Duration = 10 * time.Second
	}
	if cfg.Ledger.Timeout.Duration == 0 {
		cfg.Ledger.Timeout.Duration = 10 * time.Second
	}
	if cfg.Rewards.MaxInFlight <= 0 {
		cfg.Rewards.MaxInFlight = 32
	}
	if cfg.Sweep.Interval.Duration == 0 {
		cfg.Sweep.Interval.Duration = time.Minute
	}
	if cfg.Sweep.BatchSize <= 0 {
		cfg.Sweep.BatchSize = 100
	}
	if cfg.Sweep.IndeterminateAfter.Duration == 0 {
		cfg.Sweep.IndeterminateAfter.Duration = 10 * time.Minute
	}
}

func validate(cfg Config) error {
	if cfg.Custody.Endpoint == "" {
		return fmt.Errorf("custody endpoint must be configured")
	}
	if cfg.Ledger.Endpoint == "" {
		return fmt.Errorf("ledger endpoint must be configured")
	}
	if cfg.AdminSecret == "" {
		return fmt.Errorf("admin secret must be configured")
	}
	return nil
}
