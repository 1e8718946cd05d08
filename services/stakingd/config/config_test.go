package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg := loadConfig(t, `
admin_secret = "hunter2"

[custody]
endpoint = "http://custody.local"

[ledger]
endpoint = "http://ledger.local"
`)
	if cfg.ListenAddress != ":7085" {
		t.Fatalf("unexpected listen address: %s", cfg.ListenAddress)
	}
	if cfg.Custody.VaultAccount != "stake-vault" {
		t.Fatalf("unexpected vault account: %s", cfg.Custody.VaultAccount)
	}
	if cfg.Sweep.Interval.Duration != time.Minute {
		t.Fatalf("unexpected sweep interval: %s", cfg.Sweep.Interval)
	}
	if cfg.Sweep.IndeterminateAfter.Duration != 10*time.Minute {
		t.Fatalf("unexpected indeterminate window: %s", cfg.Sweep.IndeterminateAfter)
	}
	if cfg.Rewards.MaxInFlight != 32 {
		t.Fatalf("unexpected max in flight: %d", cfg.Rewards.MaxInFlight)
	}
	if cfg.RateLimit.RequestsPerSecond != 50 || cfg.RateLimit.Burst != 100 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestLoadParsesDurationsAndMultipliers(t *testing.T) {
	cfg := loadConfig(t, `
listen = ":9000"
admin_secret = "hunter2"

[custody]
endpoint = "http://custody.local"
timeout = "5s"

[ledger]
endpoint = "http://ledger.local"

[rewards]
weekly_base_units = "10000000000"
seconds_per_week = 604800
max_in_flight = 8

[rewards.multipliers]
common = 100
rare = 150
epic = 200
legendary = 300

[sweep]
interval = "90s"
batch_size = 50
indeterminate_after = "15m"
`)
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen address: %s", cfg.ListenAddress)
	}
	if cfg.Custody.Timeout.Duration != 5*time.Second {
		t.Fatalf("unexpected custody timeout: %s", cfg.Custody.Timeout)
	}
	if cfg.Sweep.Interval.Duration != 90*time.Second {
		t.Fatalf("unexpected sweep interval: %s", cfg.Sweep.Interval)
	}
	if cfg.Sweep.IndeterminateAfter.Duration != 15*time.Minute {
		t.Fatalf("unexpected indeterminate window: %s", cfg.Sweep.IndeterminateAfter)
	}
	if cfg.Rewards.Multipliers["legendary"] != 300 {
		t.Fatalf("unexpected multipliers: %+v", cfg.Rewards.Multipliers)
	}
	if cfg.Rewards.MaxInFlight != 8 {
		t.Fatalf("unexpected max in flight: %d", cfg.Rewards.MaxInFlight)
	}
}

func TestLoadRejectsMissingEndpoints(t *testing.T) {
	path := writeConfig(t, `
admin_secret = "hunter2"

[ledger]
endpoint = "http://ledger.local"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected missing custody endpoint to be rejected")
	}
}

func TestLoadRejectsMissingAdminSecret(t *testing.T) {
	path := writeConfig(t, `
[custody]
endpoint = "http://custody.local"

[ledger]
endpoint = "http://ledger.local"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected missing admin secret to be rejected")
	}
}

func loadConfig(t *testing.T, body string) Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stakingd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
