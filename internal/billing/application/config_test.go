package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BILLING_CONFIG", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxParallelCustomers != 8 || cfg.BillNumberPrefix != "FACT" || cfg.Relay.Exchange != "billing_events" {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billing.yaml")
	data := []byte("max_parallel_customers: 2\nbill_number_prefix: FAC\nsurcharge_cache_ttl: 1m\nrelay:\n  schedule: \"@every 10s\"\n  exchange: care\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BILLING_CONFIG", path)
	t.Setenv("BILLING_EXCHANGE", "care_events")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxParallelCustomers != 2 || cfg.BillNumberPrefix != "FAC" || cfg.SurchargeCacheTTL != time.Minute {
		t.Fatalf("yaml values mismatch: %+v", cfg)
	}
	if cfg.Relay.Schedule != "@every 10s" || cfg.Relay.Exchange != "care_events" || cfg.Relay.BatchSize != 50 {
		t.Fatalf("relay values mismatch: %+v", cfg.Relay)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Relay.Exchange = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected exchange error")
	}
}

func TestConfigLocation(t *testing.T) {
	t.Setenv("BILLING_CONFIG", "")
	t.Setenv("BILLING_TIMEZONE", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Paris" {
		t.Fatalf("expected Europe/Paris, got %v %v", loc, err)
	}

	t.Setenv("BILLING_TIMEZONE", "Pacific/Noumea")
	if cfg, err = LoadConfig(); err != nil || cfg.Timezone != "Pacific/Noumea" {
		t.Fatalf("env timezone mismatch: %+v %v", cfg, err)
	}

	t.Setenv("BILLING_TIMEZONE", "Nowhere/Atlantis")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected unknown timezone error")
	}

	if loc, err := (Config{}).Location(); err != nil || loc != time.UTC {
		t.Fatalf("expected UTC for empty timezone, got %v %v", loc, err)
	}
}
