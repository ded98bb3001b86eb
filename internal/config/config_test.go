package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Orchestrator.MaxRounds != 6 || cfg.Orchestrator.CapabilityTimeout != time.Minute {
		t.Errorf("unexpected orchestrator defaults %+v", cfg.Orchestrator)
	}
	if cfg.Cache.Backend != "sqlite" || cfg.Retrieval.K != 3 || cfg.Market.Limit != 50 {
		t.Errorf("unexpected defaults %+v %+v %+v", cfg.Cache, cfg.Retrieval, cfg.Market)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agrisage.yaml")
	yaml := `
server:
  address: ":9000"
orchestrator:
  max_rounds: 3
  capability_timeout: 15s
cache:
  backend: file
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGRISAGE_SERVER_ADDRESS", ":9100")
	t.Setenv("OPENWEATHER_API_KEY", "owm-key")
	t.Setenv("AGRISAGE_MARKET_API_KEY", "gov-key")
	t.Setenv("DATA_GOV_API_KEY", "legacy-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9100" {
		t.Errorf("env must override file, got %q", cfg.Server.Address)
	}
	if cfg.Orchestrator.MaxRounds != 3 || cfg.Orchestrator.CapabilityTimeout != 15*time.Second {
		t.Errorf("unexpected orchestrator %+v", cfg.Orchestrator)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("unexpected cache backend %q", cfg.Cache.Backend)
	}
	if cfg.Weather.APIKey != "owm-key" {
		t.Errorf("legacy alias not applied, got %q", cfg.Weather.APIKey)
	}
	if cfg.Market.APIKey != "gov-key" {
		t.Errorf("prefixed variable must win over the alias, got %q", cfg.Market.APIKey)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("AGRISAGE_CACHE_BACKEND", "leveldb")
	t.Setenv("AGRISAGE_ORCHESTRATOR_MAX_ROUNDS", "0")
	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "cache.backend") || !strings.Contains(err.Error(), "max_rounds") {
		t.Errorf("unexpected error %v", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
