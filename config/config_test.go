package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
fundingflow:
  name: fundingflow
  version: 1.0.0
assets:
  supported: [BTC, ETH]
source:
  binance:
    enabled: true
    premium_index_url: https://fapi.binance.com/fapi/v1/premiumIndex
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.TTL.Std() != 30*time.Second {
		t.Fatalf("expected 30s cache ttl default, got %v", cfg.Cache.TTL.Std())
	}
	if cfg.Fetcher.Timeout.Std() != 10*time.Second {
		t.Fatalf("expected 10s fetch timeout default, got %v", cfg.Fetcher.Timeout.Std())
	}
	if cfg.Assets.Quote != "USDT" {
		t.Fatalf("expected USDT quote default, got %q", cfg.Assets.Quote)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080 addr default, got %q", cfg.Server.Addr)
	}
}

func TestLoadConfigDurationStrings(t *testing.T) {
	yml := validYAML + `
cache:
  ttl: 45s
fetcher:
  timeout: 2500ms
`
	cfg, err := LoadConfig(writeConfig(t, yml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Cache.TTL.Std() != 45*time.Second {
		t.Fatalf("expected 45s ttl, got %v", cfg.Cache.TTL.Std())
	}
	if cfg.Fetcher.Timeout.Std() != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s timeout, got %v", cfg.Fetcher.Timeout.Std())
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	yml := `
fundingflow:
  version: 1.0.0
assets:
  supported: [BTC]
source:
  bybit:
    enabled: true
    tickers_url: https://api.bybit.com/v5/market/tickers
`
	if _, err := LoadConfig(writeConfig(t, yml)); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}

func TestLoadConfigNoSources(t *testing.T) {
	yml := `
fundingflow:
  name: fundingflow
  version: 1.0.0
assets:
  supported: [BTC]
`
	if _, err := LoadConfig(writeConfig(t, yml)); err == nil {
		t.Fatalf("expected validation error when no source is enabled")
	}
}

func TestLoadConfigEnabledSourceNeedsURL(t *testing.T) {
	yml := `
fundingflow:
  name: fundingflow
  version: 1.0.0
assets:
  supported: [BTC]
source:
  kucoin:
    enabled: true
    contracts_url: https://api-futures.kucoin.com/api/v1/contracts/active
`
	if _, err := LoadConfig(writeConfig(t, yml)); err == nil {
		t.Fatalf("expected validation error for missing kucoin funding url")
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if env := AppEnvironment(); env != EnvironmentProduction {
		t.Fatalf("expected production, got %q", env)
	}
	t.Setenv("APP_ENV", "")
	if env := AppEnvironment(); env != EnvironmentDevelopment {
		t.Fatalf("expected development default, got %q", env)
	}
	if !IsProductionLike(EnvironmentStaging) {
		t.Fatalf("staging should be production-like")
	}
}
