package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "tothemoon-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.LogFormat != "json" || cfg.App.LogLevel != "debug" {
		t.Fatalf("unexpected logging settings: %+v", cfg.App)
	}
	if len(cfg.Exchange.Symbols) != 2 || cfg.Exchange.Symbols[1] != "ETH/USDT" {
		t.Fatalf("unexpected symbols %+v", cfg.Exchange.Symbols)
	}
	if cfg.Exchange.Provider != "stub" {
		t.Fatalf("unexpected provider: %s", cfg.Exchange.Provider)
	}
	if cfg.PollInterval() != 750*time.Millisecond {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Fatalf("expected default request timeout, got %s", cfg.RequestTimeout())
	}
	if cfg.Strategy.Mode != "and" {
		t.Fatalf("unexpected strategy mode: %s", cfg.Strategy.Mode)
	}
	if cfg.Strategy.Params.RSIPeriod != 14 || cfg.Strategy.Params.BBPeriod != 20 {
		t.Fatalf("expected rsi override with default bb period, got %+v", cfg.Strategy.Params)
	}
	if cfg.Strategy.Params.SignalThreshold != 3 {
		t.Fatalf("unexpected signal threshold: %d", cfg.Strategy.Params.SignalThreshold)
	}
	if cfg.Paper.StartingCash != 5000 || cfg.Paper.TradingFee != 0.001 || cfg.Paper.InvestmentSplit != 10 {
		t.Fatalf("unexpected paper settings: %+v", cfg.Paper)
	}
	if cfg.Risk.MaxNotionalPerTrade != 250 || cfg.Risk.MinNotionalPerTrade != 1 {
		t.Fatalf("unexpected risk settings: %+v", cfg.Risk)
	}
	if cfg.Ledger.Dir != "out" || cfg.Ledger.File != "results.csv" || cfg.Ledger.Recent != 20 {
		t.Fatalf("unexpected ledger settings: %+v", cfg.Ledger)
	}
	if cfg.Bootstrap.Source != "csv" || !cfg.Bootstrap.Refresh || cfg.Bootstrap.Dir != "gold" {
		t.Fatalf("unexpected bootstrap settings: %+v", cfg.Bootstrap)
	}
	if cfg.HistoryInterval() != time.Minute {
		t.Fatalf("unexpected history interval: %s", cfg.HistoryInterval())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	if cfg.Exchange.Provider != "binance" || cfg.PollInterval() != 10*time.Second {
		t.Fatalf("expected defaults, got %+v", cfg.Exchange)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "invalid.yaml")); err == nil {
		t.Fatalf("expected validation error for unknown provider")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"PROVIDER", "BINANCE_WS")
	t.Setenv(EnvPrefix+"SYMBOLS", "solusdt, adausdt")
	t.Setenv(EnvPrefix+"POLL_INTERVAL_MS", "2500")
	t.Setenv(EnvPrefix+"STARTING_CASH", "42")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Exchange.Provider != "binance_ws" {
		t.Fatalf("expected provider override, got %s", cfg.Exchange.Provider)
	}
	if len(cfg.Exchange.Symbols) != 2 || cfg.Exchange.Symbols[0] != "solusdt" {
		t.Fatalf("expected symbol override, got %v", cfg.Exchange.Symbols)
	}
	if cfg.PollInterval() != 2500*time.Millisecond || cfg.Paper.StartingCash != 42 {
		t.Fatalf("expected numeric overrides, got %s / %.2f", cfg.PollInterval(), cfg.Paper.StartingCash)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Exchange.Symbols = []string{"BTCUSDT"}
	cfg.Paper.StartingCash = 250
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Paper.StartingCash != 250 || len(loaded.Exchange.Symbols) != 1 {
		t.Fatalf("round trip lost data: %+v", loaded)
	}
	if err := Save(path, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
