// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "TOTHEMOON_"

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name" validate:"required"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	HealthAddr  string `yaml:"health_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format" validate:"omitempty,oneof=json console"`
}

// Exchange describes where market data comes from.
type Exchange struct {
	Provider         string   `yaml:"provider" validate:"oneof=stub binance binance_ws"`
	BaseURL          string   `yaml:"base_url" validate:"omitempty,url"`
	WSURL            string   `yaml:"ws_url" validate:"omitempty,url"`
	Symbols          []string `yaml:"symbols"`
	PollIntervalMs   int      `yaml:"poll_interval_ms" validate:"gt=0"`
	RequestTimeoutMs int      `yaml:"request_timeout_ms" validate:"gt=0"`
	KlineLimit       int      `yaml:"kline_limit" validate:"gte=0,lte=1000"`
}

// StrategyParams groups tunable knobs for the RSI + Bollinger detector.
type StrategyParams struct {
	RSIPeriod       int     `yaml:"rsi_period" validate:"gt=1"`
	BBPeriod        int     `yaml:"bb_period" validate:"gt=1"`
	BBStdDevs       float64 `yaml:"bb_std_devs" validate:"gt=0"`
	RSIOverbought   float64 `yaml:"rsi_overbought" validate:"gt=0,lte=100"`
	RSIOversold     float64 `yaml:"rsi_oversold" validate:"gte=0,ltfield=RSIOverbought"`
	SignalThreshold int     `yaml:"signal_threshold" validate:"gte=1"`
	WindowHeadroom  int     `yaml:"window_headroom" validate:"gte=1"`
}

// Strategy specifies how indicator signals combine along with the parameter bundle.
type Strategy struct {
	Mode   string         `yaml:"mode" validate:"oneof=or and"`
	Params StrategyParams `yaml:"params"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	StartingCash    float64 `yaml:"starting_cash" validate:"gte=0"`
	TradingFee      float64 `yaml:"trading_fee" validate:"gte=0,lt=1"`
	InvestmentSplit float64 `yaml:"investment_split" validate:"gt=0"`
}

// Risk encodes guard-rails for how much cash a single trade may take.
type Risk struct {
	MinNotionalPerTrade float64 `yaml:"min_notional_per_trade" validate:"gte=0"`
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade" validate:"gte=0"`
}

// Ledger locates the session transaction log.
type Ledger struct {
	Dir    string `yaml:"dir" validate:"required"`
	File   string `yaml:"file" validate:"required"`
	Recent int    `yaml:"recent" validate:"gte=1"`
}

// Bootstrap selects where warm-up history comes from.
type Bootstrap struct {
	Source  string `yaml:"source" validate:"oneof=api csv"`
	Dir     string `yaml:"dir"`
	Refresh bool   `yaml:"refresh"`
}

// Scheduler controls how often polled prices are folded into history.
type Scheduler struct {
	HistoryIntervalMs int `yaml:"history_interval_ms" validate:"gt=0"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Exchange  Exchange  `yaml:"exchange"`
	Strategy  Strategy  `yaml:"strategy"`
	Paper     Paper     `yaml:"paper"`
	Risk      Risk      `yaml:"risk"`
	Ledger    Ledger    `yaml:"ledger"`
	Bootstrap Bootstrap `yaml:"bootstrap"`
	Scheduler Scheduler `yaml:"scheduler"`
}

// Default returns the settings the engine runs with when nothing is configured.
func Default() *Config {
	return &Config{
		App: App{Name: "tothemoon", Env: "dev", LogLevel: "info", LogFormat: "console"},
		Exchange: Exchange{
			Provider:         "binance",
			PollIntervalMs:   10000,
			RequestTimeoutMs: 5000,
			KlineLimit:       100,
		},
		Strategy: Strategy{
			Mode: "or",
			Params: StrategyParams{
				RSIPeriod:       13,
				BBPeriod:        20,
				BBStdDevs:       2,
				RSIOverbought:   70,
				RSIOversold:     30,
				SignalThreshold: 5,
				WindowHeadroom:  1,
			},
		},
		Paper:     Paper{StartingCash: 0, TradingFee: 0.005, InvestmentSplit: 10},
		Risk:      Risk{MinNotionalPerTrade: 1},
		Ledger:    Ledger{Dir: "transactions", File: "results.csv", Recent: 20},
		Bootstrap: Bootstrap{Source: "api", Dir: "data"},
		Scheduler: Scheduler{HistoryIntervalMs: 60000},
	}
}

// PollInterval is the delay between poll cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Exchange.PollIntervalMs) * time.Millisecond
}

// RequestTimeout bounds a single market-data call.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Exchange.RequestTimeoutMs) * time.Millisecond
}

// HistoryInterval is how much time must pass before a polled price is persisted.
func (c *Config) HistoryInterval() time.Duration {
	return time.Duration(c.Scheduler.HistoryIntervalMs) * time.Millisecond
}

// Load reads a YAML file over Default, applies .env and environment overrides, and validates.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.finish(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOrDefault behaves like Load but falls back to Default when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	_ = godotenv.Load() // best-effort
	c.applyEnv()
	return c.Validate()
}

// Validate checks every struct tag constraint.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.App.LogLevel = stringFromEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = stringFromEnv("LOG_FORMAT", c.App.LogFormat)
	c.App.MetricsAddr = stringFromEnv("METRICS_ADDR", c.App.MetricsAddr)
	c.App.HealthAddr = stringFromEnv("HEALTH_ADDR", c.App.HealthAddr)
	c.Exchange.Provider = strings.ToLower(stringFromEnv("PROVIDER", c.Exchange.Provider))
	c.Exchange.PollIntervalMs = intFromEnv("POLL_INTERVAL_MS", c.Exchange.PollIntervalMs)
	c.Paper.StartingCash = floatFromEnv("STARTING_CASH", c.Paper.StartingCash)
	c.Strategy.Mode = strings.ToLower(stringFromEnv("STRATEGY_MODE", c.Strategy.Mode))
	if v := os.Getenv(EnvPrefix + "SYMBOLS"); v != "" {
		c.Exchange.Symbols = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	}
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func stringFromEnv(key, def string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
