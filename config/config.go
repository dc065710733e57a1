package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values can be written as "10s".
type Duration time.Duration

// UnmarshalYAML parses durations given either as Go duration strings or as
// plain integer seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := time.ParseDuration(raw + "s")
		if convErr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		parsed = secs
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Server      ServerConfig      `yaml:"server"`
	Cache       CacheConfig       `yaml:"cache"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Assets      AssetsConfig      `yaml:"assets"`
	Source      SourceConfig      `yaml:"source"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

type CacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

type FetcherConfig struct {
	Timeout           Duration             `yaml:"timeout"`
	RequestsPerSecond int                  `yaml:"requests_per_second"`
	BurstSize         int                  `yaml:"burst_size"`
	ConnectionPool    ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	MaxConnsPerHost int      `yaml:"max_conns_per_host"`
	IdleConnTimeout Duration `yaml:"idle_conn_timeout"`
}

type RefreshConfig struct {
	Background bool     `yaml:"background"`
	Interval   Duration `yaml:"interval"`
}

type AssetsConfig struct {
	Quote     string   `yaml:"quote"`
	Supported []string `yaml:"supported"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
	Okx     OkxSourceConfig     `yaml:"okx"`
	Kucoin  KucoinSourceConfig  `yaml:"kucoin"`
}

type BinanceSourceConfig struct {
	Enabled         bool                `yaml:"enabled"`
	PremiumIndexURL string              `yaml:"premium_index_url"`
	Stream          BinanceStreamConfig `yaml:"stream"`
}

type BinanceStreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type BybitSourceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TickersURL string `yaml:"tickers_url"`
}

type OkxSourceConfig struct {
	Enabled        bool   `yaml:"enabled"`
	FundingRateURL string `yaml:"funding_rate_url"`
}

type KucoinSourceConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ContractsURL   string `yaml:"contracts_url"`
	FundingRateURL string `yaml:"funding_rate_url"`
}

type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and validates the yaml configuration at path. Missing
// optional values are filled with defaults before validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(30 * time.Second)
	}
	if cfg.Fetcher.Timeout == 0 {
		cfg.Fetcher.Timeout = Duration(10 * time.Second)
	}
	if cfg.Fetcher.RequestsPerSecond <= 0 {
		cfg.Fetcher.RequestsPerSecond = 10
	}
	if cfg.Fetcher.BurstSize <= 0 {
		cfg.Fetcher.BurstSize = 5
	}
	if cfg.Fetcher.ConnectionPool.MaxIdleConns <= 0 {
		cfg.Fetcher.ConnectionPool.MaxIdleConns = 16
	}
	if cfg.Fetcher.ConnectionPool.MaxConnsPerHost <= 0 {
		cfg.Fetcher.ConnectionPool.MaxConnsPerHost = 8
	}
	if cfg.Fetcher.ConnectionPool.IdleConnTimeout == 0 {
		cfg.Fetcher.ConnectionPool.IdleConnTimeout = Duration(90 * time.Second)
	}
	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = Duration(time.Minute)
	}
	if cfg.Assets.Quote == "" {
		cfg.Assets.Quote = "USDT"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "Fundingflow"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}
	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}
	if len(cfg.Assets.Supported) == 0 {
		return fmt.Errorf("assets.supported must list at least one asset")
	}
	if cfg.Source.Binance.Enabled && cfg.Source.Binance.PremiumIndexURL == "" {
		return fmt.Errorf("source.binance.premium_index_url is required when binance is enabled")
	}
	if cfg.Source.Binance.Stream.Enabled && cfg.Source.Binance.Stream.URL == "" {
		return fmt.Errorf("source.binance.stream.url is required when the stream is enabled")
	}
	if cfg.Source.Bybit.Enabled && cfg.Source.Bybit.TickersURL == "" {
		return fmt.Errorf("source.bybit.tickers_url is required when bybit is enabled")
	}
	if cfg.Source.Okx.Enabled && cfg.Source.Okx.FundingRateURL == "" {
		return fmt.Errorf("source.okx.funding_rate_url is required when okx is enabled")
	}
	if cfg.Source.Kucoin.Enabled {
		if cfg.Source.Kucoin.ContractsURL == "" {
			return fmt.Errorf("source.kucoin.contracts_url is required when kucoin is enabled")
		}
		if cfg.Source.Kucoin.FundingRateURL == "" {
			return fmt.Errorf("source.kucoin.funding_rate_url is required when kucoin is enabled")
		}
	}
	if !cfg.Source.Binance.Enabled && !cfg.Source.Bybit.Enabled &&
		!cfg.Source.Okx.Enabled && !cfg.Source.Kucoin.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}
	return nil
}
