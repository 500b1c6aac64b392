package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Provider ProviderConfig `mapstructure:"provider"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Cache    CacheConfig    `mapstructure:"cache"`
	History  HistoryConfig  `mapstructure:"history"`
	Static   StaticConfig   `mapstructure:"static"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment"` // development, production
}

type ServerConfig struct {
	Addr              string          `mapstructure:"addr"`
	ReadTimeout       time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration   `mapstructure:"idle_timeout"`
	ReadHeaderTimeout time.Duration   `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds requests per client IP inside a fixed window.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json or console
	OutputFile string `mapstructure:"output_file"` // optional rotated log file
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres or mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ProviderConfig points at the AKTools gateway that exposes akshare functions over HTTP.
type ProviderConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Location string        `mapstructure:"location"` // market timezone for date-bounded queries
}

type SyncConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxStockRows  int           `mapstructure:"max_stock_rows"`
	MaxFutureRows int           `mapstructure:"max_future_rows"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type HistoryConfig struct {
	CacheEnabled       bool          `mapstructure:"cache_enabled"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	Retention          time.Duration `mapstructure:"retention"`
	PruneAt            string        `mapstructure:"prune_at"` // HH:MM
	PlaceholderOnError bool          `mapstructure:"placeholder_on_error"`
}

type StaticConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from the optional YAML file at path and overrides it with
// UDF_-prefixed environment variables (e.g. UDF_DB_DSN).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UDF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and no file or env input.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.max_requests", 600)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "data/symbols.db")
	v.SetDefault("db.max_open_conns", 1)
	v.SetDefault("db.max_idle_conns", 1)
	v.SetDefault("db.conn_max_lifetime", "30m")

	v.SetDefault("provider.base_url", "http://127.0.0.1:8081")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.location", "Asia/Shanghai")

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", "1h")
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.retry_delay", "5s")
	v.SetDefault("sync.max_stock_rows", 1000)
	v.SetDefault("sync.max_future_rows", 500)

	v.SetDefault("cache.ttl", "3600s")

	v.SetDefault("history.cache_enabled", true)
	v.SetDefault("history.cache_ttl", "10m")
	v.SetDefault("history.retention", "2160h") // 90 days
	v.SetDefault("history.prune_at", "03:00")
	v.SetDefault("history.placeholder_on_error", true)

	v.SetDefault("static.dir", "static")
}
