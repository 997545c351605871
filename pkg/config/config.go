// Package config loads the watcher configuration from a YAML file and
// MARKETWATCH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/eve-marketwatch/pkg/watcher"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// MARKETWATCH_REDIS_ADDR for redis.addr.
const EnvPrefix = "MARKETWATCH"

// Config is the complete watcher configuration.
type Config struct {
	Pool     PoolConfig    `mapstructure:"pool"`
	Fetch    FetchConfig   `mapstructure:"fetch"`
	Features FeatureConfig `mapstructure:"features"`
	Redis    RedisConfig   `mapstructure:"redis"`
	ESI      ESIConfig     `mapstructure:"esi"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Logging  LoggingConfig `mapstructure:"logging"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Size int `mapstructure:"size"`
}

// FetchConfig controls the schedule.
type FetchConfig struct {
	// Interval between order updates.
	Interval time.Duration `mapstructure:"interval"`

	// Poll is the scheduler tick.
	Poll time.Duration `mapstructure:"poll"`

	// StaticTime is the daily universe refresh time, HH:MM in UTC.
	StaticTime string `mapstructure:"static_time"`

	// GroupTime is the daily market group refresh time. Defaults to
	// StaticTime.
	GroupTime string `mapstructure:"group_time"`
}

// FeatureConfig toggles the parts of ingestion.
type FeatureConfig struct {
	Regions bool `mapstructure:"regions"`
	Groups  bool `mapstructure:"groups"`
	Orders  bool `mapstructure:"orders"`
	Index   bool `mapstructure:"index"`
}

// RedisConfig locates the store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Socket   string `mapstructure:"socket"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// ESIConfig configures the ESI client.
type ESIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	Burst         int           `mapstructure:"burst"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// AuthConfig holds the SSO application used for structure lookups.
type AuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenURL     string `mapstructure:"token_url"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`

	// Dir enables a rolling log file in the directory.
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`

	// Shell also writes errors to stderr when logging to a file.
	Shell bool `mapstructure:"shell"`
}

// MetricsConfig exposes Prometheus metrics. An empty Addr disables the
// server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pool.size", 4)

	v.SetDefault("fetch.interval", 600*time.Second)
	v.SetDefault("fetch.poll", 30*time.Second)
	v.SetDefault("fetch.static_time", "11:05")
	v.SetDefault("fetch.group_time", "")

	v.SetDefault("features.regions", true)
	v.SetDefault("features.groups", true)
	v.SetDefault("features.orders", true)
	v.SetDefault("features.index", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.socket", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")

	v.SetDefault("esi.base_url", "https://esi.evetech.net/latest")
	v.SetDefault("esi.user_agent", "")
	v.SetDefault("esi.timeout", 30*time.Second)
	v.SetDefault("esi.rate_limit", 20.0)
	v.SetDefault("esi.burst", 10)
	v.SetDefault("esi.retry_attempts", 3)
	v.SetDefault("esi.retry_backoff", 500*time.Millisecond)

	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.refresh_token", "")
	v.SetDefault("auth.token_url", "https://login.eveonline.com/v2/oauth/token")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.dir", "")
	v.SetDefault("logging.max_size", 64)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.shell", true)

	v.SetDefault("metrics.addr", ":9090")
}

// Load reads path (optional) and environment overrides, then validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Fetch.GroupTime == "" {
		cfg.Fetch.GroupTime = cfg.Fetch.StaticTime
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Pool.Size < 1 {
		errs = append(errs, fmt.Errorf("pool.size must be >= 1 (got %d)", c.Pool.Size))
	}
	if c.Fetch.Interval <= 0 {
		errs = append(errs, fmt.Errorf("fetch.interval must be positive (got %s)", c.Fetch.Interval))
	}
	if c.Fetch.Poll <= 0 {
		errs = append(errs, fmt.Errorf("fetch.poll must be positive (got %s)", c.Fetch.Poll))
	}
	if _, err := watcher.ParseTimeOfDay(c.Fetch.StaticTime); err != nil {
		errs = append(errs, fmt.Errorf("fetch.static_time: %w", err))
	}
	if c.Fetch.GroupTime != "" {
		if _, err := watcher.ParseTimeOfDay(c.Fetch.GroupTime); err != nil {
			errs = append(errs, fmt.Errorf("fetch.group_time: %w", err))
		}
	}
	if c.Redis.Addr == "" && c.Redis.Socket == "" {
		errs = append(errs, errors.New("redis.addr or redis.socket is required"))
	}
	if strings.TrimSpace(c.ESI.UserAgent) == "" {
		errs = append(errs, errors.New("esi.user_agent is required"))
	}
	if c.ESI.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("esi.retry_attempts must be >= 1 (got %d)", c.ESI.RetryAttempts))
	}
	return errors.Join(errs...)
}

// Schedule returns the refresh times as minutes of the day. Call after
// Validate.
func (c *Config) Schedule() (staticTime, groupTime int) {
	staticTime, _ = watcher.ParseTimeOfDay(c.Fetch.StaticTime)
	groupTime = staticTime
	if c.Fetch.GroupTime != "" {
		groupTime, _ = watcher.ParseTimeOfDay(c.Fetch.GroupTime)
	}
	return staticTime, groupTime
}

// WatcherFeatures converts the feature flags.
func (c *Config) WatcherFeatures() watcher.Features {
	return watcher.Features{
		Regions: c.Features.Regions,
		Groups:  c.Features.Groups,
		Orders:  c.Features.Orders,
		Index:   c.Features.Index,
	}
}
