// Package config loads client settings from defaults, an optional config
// file and IDMAP_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/idmapping-client/pkg/cache"
	"github.com/Sternrassler/idmapping-client/pkg/client"
	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/Sternrassler/idmapping-client/pkg/mapping"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. IDMAP_API_URL.
const EnvPrefix = "IDMAP"

// Config is the full configuration tree.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Job     JobConfig     `mapstructure:"job"`
	Mapping MappingConfig `mapstructure:"mapping"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// APIConfig configures the transport.
type APIConfig struct {
	URL               string        `mapstructure:"url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	RateLimit         float64       `mapstructure:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst"`
}

// JobConfig configures job polling.
type JobConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MappingConfig configures chunk execution and retrieval.
type MappingConfig struct {
	Concurrency        int  `mapstructure:"concurrency"`
	PageSize           int  `mapstructure:"page_size"`
	Stream             bool `mapstructure:"stream"`
	IsolateChunkErrors bool `mapstructure:"isolate_chunk_errors"`
}

// RedisConfig enables the result cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig serves /metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	c := client.DefaultConfig()
	v.SetDefault("api.url", c.BaseURL)
	v.SetDefault("api.user_agent", c.UserAgent)
	v.SetDefault("api.timeout", c.Timeout)
	v.SetDefault("api.max_retries", c.MaxRetries)
	v.SetDefault("api.initial_backoff", c.InitialBackoff)
	v.SetDefault("api.max_backoff", c.MaxBackoff)
	v.SetDefault("api.backoff_multiplier", c.BackoffMultiplier)
	v.SetDefault("api.rate_limit", c.RateLimit)
	v.SetDefault("api.rate_burst", c.RateBurst)

	m := mapping.DefaultConfig()
	v.SetDefault("job.poll_interval", m.PollInterval)
	v.SetDefault("mapping.concurrency", m.Concurrency)
	v.SetDefault("mapping.page_size", m.PageSize)
	v.SetDefault("mapping.stream", m.Stream)
	v.SetDefault("mapping.isolate_chunk_errors", m.IsolateChunkErrors)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", cache.DefaultTTL)

	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.addr", "")
}

// New returns a viper instance with defaults and environment binding. The
// CLI binds its flags to the same instance.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration. path may be empty; a TOML, YAML or JSON file is
// detected by extension.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		if err := ReadFile(v, path); err != nil {
			return nil, err
		}
	}
	return FromViper(v)
}

// ReadFile merges the config file at path into v.
func ReadFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// FromViper unmarshals and validates v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the consumers do not clamp themselves.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return &client.ValidationError{Field: "api.url", Value: ""}
	}
	if c.API.MaxRetries < 0 {
		return &client.ValidationError{Field: "api.max_retries", Value: fmt.Sprint(c.API.MaxRetries)}
	}
	if c.Mapping.Concurrency < 1 {
		return &client.ValidationError{Field: "mapping.concurrency", Value: fmt.Sprint(c.Mapping.Concurrency)}
	}
	if c.Mapping.PageSize < 1 || c.Mapping.PageSize > 500 {
		return &client.ValidationError{Field: "mapping.page_size", Value: fmt.Sprint(c.Mapping.PageSize), Allowed: []string{"1..500"}}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &client.ValidationError{Field: "log.level", Value: c.Log.Level, Allowed: []string{"debug", "info", "warn", "error"}}
	}
	return nil
}

// Client projects the transport configuration.
func (c *Config) Client() client.Config {
	return client.Config{
		BaseURL:           c.API.URL,
		UserAgent:         c.API.UserAgent,
		Timeout:           c.API.Timeout,
		MaxRetries:        c.API.MaxRetries,
		InitialBackoff:    c.API.InitialBackoff,
		MaxBackoff:        c.API.MaxBackoff,
		BackoffMultiplier: c.API.BackoffMultiplier,
		RateLimit:         c.API.RateLimit,
		RateBurst:         c.API.RateBurst,
	}
}

// Mapper projects the orchestration configuration.
func (c *Config) Mapper() mapping.Config {
	return mapping.Config{
		Concurrency:        c.Mapping.Concurrency,
		PageSize:           c.Mapping.PageSize,
		PollInterval:       c.Job.PollInterval,
		Stream:             c.Mapping.Stream,
		IsolateChunkErrors: c.Mapping.IsolateChunkErrors,
	}
}

// Logging projects the logger configuration. Output is left to the caller.
func (c *Config) Logging() logging.Config {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{Level: level, Pretty: c.Log.Pretty, Output: os.Stderr}
}

// RedisOptions returns connection options, or nil when the cache is off.
func (c *Config) RedisOptions() *redis.Options {
	if c.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}
