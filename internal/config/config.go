package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultTimezone                = "America/Mexico_City"
	DefaultToggleRateLimitPerMin   = 120
	DefaultItemDetailsCacheTTLSecs = 600
	DefaultEventsPollIntervalMs    = 1000
	DefaultEventsBatchSize         = 100
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// domain
	Timezone                string   `toml:"timezone"`
	ToggleRateLimitPerMin   int      `toml:"toggle_rate_limit_per_min"`
	ItemDetailsCacheTTLSecs int      `toml:"item_details_cache_ttl_secs"`
	CorsAllowedOrigins      []string `toml:"cors_allowed_origins"`

	// kafka, leave brokers empty to only keep events in postgres
	KafkaBrokers     []string `toml:"kafka_brokers"`
	KafkaEventsTopic string   `toml:"kafka_events_topic"`

	// events dispatcher, drains the event log to kafka
	EventsPollIntervalMs int `toml:"events_poll_interval_ms"`
	EventsBatchSize      int `toml:"events_batch_size"`
}

func (c *Config) ItemDetailsCacheTTL() time.Duration {
	return time.Duration(c.ItemDetailsCacheTTLSecs) * time.Second
}

func (c *Config) EventsPollInterval() time.Duration {
	return time.Duration(c.EventsPollIntervalMs) * time.Millisecond
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.ToggleRateLimitPerMin <= 0 {
		c.ToggleRateLimitPerMin = DefaultToggleRateLimitPerMin
	}
	if c.ItemDetailsCacheTTLSecs <= 0 {
		c.ItemDetailsCacheTTLSecs = DefaultItemDetailsCacheTTLSecs
	}
	if c.EventsPollIntervalMs <= 0 {
		c.EventsPollIntervalMs = DefaultEventsPollIntervalMs
	}
	if c.EventsBatchSize <= 0 {
		c.EventsBatchSize = DefaultEventsBatchSize
	}
	if c.KafkaEventsTopic == "" {
		c.KafkaEventsTopic = "progress-events"
	}
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config section for env: %s", env)
	}
	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Load decodes the TOML file at path and returns the section for env.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file [%s]: %w", path, err)
	}
	return t.Get(env)
}
