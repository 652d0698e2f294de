// Package config handles configuration loading for WAF Sentinel.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Alerting AlertingConfig `yaml:"alerting"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RedisConfig holds the campaign state store connection settings.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// StorageConfig holds event and alert store settings.
type StorageConfig struct {
	Enabled    bool             `yaml:"enabled"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// KafkaConfig holds the ingest and findings topic settings.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	RawLogTopic   string        `yaml:"raw_log_topic"`
	FindingsTopic string        `yaml:"findings_topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// ArchiveConfig holds raw log archival settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Region        string        `yaml:"region"`
	Bucket        string        `yaml:"bucket"`
	Prefix        string        `yaml:"prefix"`
	Endpoint      string        `yaml:"endpoint"`
	AccessKeyID   string        `yaml:"access_key_id"`
	SecretKey     string        `yaml:"secret_access_key"`
	UsePathStyle  bool          `yaml:"use_path_style"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// AnalysisConfig holds orchestrator settings.
type AnalysisConfig struct {
	MaxBatchSize  int           `yaml:"max_batch_size"` // bound for batch-by-range loads
	Parallelism   int           `yaml:"parallelism"`    // workers per invocation
	SweepInterval time.Duration `yaml:"sweep_interval"` // campaign re-evaluation cadence
	StateMaxAge   time.Duration `yaml:"state_max_age"`  // campaign state retention
}

// AlertingConfig holds channel transport settings that are not
// per-organization (timeouts, AWS region for the topic publisher).
type AlertingConfig struct {
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	SNSRegion       string        `yaml:"sns_region"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		},
		Storage: StorageConfig{
			Enabled: false, // disabled by default for development without ClickHouse
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "waf",
				Username:        "default",
				Password:        "",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				TLSEnabled:      false,
				DialTimeout:     10 * time.Second,
			},
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			RawLogTopic:   "waf-raw-logs",
			FindingsTopic: "waf-findings",
			ConsumerGroup: "waf-sentinel",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			MaxRetries:    3,
			RetryBackoff:  time.Second,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Region:        "us-east-1",
			Prefix:        "waf-raw",
			BatchSize:     500,
			FlushInterval: 30 * time.Second,
		},
		Analysis: AnalysisConfig{
			MaxBatchSize:  500,
			Parallelism:   4,
			SweepInterval: 5 * time.Minute,
			StateMaxAge:   24 * time.Hour,
		},
		Alerting: AlertingConfig{
			DeliveryTimeout: 10 * time.Second,
			SNSRegion:       "us-east-1",
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("SENTINEL_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}

	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Redis.Password = pass
	}

	if enabled := os.Getenv("SENTINEL_STORAGE_ENABLED"); enabled == "true" {
		c.Storage.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Kafka.Enabled = true
	}

	if bucket := os.Getenv("SENTINEL_ARCHIVE_BUCKET"); bucket != "" {
		c.Archive.Bucket = bucket
		c.Archive.Enabled = true
	}
}

// splitAndTrim splits a string by separator and trims whitespace from
// each part, dropping empties.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Analysis.MaxBatchSize <= 0 {
		return fmt.Errorf("analysis max_batch_size must be positive")
	}

	if c.Analysis.Parallelism <= 0 {
		return fmt.Errorf("analysis parallelism must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive enabled but no bucket configured")
	}

	if c.Alerting.DeliveryTimeout <= 0 {
		return fmt.Errorf("alerting delivery_timeout must be positive")
	}

	return nil
}
