package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Analysis.MaxBatchSize != 500 {
		t.Errorf("MaxBatchSize = %d, want 500", cfg.Analysis.MaxBatchSize)
	}
	if cfg.Analysis.StateMaxAge != 24*time.Hour {
		t.Errorf("StateMaxAge = %v, want 24h", cfg.Analysis.StateMaxAge)
	}
	if cfg.Kafka.RawLogTopic != "waf-raw-logs" || cfg.Kafka.FindingsTopic != "waf-findings" {
		t.Errorf("kafka topics = %s/%s", cfg.Kafka.RawLogTopic, cfg.Kafka.FindingsTopic)
	}
	if cfg.Storage.Enabled || cfg.Kafka.Enabled || cfg.Archive.Enabled {
		t.Error("external integrations enabled by default, want disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
logging:
  level: debug
redis:
  addr: redis.internal:6379
analysis:
  parallelism: 8
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SENTINEL_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Analysis.Parallelism != 8 {
		t.Errorf("Parallelism = %d, want 8", cfg.Analysis.Parallelism)
	}
	// Unset fields keep their defaults.
	if cfg.Analysis.MaxBatchSize != 500 {
		t.Errorf("MaxBatchSize = %d, want default 500", cfg.Analysis.MaxBatchSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SENTINEL_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default", cfg.Redis.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("SENTINEL_LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "redis.override:6379")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("SENTINEL_ARCHIVE_BUCKET", "waf-archive")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Redis.Addr != "redis.override:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b2:9092" {
		t.Errorf("Kafka = enabled=%v brokers=%v", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Bucket != "waf-archive" {
		t.Errorf("Archive = enabled=%v bucket=%q", cfg.Archive.Enabled, cfg.Archive.Bucket)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"zero batch size", func(c *Config) { c.Analysis.MaxBatchSize = 0 }, true},
		{"zero parallelism", func(c *Config) { c.Analysis.Parallelism = 0 }, true},
		{"kafka enabled without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, true},
		{"archive enabled without bucket", func(c *Config) { c.Archive.Enabled = true }, true},
		{"zero delivery timeout", func(c *Config) { c.Alerting.DeliveryTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
