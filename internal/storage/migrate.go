package storage

import (
	"context"
	"log/slog"
)

// tableDDL holds the table definitions applied on startup. ClickHouse
// has no transactional DDL, so every statement is idempotent.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS waf_events (
		organization_id String,
		timestamp       DateTime64(3, 'UTC'),
		action          LowCardinality(String),
		source_ip       String,
		country         LowCardinality(String),
		region          LowCardinality(String),
		user_agent      String,
		uri             String,
		http_method     LowCardinality(String),
		rule_matched    String,
		webacl_id       String,
		raw_log         String CODEC(ZSTD(3)),
		analyzed        UInt8 DEFAULT 0,
		ingested_at     DateTime64(3, 'UTC') DEFAULT now64(3)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMMDD(timestamp)
	ORDER BY (organization_id, timestamp, source_ip)
	TTL toDateTime(timestamp) + INTERVAL 90 DAY`,

	`CREATE TABLE IF NOT EXISTS waf_alerts (
		id              String,
		organization_id String,
		alert_type      LowCardinality(String),
		severity        LowCardinality(String),
		title           String,
		description     String,
		resource_id     String,
		resource_type   LowCardinality(String),
		metadata        String,
		created_at      DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (organization_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS org_alert_configs (
		organization_id      String,
		topic_enabled        UInt8,
		topic_arn            String,
		webhook_enabled      UInt8,
		webhook_url          String,
		in_app_enabled       UInt8,
		campaign_threshold   Int32,
		campaign_window_mins Int32,
		auto_block_enabled   UInt8,
		auto_block_threshold Int32,
		block_duration_mins  Int32,
		updated_at           DateTime64(3, 'UTC') DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY organization_id`,
}

// Migrate creates the database and all tables.
func Migrate(ctx context.Context, client *ClickHouseClient, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := client.EnsureDatabase(ctx); err != nil {
		return WrapQueryError("EnsureDatabase", "", err)
	}

	for _, ddl := range tableDDL {
		if err := client.Exec(ctx, ddl); err != nil {
			return WrapQueryError("Migrate", "", err)
		}
	}

	logger.Info("storage schema ready", "database", client.Database(), "tables", len(tableDDL))
	return nil
}
