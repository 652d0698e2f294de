package storage

import (
	"context"
	"database/sql"
	"errors"

	"waf-sentinel/internal/alerting"
)

// OrgConfigStore reads per-organization alerting configuration. The
// rows are written by the management plane; this service only reads
// them.
type OrgConfigStore struct {
	client *ClickHouseClient
}

// NewOrgConfigStore creates a config store over the client.
func NewOrgConfigStore(client *ClickHouseClient) *OrgConfigStore {
	return &OrgConfigStore{client: client}
}

// GetOrgConfig returns the organization's alerting configuration, or
// the in-app-only default when no row exists. Missing configuration is
// not an error: analysis always proceeds.
func (s *OrgConfigStore) GetOrgConfig(ctx context.Context, orgID string) (alerting.OrgConfig, error) {
	var (
		cfg                                          alerting.OrgConfig
		topicEnabled, webhookEnabled, inAppEnabled   uint8
		autoBlockEnabled                             uint8
		threshold, windowMins, blockThresh, blockDur int32
	)

	row := s.client.QueryRow(ctx, `
		SELECT organization_id, topic_enabled, topic_arn, webhook_enabled,
		       webhook_url, in_app_enabled, campaign_threshold,
		       campaign_window_mins, auto_block_enabled, auto_block_threshold,
		       block_duration_mins
		FROM org_alert_configs FINAL
		WHERE organization_id = ?`,
		orgID,
	)

	err := row.Scan(
		&cfg.OrganizationID,
		&topicEnabled,
		&cfg.TopicARN,
		&webhookEnabled,
		&cfg.WebhookURL,
		&inAppEnabled,
		&threshold,
		&windowMins,
		&autoBlockEnabled,
		&blockThresh,
		&blockDur,
	)
	if err != nil {
		if isNoRows(err) {
			return alerting.DefaultOrgConfig(orgID), nil
		}
		return alerting.OrgConfig{}, WrapQueryError("GetOrgConfig", "org_alert_configs", err)
	}

	cfg.TopicEnabled = topicEnabled != 0
	cfg.WebhookEnabled = webhookEnabled != 0
	cfg.InAppEnabled = inAppEnabled != 0
	cfg.AutoBlockEnabled = autoBlockEnabled != 0
	cfg.CampaignThreshold = int(threshold)
	cfg.CampaignWindowMins = int(windowMins)
	cfg.AutoBlockThreshold = int(blockThresh)
	cfg.BlockDurationMins = int(blockDur)

	// Rows written before the threshold fields existed carry zeros.
	if cfg.CampaignThreshold <= 0 || cfg.CampaignWindowMins <= 0 {
		def := alerting.DefaultOrgConfig(orgID)
		if cfg.CampaignThreshold <= 0 {
			cfg.CampaignThreshold = def.CampaignThreshold
		}
		if cfg.CampaignWindowMins <= 0 {
			cfg.CampaignWindowMins = def.CampaignWindowMins
		}
	}

	return cfg, nil
}

// PutOrgConfig upserts the organization's alerting configuration.
// Used by tooling and tests; the ReplacingMergeTree keeps the newest
// row per organization.
func (s *OrgConfigStore) PutOrgConfig(ctx context.Context, cfg alerting.OrgConfig) error {
	err := s.client.Exec(ctx, `INSERT INTO org_alert_configs (
		organization_id, topic_enabled, topic_arn, webhook_enabled,
		webhook_url, in_app_enabled, campaign_threshold,
		campaign_window_mins, auto_block_enabled, auto_block_threshold,
		block_duration_mins
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.OrganizationID,
		boolToUint8(cfg.TopicEnabled),
		cfg.TopicARN,
		boolToUint8(cfg.WebhookEnabled),
		cfg.WebhookURL,
		boolToUint8(cfg.InAppEnabled),
		int32(cfg.CampaignThreshold),
		int32(cfg.CampaignWindowMins),
		boolToUint8(cfg.AutoBlockEnabled),
		int32(cfg.AutoBlockThreshold),
		int32(cfg.BlockDurationMins),
	)
	if err != nil {
		return WrapQueryError("PutOrgConfig", "org_alert_configs", err)
	}
	return nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// isNoRows matches the driver's empty-result error for single-row
// reads.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound)
}
