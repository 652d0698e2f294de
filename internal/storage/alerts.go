package storage

import (
	"context"
	"encoding/json"
	"time"

	"waf-sentinel/internal/alerting"
)

// AlertStore persists delivered alerts for the in-app feed. It
// implements alerting.AlertSink.
type AlertStore struct {
	client *ClickHouseClient
}

// NewAlertStore creates an alert store over the client.
func NewAlertStore(client *ClickHouseClient) *AlertStore {
	return &AlertStore{client: client}
}

// InsertAlert writes one alert record.
func (s *AlertStore) InsertAlert(ctx context.Context, record *alerting.AlertRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return WrapQueryError("InsertAlert", "waf_alerts", err)
	}

	err = s.client.Exec(ctx, `INSERT INTO waf_alerts (
		id, organization_id, alert_type, severity, title, description,
		resource_id, resource_type, metadata, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.OrganizationID,
		record.AlertType,
		record.Severity,
		record.Title,
		record.Description,
		record.ResourceID,
		record.ResourceType,
		string(metadata),
		record.CreatedAt,
	)
	if err != nil {
		return WrapQueryError("InsertAlert", "waf_alerts", err)
	}
	return nil
}

// RecentAlerts returns the organization's newest alerts, most recent
// first.
func (s *AlertStore) RecentAlerts(ctx context.Context, orgID string, since time.Time, limit int) ([]*alerting.AlertRecord, error) {
	rows, err := s.client.Query(ctx, `
		SELECT id, organization_id, alert_type, severity, title, description,
		       resource_id, resource_type, metadata, created_at
		FROM waf_alerts
		WHERE organization_id = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?`,
		orgID, since, limit,
	)
	if err != nil {
		return nil, WrapQueryError("RecentAlerts", "waf_alerts", err)
	}
	defer rows.Close()

	var records []*alerting.AlertRecord
	for rows.Next() {
		var (
			rec      alerting.AlertRecord
			metadata string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.OrganizationID,
			&rec.AlertType,
			&rec.Severity,
			&rec.Title,
			&rec.Description,
			&rec.ResourceID,
			&rec.ResourceType,
			&metadata,
			&rec.CreatedAt,
		); err != nil {
			return nil, WrapQueryError("RecentAlerts", "waf_alerts", err)
		}
		if metadata != "" {
			_ = json.Unmarshal([]byte(metadata), &rec.Metadata)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("RecentAlerts", "waf_alerts", err)
	}

	return records, nil
}
