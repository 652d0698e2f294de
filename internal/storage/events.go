package storage

import (
	"context"
	"time"

	"waf-sentinel/internal/schema"
)

// EventStore persists parsed events and serves them back to batch
// analysis by time range.
type EventStore struct {
	client *ClickHouseClient
}

// NewEventStore creates an event store over the client.
func NewEventStore(client *ClickHouseClient) *EventStore {
	return &EventStore{client: client}
}

// InsertEvents writes a batch of parsed events for one organization.
func (s *EventStore) InsertEvents(ctx context.Context, orgID string, events []*schema.ParsedEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.client.PrepareBatch(ctx, `INSERT INTO waf_events (
		organization_id, timestamp, action, source_ip, country, region,
		user_agent, uri, http_method, rule_matched, webacl_id, raw_log
	)`)
	if err != nil {
		return WrapBatchError("InsertEvents", "waf_events", err)
	}

	for _, ev := range events {
		if err := batch.Append(
			orgID,
			ev.Timestamp,
			string(ev.Action),
			ev.SourceIP,
			ev.Country,
			ev.Region,
			ev.UserAgent,
			ev.URI,
			ev.HTTPMethod,
			ev.RuleMatched,
			ev.WebACLID,
			ev.RawLog,
		); err != nil {
			return WrapBatchError("InsertEvents", "waf_events", err)
		}
	}

	if err := batch.Send(); err != nil {
		return WrapBatchError("InsertEvents", "waf_events", err)
	}
	return nil
}

// LoadUnanalyzed returns up to limit unanalyzed events for the
// organization within [start, end), oldest first so repeated calls
// drain the backlog in order.
func (s *EventStore) LoadUnanalyzed(ctx context.Context, orgID string, start, end time.Time, limit int) ([]*schema.ParsedEvent, error) {
	rows, err := s.client.Query(ctx, `
		SELECT timestamp, action, source_ip, country, region,
		       user_agent, uri, http_method, rule_matched, webacl_id, raw_log
		FROM waf_events
		WHERE organization_id = ?
		  AND timestamp >= ?
		  AND timestamp < ?
		  AND analyzed = 0
		ORDER BY timestamp ASC
		LIMIT ?`,
		orgID, start, end, limit,
	)
	if err != nil {
		return nil, WrapQueryError("LoadUnanalyzed", "waf_events", err)
	}
	defer rows.Close()

	var events []*schema.ParsedEvent
	for rows.Next() {
		var (
			ev     schema.ParsedEvent
			action string
		)
		if err := rows.Scan(
			&ev.Timestamp,
			&action,
			&ev.SourceIP,
			&ev.Country,
			&ev.Region,
			&ev.UserAgent,
			&ev.URI,
			&ev.HTTPMethod,
			&ev.RuleMatched,
			&ev.WebACLID,
			&ev.RawLog,
		); err != nil {
			return nil, WrapQueryError("LoadUnanalyzed", "waf_events", err)
		}
		ev.Action = schema.Action(action)
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapQueryError("LoadUnanalyzed", "waf_events", err)
	}

	return events, nil
}

// MarkAnalyzed flags the organization's events in [start, end) as
// analyzed. The mutation is asynchronous; a reload racing it may see a
// few events twice, which analysis tolerates.
func (s *EventStore) MarkAnalyzed(ctx context.Context, orgID string, start, end time.Time) error {
	err := s.client.Exec(ctx, `
		ALTER TABLE waf_events
		UPDATE analyzed = 1
		WHERE organization_id = ? AND timestamp >= ? AND timestamp < ? AND analyzed = 0`,
		orgID, start, end,
	)
	if err != nil {
		return WrapQueryError("MarkAnalyzed", "waf_events", err)
	}
	return nil
}

// CountEvents returns the number of stored events for the organization
// within [start, end).
func (s *EventStore) CountEvents(ctx context.Context, orgID string, start, end time.Time) (uint64, error) {
	var count uint64
	row := s.client.QueryRow(ctx, `
		SELECT count() FROM waf_events
		WHERE organization_id = ? AND timestamp >= ? AND timestamp < ?`,
		orgID, start, end,
	)
	if err := row.Scan(&count); err != nil {
		return 0, WrapQueryError("CountEvents", "waf_events", err)
	}
	return count, nil
}
