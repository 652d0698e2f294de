// Package parser converts raw firewall log records into canonical
// parsed events. Malformed records are dropped with a warning, never
// surfaced as batch-level errors.
package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"waf-sentinel/internal/schema"
)

// Plausible epoch-millisecond bounds for upstream timestamps,
// 2020-01-01T00:00:00Z through 2030-01-01T00:00:00Z. The log producer
// has emitted milliseconds, seconds and (erroneously) microseconds
// over time; values are classified by which range they land in.
const (
	minPlausibleMillis = int64(1577836800000)
	maxPlausibleMillis = int64(1893456000000)
)

// defaultActionRuleID is the terminating rule ID reported when no
// configured rule matched; it carries no signal and is ignored.
const defaultActionRuleID = "Default_Action"

// Parser converts raw log records into parsed events.
type Parser struct {
	logger    *slog.Logger
	validator *schema.Validator
	freshness bool
	now       func() time.Time
}

// New creates a Parser. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:    logger,
		validator: schema.NewValidator(),
		now:       time.Now,
	}
}

// EnforceFreshness toggles the validator's timestamp age bounds.
// Real-time ingestion enables this so replayed or clock-skewed records
// are dropped; batch re-analysis leaves it off because old events are
// legitimate there.
func (p *Parser) EnforceFreshness(enabled bool) {
	p.freshness = enabled
}

// Parse converts one raw JSON log record into a ParsedEvent. It never
// panics; records missing required fields or carrying an unknown
// action return an error, which batch callers downgrade to a drop.
func (p *Parser) Parse(raw []byte) (*schema.ParsedEvent, error) {
	var record schema.RawLogRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("malformed log record: %w", err)
	}
	return p.ParseRecord(&record, string(raw))
}

// ParseRecord converts an already-decoded record. rawLog is retained
// on the event for audit.
func (p *Parser) ParseRecord(record *schema.RawLogRecord, rawLog string) (*schema.ParsedEvent, error) {
	if record.HTTPRequest == nil {
		return nil, fmt.Errorf("missing httpRequest")
	}

	req := record.HTTPRequest
	if req.ClientIP == "" {
		return nil, fmt.Errorf("missing httpRequest.clientIp")
	}
	if req.URI == "" {
		return nil, fmt.Errorf("missing httpRequest.uri")
	}
	if req.HTTPMethod == "" {
		return nil, fmt.Errorf("missing httpRequest.httpMethod")
	}

	action := schema.Action(record.Action)
	if !action.IsValid() {
		return nil, fmt.Errorf("invalid action %q", record.Action)
	}

	event := &schema.ParsedEvent{
		Timestamp:   p.normalizeTimestamp(record.Timestamp),
		Action:      action,
		SourceIP:    req.ClientIP,
		Country:     req.Country,
		Region:      RegionForCountry(req.Country),
		UserAgent:   req.UserAgent(),
		URI:         req.URI,
		HTTPMethod:  req.HTTPMethod,
		RuleMatched: extractRuleMatched(record),
		WebACLID:    record.WebACLID,
		RawLog:      rawLog,
	}

	if p.freshness {
		if err := p.validator.Validate(event); err != nil {
			return nil, err
		}
	} else if err := p.validator.ValidateStruct(event); err != nil {
		return nil, err
	}

	return event, nil
}

// ParseBatch parses a list of raw records, silently discarding
// failures. It returns the parsed events and an explicit count of
// dropped records.
func (p *Parser) ParseBatch(raws [][]byte) ([]*schema.ParsedEvent, int) {
	events := make([]*schema.ParsedEvent, 0, len(raws))
	dropped := 0

	for _, raw := range raws {
		event, err := p.Parse(raw)
		if err != nil {
			dropped++
			p.logger.Warn("dropping unparseable log record", "error", err)
			continue
		}
		events = append(events, event)
	}

	if dropped > 0 {
		p.logger.Warn("batch parse dropped records",
			"total", len(raws),
			"parsed", len(events),
			"dropped", dropped,
		)
	}

	return events, dropped
}

// normalizeTimestamp converts an upstream timestamp to a time.Time.
// Milliseconds in the plausible range pass through; seconds are scaled
// up; microseconds are scaled down; anything else is replaced with the
// current processing time.
func (p *Parser) normalizeTimestamp(ts json.Number) time.Time {
	v, err := ts.Int64()
	if err != nil {
		if f, ferr := ts.Float64(); ferr == nil {
			v = int64(f)
		} else {
			p.logger.Warn("non-numeric timestamp, substituting processing time", "timestamp", ts.String())
			return p.now().UTC()
		}
	}

	switch {
	case v >= minPlausibleMillis && v <= maxPlausibleMillis:
		return time.UnixMilli(v).UTC()
	case v >= minPlausibleMillis/1000 && v <= maxPlausibleMillis/1000:
		return time.UnixMilli(v * 1000).UTC()
	case v/1000 >= minPlausibleMillis && v/1000 <= maxPlausibleMillis:
		// Microseconds: scale down to milliseconds.
		return time.UnixMilli(v / 1000).UTC()
	default:
		p.logger.Warn("timestamp outside plausible range, substituting processing time", "timestamp", v)
		return p.now().UTC()
	}
}

// extractRuleMatched resolves the rule that decided the request. The
// top-level terminating rule wins unless it is the default action;
// otherwise the first terminating rule inside a rule group is returned
// qualified as groupId:ruleId.
func extractRuleMatched(record *schema.RawLogRecord) string {
	if record.TerminatingRuleID != "" && record.TerminatingRuleID != defaultActionRuleID {
		return record.TerminatingRuleID
	}

	for _, group := range record.RuleGroupList {
		if group.TerminatingRule != nil && group.TerminatingRule.RuleID != "" {
			return group.RuleGroupID + ":" + group.TerminatingRule.RuleID
		}
	}

	return ""
}
