package parser

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"waf-sentinel/internal/schema"
)

func testParser() (*Parser, time.Time) {
	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	p := New(nil)
	p.now = func() time.Time { return fixed }
	return p, fixed
}

func rawRecord(ts string) []byte {
	return []byte(fmt.Sprintf(`{
		"timestamp": %s,
		"action": "BLOCK",
		"webaclId": "acl-1",
		"terminatingRuleId": "SQLi_Body",
		"httpRequest": {
			"clientIp": "203.0.113.9",
			"country": "US",
			"uri": "/login",
			"httpMethod": "POST",
			"headers": [{"name": "User-Agent", "value": "curl/8.0"}]
		}
	}`, ts))
}

func TestParseRoundTrip(t *testing.T) {
	p, _ := testParser()

	event, err := p.Parse(rawRecord("1706000000000"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if event.SourceIP != "203.0.113.9" {
		t.Errorf("SourceIP = %q, want 203.0.113.9", event.SourceIP)
	}
	if event.Action != schema.ActionBlock {
		t.Errorf("Action = %q, want BLOCK", event.Action)
	}
	if event.Country != "US" {
		t.Errorf("Country = %q, want US", event.Country)
	}
	if event.Region != "North America" {
		t.Errorf("Region = %q, want North America", event.Region)
	}
	if event.UserAgent != "curl/8.0" {
		t.Errorf("UserAgent = %q, want curl/8.0", event.UserAgent)
	}
	if event.RuleMatched != "SQLi_Body" {
		t.Errorf("RuleMatched = %q, want SQLi_Body", event.RuleMatched)
	}
	if event.RawLog == "" {
		t.Error("RawLog is empty, want original record retained")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	p, fixed := testParser()

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{
			name: "milliseconds pass through",
			in:   "1706000000000",
			want: time.UnixMilli(1706000000000).UTC(),
		},
		{
			name: "seconds scale up",
			in:   "1700000000",
			want: time.UnixMilli(1700000000000).UTC(),
		},
		{
			name: "microseconds scale down",
			in:   "1706000000000000",
			want: time.UnixMilli(1706000000000).UTC(),
		},
		{
			name: "implausibly old substitutes processing time",
			in:   "12345",
			want: fixed,
		},
		{
			name: "implausibly large substitutes processing time",
			in:   "9999999999999999999",
			want: fixed,
		},
		{
			name: "non-numeric substitutes processing time",
			in:   `"not-a-number"`,
			want: fixed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var num json.Number
			if err := json.Unmarshal([]byte(tt.in), &num); err != nil {
				// Quoted inputs decode as strings; feed them through as-is.
				num = json.Number(tt.in)
			}
			got := p.normalizeTimestamp(num)
			if !got.Equal(tt.want) {
				t.Errorf("normalizeTimestamp(%s) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTimestampIdempotent(t *testing.T) {
	p, _ := testParser()

	// A value already in milliseconds must not be rescaled.
	in := json.Number("1706000000000")
	first := p.normalizeTimestamp(in)
	second := p.normalizeTimestamp(json.Number(fmt.Sprintf("%d", first.UnixMilli())))
	if !first.Equal(second) {
		t.Errorf("normalization not idempotent: %v != %v", first, second)
	}
}

func TestParseMissingFields(t *testing.T) {
	p, _ := testParser()

	tests := []struct {
		name string
		raw  string
	}{
		{"missing httpRequest", `{"timestamp": 1706000000000, "action": "BLOCK"}`},
		{"missing clientIp", `{"timestamp": 1706000000000, "action": "BLOCK", "httpRequest": {"uri": "/", "httpMethod": "GET"}}`},
		{"missing uri", `{"timestamp": 1706000000000, "action": "BLOCK", "httpRequest": {"clientIp": "203.0.113.9", "httpMethod": "GET"}}`},
		{"missing method", `{"timestamp": 1706000000000, "action": "BLOCK", "httpRequest": {"clientIp": "203.0.113.9", "uri": "/"}}`},
		{"invalid action", `{"timestamp": 1706000000000, "action": "DENY", "httpRequest": {"clientIp": "203.0.113.9", "uri": "/", "httpMethod": "GET"}}`},
		{"malformed clientIp", `{"timestamp": 1706000000000, "action": "BLOCK", "httpRequest": {"clientIp": "not-an-ip", "uri": "/", "httpMethod": "GET"}}`},
		{"not json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Parse([]byte(tt.raw)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestParseFreshnessBounds(t *testing.T) {
	p, _ := testParser()
	p.EnforceFreshness(true)

	fresh := fmt.Sprintf("%d", time.Now().UnixMilli())
	if _, err := p.Parse(rawRecord(fresh)); err != nil {
		t.Fatalf("Parse() error = %v for current timestamp", err)
	}

	// Months old: rejected while freshness bounds are on.
	if _, err := p.Parse(rawRecord("1706000000000")); err == nil {
		t.Error("Parse() error = nil for stale timestamp, want error")
	}

	p.EnforceFreshness(false)
	if _, err := p.Parse(rawRecord("1706000000000")); err != nil {
		t.Errorf("Parse() error = %v with bounds off, want nil", err)
	}
}

func TestParseBatchDropsSilently(t *testing.T) {
	p, _ := testParser()

	raws := [][]byte{
		rawRecord("1706000000000"),
		[]byte(`{"timestamp": 1706000000000, "action": "BLOCK", "httpRequest": {"uri": "/", "httpMethod": "GET"}}`),
		rawRecord("1706000001000"),
	}

	events, dropped := p.ParseBatch(raws)
	if len(events) != 2 {
		t.Errorf("ParseBatch() returned %d events, want 2", len(events))
	}
	if dropped != 1 {
		t.Errorf("ParseBatch() dropped = %d, want 1", dropped)
	}
}

func TestExtractRuleMatched(t *testing.T) {
	tests := []struct {
		name   string
		record schema.RawLogRecord
		want   string
	}{
		{
			name:   "top-level terminating rule",
			record: schema.RawLogRecord{TerminatingRuleID: "SQLi_Body"},
			want:   "SQLi_Body",
		},
		{
			name: "default action falls through to rule group",
			record: schema.RawLogRecord{
				TerminatingRuleID: "Default_Action",
				RuleGroupList: []schema.RuleGroup{
					{RuleGroupID: "AWSManagedRulesSQLiRuleSet", TerminatingRule: &schema.TerminatingRule{RuleID: "SQLi_QueryArguments"}},
				},
			},
			want: "AWSManagedRulesSQLiRuleSet:SQLi_QueryArguments",
		},
		{
			name: "first group with terminating rule wins",
			record: schema.RawLogRecord{
				RuleGroupList: []schema.RuleGroup{
					{RuleGroupID: "group-a"},
					{RuleGroupID: "group-b", TerminatingRule: &schema.TerminatingRule{RuleID: "rule-b"}},
					{RuleGroupID: "group-c", TerminatingRule: &schema.TerminatingRule{RuleID: "rule-c"}},
				},
			},
			want: "group-b:rule-b",
		},
		{
			name:   "nothing matched",
			record: schema.RawLogRecord{TerminatingRuleID: "Default_Action"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractRuleMatched(&tt.record); got != tt.want {
				t.Errorf("extractRuleMatched() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegionForCountry(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"US", "North America"},
		{"DE", "Europe"},
		{"JP", "Asia Pacific"},
		{"BR", "South America"},
		{"ZZ", "Unknown"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := RegionForCountry(tt.country); got != tt.want {
			t.Errorf("RegionForCountry(%q) = %q, want %q", tt.country, got, tt.want)
		}
	}
}
