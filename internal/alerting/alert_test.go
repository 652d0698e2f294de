package alerting

import (
	"strings"
	"testing"
	"time"

	"waf-sentinel/internal/schema"
)

func TestShouldSend(t *testing.T) {
	cfg := DefaultOrgConfig("org-1") // threshold 10

	tests := []struct {
		name       string
		severity   schema.Severity
		isCampaign bool
		isNew      bool
		eventCount int64
		want       bool
	}{
		{"critical always sends", schema.SeverityCritical, false, false, 1, true},
		{"high always sends", schema.SeverityHigh, false, false, 1, true},
		{"medium isolated suppressed", schema.SeverityMedium, false, false, 1, false},
		{"low isolated suppressed", schema.SeverityLow, false, false, 3, false},
		{"new campaign sends", schema.SeverityLow, true, true, 10, true},
		{"active campaign off-milestone suppressed", schema.SeverityLow, true, false, 11, false},
		{"milestone 25 sends", schema.SeverityMedium, true, false, 25, true},
		{"milestone 1000 sends", schema.SeverityLow, true, false, 1000, true},
		{"between milestones suppressed", schema.SeverityLow, true, false, 99, false},
		{"high in campaign still sends", schema.SeverityHigh, true, false, 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldSend(tt.severity, tt.isCampaign, tt.isNew, tt.eventCount, cfg)
			if got != tt.want {
				t.Errorf("ShouldSend() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewAlert(t *testing.T) {
	event := &schema.ParsedEvent{
		Timestamp: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		Action:    schema.ActionBlock,
		SourceIP:  "203.0.113.9",
		Country:   "US",
		URI:       "/login",
	}
	assessment := schema.ThreatAssessment{
		ThreatType:        schema.ThreatSQLInjection,
		Severity:          schema.SeverityHigh,
		Indicators:        []string{"rule:SQLi"},
		RecommendedAction: schema.RecommendBlock,
	}

	alert := NewAlert("org-1", event, assessment, schema.SeverityCritical, 25, true, "camp-1")

	if alert.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %q, want org-1", alert.OrganizationID)
	}
	if alert.Severity != schema.SeverityCritical {
		t.Errorf("Severity = %q, want critical (escalated over assessment)", alert.Severity)
	}
	if !alert.IsCampaign || alert.EventCount != 25 || alert.CampaignID != "camp-1" {
		t.Errorf("campaign fields = (%v, %d, %q), want (true, 25, camp-1)", alert.IsCampaign, alert.EventCount, alert.CampaignID)
	}

	// The alert holds its own indicator slice.
	assessment.Indicators[0] = "mutated"
	if alert.Indicators[0] != "rule:SQLi" {
		t.Error("alert shares the assessment's indicator slice")
	}

	other := NewAlert("org-1", event, assessment, schema.SeverityCritical, 25, true, "camp-1")
	if alert.ID == other.ID {
		t.Error("two alerts share an ID")
	}
}

func TestDefaultOrgConfig(t *testing.T) {
	cfg := DefaultOrgConfig("org-1")

	if !cfg.InAppEnabled {
		t.Error("InAppEnabled = false, want in-app-only default")
	}
	if cfg.TopicEnabled || cfg.WebhookEnabled {
		t.Error("external channels enabled by default")
	}
	if cfg.CampaignThreshold != 10 {
		t.Errorf("CampaignThreshold = %d, want 10", cfg.CampaignThreshold)
	}
	if cfg.Window() != 5*time.Minute {
		t.Errorf("Window() = %v, want 5m", cfg.Window())
	}
}

func TestFormatText(t *testing.T) {
	alert := &Alert{
		OrganizationID:    "org-1",
		Timestamp:         time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		ThreatType:        schema.ThreatSQLInjection,
		Severity:          schema.SeverityHigh,
		SourceIP:          "203.0.113.9",
		URI:               "/login",
		Country:           "US",
		EventCount:        25,
		IsCampaign:        true,
		CampaignID:        "camp-1",
		RecommendedAction: schema.RecommendBlock,
		Indicators:        []string{"rule:SQLi"},
	}

	text := FormatText(alert)
	for _, want := range []string{
		"[HIGH]", "sql_injection", "203.0.113.9", "(US)", "/login",
		"2026-08-28T12:00:00Z", "25 events", "camp-1", "rule:SQLi", "block",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("FormatText() missing %q:\n%s", want, text)
		}
	}
}

func TestWebhookPayloadFields(t *testing.T) {
	alert := &Alert{
		Timestamp:         time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		ThreatType:        schema.ThreatXSS,
		Severity:          schema.SeverityMedium,
		SourceIP:          "198.51.100.7",
		URI:               "/comment",
		RecommendedAction: schema.RecommendAlert,
	}

	payload := webhookPayload(alert)
	attachments, ok := payload["attachments"].([]map[string]interface{})
	if !ok || len(attachments) != 1 {
		t.Fatalf("payload attachments malformed: %#v", payload["attachments"])
	}

	fields, ok := attachments[0]["fields"].([]map[string]interface{})
	if !ok || len(fields) < 6 {
		t.Fatalf("attachment fields = %d, want at least 6", len(fields))
	}
}
