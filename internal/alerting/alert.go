// Package alerting formats threat and campaign decisions into alerts
// and delivers them across the configured channels.
package alerting

import (
	"time"

	"github.com/google/uuid"

	"waf-sentinel/internal/schema"
)

// Alert is the channel-agnostic alert object. Immutable once created:
// it is persisted once and delivered to zero or more channels.
type Alert struct {
	ID                uuid.UUID                `json:"id"`
	OrganizationID    string                   `json:"organization_id"`
	Timestamp         time.Time                `json:"timestamp"`
	ThreatType        schema.ThreatType        `json:"threat_type"`
	Severity          schema.Severity          `json:"severity"`
	SourceIP          string                   `json:"source_ip"`
	URI               string                   `json:"uri"`
	Country           string                   `json:"country,omitempty"`
	EventCount        int64                    `json:"event_count"`
	IsCampaign        bool                     `json:"is_campaign"`
	CampaignID        string                   `json:"campaign_id,omitempty"`
	RecommendedAction schema.RecommendedAction `json:"recommended_action"`
	Indicators        []string                 `json:"indicators,omitempty"`
}

// NewAlert builds an alert from a threat assessment and the campaign
// detection outcome. Pure constructor: no side effects.
func NewAlert(orgID string, event *schema.ParsedEvent, assessment schema.ThreatAssessment, severity schema.Severity, eventCount int64, isCampaign bool, campaignID string) *Alert {
	return &Alert{
		ID:                uuid.New(),
		OrganizationID:    orgID,
		Timestamp:         event.Timestamp,
		ThreatType:        assessment.ThreatType,
		Severity:          severity,
		SourceIP:          event.SourceIP,
		URI:               event.URI,
		Country:           event.Country,
		EventCount:        eventCount,
		IsCampaign:        isCampaign,
		CampaignID:        campaignID,
		RecommendedAction: assessment.RecommendedAction,
		Indicators:        append([]string(nil), assessment.Indicators...),
	}
}

// OrgConfig is the per-organization alert-channel configuration,
// externally sourced and read-only to the pipeline. Auto-block fields
// are read and passed through only, never enforced here.
type OrgConfig struct {
	OrganizationID     string `json:"organization_id"`
	TopicEnabled       bool   `json:"topic_enabled"`
	TopicARN           string `json:"topic_arn"`
	WebhookEnabled     bool   `json:"webhook_enabled"`
	WebhookURL         string `json:"webhook_url"`
	InAppEnabled       bool   `json:"in_app_enabled"`
	CampaignThreshold  int    `json:"campaign_threshold"`
	CampaignWindowMins int    `json:"campaign_window_mins"`
	AutoBlockEnabled   bool   `json:"auto_block_enabled"`
	AutoBlockThreshold int    `json:"auto_block_threshold"`
	BlockDurationMins  int    `json:"block_duration_mins"`
}

// DefaultOrgConfig is the safe fallback when an organization has no
// configuration row: in-app alerting only with a moderate campaign
// threshold. An analysis run never fails just because alerting is
// unconfigured.
func DefaultOrgConfig(orgID string) OrgConfig {
	return OrgConfig{
		OrganizationID:     orgID,
		InAppEnabled:       true,
		CampaignThreshold:  10,
		CampaignWindowMins: 5,
	}
}

// Window returns the campaign window as a duration.
func (c OrgConfig) Window() time.Duration {
	return time.Duration(c.CampaignWindowMins) * time.Minute
}

// ShouldSend decides whether an alert is worth delivering. High and
// critical severities always alert; campaigns alert on the threshold
// crossing and again at milestone counts; isolated low/medium events
// are suppressed.
func ShouldSend(severity schema.Severity, isCampaign, isNew bool, eventCount int64, cfg OrgConfig) bool {
	if severity == schema.SeverityCritical || severity == schema.SeverityHigh {
		return true
	}

	if !isCampaign {
		return false
	}

	if isNew {
		return true
	}

	for _, m := range milestones {
		if eventCount == m {
			return true
		}
	}

	return false
}

// milestones mirrors the campaign detector's re-alert checkpoints.
var milestones = []int64{25, 50, 100, 250, 500, 1000}
