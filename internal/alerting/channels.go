package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Channel is one alert delivery transport. Channels fail
// independently: a Send error never aborts delivery to siblings.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// TopicPublisher publishes a message to a pub/sub topic. The
// production implementation wraps the SNS client; tests inject fakes.
type TopicPublisher interface {
	Publish(ctx context.Context, topicARN, subject, message string) error
}

// SNSPublisher is the production TopicPublisher.
type SNSPublisher struct {
	client *sns.Client
}

// NewSNSPublisher builds an SNS-backed publisher for the region.
func NewSNSPublisher(ctx context.Context, region string) (*SNSPublisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSPublisher{client: sns.NewFromConfig(cfg)}, nil
}

func (p *SNSPublisher) Publish(ctx context.Context, topicARN, subject, message string) error {
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("topic publish failed: %w", err)
	}
	return nil
}

// topicChannel delivers the plain-text rendering to a pub/sub topic.
type topicChannel struct {
	publisher TopicPublisher
	topicARN  string
}

func (t *topicChannel) Name() string { return "topic" }

func (t *topicChannel) Send(ctx context.Context, alert *Alert) error {
	return t.publisher.Publish(ctx, t.topicARN, Title(alert), FormatText(alert))
}

// WebhookChannel posts the structured-blocks rendering to a chat
// webhook.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel with its own HTTP
// client timeout as a backstop behind the per-delivery context.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, alert *Alert) error {
	data, err := json.Marshal(webhookPayload(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// AlertSink persists in-app alert rows. Implemented by the storage
// package; tests inject fakes.
type AlertSink interface {
	InsertAlert(ctx context.Context, record *AlertRecord) error
}

// AlertRecord is the persisted alert row.
type AlertRecord struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	AlertType      string         `json:"alert_type"` // waf_<threatType>
	Severity       string         `json:"severity"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ResourceID     string         `json:"resource_id"`   // source IP
	ResourceType   string         `json:"resource_type"` // always ip_address
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// inAppChannel stores the alert row for the in-app feed.
type inAppChannel struct {
	sink AlertSink
}

func (c *inAppChannel) Name() string { return "in_app" }

func (c *inAppChannel) Send(ctx context.Context, alert *Alert) error {
	record := &AlertRecord{
		ID:             alert.ID.String(),
		OrganizationID: alert.OrganizationID,
		AlertType:      "waf_" + string(alert.ThreatType),
		Severity:       string(alert.Severity),
		Title:          Title(alert),
		Description:    FormatText(alert),
		ResourceID:     alert.SourceIP,
		ResourceType:   "ip_address",
		Metadata: map[string]any{
			"uri":                alert.URI,
			"country":            alert.Country,
			"event_count":        alert.EventCount,
			"is_campaign":        alert.IsCampaign,
			"campaign_id":        alert.CampaignID,
			"indicators":         alert.Indicators,
			"recommended_action": string(alert.RecommendedAction),
		},
		CreatedAt: time.Now().UTC(),
	}
	return c.sink.InsertAlert(ctx, record)
}
