package alerting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"waf-sentinel/internal/schema"
)

type fakePublisher struct {
	err   error
	calls atomic.Int64
}

func (f *fakePublisher) Publish(ctx context.Context, topicARN, subject, message string) error {
	f.calls.Add(1)
	return f.err
}

type fakeSink struct {
	err     error
	records atomic.Int64
}

func (f *fakeSink) InsertAlert(ctx context.Context, record *AlertRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records.Add(1)
	return nil
}

func testAlert() *Alert {
	return NewAlert("org-1",
		&schema.ParsedEvent{
			Timestamp: time.Now().UTC(),
			Action:    schema.ActionBlock,
			SourceIP:  "203.0.113.9",
			URI:       "/login",
		},
		schema.ThreatAssessment{
			ThreatType:        schema.ThreatSQLInjection,
			Severity:          schema.SeverityHigh,
			RecommendedAction: schema.RecommendBlock,
		},
		schema.SeverityHigh, 1, false, "")
}

func TestDeliverAllChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("webhook Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := &fakePublisher{}
	sink := &fakeSink{}
	engine := NewEngine(publisher, sink, time.Second, nil)

	cfg := OrgConfig{
		OrganizationID: "org-1",
		TopicEnabled:   true,
		TopicARN:       "arn:aws:sns:us-east-1:123456789012:alerts",
		WebhookEnabled: true,
		WebhookURL:     server.URL,
		InAppEnabled:   true,
	}

	result := engine.Deliver(context.Background(), testAlert(), cfg)

	if !result.Success {
		t.Errorf("Success = false, errors = %v", result.Errors)
	}
	if len(result.Channels) != 3 {
		t.Errorf("Channels = %d, want 3", len(result.Channels))
	}
	for name, ok := range result.Channels {
		if !ok {
			t.Errorf("channel %s failed", name)
		}
	}
	if publisher.calls.Load() != 1 {
		t.Errorf("publisher calls = %d, want 1", publisher.calls.Load())
	}
	if sink.records.Load() != 1 {
		t.Errorf("sink records = %d, want 1", sink.records.Load())
	}
}

func TestDeliverPartialSuccess(t *testing.T) {
	// Webhook and topic fail; in-app succeeds. One of three is enough.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	publisher := &fakePublisher{err: errors.New("topic unavailable")}
	sink := &fakeSink{}
	engine := NewEngine(publisher, sink, time.Second, nil)

	cfg := OrgConfig{
		OrganizationID: "org-1",
		TopicEnabled:   true,
		TopicARN:       "arn:aws:sns:us-east-1:123456789012:alerts",
		WebhookEnabled: true,
		WebhookURL:     server.URL,
		InAppEnabled:   true,
	}

	result := engine.Deliver(context.Background(), testAlert(), cfg)

	if !result.Success {
		t.Error("Success = false, want true when one channel succeeds")
	}
	if result.Channels["in_app"] != true {
		t.Error("in_app channel failed, want success")
	}
	if result.Channels["topic"] || result.Channels["webhook"] {
		t.Error("failed channels reported as successful")
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 entries", result.Errors)
	}
}

func TestDeliverAllFail(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("topic unavailable")}
	sink := &fakeSink{err: errors.New("database down")}
	engine := NewEngine(publisher, sink, time.Second, nil)

	cfg := OrgConfig{
		OrganizationID: "org-1",
		TopicEnabled:   true,
		TopicARN:       "arn:aws:sns:us-east-1:123456789012:alerts",
		InAppEnabled:   true,
	}

	result := engine.Deliver(context.Background(), testAlert(), cfg)

	if result.Success {
		t.Error("Success = true, want false when every channel fails")
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 entries", result.Errors)
	}
}

func TestDeliverNoChannels(t *testing.T) {
	engine := NewEngine(nil, nil, time.Second, nil)

	result := engine.Deliver(context.Background(), testAlert(), OrgConfig{OrganizationID: "org-1"})

	if result.Success {
		t.Error("Success = true with no enabled channels, want false")
	}
	if len(result.Channels) != 0 {
		t.Errorf("Channels = %v, want empty", result.Channels)
	}
}

func TestDeliverSlowChannelTimesOut(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	sink := &fakeSink{}
	engine := NewEngine(nil, sink, 50*time.Millisecond, nil)

	cfg := OrgConfig{
		OrganizationID: "org-1",
		WebhookEnabled: true,
		WebhookURL:     slow.URL,
		InAppEnabled:   true,
	}

	start := time.Now()
	result := engine.Deliver(context.Background(), testAlert(), cfg)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Deliver took %v, want the slow channel cut off by its timeout", elapsed)
	}
	if !result.Success {
		t.Error("Success = false, want in-app to carry the delivery")
	}
	if result.Channels["webhook"] {
		t.Error("webhook reported success, want timeout failure")
	}
}
