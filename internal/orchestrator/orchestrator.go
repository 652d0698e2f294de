// Package orchestrator runs the analysis pipeline: parse, classify,
// detect campaigns and deliver alerts, under one invocation contract
// shared by batch and real-time callers.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"waf-sentinel/internal/alerting"
	"waf-sentinel/internal/campaign"
	"waf-sentinel/internal/classifier"
	"waf-sentinel/internal/parser"
	"waf-sentinel/internal/schema"
)

// RequestType selects the analysis mode.
type RequestType string

const (
	// AnalyzeEvents processes raw log records carried in the request.
	AnalyzeEvents RequestType = "analyze_events"
	// AnalyzeBatch loads stored unanalyzed events for a time range.
	AnalyzeBatch RequestType = "analyze_batch"
	// AnalyzeCampaigns re-evaluates campaign state without new events.
	AnalyzeCampaigns RequestType = "analyze_campaigns"
)

// Request is one analysis invocation.
type Request struct {
	Type           RequestType `json:"type"`
	OrganizationID string      `json:"organization_id"`
	Events         [][]byte    `json:"events,omitempty"`
	StartTime      time.Time   `json:"start_time,omitempty"`
	EndTime        time.Time   `json:"end_time,omitempty"`
}

// Summary is the uniform result of any analysis mode.
type Summary struct {
	Success           bool     `json:"success"`
	EventsAnalyzed    int      `json:"events_analyzed"`
	EventsDropped     int      `json:"events_dropped,omitempty"`
	ThreatsDetected   int      `json:"threats_detected"`
	CampaignsDetected int      `json:"campaigns_detected"`
	CampaignsResolved int      `json:"campaigns_resolved,omitempty"`
	AlertsSent        int      `json:"alerts_sent"`
	Errors            []string `json:"errors,omitempty"`
}

// ConfigSource serves per-organization alerting configuration.
type ConfigSource interface {
	GetOrgConfig(ctx context.Context, orgID string) (alerting.OrgConfig, error)
}

// EventStore is the persisted-event collaborator for batch mode.
type EventStore interface {
	InsertEvents(ctx context.Context, orgID string, events []*schema.ParsedEvent) error
	LoadUnanalyzed(ctx context.Context, orgID string, start, end time.Time, limit int) ([]*schema.ParsedEvent, error)
	MarkAnalyzed(ctx context.Context, orgID string, start, end time.Time) error
}

// Deliverer fans alerts out to the organization's channels.
type Deliverer interface {
	Deliver(ctx context.Context, alert *alerting.Alert, cfg alerting.OrgConfig) alerting.DeliveryResult
}

// FindingsPublisher publishes run summaries downstream.
type FindingsPublisher interface {
	ProduceJSON(ctx context.Context, key string, value interface{}) error
}

// Archiver buffers raw log records for cold storage.
type Archiver interface {
	Add(ctx context.Context, orgID string, rawLog []byte) error
}

// Orchestrator wires the pipeline stages together. Event store,
// publisher and archiver are optional; nil disables the concern.
type Orchestrator struct {
	parser      *parser.Parser
	classifier  *classifier.Classifier
	detector    *campaign.Detector
	deliverer   Deliverer
	configs     ConfigSource
	events      EventStore
	publisher   FindingsPublisher
	archiver    Archiver
	parallelism int
	maxBatch    int
	logger      *slog.Logger
}

// Options carries the optional collaborators and tuning knobs.
type Options struct {
	Events      EventStore
	Publisher   FindingsPublisher
	Archiver    Archiver
	Parallelism int
	MaxBatch    int
}

// New creates an orchestrator.
func New(p *parser.Parser, c *classifier.Classifier, d *campaign.Detector, deliverer Deliverer, configs ConfigSource, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 500
	}
	return &Orchestrator{
		parser:      p,
		classifier:  c,
		detector:    d,
		deliverer:   deliverer,
		configs:     configs,
		events:      opts.Events,
		publisher:   opts.Publisher,
		archiver:    opts.Archiver,
		parallelism: opts.Parallelism,
		maxBatch:    opts.MaxBatch,
		logger:      logger,
	}
}

// Analyze dispatches one request and returns its summary. The summary
// reports partial progress: per-event failures land in Errors while
// processing continues; Success is false only when the run could not
// start at all.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) Summary {
	start := time.Now()

	var summary Summary
	switch req.Type {
	case AnalyzeEvents:
		summary = o.analyzeEvents(ctx, req)
	case AnalyzeBatch:
		summary = o.analyzeBatch(ctx, req)
	case AnalyzeCampaigns:
		summary = o.analyzeCampaigns(ctx, req)
	default:
		summary = Summary{Errors: []string{fmt.Sprintf("unknown request type: %s", req.Type)}}
	}

	o.logger.Info("analysis run complete",
		"type", req.Type,
		"organization_id", req.OrganizationID,
		"success", summary.Success,
		"events_analyzed", summary.EventsAnalyzed,
		"threats_detected", summary.ThreatsDetected,
		"campaigns_detected", summary.CampaignsDetected,
		"alerts_sent", summary.AlertsSent,
		"errors", len(summary.Errors),
		"duration", time.Since(start),
	)

	if o.publisher != nil {
		if err := o.publisher.ProduceJSON(ctx, req.OrganizationID, summary); err != nil {
			o.logger.Warn("failed to publish run summary", "error", err)
		}
	}

	return summary
}

// analyzeEvents parses and analyzes raw records carried in the request.
func (o *Orchestrator) analyzeEvents(ctx context.Context, req Request) Summary {
	cfg, err := o.configs.GetOrgConfig(ctx, req.OrganizationID)
	if err != nil {
		return Summary{Errors: []string{fmt.Sprintf("config load failed: %v", err)}}
	}

	events, dropped := o.parser.ParseBatch(req.Events)

	if o.archiver != nil {
		for _, raw := range req.Events {
			if aerr := o.archiver.Add(ctx, req.OrganizationID, raw); aerr != nil {
				o.logger.Warn("raw log archive failed", "error", aerr)
				break
			}
		}
	}

	if o.events != nil && len(events) > 0 {
		if serr := o.events.InsertEvents(ctx, req.OrganizationID, events); serr != nil {
			// Analysis still proceeds on the in-memory events.
			o.logger.Error("event persistence failed", "error", serr)
		}
	}

	summary := o.processEvents(ctx, req.OrganizationID, events, cfg)
	summary.EventsDropped = dropped
	summary.Success = true
	return summary
}

// analyzeBatch loads stored unanalyzed events for the time range and
// analyzes them.
func (o *Orchestrator) analyzeBatch(ctx context.Context, req Request) Summary {
	if o.events == nil {
		return Summary{Errors: []string{"batch analysis requires an event store"}}
	}

	cfg, err := o.configs.GetOrgConfig(ctx, req.OrganizationID)
	if err != nil {
		return Summary{Errors: []string{fmt.Sprintf("config load failed: %v", err)}}
	}

	events, err := o.events.LoadUnanalyzed(ctx, req.OrganizationID, req.StartTime, req.EndTime, o.maxBatch)
	if err != nil {
		return Summary{Errors: []string{fmt.Sprintf("event load failed: %v", err)}}
	}

	summary := o.processEvents(ctx, req.OrganizationID, events, cfg)
	summary.Success = true

	if len(events) > 0 {
		if merr := o.events.MarkAnalyzed(ctx, req.OrganizationID, req.StartTime, req.EndTime); merr != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("mark analyzed failed: %v", merr))
		}
	}

	return summary
}

// analyzeCampaigns re-evaluates campaign state: idle campaigns resolve
// and stale entries expire. No events are processed.
func (o *Orchestrator) analyzeCampaigns(ctx context.Context, req Request) Summary {
	cfg, err := o.configs.GetOrgConfig(ctx, req.OrganizationID)
	if err != nil {
		return Summary{Errors: []string{fmt.Sprintf("config load failed: %v", err)}}
	}

	resolved, removed, err := o.detector.Sweep(ctx, req.OrganizationID, cfg.Window())
	if err != nil {
		return Summary{
			CampaignsResolved: resolved,
			Errors:            []string{fmt.Sprintf("campaign sweep failed: %v", err)},
		}
	}

	o.logger.Debug("campaign sweep finished",
		"organization_id", req.OrganizationID,
		"resolved", resolved,
		"removed", removed,
	)

	return Summary{Success: true, CampaignsResolved: resolved}
}

// processEvents classifies events and runs campaign detection and
// alerting over a bounded worker pool. Campaign increments are
// linearized by the state store, so worker order does not affect
// counts.
func (o *Orchestrator) processEvents(ctx context.Context, orgID string, events []*schema.ParsedEvent, cfg alerting.OrgConfig) Summary {
	summary := Summary{EventsAnalyzed: len(events)}
	if len(events) == 0 {
		return summary
	}

	params := campaign.Params{
		Threshold: cfg.CampaignThreshold,
		Window:    cfg.Window(),
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		work = make(chan *schema.ParsedEvent)
	)

	workers := o.parallelism
	if workers > len(events) {
		workers = len(events)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range work {
				threat, campaigns, alerts, errs := o.processOne(ctx, orgID, event, cfg, params)

				mu.Lock()
				summary.ThreatsDetected += threat
				summary.CampaignsDetected += campaigns
				summary.AlertsSent += alerts
				summary.Errors = append(summary.Errors, errs...)
				mu.Unlock()
			}
		}()
	}

	for _, event := range events {
		work <- event
	}
	close(work)
	wg.Wait()

	return summary
}

// processOne runs one event through classification, campaign detection
// and alert delivery. Returns counter deltas and advisory errors.
func (o *Orchestrator) processOne(ctx context.Context, orgID string, event *schema.ParsedEvent, cfg alerting.OrgConfig, params campaign.Params) (threats, campaigns, alerts int, errs []string) {
	assessment := o.classifier.Classify(event)
	if assessment.ThreatType == schema.ThreatUnknown {
		return 0, 0, 0, nil
	}
	threats = 1

	severity := assessment.Severity
	var det campaign.Detection

	d, err := o.detector.Detect(ctx, orgID, event.SourceIP, assessment.ThreatType, assessment.Severity, params)
	if err != nil {
		errs = append(errs, fmt.Sprintf("campaign detection failed for %s: %v", event.SourceIP, err))
	} else {
		det = d
		severity = schema.MaxSeverity(severity, det.Severity)
		if det.IsNewCampaign {
			campaigns = 1
		}
	}

	if !alerting.ShouldSend(severity, det.IsCampaign, det.IsNewCampaign, det.EventCount, cfg) {
		return threats, campaigns, 0, errs
	}

	alert := alerting.NewAlert(orgID, event, assessment, severity, det.EventCount, det.IsCampaign, det.CampaignID)
	result := o.deliverer.Deliver(ctx, alert, cfg)
	if result.Success {
		alerts = 1
	}
	errs = append(errs, result.Errors...)

	return threats, campaigns, alerts, errs
}
