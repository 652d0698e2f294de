package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeliveryResult records the per-channel outcome of one delivery.
type DeliveryResult struct {
	Success  bool
	Channels map[string]bool
	Errors   []string
}

// Engine fans one alert out to every channel the organization has
// enabled. Delivery succeeds when at least one channel accepts the
// alert.
type Engine struct {
	publisher TopicPublisher
	sink      AlertSink
	timeout   time.Duration
	logger    *slog.Logger
}

// NewEngine creates a delivery engine. publisher and sink may be nil
// when the corresponding channels are never enabled; timeout bounds
// each channel's Send independently.
func NewEngine(publisher TopicPublisher, sink AlertSink, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		publisher: publisher,
		sink:      sink,
		timeout:   timeout,
		logger:    logger,
	}
}

// channels builds the channel list for one organization's config.
// Channels whose backing dependency is missing are skipped with a
// warning rather than failing the delivery.
func (e *Engine) channels(cfg OrgConfig) []Channel {
	var chans []Channel

	if cfg.TopicEnabled && cfg.TopicARN != "" {
		if e.publisher == nil {
			e.logger.Warn("topic channel enabled but no publisher configured",
				"organization_id", cfg.OrganizationID)
		} else {
			chans = append(chans, &topicChannel{publisher: e.publisher, topicARN: cfg.TopicARN})
		}
	}

	if cfg.WebhookEnabled && cfg.WebhookURL != "" {
		chans = append(chans, NewWebhookChannel(cfg.WebhookURL, e.timeout))
	}

	if cfg.InAppEnabled {
		if e.sink == nil {
			e.logger.Warn("in-app channel enabled but no alert sink configured",
				"organization_id", cfg.OrganizationID)
		} else {
			chans = append(chans, &inAppChannel{sink: e.sink})
		}
	}

	return chans
}

// Deliver sends the alert to all enabled channels concurrently. Each
// channel gets its own timeout; one slow or failing channel never
// blocks or fails the others.
func (e *Engine) Deliver(ctx context.Context, alert *Alert, cfg OrgConfig) DeliveryResult {
	chans := e.channels(cfg)

	result := DeliveryResult{
		Channels: make(map[string]bool, len(chans)),
	}

	if len(chans) == 0 {
		e.logger.Warn("no alert channels enabled",
			"organization_id", cfg.OrganizationID,
			"alert_id", alert.ID,
		)
		return result
	}

	type outcome struct {
		name string
		err  error
	}

	outcomes := make(chan outcome, len(chans))
	var wg sync.WaitGroup

	for _, ch := range chans {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			outcomes <- outcome{name: ch.Name(), err: ch.Send(sendCtx, alert)}
		}(ch)
	}

	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		if o.err != nil {
			result.Channels[o.name] = false
			result.Errors = append(result.Errors, o.name+": "+o.err.Error())
			e.logger.Error("alert delivery failed",
				"channel", o.name,
				"alert_id", alert.ID,
				"organization_id", alert.OrganizationID,
				"error", o.err,
			)
			continue
		}
		result.Channels[o.name] = true
		result.Success = true
	}

	e.logger.Info("alert delivered",
		"alert_id", alert.ID,
		"organization_id", alert.OrganizationID,
		"severity", alert.Severity,
		"threat_type", alert.ThreatType,
		"channels", len(chans),
		"success", result.Success,
	)

	return result
}
