// Package main is a one-shot analysis runner: it executes a single
// batch or campaign-sweep invocation and prints the summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"waf-sentinel/internal/alerting"
	"waf-sentinel/internal/campaign"
	"waf-sentinel/internal/classifier"
	"waf-sentinel/internal/config"
	"waf-sentinel/internal/logging"
	"waf-sentinel/internal/orchestrator"
	"waf-sentinel/internal/parser"
	"waf-sentinel/internal/storage"
)

func main() {
	var (
		mode      string
		orgID     string
		eventsArg string
		startArg  string
		endArg    string
	)

	flag.StringVar(&mode, "mode", "analyze_batch", "Analysis mode: analyze_events, analyze_batch or analyze_campaigns")
	flag.StringVar(&orgID, "org", "", "Organization ID (required)")
	flag.StringVar(&eventsArg, "events", "", "Path to a file of newline-delimited raw log records (analyze_events)")
	flag.StringVar(&startArg, "start", "", "Range start, RFC3339 (analyze_batch; default: 1h ago)")
	flag.StringVar(&endArg, "end", "", "Range end, RFC3339 (analyze_batch; default: now)")
	flag.Parse()

	if orgID == "" {
		fmt.Fprintln(os.Stderr, "-org is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	req := orchestrator.Request{
		Type:           orchestrator.RequestType(mode),
		OrganizationID: orgID,
	}

	switch req.Type {
	case orchestrator.AnalyzeEvents:
		if eventsArg == "" {
			fmt.Fprintln(os.Stderr, "-events is required for analyze_events")
			os.Exit(2)
		}
		req.Events, err = readEvents(eventsArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read events: %v\n", err)
			os.Exit(1)
		}
	case orchestrator.AnalyzeBatch:
		req.StartTime, req.EndTime, err = parseRange(startArg, endArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid time range: %v\n", err)
			os.Exit(2)
		}
	case orchestrator.AnalyzeCampaigns:
		// No extra arguments.
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", mode)
		os.Exit(2)
	}

	ctx := context.Background()

	redisStore, err := campaign.NewRedisStore(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	detector := campaign.NewDetector(redisStore, cfg.Analysis.StateMaxAge, slog.Default())

	var (
		eventStore  orchestrator.EventStore
		alertSink   alerting.AlertSink
		configStore orchestrator.ConfigSource = defaultConfigSource{}
	)

	if cfg.Storage.Enabled {
		chClient, err := storage.NewClickHouseClient(cfg.Storage.ClickHouse)
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		defer chClient.Close()

		eventStore = storage.NewEventStore(chClient)
		alertSink = storage.NewAlertStore(chClient)
		configStore = storage.NewOrgConfigStore(chClient)
	} else if req.Type == orchestrator.AnalyzeBatch {
		fmt.Fprintln(os.Stderr, "analyze_batch requires storage to be enabled")
		os.Exit(2)
	}

	var publisher alerting.TopicPublisher
	if cfg.Alerting.SNSRegion != "" {
		if p, err := alerting.NewSNSPublisher(ctx, cfg.Alerting.SNSRegion); err == nil {
			publisher = p
		} else {
			slog.Warn("topic publisher unavailable, topic channel disabled", "error", err)
		}
	}
	engine := alerting.NewEngine(publisher, alertSink, cfg.Alerting.DeliveryTimeout, slog.Default())

	orch := orchestrator.New(
		parser.New(slog.Default()),
		classifier.NewDefault(),
		detector,
		engine,
		configStore,
		orchestrator.Options{
			Events:      eventStore,
			Parallelism: cfg.Analysis.Parallelism,
			MaxBatch:    cfg.Analysis.MaxBatchSize,
		},
		slog.Default(),
	)

	summary := orch.Analyze(ctx, req)

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if !summary.Success {
		os.Exit(1)
	}
}

// readEvents loads newline-delimited raw log records from a file.
func readEvents(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events [][]byte
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			if len(line) > 0 {
				events = append(events, line)
			}
			start = i + 1
		}
	}
	return events, nil
}

func parseRange(startArg, endArg string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.Add(-time.Hour)

	var err error
	if startArg != "" {
		start, err = time.Parse(time.RFC3339, startArg)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
		}
	}
	if endArg != "" {
		end, err = time.Parse(time.RFC3339, endArg)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be before end")
	}
	return start, end, nil
}

// defaultConfigSource serves the safe default when storage is
// disabled.
type defaultConfigSource struct{}

func (defaultConfigSource) GetOrgConfig(_ context.Context, orgID string) (alerting.OrgConfig, error) {
	return alerting.DefaultOrgConfig(orgID), nil
}
