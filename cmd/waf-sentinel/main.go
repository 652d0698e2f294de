// Package main is the entry point for the WAF Sentinel analysis
// service: it consumes raw firewall logs from Kafka, runs the analysis
// pipeline and sweeps campaign state periodically.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waf-sentinel/internal/alerting"
	"waf-sentinel/internal/campaign"
	"waf-sentinel/internal/classifier"
	"waf-sentinel/internal/config"
	"waf-sentinel/internal/kafka"
	"waf-sentinel/internal/logging"
	"waf-sentinel/internal/orchestrator"
	"waf-sentinel/internal/parser"
	"waf-sentinel/internal/storage"
	s3archive "waf-sentinel/internal/storage/s3"
)

var version = "dev"

func main() {
	var (
		showVersion bool
		rulesPath   string
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&rulesPath, "rules", "", "Path to a YAML threat rule set (default: built-in rules)")
	flag.Parse()

	if showVersion {
		fmt.Printf("waf-sentinel %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"storage_enabled", cfg.Storage.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
		"archive_enabled", cfg.Archive.Enabled,
		"redis_addr", cfg.Redis.Addr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Threat classifier
	cls := classifier.NewDefault()
	if rulesPath != "" {
		set, err := classifier.LoadRuleSet(rulesPath)
		if err != nil {
			slog.Error("failed to load rule set", "path", rulesPath, "error", err)
			os.Exit(1)
		}
		cls, err = classifier.New(set)
		if err != nil {
			slog.Error("invalid rule set", "path", rulesPath, "error", err)
			os.Exit(1)
		}
		slog.Info("rule set loaded", "path", rulesPath, "version", set.Version)
	}

	// Campaign state store
	redisStore, err := campaign.NewRedisStore(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	detector := campaign.NewDetector(redisStore, cfg.Analysis.StateMaxAge, slog.Default())

	// Storage
	var (
		chClient    *storage.ClickHouseClient
		eventStore  orchestrator.EventStore
		alertSink   alerting.AlertSink
		configStore orchestrator.ConfigSource = defaultConfigSource{}
	)

	if cfg.Storage.Enabled {
		chClient, err = storage.NewClickHouseClient(cfg.Storage.ClickHouse)
		if err != nil {
			slog.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		defer chClient.Close()

		if err := storage.Migrate(ctx, chClient, slog.Default()); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		eventStore = storage.NewEventStore(chClient)
		alertSink = storage.NewAlertStore(chClient)
		configStore = storage.NewOrgConfigStore(chClient)
	}

	// Alert delivery
	var publisher alerting.TopicPublisher
	if cfg.Alerting.SNSRegion != "" {
		p, err := alerting.NewSNSPublisher(ctx, cfg.Alerting.SNSRegion)
		if err != nil {
			slog.Warn("topic publisher unavailable, topic channel disabled", "error", err)
		} else {
			publisher = p
		}
	}
	engine := alerting.NewEngine(publisher, alertSink, cfg.Alerting.DeliveryTimeout, slog.Default())

	// Raw log archive
	var archiver *s3archive.Archiver
	if cfg.Archive.Enabled {
		s3Client, err := s3archive.NewClient(ctx, cfg.Archive, slog.Default())
		if err != nil {
			slog.Error("failed to initialize s3 archive", "error", err)
			os.Exit(1)
		}
		archiver = s3archive.NewArchiver(s3Client, cfg.Archive.BatchSize, slog.Default())
	}

	// Findings producer
	var producer *kafka.Producer
	if cfg.Kafka.Enabled && cfg.Kafka.FindingsTopic != "" {
		producer, err = kafka.NewProducer(cfg.Kafka, slog.Default())
		if err != nil {
			slog.Error("failed to create kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
	}

	opts := orchestrator.Options{
		Events:      eventStore,
		Parallelism: cfg.Analysis.Parallelism,
		MaxBatch:    cfg.Analysis.MaxBatchSize,
	}
	if producer != nil {
		opts.Publisher = producer
	}
	if archiver != nil {
		opts.Archiver = archiver
	}

	// Kafka delivery is near-real-time; stale or clock-skewed records
	// are dropped rather than analyzed against the current windows.
	pars := parser.New(slog.Default())
	pars.EnforceFreshness(true)

	orch := orchestrator.New(pars, cls, detector, engine, configStore, opts, slog.Default())

	// Kafka raw-log consumer
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(cfg.Kafka, rawLogHandler(orch), slog.Default())
		if err != nil {
			slog.Error("failed to create kafka consumer", "error", err)
			os.Exit(1)
		}
		if err := consumer.Start(); err != nil {
			slog.Error("failed to start kafka consumer", "error", err)
			os.Exit(1)
		}
	}

	// Periodic campaign sweep and archive flush
	go func() {
		sweep := time.NewTicker(cfg.Analysis.SweepInterval)
		defer sweep.Stop()

		flushInterval := cfg.Archive.FlushInterval
		if flushInterval <= 0 {
			flushInterval = 30 * time.Second
		}
		flush := time.NewTicker(flushInterval)
		defer flush.Stop()

		// Campaigns idle past the default window resolve; organizations
		// with longer windows are swept via analyze_campaigns requests.
		window := alerting.DefaultOrgConfig("").Window()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sweep.C:
				resolved, removed, err := detector.SweepAll(ctx, window)
				if err != nil {
					slog.Error("campaign sweep failed", "error", err)
					continue
				}
				if resolved > 0 || removed > 0 {
					slog.Info("campaign sweep finished", "resolved", resolved, "removed", removed)
				}
			case <-flush.C:
				if archiver != nil {
					if err := archiver.Flush(ctx); err != nil {
						slog.Error("archive flush failed", "error", err)
					}
				}
			}
		}
	}()

	slog.Info("waf-sentinel started", "version", version)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			slog.Error("consumer stop error", "error", err)
		}
	}

	cancel()

	if archiver != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := archiver.Flush(flushCtx); err != nil {
			slog.Error("final archive flush failed", "error", err)
		}
		flushCancel()
	}

	slog.Info("shutdown complete")
}

// rawLogHandler adapts consumed Kafka messages into analyze_events
// invocations. The message key carries the organization ID and the
// value carries either one raw record or a JSON array of records.
func rawLogHandler(orch *orchestrator.Orchestrator) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		orgID := string(key)
		if orgID == "" {
			slog.Warn("raw log message without organization key, skipping")
			return nil
		}

		events := splitRecords(value)
		if len(events) == 0 {
			return nil
		}

		summary := orch.Analyze(ctx, orchestrator.Request{
			Type:           orchestrator.AnalyzeEvents,
			OrganizationID: orgID,
			Events:         events,
		})
		if !summary.Success {
			return fmt.Errorf("analysis failed: %v", summary.Errors)
		}
		return nil
	}
}

// splitRecords accepts either a JSON array of raw records or a single
// record object.
func splitRecords(value []byte) [][]byte {
	var batch []json.RawMessage
	if err := json.Unmarshal(value, &batch); err == nil {
		records := make([][]byte, len(batch))
		for i, raw := range batch {
			records[i] = []byte(raw)
		}
		return records
	}
	return [][]byte{value}
}

// defaultConfigSource serves the safe default when storage is
// disabled.
type defaultConfigSource struct{}

func (defaultConfigSource) GetOrgConfig(_ context.Context, orgID string) (alerting.OrgConfig, error) {
	return alerting.DefaultOrgConfig(orgID), nil
}
