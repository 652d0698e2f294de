package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"waf-sentinel/internal/config"
)

// MessageHandler processes one consumed message. Return nil to commit
// the offset, or an error to leave it uncommitted for redelivery.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer reads raw firewall log batches from the raw-log topic.
type Consumer struct {
	reader  *kafka.Reader
	cfg     config.KafkaConfig
	logger  *slog.Logger
	handler MessageHandler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool
	started atomic.Bool
}

// NewConsumer creates a consumer on the raw-log topic.
func NewConsumer(cfg config.KafkaConfig, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if handler == nil {
		return nil, errors.New("kafka: message handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          cfg.RawLogTopic,
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024,
		MaxWait:        cfg.ReadTimeout,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())

	logger.Info("kafka consumer initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.RawLogTopic,
		"group", cfg.ConsumerGroup,
	)

	return &Consumer{
		reader:  reader,
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins consuming in a goroutine and returns immediately. Use
// Stop to shut down.
func (c *Consumer) Start() error {
	if c.started.Swap(true) {
		return errors.New("kafka: consumer already started")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.consumeLoop(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("consumer loop exited with error", "error", err)
		}
	}()

	c.logger.Info("kafka consumer started",
		"topic", c.cfg.RawLogTopic,
		"group", c.cfg.ConsumerGroup,
	)
	return nil
}

func (c *Consumer) consumeLoop() error {
	for {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}

		msg, err := c.reader.FetchMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			c.logger.Error("failed to fetch message",
				"error", err,
				"topic", c.cfg.RawLogTopic,
			)

			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}

		handleCtx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		err = c.handler(handleCtx, msg.Key, msg.Value)
		cancel()

		if err != nil {
			c.logger.Error("failed to process message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			// Leave the offset uncommitted so the message redelivers.
			continue
		}

		if err := c.reader.CommitMessages(c.ctx, msg); err != nil {
			c.logger.Error("failed to commit offset",
				"error", err,
				"offset", msg.Offset,
			)
		}
	}
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.cancel()
	c.wg.Wait()

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close consumer: %w", err)
	}
	return nil
}
