package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"vitalflow/internal/logger"
	"vitalflow/internal/metrics"
)

// Kafka bus errors
var (
	ErrBusClosed       = errors.New("bus is closed")
	ErrSerializeFailed = errors.New("failed to serialize message")
)

// KafkaConfig tunes the Kafka-backed bus
type KafkaConfig struct {
	Brokers      []string
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
	MinBytes     int
	MaxBytes     int
}

// KafkaBus implements Bus on top of Kafka. Publishing retries with
// exponential backoff; consuming uses consumer groups with explicit commits
// after the handler runs, which yields at-least-once delivery.
type KafkaBus struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	closed atomic.Bool

	mu      sync.Mutex
	readers []*kafka.Reader

	// Metrics
	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
}

// NewKafkaBus creates a Kafka-backed bus
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 * 1024 * 1024 // 10MB
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{}, // partition by key
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1, // retries handled here, with backoff
		Async:        false,
	}

	return &KafkaBus{cfg: cfg, writer: writer}, nil
}

// Publish serializes the payload to JSON and writes it to the topic,
// retrying with exponential backoff.
func (b *KafkaBus) Publish(ctx context.Context, topic, key string, payload any) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.messagesFailed.Add(1)
		metrics.BusPublishTotal.WithLabelValues(topic, "failed").Inc()
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now().UTC(),
	}

	start := time.Now()
	err = b.publishWithRetry(ctx, msg)
	metrics.BusPublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		b.messagesFailed.Add(1)
		metrics.BusPublishTotal.WithLabelValues(topic, "failed").Inc()
		return err
	}

	b.messagesSent.Add(1)
	metrics.BusPublishTotal.WithLabelValues(topic, "success").Inc()
	return nil
}

// publishWithRetry publishes a single message with exponential backoff retry
func (b *KafkaBus) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	log := logger.WithComponent("kafka_bus")
	var lastErr error
	backoff := b.cfg.RetryBackoff

	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Str("topic", msg.Topic).
				Msg("retrying bus publish")

			metrics.BusPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := b.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("topic", msg.Topic).
			Msg("bus publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", b.cfg.MaxRetries+1, lastErr)
}

// Consume joins the consumer group and processes messages one at a time.
// The offset is committed after the handler returns, whether or not it
// returned an error: handlers own their failure policy, and an uncommitted
// crash yields redelivery.
func (b *KafkaBus) Consume(ctx context.Context, topic, group string, h Handler) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	log := logger.WithComponent("kafka_bus").With().
		Str("topic", topic).
		Str("group", group).
		Logger()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.cfg.Brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: b.cfg.MinBytes,
		MaxBytes: b.cfg.MaxBytes,
	})

	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	log.Info().Msg("consumer joined")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("fetch failed")
			return err
		}

		if err := h(ctx, Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}); err != nil {
			log.Warn().
				Err(err).
				Int64("offset", msg.Offset).
				Msg("handler failed, message skipped")
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			// Redelivery after restart is acceptable; the consumer side is
			// idempotent.
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("commit failed")
		}
	}
}

// Close closes the writer and any readers
func (b *KafkaBus) Close() error {
	if b.closed.Swap(true) {
		return nil // already closed
	}

	var errs []error
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}

	b.mu.Lock()
	readers := b.readers
	b.readers = nil
	b.mu.Unlock()

	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing bus: %v", errs)
	}
	return nil
}

// Stats returns publisher statistics
func (b *KafkaBus) Stats() Stats {
	return Stats{
		MessagesSent:   b.messagesSent.Load(),
		MessagesFailed: b.messagesFailed.Load(),
	}
}

// Stats holds bus publish counters
type Stats struct {
	MessagesSent   uint64
	MessagesFailed uint64
}
