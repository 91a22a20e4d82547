// Package kafka publishes advisory events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/storm-tracker-service/internal/config"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
	json "github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces advisory events to the configured topic.
// It implements pipeline.EventPublisher.
type Writer struct {
	writer  messageWriter
	backoff time.Duration
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the advisory topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, backoff: initialBackoff, logger: logger.With("component", "kafka")}
}

// PublishAdvisories writes all events in one batch keyed by storm id, so
// every advisory of a storm lands on the same partition. A failed batch is
// retried with backoff before the error is returned.
func (w *Writer) PublishAdvisories(ctx context.Context, events []domain.AdvisoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	backoff := w.backoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		w.logger.Warn("advisory publish failed, retrying",
			"attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("publish %d advisory events: %w", len(events), err)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an AdvisoryEvent into a Kafka message.
func serializeToMessage(event domain.AdvisoryEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize advisory event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.StormID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "ingested_at", Value: []byte(event.IngestedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
