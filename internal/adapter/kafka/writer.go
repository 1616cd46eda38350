package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/config"
	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes synced outbreak events to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    500,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger, now: time.Now}
}

// Publish writes one message per event in a single WriteMessages call. Events
// are keyed by ID so every revision of an event lands on the same partition.
func (w *Writer) Publish(ctx context.Context, events []domain.OutbreakEvent) error {
	if len(events) == 0 {
		return nil
	}
	publishedAt := w.now().UTC()
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i], publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d events to %s: %w", len(msgs), w.writer.Topic, err)
	}
	w.logger.Debug("events published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an OutbreakEvent into a Kafka message.
func serializeToMessage(event domain.OutbreakEvent, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outbreak event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "country", Value: []byte(event.Country)},
			{Key: "disease", Value: []byte(event.Disease)},
			{Key: "grade", Value: []byte(event.Grade)},
			{Key: "year", Value: []byte(strconv.Itoa(event.Year))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
