package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"custody-vault/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter creates a synchronous writer for topic. Messages are hashed by
// key so one actor's events stay on one partition, in order.
func NewWriter(brokers []string, topic string, log zerolog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Warn().Str("component", "kafka").Msgf(msg, args...)
		}),
	}
}

// EventPublisher implements ports.EventPublisher on a Kafka topic.
type EventPublisher struct {
	writer MessageWriter
}

// NewEventPublisher creates a publisher writing through w.
func NewEventPublisher(w MessageWriter) *EventPublisher {
	return &EventPublisher{writer: w}
}

func (p *EventPublisher) Name() string { return "kafka" }

// Publish writes the event payload keyed by actor address. The event type
// and its Keccak topic travel as headers.
func (p *EventPublisher) Publish(ctx context.Context, event *domain.Event) error {
	body, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("kafka publish: marshal payload: %w", err)
	}

	msg := kafka.Message{
		Key:   event.Actor.Bytes(),
		Value: body,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "topic0", Value: []byte(event.Type.Topic().Hex())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event.ID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
