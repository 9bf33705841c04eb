package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is the envelope written to the event topic.
type Event struct {
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventWriter publishes investigation lifecycle events to Kafka. Messages
// are keyed by session so one session's events stay ordered within a
// partition.
type EventWriter struct {
	writer *kafka.Writer
}

// NewEventWriter creates a writer for the event topic.
func NewEventWriter(brokers, topic string) *EventWriter {
	return &EventWriter{writer: &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}
}

// Publish writes one event.
func (w *EventWriter) Publish(ctx context.Context, kind string, payload map[string]any) error {
	msg, err := encodeEvent(kind, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (w *EventWriter) Close() error { return w.writer.Close() }

func encodeEvent(kind string, payload map[string]any, at time.Time) (kafka.Message, error) {
	value, err := json.Marshal(Event{Kind: kind, Timestamp: at, Payload: payload})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	msg := kafka.Message{Value: value, Time: at}
	if id, ok := payload["session_id"].(string); ok && id != "" {
		msg.Key = []byte(id)
	}
	return msg, nil
}
