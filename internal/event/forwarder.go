package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// Forwarder relays bus events to the notification topic. It runs as a
// supervised service; without a writer it only logs the events.
type Forwarder struct {
	bus          Bus
	writer       MessageWriter
	topic        string
	writeTimeout time.Duration
}

func NewForwarder(bus Bus, writer MessageWriter, topic string) *Forwarder {
	return &Forwarder{bus: bus, writer: writer, topic: topic, writeTimeout: 5 * time.Second}
}

func (f *Forwarder) String() string {
	return "notification forwarder"
}

func (f *Forwarder) Serve(ctx context.Context) error {
	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			f.forward(ctx, e)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, e Event) {
	if f.writer == nil {
		slog.Info("notification", "event_type", e.Type, "event_id", e.ID, "recipients", e.Recipients)
		return
	}

	value, err := json.Marshal(e)
	if err != nil {
		slog.Error("failed to encode notification", "event_id", e.ID, "error", err)
		return
	}

	key := e.ID
	if len(e.Recipients) > 0 {
		key = e.Recipients[0]
	}

	writeCtx, cancel := context.WithTimeout(ctx, f.writeTimeout)
	defer cancel()

	if err := f.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		slog.Error("failed to send Kafka message", "topic", f.topic, "event_type", e.Type, "error", err)
		return
	}
	slog.Debug("Kafka message sent", "topic", f.topic, "event_type", e.Type, "event_id", e.ID)
}
