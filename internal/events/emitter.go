package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Emitter writes enveloped events keyed by order id, so each order's events
// stay ordered within a partition. A nil *Emitter drops everything.
type Emitter struct {
	w        messageWriter
	producer string
	nowFunc  func() time.Time
}

// NewEmitter returns nil when no brokers are configured. Writes are
// synchronous: a Lambda may be frozen before an async batch flushes.
func NewEmitter(brokers []string, producer string) *Emitter {
	if len(brokers) == 0 {
		return nil
	}
	return &Emitter{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		producer: producer,
		nowFunc:  time.Now,
	}
}

// Emit publishes payload on topic under the given event type.
func (e *Emitter) Emit(ctx context.Context, topic, eventType, orderID string, payload any) error {
	if e == nil {
		return nil
	}
	p, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    e.nowFunc().UTC(),
		Producer:      e.producer,
		CorrelationID: orderID,
		Payload:       p,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	err = e.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(orderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.w.Close()
}
