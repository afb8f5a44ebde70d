package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestEmit_Envelope(t *testing.T) {
	w := &captureWriter{}
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	e := &Emitter{w: w, producer: "storefront-api", nowFunc: func() time.Time { return at }}

	err := e.Emit(context.Background(), TopicOrderCreated, EventOrderCreated, "order-1", OrderCreated{
		OrderID: "order-1", UserID: "u1", Total: 99.9,
		Items: []LineItem{{ProductID: "p1", Quantity: 1, Price: 84}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, TopicOrderCreated, m.Topic)
	assert.Equal(t, "order-1", string(m.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	assert.Equal(t, EventOrderCreated, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "storefront-api", env.Producer)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.True(t, env.OccurredAt.Equal(at))
	assert.NotEmpty(t, env.EventID)

	var p OrderCreated
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "p1", p.Items[0].ProductID)
}

func TestEmit_Errors(t *testing.T) {
	boom := errors.New("broker down")
	e := &Emitter{w: &captureWriter{err: boom}, nowFunc: time.Now}
	assert.ErrorIs(t, e.Emit(context.Background(), TopicOrderCancelled, EventOrderCancelled, "o", OrderCancelled{}), boom)
}

func TestNilEmitter(t *testing.T) {
	var e *Emitter
	assert.Nil(t, NewEmitter(nil, "x"))
	assert.NoError(t, e.Emit(context.Background(), TopicOrderCreated, EventOrderCreated, "o", nil))
	assert.NoError(t, e.Close())
}
