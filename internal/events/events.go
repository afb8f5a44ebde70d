// Package events publishes order lifecycle events to Kafka.
package events

import (
	"encoding/json"
	"time"
)

const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicPaymentUpdated = "order.payment.updated"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
	EventPaymentUpdated = "OrderPaymentUpdated"
)

// Envelope wraps every event on the wire.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type LineItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type OrderCreated struct {
	OrderID    string     `json:"order_id"`
	UserID     string     `json:"user_id"`
	Items      []LineItem `json:"items"`
	Total      float64    `json:"total"`
	CouponCode string     `json:"coupon_code,omitempty"`
}

type OrderCancelled struct {
	OrderID string     `json:"order_id"`
	Reason  string     `json:"reason"`
	Items   []LineItem `json:"items"`
}

type PaymentUpdated struct {
	OrderID        string `json:"order_id"`
	PaymentID      string `json:"payment_id"`
	PaymentStatus  string `json:"payment_status"`
	OrderStatus    string `json:"order_status"`
	CouponRedeemed bool   `json:"coupon_redeemed,omitempty"`
}
