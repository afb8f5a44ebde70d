package idempotency

import (
	"errors"
	"time"
)

// Status values for notification entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

var (
	// ErrInProgress means another worker holds an unexpired claim on the key.
	ErrInProgress = errors.New("notification is being processed")
	ErrNotFound   = errors.New("notification not found")
)

// Record is the shape persisted in the notifications table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	Result         string    `dynamodbav:"result,omitempty"` // order status after applying
	Attempts       int       `dynamodbav:"attempts"`
	LeaseUntil     int64     `dynamodbav:"lease_until"` // epoch seconds
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// PaymentKey identifies one gateway status for one payment. A payment that
// moves pending -> approved yields two distinct keys.
func PaymentKey(paymentID, status string) string {
	return "payment:" + paymentID + ":" + status
}
