package orders

import (
	"errors"
	"fmt"
	"time"
)

// Order statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Payment statuses. Gateway statuses other than approved and rejected are
// recorded verbatim.
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
	PaymentRefunded = "refunded"
)

// MaxDistinctItems is the number of products one order may reference. A
// transaction holds at most 100 actions and the order put takes one.
const MaxDistinctItems = 99

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidInput      = errors.New("invalid order")
	ErrInvalidState      = errors.New("only pending orders can be cancelled")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStatusMismatch    = errors.New("status mismatch/conditional failed")
	ErrContention        = errors.New("transaction aborted after repeated conflicts")
)

// ProductError names the product an order referenced that does not exist.
type ProductError struct {
	ProductID string
}

func (e *ProductError) Error() string { return fmt.Sprintf("product not found: %s", e.ProductID) }
func (e *ProductError) Unwrap() error { return ErrProductNotFound }

// StockError reports the stock left for a product that could not cover an item.
type StockError struct {
	ProductID string
	Name      string
	Available int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s, available: %d", name, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Item is one order line. Price is the unit price the customer saw.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Name      string  `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	Price     float64 `dynamodbav:"price" json:"price"`
}

type Address struct {
	Recipient    string `dynamodbav:"recipient,omitempty" json:"recipient,omitempty"`
	Street       string `dynamodbav:"street" json:"street"`
	Number       string `dynamodbav:"number" json:"number"`
	Complement   string `dynamodbav:"complement,omitempty" json:"complement,omitempty"`
	Neighborhood string `dynamodbav:"neighborhood,omitempty" json:"neighborhood,omitempty"`
	City         string `dynamodbav:"city" json:"city"`
	State        string `dynamodbav:"state" json:"state"`
	ZipCode      string `dynamodbav:"zip_code" json:"zipCode"`
}

// Order represents the item stored in the orders table.
type Order struct {
	OrderID         string    `dynamodbav:"order_id" json:"id"`    // PK
	UserID          string    `dynamodbav:"user_id" json:"userId"` // GSI user-index with created_at
	Items           []Item    `dynamodbav:"items" json:"items"`
	ShippingAddress Address   `dynamodbav:"shipping_address" json:"shippingAddress"`
	PaymentMethod   string    `dynamodbav:"payment_method" json:"paymentMethod"`
	Subtotal        float64   `dynamodbav:"subtotal" json:"subtotal"`
	ShippingCost    float64   `dynamodbav:"shipping_cost" json:"shippingCost"`
	Discount        float64   `dynamodbav:"discount" json:"discount"`
	Total           float64   `dynamodbav:"total" json:"total"`
	CouponCode      string    `dynamodbav:"coupon_code,omitempty" json:"couponCode,omitempty"`
	CouponID        string    `dynamodbav:"coupon_id,omitempty" json:"couponId,omitempty"`
	Status          string    `dynamodbav:"status" json:"status"`                 // pending | processing | shipped | delivered | cancelled
	PaymentStatus   string    `dynamodbav:"payment_status" json:"paymentStatus"` // pending | approved | rejected | ...
	PaymentID       string    `dynamodbav:"payment_id,omitempty" json:"paymentId,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// CreateInput carries everything CreateOrder persists. CouponID is the coupon
// resolved from CouponCode, if any.
type CreateInput struct {
	UserID          string
	Items           []Item
	ShippingAddress Address
	PaymentMethod   string
	Subtotal        float64
	ShippingCost    float64
	Discount        float64
	Total           float64
	CouponCode      string
	CouponID        string
}

// PaymentUpdate is the outcome of ApplyPayment.
type PaymentUpdate struct {
	Order          *Order
	Changed        bool // false when the notification repeated the stored status
	CouponRedeemed bool
	StockRestored  bool
}

// adminTransitions are the status steps an operator may take by hand.
var adminTransitions = map[string]map[string]bool{
	StatusPending:    {StatusProcessing: true},
	StatusProcessing: {StatusShipped: true},
	StatusShipped:    {StatusDelivered: true},
}

// CanTransition reports whether an operator may move an order from -> to.
// Cancellation goes through CancelOrder instead.
func CanTransition(from, to string) bool {
	return adminTransitions[from][to]
}
