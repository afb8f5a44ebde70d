package coupons

import (
	"errors"
	"fmt"
	"time"
)

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool { return t == Percentage || t == Fixed }

// Coupon represents the item stored in the coupons table.
//
// MinPurchase, MaxDiscount and UsageLimit are optional; nil and zero both
// mean the rule is not set.
type Coupon struct {
	CouponID      string       `dynamodbav:"coupon_id" json:"id"` // PK
	Code          string       `dynamodbav:"code" json:"code"`    // GSI code-index, uppercase
	Description   string       `dynamodbav:"description,omitempty" json:"description,omitempty"`
	DiscountType  DiscountType `dynamodbav:"discount_type" json:"discountType"`
	DiscountValue float64      `dynamodbav:"discount_value" json:"discountValue"`
	MinPurchase   *float64     `dynamodbav:"min_purchase,omitempty" json:"minPurchase,omitempty"`
	MaxDiscount   *float64     `dynamodbav:"max_discount,omitempty" json:"maxDiscount,omitempty"`
	UsageLimit    *int         `dynamodbav:"usage_limit,omitempty" json:"usageLimit,omitempty"`
	UsageCount    int          `dynamodbav:"usage_count" json:"usageCount"`
	Active        bool         `dynamodbav:"active" json:"active"`
	ExpiresAt     *time.Time   `dynamodbav:"expires_at,omitempty" json:"expiresAt,omitempty"`
	CreatedAt     time.Time    `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `dynamodbav:"updated_at" json:"updatedAt"`
}

// Exhausted reports whether the usage limit, when set, has been reached.
func (c Coupon) Exhausted() bool {
	return setInt(c.UsageLimit) && c.UsageCount >= *c.UsageLimit
}

func setFloat(p *float64) bool { return p != nil && *p != 0 }
func setInt(p *int) bool { return p != nil && *p != 0 }

// DiscountQuote is the result of a successful validation.
type DiscountQuote struct {
	Coupon   Coupon  `json:"coupon"`
	Discount float64 `json:"discount"`
}

var (
	ErrInvalidInput  = errors.New("coupon code is required")
	ErrNotFound      = errors.New("coupon not found or invalid")
	ErrInactive      = errors.New("coupon is inactive")
	ErrExpired       = errors.New("coupon has expired")
	ErrExhausted     = errors.New("coupon usage limit reached")
	ErrBelowMinimum  = errors.New("minimum purchase not reached")
	ErrDuplicateCode = errors.New("coupon code already exists")
	ErrInvalidCoupon = errors.New("invalid coupon definition")
)

// MinimumError reports the minimum purchase a coupon requires.
type MinimumError struct {
	Minimum float64
}

func (e *MinimumError) Error() string {
	return fmt.Sprintf("minimum purchase of R$ %.2f not reached", e.Minimum)
}

func (e *MinimumError) Unwrap() error { return ErrBelowMinimum }
