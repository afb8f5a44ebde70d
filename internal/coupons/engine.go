package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Finder looks coupons up by their uppercase code. Returns (nil, nil) when
// no coupon carries the code.
type Finder interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Engine validates coupon codes and prices discounts. It never writes;
// redemption is Store.RecordUsage.
type Engine struct {
	coupons    Finder
	clampFixed bool
}

// NewEngine creates an Engine. When clampFixed is set, fixed discounts are
// also capped by MaxDiscount.
func NewEngine(f Finder, clampFixed bool) *Engine {
	return &Engine{coupons: f, clampFixed: clampFixed}
}

// Validate checks code against the coupon rules for a cart subtotal at now.
// The first failing rule decides the error.
func (e *Engine) Validate(ctx context.Context, code string, subtotal float64, now time.Time) (*DiscountQuote, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidInput
	}

	c, err := e.coupons.FindByCode(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if err := Check(*c, subtotal, now); err != nil {
		return nil, err
	}
	return &DiscountQuote{Coupon: *c, Discount: e.Discount(*c, subtotal)}, nil
}

// Check applies the eligibility rules in order: active, expiry, usage limit
// and minimum purchase.
func Check(c Coupon, subtotal float64, now time.Time) error {
	if !c.Active {
		return ErrInactive
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return ErrExpired
	}
	if c.Exhausted() {
		return ErrExhausted
	}
	if setFloat(c.MinPurchase) && subtotal < *c.MinPurchase {
		return &MinimumError{Minimum: *c.MinPurchase}
	}
	return nil
}

// Discount prices c against subtotal, rounded to the cent.
func (e *Engine) Discount(c Coupon, subtotal float64) float64 {
	var d decimal.Decimal
	switch c.DiscountType {
	case Percentage:
		d = decimal.NewFromFloat(subtotal).
			Mul(decimal.NewFromFloat(c.DiscountValue)).
			Div(decimal.NewFromInt(100))
		d = capAt(d, c.MaxDiscount)
	case Fixed:
		d = decimal.NewFromFloat(c.DiscountValue)
		if e.clampFixed {
			d = capAt(d, c.MaxDiscount)
		}
	}
	f, _ := d.Round(2).Float64()
	return f
}

func capAt(d decimal.Decimal, limit *float64) decimal.Decimal {
	if !setFloat(limit) {
		return d
	}
	m := decimal.NewFromFloat(*limit)
	if d.GreaterThan(m) {
		return m
	}
	return d
}
