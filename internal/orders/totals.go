package orders

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CheckTotals verifies subtotal = Σ price×quantity and
// total = subtotal + shipping - discount, to the cent.
func CheckTotals(items []Item, subtotal, shipping, discount, total float64) error {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	sub := decimal.NewFromFloat(subtotal)
	if !sum.Round(2).Equal(sub.Round(2)) {
		return fmt.Errorf("%w: subtotal %.2f does not match items (%s)", ErrInvalidInput, subtotal, sum.StringFixed(2))
	}
	want := sub.Add(decimal.NewFromFloat(shipping)).Sub(decimal.NewFromFloat(discount))
	if !want.Round(2).Equal(decimal.NewFromFloat(total).Round(2)) {
		return fmt.Errorf("%w: total %.2f, expected %s", ErrInvalidInput, total, want.StringFixed(2))
	}
	return nil
}

// Validate checks the shape of an order before any stock is read.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidInput)
	}
	for _, it := range in.Items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price < 0 {
			return fmt.Errorf("%w: bad line for product %q", ErrInvalidInput, it.ProductID)
		}
	}
	if n := len(mergeItems(in.Items)); n > MaxDistinctItems {
		return fmt.Errorf("%w: %d distinct products, at most %d", ErrInvalidInput, n, MaxDistinctItems)
	}
	if in.ShippingCost < 0 || in.Discount < 0 {
		return fmt.Errorf("%w: negative shipping or discount", ErrInvalidInput)
	}
	return CheckTotals(in.Items, in.Subtotal, in.ShippingCost, in.Discount, in.Total)
}
