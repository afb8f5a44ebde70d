package validation

import (
	"errors"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront/internal/orders"
)

// New returns a configured validator with custom struct-level validation registered.
// Field errors are reported under their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(createCouponStructValidation, CreateCouponRequest{})
	v.RegisterStructValidation(updateCouponStructValidation, UpdateCouponRequest{})

	return v
}

// createOrderStructValidation verifies subtotal and total against the items (to the cent).
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if len(req.Items) == 0 {
		return // reported by the field rules
	}

	if req.Discount > 0 && strings.TrimSpace(req.CouponCode) == "" {
		sl.ReportError(req.Discount, "discount", "Discount", "discount_requires_coupon", "")
	}

	in := req.Input()
	if err := orders.CheckTotals(in.Items, req.Subtotal, req.ShippingCost, req.Discount, req.Total); err != nil {
		sl.ReportError(req.Total, "total", "Total", "totals_match_items", err.Error())
	}
}

func createCouponStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateCouponRequest)
	if req.DiscountType == "percentage" && req.DiscountValue > 100 {
		sl.ReportError(req.DiscountValue, "discountValue", "DiscountValue", "percentage_max", "100")
	}
}

func updateCouponStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateCouponRequest)
	if req.DiscountType != nil && *req.DiscountType == "percentage" && req.DiscountValue != nil && *req.DiscountValue > 100 {
		sl.ReportError(*req.DiscountValue, "discountValue", "DiscountValue", "percentage_max", "100")
	}
}

// Fields flattens a validation error into field -> failed rule.
func Fields(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
		return out
	}
	out["error"] = err.Error()
	return out
}
