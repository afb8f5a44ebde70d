package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func validOrder() CreateOrderRequest {
	return CreateOrderRequest{
		UserID: "u-123",
		Items: []Item{
			{ProductID: "p-1", Quantity: 2, Price: 10.0},
			{ProductID: "p-2", Quantity: 1, Price: 5.5},
		},
		ShippingAddress: Address{Street: "Av. Paulista", Number: "1000", City: "São Paulo", State: "SP", ZipCode: "01310100"},
		PaymentMethod:   "pix",
		Subtotal:        25.5, // 2*10 + 1*5.5 = 25.5
		ShippingCost:    15.9,
		Discount:        2.55,
		Total:           38.85,
		CouponCode:      "bemvindo10",
	}
}

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()
	if err := v.Struct(validOrder()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_TotalsMismatch(t *testing.T) {
	v := New()

	req := validOrder()
	req.Total = 38.84
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected validation error for total mismatch, got nil")
	}
	if got := Fields(err)["total"]; got != "totals_match_items" {
		t.Fatalf("expected totals_match_items on total, got %v", Fields(err))
	}

	req = validOrder()
	req.Subtotal = 25
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for subtotal mismatch, got nil")
	}
}

func TestCreateOrderRequest_DiscountNeedsCoupon(t *testing.T) {
	v := New()

	req := validOrder()
	req.CouponCode = ""
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected error for discount without coupon")
	}
	if Fields(err)["discount"] != "discount_requires_coupon" {
		t.Fatalf("unexpected fields %v", Fields(err))
	}
}

func TestCreateOrderRequest_MissingFields(t *testing.T) {
	v := New()

	req := CreateOrderRequest{
		// UserID missing
		Items: []Item{},
	}
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
	f := Fields(err)
	for _, name := range []string{"userId", "items", "paymentMethod", "street"} {
		if _, ok := f[name]; !ok {
			t.Fatalf("expected %s in %v", name, f)
		}
	}
}

func TestCreateOrderRequest_Input(t *testing.T) {
	in := validOrder().Input()
	if in.CouponCode != "BEMVINDO10" {
		t.Fatalf("coupon code not normalised: %q", in.CouponCode)
	}
	if len(in.Items) != 2 || in.Items[0].ProductID != "p-1" || in.ShippingAddress.ZipCode != "01310100" {
		t.Fatalf("bad conversion %+v", in)
	}
}

func TestCouponRequests(t *testing.T) {
	v := New()

	create := CreateCouponRequest{Code: "BLACK40", DiscountType: "percentage", DiscountValue: 140}
	if err := v.Struct(create); err == nil || Fields(err)["discountValue"] != "percentage_max" {
		t.Fatalf("expected percentage_max, got %v", err)
	}
	create.DiscountValue = 40
	if err := v.Struct(create); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if c := create.Coupon(); !c.Active {
		t.Fatalf("coupons default to active")
	}

	kind := "bogus"
	if err := v.Struct(UpdateCouponRequest{DiscountType: &kind}); err == nil {
		t.Fatal("expected oneof failure")
	}

	active := false
	limit := 10
	fields := UpdateCouponRequest{Active: &active, UsageLimit: &limit}.Fields()
	if len(fields) != 2 || fields["active"] != false || fields["usage_limit"] != 10 {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestStockAndWishlistRequests(t *testing.T) {
	v := New()

	if err := v.Struct(StockRequest{}); err == nil {
		t.Fatal("quantity is required")
	}
	q := 3
	if err := v.Struct(StockRequest{Quantity: &q, Operation: "multiply"}); err == nil {
		t.Fatal("expected oneof failure for operation")
	}
	if err := v.Struct(StockRequest{Quantity: &q}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := v.Struct(WishlistRequest{ProductID: "p", Action: "toggle"}); err == nil {
		t.Fatal("expected oneof failure for action")
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"code":`, "invalid_request_body"},
		{"invalid", `{"code":"","subtotal":-1}`, "validation_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req ValidateCouponRequest
			if err := BindAndValidate(c, &req, v); err == nil {
				t.Fatal("expected error")
			}
			if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), tc.want) {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}
