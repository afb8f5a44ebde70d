package validation

import (
	"strings"
	"time"

	"github.com/imrishuroy/go-storefront/internal/coupons"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/users"
)

// Item represents a single order line item.
type Item struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	Price     float64 `json:"price" validate:"gte=0"` // unit price shown at checkout
}

type Address struct {
	Label        string `json:"label"`
	Recipient    string `json:"recipient"`
	Street       string `json:"street" validate:"required"`
	Number       string `json:"number" validate:"required"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required"`
	ZipCode      string `json:"zipCode" validate:"required"`
}

// CreateOrderRequest is the payload for POST /api/orders
type CreateOrderRequest struct {
	UserID          string  `json:"userId" validate:"required"`
	Items           []Item  `json:"items" validate:"required,min=1,max=99,dive"`
	ShippingAddress Address `json:"shippingAddress" validate:"required"`
	PaymentMethod   string  `json:"paymentMethod" validate:"required"`
	Subtotal        float64 `json:"subtotal" validate:"gte=0"`
	ShippingCost    float64 `json:"shippingCost" validate:"gte=0"`
	Discount        float64 `json:"discount" validate:"gte=0"` // must match the coupon quote
	Total           float64 `json:"total" validate:"gte=0"`
	CouponCode      string  `json:"couponCode"`
}

// Input converts the request into the order store's input.
func (r CreateOrderRequest) Input() orders.CreateInput {
	items := make([]orders.Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = orders.Item{ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity, Price: it.Price}
	}
	a := r.ShippingAddress
	return orders.CreateInput{
		UserID: r.UserID,
		Items:  items,
		ShippingAddress: orders.Address{
			Recipient:    a.Recipient,
			Street:       a.Street,
			Number:       a.Number,
			Complement:   a.Complement,
			Neighborhood: a.Neighborhood,
			City:         a.City,
			State:        a.State,
			ZipCode:      a.ZipCode,
		},
		PaymentMethod: r.PaymentMethod,
		Subtotal:      r.Subtotal,
		ShippingCost:  r.ShippingCost,
		Discount:      r.Discount,
		Total:         r.Total,
		CouponCode:    strings.ToUpper(strings.TrimSpace(r.CouponCode)),
	}
}

// StatusUpdateRequest is the payload for PUT /api/orders/:id/status.
// ExpectedStatus defaults to the order's current status.
type StatusUpdateRequest struct {
	Status         string `json:"status" validate:"required,oneof=processing shipped delivered"`
	ExpectedStatus string `json:"expectedStatus" validate:"omitempty,oneof=pending processing shipped"`
}

type CreateProductRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category" validate:"required"`
	Image       string  `json:"image" validate:"omitempty,url"`
	Stock       int     `json:"stock" validate:"gte=0"`
}

// UpdateProductRequest is a partial update; nil fields are left alone.
type UpdateProductRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Category    *string  `json:"category" validate:"omitempty,min=1"`
	Image       *string  `json:"image" validate:"omitempty,url"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0"`
}

// Fields returns the set fields keyed by stored attribute name.
func (r UpdateProductRequest) Fields() map[string]any {
	out := map[string]any{}
	if r.Name != nil {
		out["name"] = *r.Name
	}
	if r.Description != nil {
		out["description"] = *r.Description
	}
	if r.Price != nil {
		out["price"] = *r.Price
	}
	if r.Category != nil {
		out["category"] = *r.Category
	}
	if r.Image != nil {
		out["image"] = *r.Image
	}
	if r.Stock != nil {
		out["stock"] = *r.Stock
	}
	return out
}

// StockRequest is the payload for PATCH /api/products/:id/stock
type StockRequest struct {
	Quantity  *int   `json:"quantity" validate:"required,gte=0"`
	Operation string `json:"operation" validate:"omitempty,oneof=set increment decrement"` // default set
}

type ValidateCouponRequest struct {
	Code     string  `json:"code" validate:"required"`
	Subtotal float64 `json:"subtotal" validate:"gte=0"`
}

type CreateCouponRequest struct {
	Code          string     `json:"code" validate:"required,min=3,max=32"`
	Description   string     `json:"description"`
	DiscountType  string     `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue float64    `json:"discountValue" validate:"gt=0"`
	MinPurchase   *float64   `json:"minPurchase" validate:"omitempty,gte=0"`
	MaxDiscount   *float64   `json:"maxDiscount" validate:"omitempty,gte=0"`
	UsageLimit    *int       `json:"usageLimit" validate:"omitempty,gte=0"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	Active        *bool      `json:"active"` // default true
}

// Coupon converts the request into a coupon to persist.
func (r CreateCouponRequest) Coupon() coupons.Coupon {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return coupons.Coupon{
		Code:          r.Code,
		Description:   r.Description,
		DiscountType:  coupons.DiscountType(r.DiscountType),
		DiscountValue: r.DiscountValue,
		MinPurchase:   r.MinPurchase,
		MaxDiscount:   r.MaxDiscount,
		UsageLimit:    r.UsageLimit,
		ExpiresAt:     r.ExpiresAt,
		Active:        active,
	}
}

// UpdateCouponRequest is a partial update; nil fields are left alone.
type UpdateCouponRequest struct {
	Code          *string    `json:"code" validate:"omitempty,min=3,max=32"`
	Description   *string    `json:"description"`
	DiscountType  *string    `json:"discountType" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue *float64   `json:"discountValue" validate:"omitempty,gt=0"`
	MinPurchase   *float64   `json:"minPurchase" validate:"omitempty,gte=0"`
	MaxDiscount   *float64   `json:"maxDiscount" validate:"omitempty,gte=0"`
	UsageLimit    *int       `json:"usageLimit" validate:"omitempty,gte=0"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	Active        *bool      `json:"active"`
}

// Fields returns the set fields keyed by stored attribute name.
func (r UpdateCouponRequest) Fields() map[string]any {
	out := map[string]any{}
	if r.Code != nil {
		out["code"] = *r.Code
	}
	if r.Description != nil {
		out["description"] = *r.Description
	}
	if r.DiscountType != nil {
		out["discount_type"] = *r.DiscountType
	}
	if r.DiscountValue != nil {
		out["discount_value"] = *r.DiscountValue
	}
	if r.MinPurchase != nil {
		out["min_purchase"] = *r.MinPurchase
	}
	if r.MaxDiscount != nil {
		out["max_discount"] = *r.MaxDiscount
	}
	if r.UsageLimit != nil {
		out["usage_limit"] = *r.UsageLimit
	}
	if r.ExpiresAt != nil {
		out["expires_at"] = *r.ExpiresAt
	}
	if r.Active != nil {
		out["active"] = *r.Active
	}
	return out
}

type VerifyTokenRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// UserAddress converts the address for the users table.
func (a Address) UserAddress() users.Address {
	return users.Address{
		Label:        a.Label,
		Recipient:    a.Recipient,
		Street:       a.Street,
		Number:       a.Number,
		Complement:   a.Complement,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
		ZipCode:      a.ZipCode,
	}
}

type WishlistRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=add remove"`
}

type PreferenceItem struct {
	Name     string  `json:"name" validate:"required"`
	Quantity int     `json:"quantity" validate:"required,min=1"`
	Price    float64 `json:"price" validate:"gt=0"`
}

type PayerPhone struct {
	AreaCode string `json:"areaCode"`
	Number   string `json:"number"`
}

type PayerAddress struct {
	ZipCode string `json:"zipCode"`
	Street  string `json:"street"`
	Number  string `json:"number"`
}

type Payer struct {
	Name    string       `json:"name" validate:"required"`
	Email   string       `json:"email" validate:"required,email"`
	Phone   PayerPhone   `json:"phone"`
	Address PayerAddress `json:"address"`
}

type BackURLs struct {
	Success string `json:"success" validate:"omitempty,url"`
	Failure string `json:"failure" validate:"omitempty,url"`
	Pending string `json:"pending" validate:"omitempty,url"`
}

// CreatePreferenceRequest is the payload for POST /api/payments/create-preference
type CreatePreferenceRequest struct {
	OrderID  string           `json:"orderId" validate:"required"`
	Items    []PreferenceItem `json:"items" validate:"required,min=1,dive"`
	Payer    Payer            `json:"payer" validate:"required"`
	BackURLs *BackURLs        `json:"backUrls"`
}

// Preference converts the request into the gateway body. Defaults are
// applied by the caller.
func (r CreatePreferenceRequest) Preference() payments.PreferenceRequest {
	items := make([]payments.PreferenceItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = payments.PreferenceItem{Title: it.Name, Quantity: it.Quantity, UnitPrice: it.Price}
	}
	p := payments.PreferenceRequest{
		Items: items,
		Payer: payments.Payer{
			Name:  r.Payer.Name,
			Email: r.Payer.Email,
			Phone: payments.Phone{AreaCode: r.Payer.Phone.AreaCode, Number: r.Payer.Phone.Number},
			Address: payments.PayerAddress{
				ZipCode:      r.Payer.Address.ZipCode,
				StreetName:   r.Payer.Address.Street,
				StreetNumber: r.Payer.Address.Number,
			},
		},
		ExternalReference: r.OrderID,
	}
	if r.BackURLs != nil {
		p.BackURLs = payments.BackURLs{Success: r.BackURLs.Success, Failure: r.BackURLs.Failure, Pending: r.BackURLs.Pending}
	}
	return p
}

type ShippingRequest struct {
	CEP      string  `json:"cepDestino" validate:"required"`
	Subtotal float64 `json:"subtotal" validate:"gte=0"`
}
