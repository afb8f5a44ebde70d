package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/coupons"
	"github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/identity"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/shipping"
	"github.com/imrishuroy/go-storefront/internal/users"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// PaymentQueue hands gateway notifications to the worker.
type PaymentQueue interface {
	Send(ctx context.Context, body any, attributes map[string]string) error
}

// Deps groups the dependencies of every route.
type Deps struct {
	Products  *catalog.Store
	Coupons   *coupons.Store
	Engine    *coupons.Engine
	Orders    *orders.Store
	Users     *users.Store
	Verifier  identity.Verifier
	Gateway   payments.Gateway
	Queue     PaymentQueue
	Rates     shipping.Table
	Addresses shipping.AddressLookup
	Events    *events.Emitter
	Metrics   *aws.Metrics

	FrontendURL string
	BackendURL  string
	Now         func() time.Time
}

type api struct {
	Deps
	v *validatorv10.Validate
}

// Register mounts every resource under /api.
func Register(r *gin.Engine, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	a := &api{Deps: d, v: validation.New()}

	g := r.Group("/api")
	a.registerProducts(g.Group("/products"))
	a.registerOrders(g.Group("/orders"))
	a.registerCoupons(g.Group("/coupons"))
	a.registerAuth(g.Group("/auth"))
	a.registerPayments(g.Group("/payments"))
	a.registerShipping(g.Group("/shipping"))
}

// CORS allows the storefront SPA to call the API from another origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// statusFor maps domain errors to HTTP statuses. Anything unknown is an
// upstream failure.
func statusFor(err error) int {
	var apiErr *payments.APIError
	switch {
	case errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, orders.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidInput),
		errors.Is(err, coupons.ErrInvalidInput),
		errors.Is(err, coupons.ErrInactive),
		errors.Is(err, coupons.ErrExpired),
		errors.Is(err, coupons.ErrExhausted),
		errors.Is(err, coupons.ErrBelowMinimum),
		errors.Is(err, coupons.ErrInvalidCoupon),
		errors.Is(err, catalog.ErrInvalidStockOp),
		errors.Is(err, users.ErrInvalidAction),
		errors.Is(err, shipping.ErrInvalidCEP):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, coupons.ErrNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, shipping.ErrNotFound),
		errors.Is(err, payments.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidState),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrStatusMismatch),
		errors.Is(err, orders.ErrContention),
		errors.Is(err, coupons.ErrDuplicateCode):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response. Server-side failures are logged and their
// detail withheld.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"success": false, "error": err.Error()}
	if status >= http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
		if status == http.StatusInternalServerError {
			body["error"] = "internal_error"
		}
	}
	var se *orders.StockError
	if errors.As(err, &se) {
		body["productId"] = se.ProductID
		body["available"] = se.Available
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// emit publishes an event without failing the request.
func (a *api) emit(ctx context.Context, topic, eventType, orderID string, payload any) {
	if err := a.Events.Emit(ctx, topic, eventType, orderID, payload); err != nil {
		log.Printf("[events] %s for order %s: %v", eventType, orderID, err)
	}
}
