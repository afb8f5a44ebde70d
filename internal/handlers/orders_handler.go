package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerOrders(g *gin.RouterGroup) {
	g.GET("", a.listOrders)
	g.GET("/:id", a.getOrder)
	g.POST("", a.createOrder)
	g.PUT("/:id/status", a.updateOrderStatus)
	g.DELETE("/:id", a.cancelOrder)
}

func lineItems(items []orders.Item) []events.LineItem {
	out := make([]events.LineItem, len(items))
	for i, it := range items {
		out[i] = events.LineItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
	}
	return out
}

func (a *api) listOrders(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		badRequest(c, "invalid limit")
		return
	}
	list, err := a.Orders.List(c.Request.Context(), c.Query("userId"), c.Query("status"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": list, "count": len(list)})
}

func (a *api) getOrder(c *gin.Context) {
	o, err := a.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if o == nil {
		fail(c, orders.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": o})
}

// createOrder prices the coupon, if any, before reserving stock. The coupon
// is only redeemed once the payment is approved.
func (a *api) createOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	in := req.Input()
	if in.CouponCode != "" {
		quote, err := a.Engine.Validate(ctx, in.CouponCode, req.Subtotal, a.Now())
		if err != nil {
			fail(c, err)
			return
		}
		if !decimal.NewFromFloat(quote.Discount).Equal(decimal.NewFromFloat(req.Discount).Round(2)) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success":  false,
				"error":    "discount does not match coupon",
				"discount": quote.Discount,
			})
			return
		}
		in.CouponID = quote.Coupon.CouponID
	}

	o, err := a.Orders.CreateOrder(ctx, in)
	if err != nil {
		fail(c, err)
		return
	}

	a.Metrics.Count(ctx, aws.MetricOrdersCreated, 1)
	a.emit(ctx, events.TopicOrderCreated, events.EventOrderCreated, o.OrderID, events.OrderCreated{
		OrderID:    o.OrderID,
		UserID:     o.UserID,
		Items:      lineItems(o.Items),
		Total:      o.Total,
		CouponCode: o.CouponCode,
	})

	c.Header("Location", "/api/orders/"+o.OrderID)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "order created",
		"orderId": o.OrderID,
		"order":   o,
	})
}

func (a *api) updateOrderStatus(c *gin.Context) {
	ctx := c.Request.Context()
	var req validation.StatusUpdateRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	id := c.Param("id")
	expected := req.ExpectedStatus
	if expected == "" {
		o, err := a.Orders.Get(ctx, id)
		if err != nil {
			fail(c, err)
			return
		}
		if o == nil {
			fail(c, orders.ErrNotFound)
			return
		}
		expected = o.Status
	}

	if err := a.Orders.UpdateStatus(ctx, id, expected, req.Status); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "order status updated", "orderId": id, "status": req.Status})
}

func (a *api) cancelOrder(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := a.Orders.CancelOrder(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	a.Metrics.Count(ctx, aws.MetricOrdersCancelled, 1)
	a.emit(ctx, events.TopicOrderCancelled, events.EventOrderCancelled, o.OrderID, events.OrderCancelled{
		OrderID: o.OrderID,
		Reason:  "customer",
		Items:   lineItems(o.Items),
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "order cancelled", "orderId": o.OrderID})
}
