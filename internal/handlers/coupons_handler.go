package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerCoupons(g *gin.RouterGroup) {
	g.GET("", a.listCoupons)
	g.POST("/validate", a.validateCoupon)
	g.POST("", a.createCoupon)
	g.PUT("/:id", a.updateCoupon)
	g.DELETE("/:id", a.deleteCoupon)
	g.PATCH("/:id/use", a.useCoupon)
}

func (a *api) listCoupons(c *gin.Context) {
	list, err := a.Coupons.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "coupons": list, "count": len(list)})
}

// validateCoupon prices a code against a subtotal. It never redeems.
func (a *api) validateCoupon(c *gin.Context) {
	var req validation.ValidateCouponRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	quote, err := a.Engine.Validate(c.Request.Context(), req.Code, req.Subtotal, a.Now())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "coupon": quote.Coupon, "discount": quote.Discount})
}

func (a *api) createCoupon(c *gin.Context) {
	var req validation.CreateCouponRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	cp, err := a.Coupons.Create(c.Request.Context(), req.Coupon())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "coupon created",
		"couponId": cp.CouponID,
		"coupon":   cp,
	})
}

func (a *api) updateCoupon(c *gin.Context) {
	var req validation.UpdateCouponRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	fields := req.Fields()
	if len(fields) == 0 {
		badRequest(c, "no fields to update")
		return
	}
	id := c.Param("id")
	if err := a.Coupons.Update(c.Request.Context(), id, fields); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "coupon updated", "couponId": id})
}

func (a *api) deleteCoupon(c *gin.Context) {
	id := c.Param("id")
	if err := a.Coupons.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "coupon deleted", "couponId": id})
}

// useCoupon redeems a coupon by hand. Orders redeem theirs when the payment
// is approved.
func (a *api) useCoupon(c *gin.Context) {
	id := c.Param("id")
	if err := a.Coupons.RecordUsage(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "coupon usage recorded", "couponId": id})
}
