package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/shipping"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerShipping(g *gin.RouterGroup) {
	g.POST("/calculate", a.calculateShipping)
	g.GET("/cep/:cep", a.lookupCEP)
}

func (a *api) calculateShipping(c *gin.Context) {
	var req validation.ShippingRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	q, err := a.Rates.Quote(req.CEP, req.Subtotal)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"shippingOptions": q.Options,
		"cepOrigem":       q.Origin,
		"cepDestino":      q.Destination,
	})
}

func (a *api) lookupCEP(c *gin.Context) {
	cep, err := shipping.NormalizeCEP(c.Param("cep"))
	if err != nil {
		fail(c, err)
		return
	}
	addr, err := a.Addresses.Lookup(c.Request.Context(), cep)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "address": addr})
}
