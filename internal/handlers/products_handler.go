package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerProducts(g *gin.RouterGroup) {
	g.GET("", a.listProducts)
	g.GET("/:id", a.getProduct)
	g.POST("", a.createProduct)
	g.PUT("/:id", a.updateProduct)
	g.DELETE("/:id", a.deleteProduct)
	g.PATCH("/:id/stock", a.adjustStock)
}

func queryFloat(c *gin.Context, key string) (*float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

// maxListLimit bounds ?limit on every listing route.
const maxListLimit = 1000

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxListLimit {
		return 0, false
	}
	return n, true
}

func (a *api) listProducts(c *gin.Context) {
	f := catalog.Filter{Category: c.Query("category"), Search: c.Query("search")}
	var ok bool
	if f.MinPrice, ok = queryFloat(c, "minPrice"); !ok {
		badRequest(c, "invalid minPrice")
		return
	}
	if f.MaxPrice, ok = queryFloat(c, "maxPrice"); !ok {
		badRequest(c, "invalid maxPrice")
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		badRequest(c, "invalid limit")
		return
	}

	products, err := a.Products.List(c.Request.Context(), f, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": products, "count": len(products)})
}

func (a *api) getProduct(c *gin.Context) {
	p, err := a.Products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if p == nil {
		fail(c, catalog.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "product": p})
}

func (a *api) createProduct(c *gin.Context) {
	var req validation.CreateProductRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	p, err := a.Products.Create(c.Request.Context(), catalog.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Image:       req.Image,
		Stock:       req.Stock,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Location", "/api/products/"+p.ProductID)
	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   "product created",
		"productId": p.ProductID,
		"product":   p,
	})
}

func (a *api) updateProduct(c *gin.Context) {
	var req validation.UpdateProductRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	fields := req.Fields()
	if len(fields) == 0 {
		badRequest(c, "no fields to update")
		return
	}
	id := c.Param("id")
	if err := a.Products.Update(c.Request.Context(), id, fields); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "product updated", "productId": id})
}

func (a *api) deleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := a.Products.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "product deleted", "productId": id})
}

func (a *api) adjustStock(c *gin.Context) {
	var req validation.StockRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	op := catalog.StockOp(req.Operation)
	if op == "" {
		op = catalog.StockSet
	}
	n, err := a.Products.AdjustStock(c.Request.Context(), c.Param("id"), op, *req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "stock updated", "newStock": n})
}
