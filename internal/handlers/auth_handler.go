package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/users"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerAuth(g *gin.RouterGroup) {
	g.POST("/verify", a.verifyToken)
	g.POST("/user/:uid/address", a.addAddress)
	g.PUT("/user/:uid/wishlist", a.updateWishlist)
}

// verifyToken checks an ID token and creates the user on first sign-in.
func (a *api) verifyToken(c *gin.Context) {
	ctx := c.Request.Context()
	var req validation.VerifyTokenRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	claims, err := a.Verifier.Verify(ctx, req.IDToken)
	if err != nil {
		fail(c, err)
		return
	}
	u, created, err := a.Users.EnsureUser(ctx, *claims)
	if err != nil {
		fail(c, err)
		return
	}
	if created {
		log.Printf("[auth] created user %s", u.UID)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

func (a *api) addAddress(c *gin.Context) {
	var req validation.Address
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	u, err := a.Users.AddAddress(c.Request.Context(), c.Param("uid"), req.UserAddress())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "address added", "addresses": u.Addresses})
}

func (a *api) updateWishlist(c *gin.Context) {
	var req validation.WishlistRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	u, err := a.Users.UpdateWishlist(c.Request.Context(), c.Param("uid"), req.ProductID, users.WishlistAction(req.Action))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "wishlist updated", "wishlist": u.Wishlist})
}
