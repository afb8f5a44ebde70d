package users

import (
	"errors"
	"time"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrInvalidAction = errors.New("invalid wishlist action")
)

// WishlistAction is the change UpdateWishlist applies.
type WishlistAction string

const (
	WishlistAdd    WishlistAction = "add"
	WishlistRemove WishlistAction = "remove"
)

type Address struct {
	Label        string `dynamodbav:"label,omitempty" json:"label,omitempty"`
	Recipient    string `dynamodbav:"recipient,omitempty" json:"recipient,omitempty"`
	Street       string `dynamodbav:"street" json:"street"`
	Number       string `dynamodbav:"number" json:"number"`
	Complement   string `dynamodbav:"complement,omitempty" json:"complement,omitempty"`
	Neighborhood string `dynamodbav:"neighborhood,omitempty" json:"neighborhood,omitempty"`
	City         string `dynamodbav:"city" json:"city"`
	State        string `dynamodbav:"state" json:"state"`
	ZipCode      string `dynamodbav:"zip_code" json:"zipCode"`
}

type CartItem struct {
	ProductID string `dynamodbav:"product_id" json:"productId"`
	Quantity  int    `dynamodbav:"quantity" json:"quantity"`
}

// User represents the item stored in the users table.
type User struct {
	UID         string     `dynamodbav:"uid" json:"uid"` // PK, identity provider subject
	Email       string     `dynamodbav:"email" json:"email"`
	DisplayName string     `dynamodbav:"display_name" json:"displayName"`
	PhotoURL    string     `dynamodbav:"photo_url,omitempty" json:"photoURL,omitempty"`
	Role        string     `dynamodbav:"role" json:"role"`
	Cart        []CartItem `dynamodbav:"cart" json:"cart"`
	Wishlist    []string   `dynamodbav:"wishlist,stringset,omitempty" json:"wishlist"` // empty sets are not storable
	Addresses   []Address  `dynamodbav:"addresses" json:"addresses"`
	CreatedAt   time.Time  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `dynamodbav:"updated_at" json:"updatedAt"`
}

// normalize turns absent collections into empty ones for responses.
func (u *User) normalize() {
	if u.Cart == nil {
		u.Cart = []CartItem{}
	}
	if u.Wishlist == nil {
		u.Wishlist = []string{}
	}
	if u.Addresses == nil {
		u.Addresses = []Address{}
	}
}
