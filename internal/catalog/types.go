package catalog

import (
	"errors"
	"time"
)

const placeholderImage = "https://placehold.co/400x500/cccccc/ffffff?text=Produto"

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents the item stored in the products table.
type Product struct {
	ProductID   string    `dynamodbav:"product_id" json:"id"` // PK
	Name        string    `dynamodbav:"name" json:"name"`
	Description string    `dynamodbav:"description" json:"description"`
	Price       float64   `dynamodbav:"price" json:"price"`
	Category    string    `dynamodbav:"category" json:"category"` // GSI category-index
	Image       string    `dynamodbav:"image,omitempty" json:"image,omitempty"`
	Stock       int       `dynamodbav:"stock" json:"stock"` // never negative
	Rating      float64   `dynamodbav:"rating" json:"rating"`
	Reviews     []Review  `dynamodbav:"reviews" json:"reviews"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

type Review struct {
	UserID    string    `dynamodbav:"user_id" json:"userId"`
	Rating    float64   `dynamodbav:"rating" json:"rating"`
	Comment   string    `dynamodbav:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
}

// StockOp is the operation applied by AdjustStock.
type StockOp string

const (
	StockSet       StockOp = "set"
	StockIncrement StockOp = "increment"
	StockDecrement StockOp = "decrement"
)
