package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// CategoryIndex is the GSI keyed by category.
const CategoryIndex = "category-index"

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Table returns the products table name.
func (s *Store) Table() string { return s.tableName }

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches a product by id with a consistent read. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            productKey(productID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// Create persists a new product, filling id, defaults and timestamps.
func (s *Store) Create(ctx context.Context, p Product) (*Product, error) {
	now := s.nowFunc()
	if p.ProductID == "" {
		p.ProductID = uuid.NewString()
	}
	if p.Image == "" {
		p.Image = placeholderImage
	}
	if p.Stock < 0 {
		p.Stock = 0
	}
	p.Rating = 0
	p.Reviews = []Review{}
	p.CreatedAt = now
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(product_id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("put item: %w", err)
	}
	return &p, nil
}

// immutable fields are dropped from partial updates.
var immutableProductFields = map[string]bool{
	"product_id": true, "created_at": true, "reviews": true, "rating": true, "updated_at": true,
}

// Update applies a partial update keyed by attribute name.
func (s *Store) Update(ctx context.Context, productID string, fields map[string]any) error {
	set := map[string]any{}
	for k, v := range fields {
		if !immutableProductFields[k] {
			set[k] = v
		}
	}
	set["updated_at"] = s.nowFunc()

	expr, names, values, err := aws.SetClause(set)
	if err != nil {
		return err
	}
	names["#pk"] = "product_id"
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       productKey(productID),
		UpdateExpression:          &expr,
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrNotFound
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Delete removes a product. Deleting a missing product returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, productID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 productKey(productID),
		ConditionExpression: aws.String("attribute_exists(product_id)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrNotFound
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}
