package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// CodeIndex is the GSI keyed by coupon code.
const CodeIndex = "code-index"

const (
	exprRecordUsage = "ADD #uc :one SET #ua = :ua"
	condRecordUsage = "attribute_exists(#pk) AND (attribute_not_exists(#ul) OR #ul = :zero OR #uc < #ul)"
)

// Store encapsulates operations on the coupons table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new coupons Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func couponKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"coupon_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches a coupon by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, couponID string) (*Coupon, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            couponKey(couponID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Coupon
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &c, nil
}

// Redeemable reports whether the coupon is stored and below its usage limit.
func (s *Store) Redeemable(ctx context.Context, couponID string) (bool, error) {
	c, err := s.Get(ctx, couponID)
	if err != nil || c == nil {
		return false, err
	}
	return !c.Exhausted(), nil
}

// FindByCode returns the coupon with the given uppercase code, or (nil, nil).
func (s *Store) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                aws.String(CodeIndex),
		KeyConditionExpression:   aws.String("#c = :c"),
		ExpressionAttributeNames: map[string]string{"#c": "code"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: code},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query coupon code: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var c Coupon
	if err := attributevalue.UnmarshalMap(out.Items[0], &c); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &c, nil
}

// List returns every coupon, or only active ones.
func (s *Store) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	in := &dyn.ScanInput{TableName: &s.tableName}
	if activeOnly {
		in.FilterExpression = aws.String("#a = :t")
		in.ExpressionAttributeNames = map[string]string{"#a": "active"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		}
	}

	var items []map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan coupons: %w", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	cs := []Coupon{}
	if err := attributevalue.UnmarshalListOfMaps(items, &cs); err != nil {
		return nil, fmt.Errorf("unmarshal coupons: %w", err)
	}
	return cs, nil
}

// Create stores a new coupon with its code uppercased and usage reset.
// A code already in use yields ErrDuplicateCode.
func (s *Store) Create(ctx context.Context, c Coupon) (*Coupon, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if c.Code == "" || !c.DiscountType.Valid() || c.DiscountValue < 0 {
		return nil, ErrInvalidCoupon
	}

	existing, err := s.FindByCode(ctx, c.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateCode
	}

	now := s.nowFunc()
	c.CouponID = uuid.NewString()
	c.UsageCount = 0
	c.CreatedAt = now
	c.UpdatedAt = now

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal coupon: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(coupon_id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("put item: %w", err)
	}
	return &c, nil
}

var immutableCouponFields = map[string]bool{
	"coupon_id": true, "created_at": true, "usage_count": true, "updated_at": true,
}

// Update applies a partial update keyed by attribute name. A new code is
// uppercased and must not belong to another coupon.
func (s *Store) Update(ctx context.Context, couponID string, fields map[string]any) error {
	set := map[string]any{}
	for k, v := range fields {
		if !immutableCouponFields[k] {
			set[k] = v
		}
	}
	if raw, ok := set["code"]; ok {
		code, _ := raw.(string)
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			return ErrInvalidCoupon
		}
		existing, err := s.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		if existing != nil && existing.CouponID != couponID {
			return ErrDuplicateCode
		}
		set["code"] = code
	}
	set["updated_at"] = s.nowFunc()

	expr, names, values, err := aws.SetClause(set)
	if err != nil {
		return err
	}
	names["#pk"] = "coupon_id"
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       couponKey(couponID),
		UpdateExpression:          &expr,
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return notFoundOnCondition("update item", err)
}

// Delete removes a coupon.
func (s *Store) Delete(ctx context.Context, couponID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 couponKey(couponID),
		ConditionExpression: aws.String("attribute_exists(coupon_id)"),
	})
	return notFoundOnCondition("delete item", err)
}

// RecordUsage atomically increments the coupon's usage count by one. It fails
// with ErrExhausted once the count has reached the usage limit.
func (s *Store) RecordUsage(ctx context.Context, couponID string) error {
	u := s.UsageUpdate(couponID)
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	})
	if err == nil {
		return nil
	}
	var cf *types.ConditionalCheckFailedException
	if !errors.As(err, &cf) {
		return fmt.Errorf("record usage: %w", err)
	}
	c, err := s.Get(ctx, couponID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	return ErrExhausted
}

// UsageUpdate returns the usage increment as a transaction action so it can
// commit together with an order's payment update. A zero or missing
// usage_limit means unlimited.
func (s *Store) UsageUpdate(couponID string) *types.Update {
	return &types.Update{
		TableName:           &s.tableName,
		Key:                 couponKey(couponID),
		UpdateExpression:    aws.String(exprRecordUsage),
		ConditionExpression: aws.String(condRecordUsage),
		ExpressionAttributeNames: map[string]string{
			"#pk": "coupon_id", "#uc": "usage_count", "#ul": "usage_limit", "#ua": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":ua":   &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	}
}

func notFoundOnCondition(op string, err error) error {
	if err == nil {
		return nil
	}
	var cf *types.ConditionalCheckFailedException
	if errors.As(err, &cf) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
