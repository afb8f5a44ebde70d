package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// UserIndex is the GSI keyed by user_id and sorted by created_at.
const UserIndex = "user-index"

// DefaultLimit is the listing size used when none is given; MaxLimit caps it.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// CouponUsage builds the usage increment for a coupon so it can join the
// payment transaction. Redeemable is false for a missing or exhausted coupon.
type CouponUsage interface {
	Redeemable(ctx context.Context, couponID string) (bool, error)
	UsageUpdate(couponID string) *types.Update
}

// Store encapsulates operations on the orders table and the stock it
// reserves in the products table.
type Store struct {
	client          aws.DynamoDBAPI
	tableName       string
	productsTable   string
	coupons         CouponUsage
	restoreOnReject bool
	nowFunc         func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, productsTable string) *Store {
	return &Store{
		client:        client,
		tableName:     tableName,
		productsTable: productsTable,
		nowFunc:       time.Now,
	}
}

// WithCoupons makes ApplyPayment redeem the order's coupon on approval.
func (s *Store) WithCoupons(c CouponUsage) *Store {
	s.coupons = c
	return s
}

// WithRestoreOnReject makes a rejected payment release the reserved stock.
func (s *Store) WithRestoreOnReject(restore bool) *Store {
	s.restoreOnReject = restore
	return s
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// List returns orders newest first, optionally narrowed to one user and one
// status. With a user the GSI is paged until limit matches are found;
// without one the table is scanned and sorted.
func (s *Store) List(ctx context.Context, userID, status string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	var filter *string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if status != "" {
		filter = aws.String("#s = :s")
		names["#s"] = "status"
		values[":s"] = &types.AttributeValueMemberS{Value: status}
	}

	var items []map[string]types.AttributeValue
	if userID != "" {
		names["#u"] = "user_id"
		values[":u"] = &types.AttributeValueMemberS{Value: userID}
		in := &dyn.QueryInput{
			TableName:                 &s.tableName,
			IndexName:                 aws.String(UserIndex),
			KeyConditionExpression:    aws.String("#u = :u"),
			FilterExpression:          filter,
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(int32(limit)),
		}
		for len(items) < limit {
			out, err := s.client.Query(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("query orders: %w", err)
			}
			items = append(items, out.Items...)
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			in.ExclusiveStartKey = out.LastEvaluatedKey
		}
	} else {
		in := &dyn.ScanInput{TableName: &s.tableName, FilterExpression: filter}
		if filter != nil {
			in.ExpressionAttributeNames = names
			in.ExpressionAttributeValues = values
		}
		for {
			out, err := s.client.Scan(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("scan orders: %w", err)
			}
			items = append(items, out.Items...)
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			in.ExclusiveStartKey = out.LastEvaluatedKey
		}
	}

	list := []Order{}
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// UpdateStatus conditionally updates the order status from expected -> next.
// Returns ErrInvalidTransition for steps an operator may not take and
// ErrStatusMismatch if the stored status is no longer expected.
func (s *Store) UpdateStatus(ctx context.Context, orderID, expected, next string) error {
	if !CanTransition(expected, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              orderKey(orderID),
		UpdateExpression: aws.String("SET #s = :new, #ua = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status", "#ua": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: next},
			":expected": &types.AttributeValueMemberS{Value: expected},
			":ua":       s.timestamp(),
		},
		ConditionExpression: aws.String("#s = :expected"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			o, gerr := s.Get(ctx, orderID)
			if gerr != nil {
				return gerr
			}
			if o == nil {
				return ErrNotFound
			}
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (s *Store) timestamp() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)}
}
