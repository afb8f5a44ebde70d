package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// ErrInvalidStockOp is returned for an unknown operation or negative quantity.
var ErrInvalidStockOp = errors.New("invalid stock operation")

var errStockCondition = errors.New("stock condition failed")

const maxStockAttempts = 3

// Stock update expressions. The tests' fake store matches on these strings.
const (
	exprStockSet  = "SET #st = :q, #ua = :ua"
	exprStockAdd  = "SET #st = #st + :q, #ua = :ua"
	exprStockSub  = "SET #st = #st - :q, #ua = :ua"
	exprStockZero = "SET #st = :zero, #ua = :ua"
	condExists    = "attribute_exists(#pk)"
	condEnough    = "attribute_exists(#pk) AND #st >= :q"
	condNotEnough = "attribute_exists(#pk) AND #st < :q"
)

// AdjustStock changes a product's stock atomically and returns the new value.
// Decrement clamps at zero.
func (s *Store) AdjustStock(ctx context.Context, productID string, op StockOp, qty int) (int, error) {
	if qty < 0 {
		return 0, ErrInvalidStockOp
	}
	q := &types.AttributeValueMemberN{Value: strconv.Itoa(qty)}

	switch op {
	case StockSet:
		return s.updateStock(ctx, productID, exprStockSet, condExists, map[string]types.AttributeValue{":q": q})
	case StockIncrement:
		return s.updateStock(ctx, productID, exprStockAdd, condExists, map[string]types.AttributeValue{":q": q})
	case StockDecrement:
		// plain decrement first, then the clamp; a concurrent change between
		// the two makes both conditions fail and we go around again
		for i := 0; i < maxStockAttempts; i++ {
			n, err := s.updateStock(ctx, productID, exprStockSub, condEnough, map[string]types.AttributeValue{":q": q})
			if !errors.Is(err, errStockCondition) {
				return n, err
			}
			n, err = s.updateStock(ctx, productID, exprStockZero, condNotEnough, map[string]types.AttributeValue{
				":q":    q,
				":zero": &types.AttributeValueMemberN{Value: "0"},
			})
			if !errors.Is(err, errStockCondition) {
				return n, err
			}
			p, err := s.Get(ctx, productID)
			if err != nil {
				return 0, err
			}
			if p == nil {
				return 0, ErrNotFound
			}
		}
		return 0, fmt.Errorf("decrement stock for %s: too much contention", productID)
	default:
		return 0, ErrInvalidStockOp
	}
}

func (s *Store) updateStock(ctx context.Context, productID, update, cond string, values map[string]types.AttributeValue) (int, error) {
	values[":ua"] = &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339Nano)}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 productKey(productID),
		UpdateExpression:    aws.String(update),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#pk": "product_id", "#st": "stock", "#ua": "updated_at",
		},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			if cond == condExists {
				return 0, ErrNotFound
			}
			return 0, errStockCondition
		}
		return 0, fmt.Errorf("update stock: %w", err)
	}
	var after struct {
		Stock int `dynamodbav:"stock"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &after); err != nil {
		return 0, fmt.Errorf("unmarshal stock: %w", err)
	}
	return after.Stock, nil
}
