package coupons

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// fakeCoupons is an in-memory coupons table for the expressions Store issues.
type fakeCoupons struct {
	aws.DynamoDBAPI

	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	updates int
}

func newFakeCoupons() *fakeCoupons {
	return &fakeCoupons{items: map[string]map[string]types.AttributeValue{}}
}

func idOf(key map[string]types.AttributeValue) string {
	return key["coupon_id"].(*types.AttributeValueMemberS).Value
}

func (f *fakeCoupons) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dyn.GetItemOutput{Item: f.items[idOf(in.Key)]}, nil
}

func (f *fakeCoupons) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := idOf(in.Item)
	if _, ok := f.items[id]; ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[id] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (f *fakeCoupons) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := idOf(in.Key)
	if _, ok := f.items[id]; !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, id)
	return &dyn.DeleteItemOutput{}, nil
}

func (f *fakeCoupons) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *in.IndexName != CodeIndex {
		return nil, errors.New("unexpected index")
	}
	want := in.ExpressionAttributeValues[":c"].(*types.AttributeValueMemberS).Value
	for _, item := range f.items {
		if item["code"].(*types.AttributeValueMemberS).Value == want {
			return &dyn.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
		}
	}
	return &dyn.QueryOutput{}, nil
}

func (f *fakeCoupons) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if in.FilterExpression != nil {
			if a, ok := item["active"].(*types.AttributeValueMemberBOOL); !ok || !a.Value {
				continue
			}
		}
		out = append(out, item)
	}
	return &dyn.ScanOutput{Items: out}, nil
}

func (f *fakeCoupons) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	item, ok := f.items[idOf(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}

	if *in.UpdateExpression == exprRecordUsage {
		n, _ := strconv.Atoi(item["usage_count"].(*types.AttributeValueMemberN).Value)
		if ul, ok := item["usage_limit"].(*types.AttributeValueMemberN); ok {
			if limit, _ := strconv.Atoi(ul.Value); limit > 0 && n >= limit {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
		item["usage_count"] = &types.AttributeValueMemberN{Value: strconv.Itoa(n + 1)}
		item["updated_at"] = in.ExpressionAttributeValues[":ua"]
		return &dyn.UpdateItemOutput{}, nil
	}

	for ph, name := range in.ExpressionAttributeNames {
		if ph == "#pk" {
			continue
		}
		item[name] = in.ExpressionAttributeValues[":v"+ph[2:]]
	}
	return &dyn.UpdateItemOutput{}, nil
}
