package catalog

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// fakeProducts is an in-memory products table that understands the
// expressions issued by Store. Unused methods panic via the nil embed.
type fakeProducts struct {
	aws.DynamoDBAPI

	mu        sync.Mutex
	order     []string
	items     map[string]map[string]types.AttributeValue
	scans     int
	queries   int
	lastLimit int32
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeProducts) seed(ps ...Product) {
	for _, p := range ps {
		item, err := attributevalue.MarshalMap(p)
		if err != nil {
			panic(err)
		}
		f.items[p.ProductID] = item
		f.order = append(f.order, p.ProductID)
	}
}

func (f *fakeProducts) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.Atoi(f.items[id]["stock"].(*types.AttributeValueMemberN).Value)
	return n
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["product_id"].(*types.AttributeValueMemberS).Value
}

func (f *fakeProducts) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dyn.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeProducts) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := keyOf(in.Item)
	if _, ok := f.items[id]; ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[id] = in.Item
	f.order = append(f.order, id)
	return &dyn.PutItemOutput{}, nil
}

func (f *fakeProducts) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := keyOf(in.Key)
	if _, ok := f.items[id]; !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, id)
	return &dyn.DeleteItemOutput{}, nil
}

func (f *fakeProducts) page(limit *int32, match func(map[string]types.AttributeValue) bool) []map[string]types.AttributeValue {
	if limit != nil {
		f.lastLimit = *limit
	}
	var out []map[string]types.AttributeValue
	for _, id := range f.order {
		item, ok := f.items[id]
		if !ok {
			continue
		}
		if limit != nil && len(out) == int(*limit) {
			break
		}
		if match(item) {
			out = append(out, item)
		}
	}
	return out
}

func (f *fakeProducts) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return &dyn.ScanOutput{Items: f.page(in.Limit, func(map[string]types.AttributeValue) bool { return true })}, nil
}

func (f *fakeProducts) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if *in.IndexName != CategoryIndex || *in.KeyConditionExpression != "#c = :c" {
		return nil, errors.New("unexpected query")
	}
	want := in.ExpressionAttributeValues[":c"].(*types.AttributeValueMemberS).Value
	items := f.page(in.Limit, func(item map[string]types.AttributeValue) bool {
		return item["category"].(*types.AttributeValueMemberS).Value == want
	})
	return &dyn.QueryOutput{Items: items}, nil
}

func (f *fakeProducts) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, exists := f.items[keyOf(in.Key)]
	if !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}

	num := func(av types.AttributeValue) int {
		n, _ := strconv.Atoi(av.(*types.AttributeValueMemberN).Value)
		return n
	}

	if in.ExpressionAttributeNames["#st"] != "stock" {
		// generic partial update from SetClause
		for ph, name := range in.ExpressionAttributeNames {
			if name == "product_id" {
				continue
			}
			item[name] = in.ExpressionAttributeValues[":v"+ph[2:]]
		}
		return &dyn.UpdateItemOutput{}, nil
	}

	cur := num(item["stock"])
	q := num(in.ExpressionAttributeValues[":q"])
	switch *in.ConditionExpression {
	case condEnough:
		if cur < q {
			return nil, &types.ConditionalCheckFailedException{}
		}
	case condNotEnough:
		if cur >= q {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	var next int
	switch *in.UpdateExpression {
	case exprStockSet:
		next = q
	case exprStockAdd:
		next = cur + q
	case exprStockSub:
		next = cur - q
	case exprStockZero:
		next = 0
	default:
		return nil, errors.New("unexpected update expression")
	}
	n := &types.AttributeValueMemberN{Value: strconv.Itoa(next)}
	item["stock"] = n
	return &dyn.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"stock": n}}, nil
}
