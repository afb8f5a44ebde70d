// Package dynamotest provides an in-memory DynamoDB for store tests. It
// understands the subset of the expression language the stores emit.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type index struct {
	hash, rng string
}

type table struct {
	pk      string
	order   []string
	items   map[string]Item
	indexes map[string]index
}

// Fake is a concurrency-safe in-memory DynamoDB.
type Fake struct {
	mu     sync.Mutex
	tables map[string]*table
	calls  map[string]int

	// BeforeTransact, when set, runs before each TransactWriteItems is
	// evaluated, outside the lock so it may Seed. Returning an error fails
	// the call with it.
	BeforeTransact func(in *dyn.TransactWriteItemsInput) error
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{tables: map[string]*table{}, calls: map[string]int{}}
}

// AddTable registers a table keyed by the string attribute pk.
func (f *Fake) AddTable(name, pk string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{pk: pk, items: map[string]Item{}, indexes: map[string]index{}}
	return f
}

// AddIndex registers a secondary index. rangeKey may be empty.
func (f *Fake) AddIndex(tableName, indexName, hashKey, rangeKey string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[tableName].indexes[indexName] = index{hash: hashKey, rng: rangeKey}
	return f
}

// Seed marshals v and stores it unconditionally.
func (f *Fake) Seed(tableName string, v any) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[tableName]
	t.store(t.keyOf(item), item)
}

// Load unmarshals the stored item into out. It reports false when absent.
func (f *Fake) Load(tableName, key string, out any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.tables[tableName].items[key]
	if !ok {
		return false
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		panic(err)
	}
	return true
}

// Len returns the number of items in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[tableName].items)
}

// Calls returns how many times the named API method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (t *table) keyOf(key Item) string {
	s, ok := key[t.pk].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return s.Value
}

func (t *table) store(k string, item Item) {
	if _, ok := t.items[k]; !ok {
		t.order = append(t.order, k)
	}
	t.items[k] = item
}

func (t *table) remove(k string) {
	delete(t.items, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func clone(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *Fake) lookup(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: name}
	}
	return t, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetItem"]++
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	item, ok := t.items[t.keyOf(in.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PutItem"]++
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k := t.keyOf(in.Item)
	e := exprCtx{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	ok, err := e.check(t.items[k], str(in.ConditionExpression))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	t.store(k, clone(in.Item))
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateItem"]++
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k := t.keyOf(in.Key)
	e := exprCtx{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	ok, err := e.check(t.items[k], str(in.ConditionExpression))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}

	item, exists := t.items[k]
	if exists {
		item = clone(item)
	} else {
		item = clone(in.Key)
	}
	touched, err := e.applyUpdate(item, str(in.UpdateExpression))
	if err != nil {
		return nil, err
	}
	t.store(k, item)

	out := &dyn.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = clone(item)
	case types.ReturnValueUpdatedNew:
		out.Attributes = Item{}
		for _, name := range touched {
			if v, ok := item[name]; ok {
				out.Attributes[name] = v
			}
		}
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteItem"]++
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	k := t.keyOf(in.Key)
	e := exprCtx{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	ok, err := e.check(t.items[k], str(in.ConditionExpression))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	t.remove(k)
	return &dyn.DeleteItemOutput{}, nil
}

// page walks items in order, starting after start, evaluating at most limit
// of them against filter.
func page(t *table, keys []string, start Item, limit *int32, e exprCtx, filter string) ([]Item, Item, error) {
	from := 0
	if len(start) > 0 {
		sk := t.keyOf(start)
		for i, k := range keys {
			if k == sk {
				from = i + 1
				break
			}
		}
	}
	var out []Item
	var last Item
	evaluated := 0
	for i := from; i < len(keys); i++ {
		if limit != nil && evaluated == int(*limit) {
			last = Item{t.pk: &types.AttributeValueMemberS{Value: keys[i-1]}}
			break
		}
		evaluated++
		item := t.items[keys[i]]
		ok, err := e.check(item, filter)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			out = append(out, clone(item))
		}
	}
	return out, last, nil
}

func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Scan"]++
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	e := exprCtx{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	items, last, err := page(t, t.order, in.ExclusiveStartKey, in.Limit, e, str(in.FilterExpression))
	if err != nil {
		return nil, err
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: last}, nil
}

// Query supports a single hash-key equality KeyConditionExpression.
func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Query"]++
	t, err := f.lookup(in.TableName)
	if err != nil {
		return nil, err
	}
	idx := index{hash: t.pk}
	if in.IndexName != nil {
		var ok bool
		if idx, ok = t.indexes[*in.IndexName]; !ok {
			return nil, fmt.Errorf("unknown index %s", *in.IndexName)
		}
	}
	e := exprCtx{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}

	var keys []string
	for _, k := range t.order {
		item := t.items[k]
		if _, ok := item[idx.hash]; !ok {
			continue
		}
		ok, err := e.check(item, str(in.KeyConditionExpression))
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, k)
		}
	}
	if idx.rng != "" {
		sort.SliceStable(keys, func(i, j int) bool {
			return less(t.items[keys[i]][idx.rng], t.items[keys[j]][idx.rng])
		})
	}
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	items, last, err := page(t, keys, in.ExclusiveStartKey, in.Limit, e, str(in.FilterExpression))
	if err != nil {
		return nil, err
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: last}, nil
}

// less orders range keys, reading RFC 3339 strings as instants.
func less(a, b types.AttributeValue) bool {
	as, ok1 := a.(*types.AttributeValueMemberS)
	bs, ok2 := b.(*types.AttributeValueMemberS)
	if ok1 && ok2 {
		at, err1 := time.Parse(time.RFC3339Nano, as.Value)
		bt, err2 := time.Parse(time.RFC3339Nano, bs.Value)
		if err1 == nil && err2 == nil {
			return at.Before(bt)
		}
		return as.Value < bs.Value
	}
	c, _ := order(a, b)
	return c < 0
}

const (
	reasonNone      = "None"
	reasonCondition = "ConditionalCheckFailed"
)

// TransactWriteItems checks every condition first and applies the writes only
// when all of them hold, like the real service.
func (f *Fake) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	if f.BeforeTransact != nil {
		if err := f.BeforeTransact(in); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["TransactWriteItems"]++
	if len(in.TransactItems) > 100 {
		return nil, errors.New("ValidationException: transaction exceeds 100 actions")
	}

	type target struct {
		t   *table
		key string
	}
	seen := map[target]bool{}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false

	for i, it := range in.TransactItems {
		var (
			tableName *string
			key       Item
			cond      *string
			names     map[string]string
			values    map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			tableName, key, cond, names, values = it.Put.TableName, it.Put.Item, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues
		case it.Update != nil:
			tableName, key, cond, names, values = it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues
		case it.Delete != nil:
			tableName, key, cond, names, values = it.Delete.TableName, it.Delete.Key, it.Delete.ConditionExpression, it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues
		case it.ConditionCheck != nil:
			tableName, key, cond, names, values = it.ConditionCheck.TableName, it.ConditionCheck.Key, it.ConditionCheck.ConditionExpression, it.ConditionCheck.ExpressionAttributeNames, it.ConditionCheck.ExpressionAttributeValues
		default:
			return nil, errors.New("empty transact item")
		}
		t, err := f.lookup(tableName)
		if err != nil {
			return nil, err
		}
		tg := target{t, t.keyOf(key)}
		if seen[tg] {
			return nil, errors.New("ValidationException: transaction touches the same item twice")
		}
		seen[tg] = true

		ok, err := exprCtx{names: names, values: values}.check(t.items[tg.key], str(cond))
		if err != nil {
			return nil, err
		}
		code := reasonNone
		if !ok {
			code = reasonCondition
			failed = true
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	if failed {
		msg := "Transaction cancelled, please refer cancellation reasons for specific reasons"
		return nil, &types.TransactionCanceledException{Message: &msg, CancellationReasons: reasons}
	}

	type write struct {
		t    *table
		key  string
		item Item // nil deletes
	}
	var writes []write
	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			t, _ := f.lookup(it.Put.TableName)
			writes = append(writes, write{t, t.keyOf(it.Put.Item), clone(it.Put.Item)})
		case it.Update != nil:
			t, _ := f.lookup(it.Update.TableName)
			k := t.keyOf(it.Update.Key)
			item, ok := t.items[k]
			if ok {
				item = clone(item)
			} else {
				item = clone(it.Update.Key)
			}
			e := exprCtx{names: it.Update.ExpressionAttributeNames, values: it.Update.ExpressionAttributeValues}
			if _, err := e.applyUpdate(item, str(it.Update.UpdateExpression)); err != nil {
				return nil, err
			}
			writes = append(writes, write{t, k, item})
		case it.Delete != nil:
			t, _ := f.lookup(it.Delete.TableName)
			writes = append(writes, write{t, t.keyOf(it.Delete.Key), nil})
		}
	}
	for _, w := range writes {
		if w.item == nil {
			w.t.remove(w.key)
			continue
		}
		w.t.store(w.key, w.item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
