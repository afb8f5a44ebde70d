package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-storefront/internal/aws"
)

const (
	condCreate   = "attribute_not_exists(#pk)"
	condFailed   = "#s = :failed"
	condExpired  = "#s = :inprog AND #lu < :now"
	condInProg   = "#s = :inprog"
	exprReclaim  = "SET #s = :inprog, #lu = :lu, #ua = :ua, #ea = :ea ADD #at :one"
	exprDone     = "SET #s = :done, #r = :r, #ua = :ua"
	exprFailed   = "SET #s = :failed, #n = :n, #ua = :ua"
	defaultLease = 2 * time.Minute
)

// Store records which gateway notifications have been applied so SQS
// redeliveries and duplicate webhooks are processed once.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long DONE entries are remembered
	lease     time.Duration // how long an IN_PROGRESS claim blocks others
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: TTL window for entries (e.g., 72*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		lease:     defaultLease,
		nowFunc:   time.Now,
	}
}

// WithLease overrides how long a claim is held before another worker may
// take it over.
func (s *Store) WithLease(d time.Duration) *Store {
	s.lease = d
	return s
}

// Claim takes ownership of key.
// Returns (true, nil) when the caller must process the notification.
// Returns (false, nil) when it was already processed.
// Returns ErrInProgress when another worker holds a live claim.
// FAILED entries and claims whose lease has lapsed are taken over.
func (s *Store) Claim(ctx context.Context, key, orderID string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		OrderID:        orderID,
		Attempts:       1,
		LeaseUntil:     now.Add(s.lease).Unix(),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      aws.String(condCreate),
		ExpressionAttributeNames: map[string]string{"#pk": "idempotency_key"},
	})
	if err == nil {
		return true, nil
	}
	if !conditionFailed(err) {
		return false, fmt.Errorf("put item: %w", err)
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		// expired by TTL between the two calls; let the redelivery retry
		return false, ErrInProgress
	}
	switch {
	case existing.Status == StatusDone:
		return false, nil
	case existing.Status == StatusFailed:
		return s.reclaim(ctx, key, condFailed, now)
	case existing.LeaseUntil < now.Unix():
		return s.reclaim(ctx, key, condExpired, now)
	default:
		return false, ErrInProgress
	}
}

func (s *Store) reclaim(ctx context.Context, key, cond string, now time.Time) (bool, error) {
	values := map[string]types.AttributeValue{
		":inprog": &types.AttributeValueMemberS{Value: StatusInProgress},
		":lu":     epoch(now.Add(s.lease)),
		":ua":     timestamp(now),
		":ea":     epoch(now.Add(s.ttlWindow)),
		":one":    &types.AttributeValueMemberN{Value: "1"},
	}
	switch cond {
	case condFailed:
		values[":failed"] = &types.AttributeValueMemberS{Value: StatusFailed}
	case condExpired:
		values[":now"] = epoch(now)
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyOf(key),
		UpdateExpression:    aws.String(exprReclaim),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#s":  "status",
			"#lu": "lease_until",
			"#ua": "updated_at",
			"#ea": "expires_at",
			"#at": "attempts",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if conditionFailed(err) {
			return false, ErrInProgress
		}
		return false, fmt.Errorf("update item (reclaim): %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone records the outcome of a claimed key. It fails with ErrNotFound
// unless the key is currently IN_PROGRESS.
func (s *Store) MarkDone(ctx context.Context, key, result string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyOf(key),
		UpdateExpression:    aws.String(exprDone),
		ConditionExpression: aws.String(condInProg),
		ExpressionAttributeNames: map[string]string{
			"#s":  "status",
			"#r":  "result",
			"#ua": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":   &types.AttributeValueMemberS{Value: StatusDone},
			":inprog": &types.AttributeValueMemberS{Value: StatusInProgress},
			":r":      &types.AttributeValueMemberS{Value: result},
			":ua":     timestamp(s.nowFunc()),
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed releases the claim so the next delivery can retry it.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyOf(key),
		UpdateExpression:    aws.String(exprFailed),
		ConditionExpression: aws.String(condInProg),
		ExpressionAttributeNames: map[string]string{
			"#s":  "status",
			"#n":  "note",
			"#ua": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":inprog": &types.AttributeValueMemberS{Value: StatusInProgress},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     timestamp(s.nowFunc()),
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func epoch(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}

func timestamp(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}
