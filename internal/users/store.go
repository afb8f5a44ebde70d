package users

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/identity"
)

// Store encapsulates operations on the users table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new users Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func userKey(uid string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"uid": &types.AttributeValueMemberS{Value: uid},
	}
}

// Get fetches a user by uid. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, uid string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            userKey(uid),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return decode(out.Item)
}

func decode(item map[string]types.AttributeValue) (*User, error) {
	var u User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	u.normalize()
	return &u, nil
}

// EnsureUser returns the user for verified claims, creating a customer
// record on first sign-in. created reports whether this call created it.
func (s *Store) EnsureUser(ctx context.Context, c identity.Claims) (u *User, created bool, err error) {
	if u, err = s.Get(ctx, c.UID); err != nil || u != nil {
		return u, false, err
	}

	now := s.nowFunc()
	nu := User{
		UID:         c.UID,
		Email:       c.Email,
		DisplayName: c.DisplayName(),
		PhotoURL:    c.Picture,
		Role:        RoleCustomer,
		Cart:        []CartItem{},
		Addresses:   []Address{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	item, err := attributevalue.MarshalMap(nu)
	if err != nil {
		return nil, false, fmt.Errorf("marshal user: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(uid)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			// a concurrent sign-in created it first
			u, err = s.Get(ctx, c.UID)
			return u, false, err
		}
		return nil, false, fmt.Errorf("put item: %w", err)
	}
	log.Printf("[users] created user %s (%s)", nu.UID, nu.Email)
	nu.normalize()
	return &nu, true, nil
}

// AddAddress appends an address unless an identical one is already saved.
func (s *Store) AddAddress(ctx context.Context, uid string, a Address) (*User, error) {
	u, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	for _, have := range u.Addresses {
		if have == a {
			return u, nil
		}
	}

	av, err := attributevalue.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}
	return s.update(ctx, uid, &dyn.UpdateItemInput{
		UpdateExpression: aws.String("SET #ad = list_append(if_not_exists(#ad, :empty), :a), #ua = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#ad": "addresses",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a":     &types.AttributeValueMemberL{Value: []types.AttributeValue{av}},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
		},
	})
}

// UpdateWishlist adds or removes a product id from the user's wishlist set.
func (s *Store) UpdateWishlist(ctx context.Context, uid, productID string, action WishlistAction) (*User, error) {
	var op string
	switch action {
	case WishlistAdd:
		op = "ADD"
	case WishlistRemove:
		op = "DELETE"
	default:
		return nil, ErrInvalidAction
	}
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidAction)
	}
	return s.update(ctx, uid, &dyn.UpdateItemInput{
		UpdateExpression:         aws.String(op + " #w :p SET #ua = :ua"),
		ExpressionAttributeNames: map[string]string{"#w": "wishlist"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberSS{Value: []string{productID}},
		},
	})
}

// update runs in against an existing user, stamping updated_at and
// returning the stored result.
func (s *Store) update(ctx context.Context, uid string, in *dyn.UpdateItemInput) (*User, error) {
	in.TableName = &s.tableName
	in.Key = userKey(uid)
	in.ConditionExpression = aws.String("attribute_exists(#pk)")
	in.ExpressionAttributeNames["#pk"] = "uid"
	in.ExpressionAttributeNames["#ua"] = "updated_at"
	in.ExpressionAttributeValues[":ua"] = &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)}
	in.ReturnValues = types.ReturnValueAllNew

	out, err := s.client.UpdateItem(ctx, in)
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	return decode(out.Attributes)
}
