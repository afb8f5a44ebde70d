package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

// DefaultLimit is the page size used when the caller does not pass one.
// Larger requests are cut to MaxLimit.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Filter narrows a product listing. Category is resolved by the store; price
// bounds and search run over the fetched page.
type Filter struct {
	Category string
	MinPrice *float64
	MaxPrice *float64
	Search   string
}

// Match reports whether p passes the price and search filters.
func (f Filter) Match(p Product) bool {
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}
	return true
}

// List returns at most limit products. The limit bounds the read, so price
// and search filters can return fewer rows than exist in the table.
func (s *Store) List(ctx context.Context, f Filter, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	lim := int32(min(limit, MaxLimit))

	var items []map[string]types.AttributeValue
	if f.Category != "" {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:                &s.tableName,
			IndexName:                aws.String(CategoryIndex),
			KeyConditionExpression:   aws.String("#c = :c"),
			ExpressionAttributeNames: map[string]string{"#c": "category"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":c": &types.AttributeValueMemberS{Value: f.Category},
			},
			Limit: &lim,
		})
		if err != nil {
			return nil, fmt.Errorf("query products: %w", err)
		}
		items = out.Items
	} else {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName: &s.tableName,
			Limit:     &lim,
		})
		if err != nil {
			return nil, fmt.Errorf("scan products: %w", err)
		}
		items = out.Items
	}

	var page []Product
	if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
		return nil, fmt.Errorf("unmarshal products: %w", err)
	}

	out := make([]Product, 0, len(page))
	for _, p := range page {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
