package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront/internal/aws"
)

const maxTxAttempts = 5

const (
	exprReserve  = "SET #st = #st - :q, #ua = :ua"
	condReserve  = "attribute_exists(#pk) AND #st >= :q"
	exprRelease  = "ADD #st :q SET #ua = :ua"
	condRelease  = "attribute_exists(#pk)"
	exprCancel   = "SET #s = :cancelled, #ua = :ua"
	condCancel   = "#s = :pending"
	condNewOrder = "attribute_not_exists(order_id)"
	condPayment  = "#s = :cur AND #ps = :curps"
)

// plan reads current state and returns the writes to commit, or the business
// error that state implies. It runs again after every cancelled commit.
type plan func(ctx context.Context) ([]types.TransactWriteItem, error)

// transact commits what p returns as one TransactWriteItems call. A commit
// cancelled by a failed condition or a conflicting transaction is re-planned
// from fresh reads, so a lost race surfaces as a typed error.
func (s *Store) transact(ctx context.Context, op string, p plan) error {
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		writes, err := p(ctx)
		if err != nil {
			return err
		}
		if len(writes) == 0 {
			return nil
		}
		_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: writes})
		if err == nil {
			return nil
		}
		reason, ok := cancellation(err)
		if !ok {
			return fmt.Errorf("%s: transact write: %w", op, err)
		}
		log.Printf("[orders] %s cancelled (%s), attempt %d/%d", op, reason, attempt, maxTxAttempts)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: %w", op, ErrContention)
}

// cancellation reports whether err is a transaction cancellation worth
// re-planning and summarises its reasons.
func cancellation(err error) (string, bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return "", false
	}
	var codes []string
	retry := false
	for _, r := range tce.CancellationReasons {
		if r.Code == nil {
			continue
		}
		switch *r.Code {
		case "ConditionalCheckFailed", "TransactionConflict":
			retry = true
			codes = append(codes, *r.Code)
		}
	}
	return strings.Join(codes, ","), retry
}

// stockRow is the slice of a product the transactions read.
type stockRow struct {
	ProductID string `dynamodbav:"product_id"`
	Name      string `dynamodbav:"name"`
	Stock     int    `dynamodbav:"stock"`
}

func (s *Store) readStock(ctx context.Context, productID string) (*stockRow, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.productsTable,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String("#pk, #n, #st"),
		ExpressionAttributeNames: map[string]string{"#pk": "product_id", "#n": "name", "#st": "stock"},
	})
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var row stockRow
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &row, nil
}

func (s *Store) stockUpdate(productID string, qty int, expr, cond string) types.TransactWriteItem {
	return types.TransactWriteItem{Update: &types.Update{
		TableName: &s.productsTable,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
		UpdateExpression:    aws.String(expr),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeNames: map[string]string{
			"#pk": "product_id", "#st": "stock", "#ua": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":  &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":ua": s.timestamp(),
		},
	}}
}

// mergeItems folds repeated products into one line each, keeping first-seen
// order. A transaction may touch an item only once.
func mergeItems(items []Item) []Item {
	idx := map[string]int{}
	var out []Item
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// releaseWrites returns stock for every line whose product still exists.
func (s *Store) releaseWrites(ctx context.Context, o *Order) ([]types.TransactWriteItem, error) {
	var writes []types.TransactWriteItem
	for _, line := range mergeItems(o.Items) {
		p, err := s.readStock(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			log.Printf("[orders] order %s: product %s no longer exists, %d units not restored", o.OrderID, line.ProductID, line.Quantity)
			continue
		}
		writes = append(writes, s.stockUpdate(line.ProductID, line.Quantity, exprRelease, condRelease))
	}
	return writes, nil
}

// CreateOrder reserves stock for every item and stores a pending order in one
// transaction. Either every product is decremented and the order exists, or
// nothing changes.
func (s *Store) CreateOrder(ctx context.Context, in CreateInput) (*Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	lines := mergeItems(in.Items)

	now := s.nowFunc()
	o := Order{
		OrderID:         uuid.NewString(),
		UserID:          in.UserID,
		Items:           in.Items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		Subtotal:        in.Subtotal,
		ShippingCost:    in.ShippingCost,
		Discount:        in.Discount,
		Total:           in.Total,
		CouponCode:      strings.ToUpper(in.CouponCode),
		CouponID:        in.CouponID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	orderItem, err := attributevalue.MarshalMap(o)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}

	err = s.transact(ctx, "create order", func(ctx context.Context) ([]types.TransactWriteItem, error) {
		writes := make([]types.TransactWriteItem, 0, len(lines)+1)
		for _, line := range lines {
			p, err := s.readStock(ctx, line.ProductID)
			if err != nil {
				return nil, err
			}
			if p == nil {
				return nil, &ProductError{ProductID: line.ProductID}
			}
			if line.Quantity > p.Stock {
				return nil, &StockError{ProductID: line.ProductID, Name: p.Name, Available: p.Stock}
			}
			writes = append(writes, s.stockUpdate(line.ProductID, line.Quantity, exprReserve, condReserve))
		}
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderItem,
			ConditionExpression: aws.String(condNewOrder),
		}})
		return writes, nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[orders] created order %s for user %s (%d lines, total %.2f)", o.OrderID, o.UserID, len(lines), o.Total)
	return &o, nil
}

// CancelOrder cancels a pending order and returns its stock in one
// transaction. Orders past pending fail with ErrInvalidState.
func (s *Store) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	var cancelled *Order
	err := s.transact(ctx, "cancel order", func(ctx context.Context) ([]types.TransactWriteItem, error) {
		o, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, ErrNotFound
		}
		if o.Status != StatusPending {
			return nil, ErrInvalidState
		}

		writes, err := s.releaseWrites(ctx, o)
		if err != nil {
			return nil, err
		}
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:           &s.tableName,
			Key:                 orderKey(orderID),
			UpdateExpression:    aws.String(exprCancel),
			ConditionExpression: aws.String(condCancel),
			ExpressionAttributeNames: map[string]string{
				"#s": "status", "#ua": "updated_at",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cancelled": &types.AttributeValueMemberS{Value: StatusCancelled},
				":pending":   &types.AttributeValueMemberS{Value: StatusPending},
				":ua":        s.timestamp(),
			},
		}})

		o.Status = StatusCancelled
		o.UpdatedAt = s.nowFunc()
		cancelled = o
		return writes, nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[orders] cancelled order %s", orderID)
	return cancelled, nil
}

// ApplyPayment records a gateway payment status on an order. approved moves a
// pending order to processing and redeems its coupon; rejected cancels it.
// A notification repeating the stored status changes nothing.
func (s *Store) ApplyPayment(ctx context.Context, orderID, paymentID, status string) (*PaymentUpdate, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return nil, fmt.Errorf("%w: empty payment status", ErrInvalidInput)
	}

	var res PaymentUpdate
	err := s.transact(ctx, "apply payment", func(ctx context.Context) ([]types.TransactWriteItem, error) {
		res = PaymentUpdate{}
		o, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, ErrNotFound
		}
		res.Order = o
		if o.PaymentStatus == status && (paymentID == "" || o.PaymentID == paymentID) {
			return nil, nil
		}

		next := o.Status
		if o.Status == StatusPending {
			switch status {
			case PaymentApproved:
				next = StatusProcessing
			case PaymentRejected:
				next = StatusCancelled
			}
		}
		redeem := status == PaymentApproved && o.PaymentStatus != PaymentApproved && o.CouponID != "" && s.coupons != nil
		if redeem {
			ok, err := s.coupons.Redeemable(ctx, o.CouponID)
			if err != nil {
				return nil, err
			}
			if !ok {
				log.Printf("[orders] order %s: coupon %s missing or exhausted, usage not recorded", o.OrderID, o.CouponID)
				redeem = false
			}
		}
		restore := next == StatusCancelled && o.Status == StatusPending && s.restoreOnReject

		sets := []string{"#s = :next", "#ps = :ps", "#ua = :ua"}
		values := map[string]types.AttributeValue{
			":next":  &types.AttributeValueMemberS{Value: next},
			":ps":    &types.AttributeValueMemberS{Value: status},
			":cur":   &types.AttributeValueMemberS{Value: o.Status},
			":curps": &types.AttributeValueMemberS{Value: o.PaymentStatus},
			":ua":    s.timestamp(),
		}
		names := map[string]string{"#s": "status", "#ps": "payment_status", "#ua": "updated_at"}
		if paymentID != "" {
			sets = append(sets, "#pid = :pid")
			names["#pid"] = "payment_id"
			values[":pid"] = &types.AttributeValueMemberS{Value: paymentID}
		}

		var writes []types.TransactWriteItem
		if restore {
			if writes, err = s.releaseWrites(ctx, o); err != nil {
				return nil, err
			}
		}
		if redeem {
			writes = append(writes, types.TransactWriteItem{Update: s.coupons.UsageUpdate(o.CouponID)})
		}
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:                 &s.tableName,
			Key:                       orderKey(orderID),
			UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
			ConditionExpression:       aws.String(condPayment),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		}})

		updated := *o
		updated.Status = next
		updated.PaymentStatus = status
		if paymentID != "" {
			updated.PaymentID = paymentID
		}
		updated.UpdatedAt = s.nowFunc()
		res = PaymentUpdate{Order: &updated, Changed: true, CouponRedeemed: redeem, StockRestored: restore}
		return writes, nil
	})
	if err != nil {
		return nil, err
	}
	if res.Changed {
		log.Printf("[orders] order %s payment %s -> %s (status %s)", orderID, paymentID, status, res.Order.Status)
	}
	return &res, nil
}
