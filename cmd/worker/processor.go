package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-storefront/internal/aws"
	domain "github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
)

// Processor applies gateway payment notifications to orders.
type Processor struct {
	gateway       payments.Gateway
	notifications *idempotency.Store
	orderStore    *orders.Store
	metrics       *aws.Metrics
	events        *domain.Emitter
}

// NewProcessor creates a new worker processor with its collaborators injected.
func NewProcessor(gw payments.Gateway, notifications *idempotency.Store, orderStore *orders.Store, metrics *aws.Metrics, em *domain.Emitter) *Processor {
	return &Processor{
		gateway:       gw,
		notifications: notifications,
		orderStore:    orderStore,
		metrics:       metrics,
		events:        em,
	}
}

// Handle processes an SQS batch. Failed messages are reported individually
// so only they are redelivered; after too many receives they go to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] message %s: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg payments.PaymentMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.PaymentID == "" {
		return errors.New("message without payment id")
	}

	log.Printf("[worker] received payment=%s corr=%s", msg.PaymentID, msg.CorrelationID)

	// Step 1: Read the payment from the gateway; the notification only carries its id
	pay, err := p.gateway.GetPayment(ctx, msg.PaymentID)
	if errors.Is(err, payments.ErrNotFound) {
		log.Printf("[worker] payment %s unknown to the gateway, dropping", msg.PaymentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch payment: %w", err)
	}
	status := strings.ToLower(pay.Status)
	orderID := pay.ExternalReference
	if orderID == "" || status == "" {
		log.Printf("[worker] payment %s has no order reference or status, dropping", msg.PaymentID)
		return nil
	}

	// Step 2: Claim this (payment, status) pair so redeliveries are skipped
	key := idempotency.PaymentKey(msg.PaymentID, status)
	claimed, err := p.notifications.Claim(ctx, key, orderID)
	if err != nil {
		return fmt.Errorf("failed to claim %s: %w", key, err)
	}
	if !claimed {
		log.Printf("[worker] duplicate notification %s for order=%s", key, orderID)
		return nil
	}

	// Step 3: Apply the status to the order
	upd, err := p.orderStore.ApplyPayment(ctx, orderID, msg.PaymentID, status)
	if errors.Is(err, orders.ErrNotFound) {
		log.Printf("[worker] order %s for payment %s not found", orderID, msg.PaymentID)
		return p.notifications.MarkDone(ctx, key, "order_not_found")
	}
	if err != nil {
		if mErr := p.notifications.MarkFailed(ctx, key, err.Error()); mErr != nil {
			log.Printf("[worker] failed to mark %s failed: %v", key, mErr)
		}
		return fmt.Errorf("failed to apply payment to order=%s: %w", orderID, err)
	}

	// Step 4: Side effects only when something changed
	if upd.Changed {
		p.record(ctx, status, upd)
	}

	// Step 5: Mark the notification DONE
	if err := p.notifications.MarkDone(ctx, key, upd.Order.Status); err != nil {
		return fmt.Errorf("failed to update notification log: %w", err)
	}
	log.Printf("[worker] order=%s payment=%s status=%s", orderID, msg.PaymentID, upd.Order.Status)
	return nil
}

func (p *Processor) record(ctx context.Context, status string, upd *orders.PaymentUpdate) {
	switch status {
	case orders.PaymentApproved:
		p.metrics.Count(ctx, aws.MetricPaymentsApproved, 1)
	case orders.PaymentRejected:
		p.metrics.Count(ctx, aws.MetricPaymentsRejected, 1)
	}
	if upd.CouponRedeemed {
		p.metrics.Count(ctx, aws.MetricCouponsRedeemed, 1)
	}

	o := upd.Order
	err := p.events.Emit(ctx, domain.TopicPaymentUpdated, domain.EventPaymentUpdated, o.OrderID, domain.PaymentUpdated{
		OrderID:        o.OrderID,
		PaymentID:      o.PaymentID,
		PaymentStatus:  o.PaymentStatus,
		OrderStatus:    o.Status,
		CouponRedeemed: upd.CouponRedeemed,
	})
	if err != nil {
		log.Printf("[events] payment update for order %s: %v", o.OrderID, err)
	}
}
