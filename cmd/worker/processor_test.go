package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/coupons"
	"github.com/imrishuroy/go-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
)

// --- mock implementations ---

type stubGateway struct {
	payments map[string]*payments.Payment
	err      error
}

func (g *stubGateway) CreatePreference(ctx context.Context, p payments.PreferenceRequest) (*payments.Preference, error) {
	return nil, errors.New("not used")
}

func (g *stubGateway) GetPayment(ctx context.Context, id string) (*payments.Payment, error) {
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	return p, nil
}

type countingCloudWatch struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range in.MetricData {
		c.counts[*d.MetricName]++
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type fixture struct {
	fake    *dynamotest.Fake
	gateway *stubGateway
	cw      *countingCloudWatch
	p       *Processor
}

func newFixture() *fixture {
	fake := dynamotest.New().
		AddTable("orders", "order_id").
		AddTable("products", "product_id").
		AddTable("coupons", "coupon_id").
		AddIndex("coupons", coupons.CodeIndex, "code", "").
		AddTable("notifications", "idempotency_key")

	couponStore := coupons.NewStore(fake, "coupons")
	f := &fixture{
		fake:    fake,
		gateway: &stubGateway{payments: map[string]*payments.Payment{}},
		cw:      &countingCloudWatch{counts: map[string]int{}},
	}
	f.p = NewProcessor(
		f.gateway,
		idempotency.NewStore(fake, "notifications", time.Hour),
		orders.NewStore(fake, "orders", "products").WithCoupons(couponStore),
		aws.NewMetrics(f.cw, "Test"),
		nil,
	)
	return f
}

func (f *fixture) seedOrder(id, couponID string) {
	now := time.Now().UTC()
	f.fake.Seed("orders", orders.Order{
		OrderID:       id,
		UserID:        "u1",
		Items:         []orders.Item{{ProductID: "p1", Quantity: 1, Price: 100}},
		Subtotal:      100,
		Total:         100,
		CouponID:      couponID,
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func sqsEvent(ids ...string) events.SQSEvent {
	var ev events.SQSEvent
	for i, id := range ids {
		body, _ := json.Marshal(payments.PaymentMessage{PaymentID: id, Type: "payment"})
		ev.Records = append(ev.Records, events.SQSMessage{MessageId: string(rune('a' + i)), Body: string(body)})
	}
	return ev
}

func (f *fixture) order(t *testing.T, id string) orders.Order {
	t.Helper()
	var o orders.Order
	if !f.fake.Load("orders", id, &o) {
		t.Fatalf("order %s missing", id)
	}
	return o
}

// --- test cases ---

func TestWorkerProcess_ApprovedRedeemsCouponOnce(t *testing.T) {
	f := newFixture()
	f.fake.Seed("coupons", coupons.Coupon{CouponID: "c1", Code: "BEMVINDO10", DiscountType: coupons.Percentage, DiscountValue: 10, Active: true})
	f.seedOrder("o1", "c1")
	f.gateway.payments["55"] = &payments.Payment{ID: "55", Status: "approved", ExternalReference: "o1"}

	// the same notification delivered twice
	for i := 0; i < 2; i++ {
		resp, err := f.p.Handle(context.Background(), sqsEvent("55"))
		if err != nil || len(resp.BatchItemFailures) != 0 {
			t.Fatalf("unexpected worker error: %v %+v", err, resp)
		}
	}

	o := f.order(t, "o1")
	if o.Status != orders.StatusProcessing || o.PaymentStatus != orders.PaymentApproved || o.PaymentID != "55" {
		t.Fatalf("unexpected order %+v", o)
	}
	var c coupons.Coupon
	f.fake.Load("coupons", "c1", &c)
	if c.UsageCount != 1 {
		t.Fatalf("expected one redemption, got %d", c.UsageCount)
	}
	if f.cw.counts[aws.MetricPaymentsApproved] != 1 || f.cw.counts[aws.MetricCouponsRedeemed] != 1 {
		t.Fatalf("unexpected metrics %v", f.cw.counts)
	}

	rec, _ := idempotency.NewStore(f.fake, "notifications", time.Hour).Get(context.Background(), idempotency.PaymentKey("55", "approved"))
	if rec == nil || rec.Status != idempotency.StatusDone || rec.Result != orders.StatusProcessing {
		t.Fatalf("unexpected notification record %+v", rec)
	}
}

func TestWorkerProcess_Rejected(t *testing.T) {
	f := newFixture()
	f.seedOrder("o2", "")
	f.gateway.payments["56"] = &payments.Payment{ID: "56", Status: "Rejected", ExternalReference: "o2"}

	resp, err := f.p.Handle(context.Background(), sqsEvent("56"))
	if err != nil || len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unexpected worker error: %v %+v", err, resp)
	}
	if o := f.order(t, "o2"); o.Status != orders.StatusCancelled || o.PaymentStatus != orders.PaymentRejected {
		t.Fatalf("unexpected order %+v", o)
	}
	if f.cw.counts[aws.MetricPaymentsRejected] != 1 {
		t.Fatalf("unexpected metrics %v", f.cw.counts)
	}
}

func TestWorkerProcess_PartialBatchFailure(t *testing.T) {
	f := newFixture()
	f.seedOrder("o3", "")
	f.gateway.payments["57"] = &payments.Payment{ID: "57", Status: "approved", ExternalReference: "o3"}

	ev := sqsEvent("57")
	ev.Records = append(ev.Records, events.SQSMessage{MessageId: "bad", Body: "{not json"})

	resp, err := f.p.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "bad" {
		t.Fatalf("expected only the bad message to fail, got %+v", resp.BatchItemFailures)
	}
	if o := f.order(t, "o3"); o.Status != orders.StatusProcessing {
		t.Fatalf("good message not applied: %+v", o)
	}
}

func TestWorkerProcess_GatewayErrorsAndMissingOrders(t *testing.T) {
	f := newFixture()

	// unknown payment: dropped
	resp, _ := f.p.Handle(context.Background(), sqsEvent("404"))
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unknown payments should be dropped")
	}

	// order missing: recorded and not retried
	f.gateway.payments["58"] = &payments.Payment{ID: "58", Status: "approved", ExternalReference: "ghost"}
	resp, _ = f.p.Handle(context.Background(), sqsEvent("58"))
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("missing orders should not be retried")
	}

	// gateway outage: retried
	f.gateway.err = &payments.APIError{StatusCode: 503, Message: "unavailable"}
	resp, _ = f.p.Handle(context.Background(), sqsEvent("58"))
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("gateway errors should be retried")
	}
}

func TestWorkerProcess_ApplyFailureMarksFailedThenRecovers(t *testing.T) {
	f := newFixture()
	f.seedOrder("o4", "")
	f.gateway.payments["59"] = &payments.Payment{ID: "59", Status: "approved", ExternalReference: "o4"}

	boom := errors.New("throttled")
	f.fake.BeforeTransact = func(*dyn.TransactWriteItemsInput) error { return boom }
	resp, _ := f.p.Handle(context.Background(), sqsEvent("59"))
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected a retry, got %+v", resp)
	}
	rec, _ := idempotency.NewStore(f.fake, "notifications", time.Hour).Get(context.Background(), idempotency.PaymentKey("59", "approved"))
	if rec == nil || rec.Status != idempotency.StatusFailed {
		t.Fatalf("expected FAILED record, got %+v", rec)
	}

	f.fake.BeforeTransact = nil
	resp, _ = f.p.Handle(context.Background(), sqsEvent("59"))
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("redelivery should succeed, got %+v", resp)
	}
	if o := f.order(t, "o4"); o.Status != orders.StatusProcessing {
		t.Fatalf("unexpected order %+v", o)
	}
}

func TestWorkerProcess_ExhaustedCouponStillApprovesPayment(t *testing.T) {
	f := newFixture()
	limit := 1
	f.fake.Seed("coupons", coupons.Coupon{CouponID: "c1", Code: "ONCE", DiscountType: coupons.Fixed, DiscountValue: 5, UsageLimit: &limit, Active: true})
	f.seedOrder("o5", "c1")
	f.seedOrder("o6", "c1")
	f.gateway.payments["60"] = &payments.Payment{ID: "60", Status: "approved", ExternalReference: "o5"}
	f.gateway.payments["61"] = &payments.Payment{ID: "61", Status: "approved", ExternalReference: "o6"}

	resp, err := f.p.Handle(context.Background(), sqsEvent("60", "61"))
	if err != nil || len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unexpected worker error: %v %+v", err, resp)
	}
	for _, id := range []string{"o5", "o6"} {
		if o := f.order(t, id); o.Status != orders.StatusProcessing || o.PaymentStatus != orders.PaymentApproved {
			t.Fatalf("unexpected order %+v", o)
		}
	}
	var c coupons.Coupon
	f.fake.Load("coupons", "c1", &c)
	if c.UsageCount != 1 {
		t.Fatalf("usage limit exceeded: usage_count=%d", c.UsageCount)
	}
	if f.cw.counts[aws.MetricPaymentsApproved] != 2 || f.cw.counts[aws.MetricCouponsRedeemed] != 1 {
		t.Fatalf("unexpected metrics %v", f.cw.counts)
	}
}

func TestWorkerProcess_CouponExhaustedDuringApproval(t *testing.T) {
	f := newFixture()
	limit := 1
	coupon := coupons.Coupon{CouponID: "c1", Code: "ONCE", DiscountType: coupons.Fixed, DiscountValue: 5, UsageLimit: &limit, Active: true}
	f.fake.Seed("coupons", coupon)
	f.seedOrder("o7", "c1")
	f.gateway.payments["62"] = &payments.Payment{ID: "62", Status: "approved", ExternalReference: "o7"}

	// another checkout takes the last redemption between read and commit
	taken := false
	f.fake.BeforeTransact = func(*dyn.TransactWriteItemsInput) error {
		if !taken {
			taken = true
			used := coupon
			used.UsageCount = 1
			f.fake.Seed("coupons", used)
		}
		return nil
	}

	resp, err := f.p.Handle(context.Background(), sqsEvent("62"))
	if err != nil || len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unexpected worker error: %v %+v", err, resp)
	}
	if o := f.order(t, "o7"); o.Status != orders.StatusProcessing || o.PaymentStatus != orders.PaymentApproved {
		t.Fatalf("unexpected order %+v", o)
	}
	var c coupons.Coupon
	f.fake.Load("coupons", "c1", &c)
	if c.UsageCount != 1 {
		t.Fatalf("usage limit exceeded: usage_count=%d", c.UsageCount)
	}
	if f.cw.counts[aws.MetricCouponsRedeemed] != 0 {
		t.Fatalf("unexpected metrics %v", f.cw.counts)
	}
}
