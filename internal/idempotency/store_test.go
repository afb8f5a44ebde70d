package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imrishuroy/go-storefront/internal/dynamotest"
)

const table = "notifications-table"

func newTestStore(now *time.Time) (*Store, *dynamotest.Fake) {
	fake := dynamotest.New().AddTable(table, "idempotency_key")
	s := NewStore(fake, table, 72*time.Hour).WithLease(time.Minute)
	s.nowFunc = func() time.Time { return *now }
	return s, fake
}

func TestClaim_Get_MarkDone(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newTestStore(&now)
	ctx := context.Background()
	key := PaymentKey("123", "approved")

	claimed, err := s.Claim(ctx, key, "order-1")
	if err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if !claimed {
		t.Fatalf("expected claimed=true")
	}

	// a second worker sees the live claim
	if _, err := s.Claim(ctx, key, "order-1"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress, got %v", err)
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress || rec.OrderID != "order-1" || rec.Attempts != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.ExpiresAt != now.Add(72*time.Hour).Unix() {
		t.Fatalf("expires_at = %d", rec.ExpiresAt)
	}

	if err := s.MarkDone(ctx, key, "processing"); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	rec, _ = s.Get(ctx, key)
	if rec.Status != StatusDone || rec.Result != "processing" {
		t.Fatalf("expected DONE/processing, got %+v", rec)
	}

	claimed, err = s.Claim(ctx, key, "order-1")
	if err != nil || claimed {
		t.Fatalf("expected duplicate to be skipped, got claimed=%v err=%v", claimed, err)
	}
}

func TestClaim_ReclaimsFailed(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newTestStore(&now)
	ctx := context.Background()
	key := PaymentKey("9", "rejected")

	if _, err := s.Claim(ctx, key, "o"); err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	if err := s.MarkFailed(ctx, key, "transact write: boom"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.Status != StatusFailed || rec.Note != "transact write: boom" {
		t.Fatalf("expected FAILED with note, got %+v", rec)
	}

	claimed, err := s.Claim(ctx, key, "o")
	if err != nil || !claimed {
		t.Fatalf("expected reclaim, got claimed=%v err=%v", claimed, err)
	}
	rec, _ = s.Get(ctx, key)
	if rec.Status != StatusInProgress || rec.Attempts != 2 {
		t.Fatalf("expected IN_PROGRESS attempt 2, got %+v", rec)
	}
}

func TestClaim_TakesOverExpiredLease(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newTestStore(&now)
	ctx := context.Background()
	key := PaymentKey("7", "approved")

	if _, err := s.Claim(ctx, key, "o"); err != nil {
		t.Fatalf("Claim error: %v", err)
	}
	now = now.Add(2 * time.Minute)

	claimed, err := s.Claim(ctx, key, "o")
	if err != nil || !claimed {
		t.Fatalf("expected takeover, got claimed=%v err=%v", claimed, err)
	}
	rec, _ := s.Get(ctx, key)
	if rec.LeaseUntil != now.Add(time.Minute).Unix() {
		t.Fatalf("lease not extended: %+v", rec)
	}
}

func TestMark_RequiresClaim(t *testing.T) {
	now := time.Now()
	s, fake := newTestStore(&now)
	ctx := context.Background()

	if err := s.MarkDone(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.MarkFailed(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if fake.Len(table) != 0 {
		t.Fatalf("mark must not create entries")
	}
}
