package summary

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type mockLedger struct {
	onHand map[string]float64
	calls  int
}

func (m *mockLedger) OnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	m.calls++
	return m.onHand[loc.Key()], nil
}

type mockReservations struct {
	reserved map[string]float64
	calls    int
}

func (m *mockReservations) Reserved(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	m.calls++
	return m.reserved[loc.Key()], nil
}

func newTestService(t *testing.T, ledger *mockLedger, reservations *mockReservations) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(ledger, reservations, cache)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestSummaryComputesAvailable(t *testing.T) {
	loc := shared.Warehouse(1)
	ledger := &mockLedger{onHand: map[string]float64{loc.Key(): 80}}
	reservations := &mockReservations{reserved: map[string]float64{loc.Key(): 30}}
	svc, cleanup := newTestService(t, ledger, reservations)
	defer cleanup()

	out, err := svc.Summary(context.Background(), 7, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.OnHand != 80 || out.Reserved != 30 || out.Available != 50 {
		t.Fatalf("unexpected summary %#v", out)
	}
}

func TestSummaryCachesUntilBump(t *testing.T) {
	loc := shared.Warehouse(1)
	ledger := &mockLedger{onHand: map[string]float64{loc.Key(): 80}}
	reservations := &mockReservations{reserved: map[string]float64{}}
	svc, cleanup := newTestService(t, ledger, reservations)
	defer cleanup()

	ctx := context.Background()
	if _, err := svc.Summary(ctx, 7, loc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.calls != 1 {
		t.Fatalf("expected 1 ledger call, got %d", ledger.calls)
	}

	// Second call should hit cache.
	if _, err := svc.Summary(ctx, 7, loc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.calls != 1 {
		t.Fatalf("expected cached result, ledger called %d times", ledger.calls)
	}

	// Bumping the version should trigger reload.
	if err := svc.cache.Bump(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	ledger.onHand[loc.Key()] = 60
	out, err := svc.Summary(ctx, 7, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.OnHand != 60 {
		t.Fatalf("expected refreshed on-hand 60 got %.2f", out.OnHand)
	}
	if ledger.calls != 2 {
		t.Fatalf("expected ledger to refresh, calls %d", ledger.calls)
	}
}

func TestSummaryKeysPerLocation(t *testing.T) {
	warehouse := shared.Warehouse(1)
	shop := shared.Shop(1)
	ledger := &mockLedger{onHand: map[string]float64{warehouse.Key(): 40, shop.Key(): 5}}
	reservations := &mockReservations{reserved: map[string]float64{}}
	svc, cleanup := newTestService(t, ledger, reservations)
	defer cleanup()

	ctx := context.Background()
	w, err := svc.Summary(ctx, 7, warehouse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := svc.Summary(ctx, 7, shop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.OnHand != 40 || s.OnHand != 5 {
		t.Fatalf("locations must not share cache entries: %#v %#v", w, s)
	}
}

func TestSummaryValidatesInput(t *testing.T) {
	ledger := &mockLedger{onHand: map[string]float64{}}
	reservations := &mockReservations{reserved: map[string]float64{}}
	svc, cleanup := newTestService(t, ledger, reservations)
	defer cleanup()

	ctx := context.Background()
	if _, err := svc.Summary(ctx, 0, shared.Warehouse(1)); err == nil {
		t.Fatalf("expected error for missing product")
	}
	if _, err := svc.Summary(ctx, 7, shared.Location{Type: "dock", ID: 1}); err == nil {
		t.Fatalf("expected error for bad location")
	}
}

func TestSummaryWorksWithoutRedis(t *testing.T) {
	loc := shared.Shop(2)
	ledger := &mockLedger{onHand: map[string]float64{loc.Key(): 9}}
	reservations := &mockReservations{reserved: map[string]float64{loc.Key(): 4}}
	svc := NewService(ledger, reservations, NewCache(nil, time.Minute))

	out, err := svc.Summary(context.Background(), 7, loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Available != 5 {
		t.Fatalf("expected available 5 got %.2f", out.Available)
	}

	// Without a backing client every call recomputes.
	if _, err := svc.Summary(context.Background(), 7, loc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.calls != 2 {
		t.Fatalf("expected recompute without redis, calls %d", ledger.calls)
	}
}
