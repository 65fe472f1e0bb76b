package idempotency

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories/postgres"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("API_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("API_TEST_DATABASE_URL not set; skipping postgres integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE idempotency_keys`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresStore(pool)
}

func TestPostgresStoreLifecycle(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	now := time.Date(2024, time.November, 5, 10, 30, 0, 0, time.UTC)

	res, err := store.Reserve(ctx, "checkout|cust_1", "fp-1", now, time.Hour)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %+v err=%v", res, err)
	}
	res, err = store.Reserve(ctx, "checkout|cust_1", "fp-1", now, time.Hour)
	if err != nil || res.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %+v err=%v", res, err)
	}
	if _, err := store.Reserve(ctx, "checkout|cust_1", "fp-2", now, time.Hour); err != ErrFingerprintMismatch {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}

	resp := Response{Status: http.StatusCreated, Headers: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"order":{}}`), OrderID: "ord_1"}
	if err := store.SaveResponse(ctx, "checkout|cust_1", "fp-1", resp, now, time.Hour); err != nil {
		t.Fatalf("save response: %v", err)
	}
	res, err = store.Reserve(ctx, "checkout|cust_1", "fp-1", now.Add(time.Minute), time.Hour)
	if err != nil || res.State != ReservationStateCompleted {
		t.Fatalf("expected completed reservation, got %+v err=%v", res, err)
	}
	if res.Record.ResponseStatus != http.StatusCreated || string(res.Record.ResponseBody) != `{"order":{}}` {
		t.Fatalf("unexpected stored response %+v", res.Record)
	}
	if res.Record.OrderID != "ord_1" {
		t.Fatalf("expected stored order id, got %q", res.Record.OrderID)
	}
	if got := res.Record.ResponseHeaders["Content-Type"]; len(got) != 1 || got[0] != "application/json" {
		t.Fatalf("unexpected stored headers %v", res.Record.ResponseHeaders)
	}

	removed, err := store.CleanupExpired(ctx, now.Add(2*time.Hour), 10)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired key removed, got %d err=%v", removed, err)
	}
}

func TestPostgresStoreReleaseAndExpiry(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	now := time.Date(2024, time.November, 5, 10, 30, 0, 0, time.UTC)

	if _, err := store.Reserve(ctx, "refund|admin", "fp", now, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, "refund|admin", "fp"); err != nil {
		t.Fatalf("release: %v", err)
	}
	res, err := store.Reserve(ctx, "refund|admin", "fp", now, time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected new reservation after release, got %+v err=%v", res, err)
	}
	res, err = store.Reserve(ctx, "refund|admin", "fp", now.Add(2*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired key to be reissued, got %+v err=%v", res, err)
	}
}
