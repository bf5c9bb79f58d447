package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisLedger, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	ledger, err := NewRedisLedger("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger, s
}

func TestNewRedisLedger(t *testing.T) {
	ledger, _ := setupTestRedis(t, 0)
	if err := ledger.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if ledger.ttl != defaultTTL {
		t.Errorf("ttl = %v, want default", ledger.ttl)
	}
}

func TestNewRedisLedgerInvalidURL(t *testing.T) {
	if _, err := NewRedisLedger("not-a-url", 0); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestMarkAndLookupApplied(t *testing.T) {
	ledger, s := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	applied, err := ledger.Applied(ctx, "doc-1", "sug-1")
	if err != nil {
		t.Fatalf("Applied failed: %v", err)
	}
	if applied {
		t.Fatal("expected suggestion not yet applied")
	}

	if err := ledger.MarkApplied(ctx, "doc-1", "sug-1"); err != nil {
		t.Fatalf("MarkApplied failed: %v", err)
	}

	applied, err = ledger.Applied(ctx, "doc-1", "sug-1")
	if err != nil {
		t.Fatalf("Applied failed: %v", err)
	}
	if !applied {
		t.Fatal("expected suggestion applied")
	}

	if !s.Exists("applied:doc-1:sug-1") {
		t.Error("expected key applied:doc-1:sug-1")
	}
	if ttl := s.TTL("applied:doc-1:sug-1"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	other, _ := ledger.Applied(ctx, "doc-2", "sug-1")
	if other {
		t.Error("applied state leaked across documents")
	}
}

func TestMarkAppliedKeepsFirstEntry(t *testing.T) {
	ledger, _ := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return first }
	if err := ledger.MarkApplied(ctx, "doc-1", "sug-1"); err != nil {
		t.Fatal(err)
	}
	ledger.now = func() time.Time { return first.Add(time.Hour) }
	if err := ledger.MarkApplied(ctx, "doc-1", "sug-1"); err != nil {
		t.Fatal(err)
	}

	entry, err := ledger.Entry(ctx, "doc-1", "sug-1")
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if !entry.AppliedAt.Equal(first) {
		t.Errorf("applied_at = %v, want %v", entry.AppliedAt, first)
	}
	if entry.SuggestionID != "sug-1" || entry.DocumentID != "doc-1" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestAppliedEntryExpires(t *testing.T) {
	ledger, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	if err := ledger.MarkApplied(ctx, "doc-1", "sug-1"); err != nil {
		t.Fatal(err)
	}
	s.FastForward(2 * time.Minute)

	applied, err := ledger.Applied(ctx, "doc-1", "sug-1")
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Error("expected entry to expire")
	}
	if _, err := ledger.Entry(ctx, "doc-1", "sug-1"); !errors.Is(err, redis.Nil) {
		t.Errorf("Entry error = %v, want redis.Nil", err)
	}
}

func TestLedgerReportsRedisFailure(t *testing.T) {
	ledger, s := setupTestRedis(t, time.Hour)
	s.Close()

	if _, err := ledger.Applied(context.Background(), "doc-1", "sug-1"); err == nil {
		t.Error("expected error when redis is down")
	}
	if err := ledger.MarkApplied(context.Background(), "doc-1", "sug-1"); err == nil {
		t.Error("expected error when redis is down")
	}
}
