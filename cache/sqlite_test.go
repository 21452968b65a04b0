package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "beacon.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSetGet(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Fatal("Get on empty store should miss")
	}

	s.Set(ctx, "rules", "payload", 0)
	value, ok := s.Get(ctx, "rules")
	if !ok || value != "payload" {
		t.Fatalf("Get() = %q, %v", value, ok)
	}

	// Upsert replaces the stored value.
	s.Set(ctx, "rules", "updated", 0)
	if value, _ := s.Get(ctx, "rules"); value != "updated" {
		t.Fatalf("Get() after upsert = %q", value)
	}
}

func TestSQLiteTTL(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }

	s.Set(ctx, "rules", "payload", 100*time.Millisecond)
	if _, ok := s.Get(ctx, "rules"); !ok {
		t.Fatal("entry should be present immediately after Set")
	}

	current = current.Add(150 * time.Millisecond)
	if _, ok := s.Get(ctx, "rules"); ok {
		t.Fatal("entry should be absent after the ttl elapsed")
	}
}

func TestSQLiteDeleteClear(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	s.Set(ctx, "a", "1", 0)
	s.Set(ctx, "b", "2", 0)

	s.Delete(ctx, "a")
	if s.Has(ctx, "a") {
		t.Error("Has(a) = true after Delete")
	}
	if !s.Has(ctx, "b") {
		t.Error("Delete must not touch other keys")
	}

	s.Clear(ctx)
	if s.Has(ctx, "b") {
		t.Error("Has(b) = true after Clear")
	}
}
