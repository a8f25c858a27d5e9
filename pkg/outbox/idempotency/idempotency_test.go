package idempotency

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type entry struct {
	value any
	ttl   time.Duration
}

type fakeStore struct {
	entries map[string]entry
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]entry{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.entries[key]; ok {
		return false, nil
	}
	f.entries[key] = entry{value: value, ttl: ttl}
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.entries[key] = entry{value: value, ttl: ttl}
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.entries, k)
	}
	return f.err
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "jv:idempotency:" + scope + ":" + id
}

const key = "jv:idempotency:evt:processed:notifications:o1_created"

func TestClaimThenMarkProcessed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour, WithClaimTTL(time.Minute))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	already, err := manager.CheckAndMarkProcessed(ctx, "notifications", "o1_created")
	if err != nil || already {
		t.Fatalf("expected fresh claim got %v %v", already, err)
	}
	if got := store.entries[key]; got != (entry{value: "processing", ttl: time.Minute}) {
		t.Fatalf("unexpected claim entry: %+v", got)
	}

	already, err = manager.CheckAndMarkProcessed(ctx, "notifications", "o1_created")
	if err != nil || !already {
		t.Fatalf("a live claim blocks concurrent deliveries, got %v %v", already, err)
	}

	if err := manager.MarkProcessed(ctx, "notifications", "o1_created"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if got := store.entries[key]; got != (entry{value: "done", ttl: 24 * time.Hour}) {
		t.Fatalf("unexpected processed entry: %+v", got)
	}

	already, err = manager.CheckAndMarkProcessed(ctx, "notifications", "o1_created")
	if err != nil || !already {
		t.Fatalf("expected processed event to be skipped got %v %v", already, err)
	}
}

func TestDeleteReleasesClaim(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := manager.CheckAndMarkProcessed(ctx, "notifications", "o1_created"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := manager.Delete(ctx, "notifications", "o1_created"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	already, err := manager.CheckAndMarkProcessed(ctx, "notifications", "o1_created")
	if err != nil || already {
		t.Fatalf("expected released claim to be reclaimable got %v %v", already, err)
	}
}

func TestClaimTTLNeverExceedsTTL(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 30*time.Second)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := manager.CheckAndMarkProcessed(context.Background(), "notifications", "o1_created"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ttl := store.entries[key].ttl; ttl != 30*time.Second {
		t.Fatalf("expected claim ttl capped at 30s got %v", ttl)
	}
}

func TestManagerErrors(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.err = errors.New("boom")
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := manager.CheckAndMarkProcessed(ctx, "notifications", "o1_created"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected store error got %v", err)
	}
	if err := manager.MarkProcessed(ctx, "notifications", "o1_created"); err == nil {
		t.Fatalf("expected mark processed error")
	}
	if _, err := manager.CheckAndMarkProcessed(ctx, "", "o1_created"); err == nil {
		t.Fatalf("expected error for blank consumer")
	}
	if _, err := manager.CheckAndMarkProcessed(ctx, "notifications", " "); err == nil {
		t.Fatalf("expected error for blank event id")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewManager(newFakeStore(), -time.Second); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}
