package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultClaimTTL = 5 * time.Minute

	claimedValue = "processing"
	doneValue    = "done"
)

// markStore is the slice of the redis client the manager needs.
type markStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager dedupes event deliveries per consumer. A delivery first claims
// the event id with a short TTL; MarkProcessed then keeps the mark for the
// full TTL. A consumer that dies mid-event therefore blocks redelivery only
// until the claim expires.
//
// Keys follow jv:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store    markStore
	ttl      time.Duration
	claimTTL time.Duration
}

type Option func(*Manager)

// WithClaimTTL bounds how long an unfinished delivery holds its event id.
func WithClaimTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.claimTTL = ttl
		}
	}
}

func NewManager(store markStore, ttl time.Duration, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	m := &Manager{store: store, ttl: ttl, claimTTL: defaultClaimTTL}
	for _, opt := range opts {
		opt(m)
	}
	if ttl > 0 && m.claimTTL > ttl {
		m.claimTTL = ttl
	}
	return m, nil
}

// CheckAndMarkProcessed claims eventID for consumer. It returns true when the
// event is already claimed or processed and must be skipped.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	claimed, err := m.store.SetNX(ctx, key, claimedValue, m.claimTTL)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !claimed, nil
}

// MarkProcessed turns a claim into a mark that lives for the full TTL.
func (m *Manager) MarkProcessed(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, doneValue, m.ttl); err != nil {
		return fmt.Errorf("mark %s: %w", key, err)
	}
	return nil
}

// Delete releases the claim so a redelivery is processed again.
func (m *Manager) Delete(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if strings.TrimSpace(eventID) == "" {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}
