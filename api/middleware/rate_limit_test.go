package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type counterStore struct {
	counts map[string]int64
	err    error
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterStore) RateLimitKey(scope string) string { return "rl:" + scope }

func rateLimitedRequest(uid, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	req.RemoteAddr = ip + ":5555"
	return req.WithContext(WithUserID(req.Context(), uid))
}

func TestRateLimitBlocksUserOverBudget(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("order-create", time.Minute, 2, 100), store, nil)(okHandler())

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, rateLimitedRequest("buyer-1", "10.0.0.1"))
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, rateLimitedRequest("buyer-1", "10.0.0.1"))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60 got %q", got)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, rateLimitedRequest("buyer-2", "10.0.0.1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("other buyer should not be limited, got %d", resp.Code)
	}
}

func TestRateLimitBlocksSharedIP(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("order-create", time.Minute, 100, 1), store, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, rateLimitedRequest("buyer-1", "10.0.0.1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, rateLimitedRequest("buyer-2", "10.0.0.1"))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected shared ip to be limited, got %d", resp.Code)
	}
	if _, ok := store.counts["rl:order-create:ip:10.0.0.1"]; !ok {
		t.Fatalf("expected ip counter, have %v", store.counts)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := &counterStore{err: errors.New("redis down")}
	handler := RateLimit(NewRateLimitPolicy("order-create", time.Minute, 1, 1), store, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, rateLimitedRequest("buyer-1", "10.0.0.1"))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicy(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("order-create", 0, 1, 1), store, nil)(okHandler())

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, rateLimitedRequest("buyer-1", "10.0.0.1"))
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, resp.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("disabled policy touched the store: %v", store.counts)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected forwarded client ip got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.4:1234"
	if got := clientIP(req); got != "192.0.2.4" {
		t.Fatalf("expected remote addr ip got %q", got)
	}
}
