package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(limit int) (*MemoryLimiter, *time.Time) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewMemoryLimiter(Config{RequestsPerMinute: limit, CleanupInterval: time.Hour})
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestMemoryLimiterWindow(t *testing.T) {
	rl, now := newTestLimiter(2)
	defer rl.Close()
	ctx := context.Background()

	if !rl.Allow(ctx, "a").Allowed || !rl.Allow(ctx, "a").Allowed {
		t.Fatalf("first two requests should pass")
	}
	d := rl.Allow(ctx, "a")
	if d.Allowed || d.Count != 3 {
		t.Fatalf("third request should be limited: %+v", d)
	}
	if !rl.Allow(ctx, "b").Allowed {
		t.Fatalf("keys are independent")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow(ctx, "a").Allowed {
		t.Fatalf("window should reset")
	}
}

func TestMemoryLimiterCleanup(t *testing.T) {
	rl, now := newTestLimiter(5)
	defer rl.Close()
	rl.Allow(context.Background(), "a")
	rl.Allow(context.Background(), "b")
	*now = now.Add(2 * time.Minute)
	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 0 {
		t.Fatalf("expected stale entries removed, got %d", rl.ActiveClients())
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(1)
	defer rl.Close()

	var limited int
	h := Middleware(rl, func(r *http.Request) string { return r.RemoteAddr },
		func(w http.ResponseWriter, r *http.Request, d Decision) {
			limited++
			w.WriteHeader(http.StatusTooManyRequests)
		})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("first request: code=%d headers=%v", rr.Code, rr.Header())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rr.Code != http.StatusTooManyRequests || limited != 1 || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second request: code=%d limited=%d headers=%v", rr.Code, limited, rr.Header())
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()
	if got := (Decision{WindowEnd: now.Add(30 * time.Second)}).RetryAfter(now); got != 30 {
		t.Fatalf("RetryAfter = %d", got)
	}
	if got := (Decision{WindowEnd: now.Add(-time.Second)}).RetryAfter(now); got != 1 {
		t.Fatalf("RetryAfter floor = %d", got)
	}
}

func TestNewRedisLimiterUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := NewRedisLimiter(ctx, RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected ping error for unreachable redis")
	}
}

type fakeCounterStore struct {
	counts      map[string]int64
	ttls        map[string]time.Duration
	expireFails int
	expireCalls int
}

func (f *fakeCounterStore) Incr(_ context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounterStore) Expire(_ context.Context, key string, d time.Duration) error {
	f.expireCalls++
	if f.expireFails > 0 {
		f.expireFails--
		return errors.New("connection reset")
	}
	f.ttls[key] = d
	return nil
}

func (f *fakeCounterStore) TTL(_ context.Context, key string) (time.Duration, error) {
	if _, ok := f.counts[key]; !ok {
		return -2, nil
	}
	if d, ok := f.ttls[key]; ok {
		return d, nil
	}
	return -1, nil
}

func TestRedisLimiterRetriesFailedExpire(t *testing.T) {
	store := &fakeCounterStore{
		counts:      map[string]int64{},
		ttls:        map[string]time.Duration{},
		expireFails: 1,
	}
	rl := &RedisLimiter{store: store, prefix: "t:", limit: 5, window: time.Minute, timeout: time.Second}
	defer rl.Close()

	if d := rl.Allow(context.Background(), "1.2.3.4"); !d.Allowed || d.Count != 1 {
		t.Fatalf("first hit: %+v", d)
	}
	if _, ok := store.ttls["t:1.2.3.4"]; ok {
		t.Fatalf("expire should have failed on first hit")
	}
	rl.Allow(context.Background(), "1.2.3.4")
	if got := store.ttls["t:1.2.3.4"]; got != time.Minute {
		t.Fatalf("key left without expiry, ttl = %v", got)
	}
	rl.Allow(context.Background(), "1.2.3.4")
	if store.expireCalls != 2 {
		t.Fatalf("expire calls = %d, want 2", store.expireCalls)
	}
}
