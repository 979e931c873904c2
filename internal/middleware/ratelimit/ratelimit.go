// Package ratelimit throttles requests per client key with a fixed window,
// either in process memory or shared through Redis.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	WindowEnd time.Time
}

// RetryAfter is the number of whole seconds until the window resets.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(d.WindowEnd.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter interface {
	Allow(ctx context.Context, key string) Decision
	Close() error
}

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

// MemoryLimiter counts requests per key in one-minute windows.
type MemoryLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientWindow
	limit        int
	window       time.Duration
	now          func() time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientWindow struct {
	start time.Time
	count int
}

func NewMemoryLimiter(config Config) *MemoryLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	rl := &MemoryLimiter{
		clients:     make(map[string]*clientWindow),
		limit:       config.RequestsPerMinute,
		window:      time.Minute,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go rl.cleanupLoop(config.CleanupInterval)
	return rl
}

func (rl *MemoryLimiter) Allow(_ context.Context, key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok || now.Sub(c.start) >= rl.window {
		c = &clientWindow{start: now}
		rl.clients[key] = c
	}
	c.count++
	return Decision{
		Allowed:   c.count <= rl.limit,
		Count:     c.count,
		Limit:     rl.limit,
		WindowEnd: c.start.Add(rl.window),
	}
}

func (rl *MemoryLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops windows that ended before now.
func (rl *MemoryLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, c := range rl.clients {
		if now.Sub(c.start) >= rl.window {
			delete(rl.clients, key)
		}
	}
}

// ActiveClients returns the number of currently tracked keys.
func (rl *MemoryLimiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *MemoryLimiter) Close() error {
	rl.shutdownOnce.Do(func() { close(rl.stopCleanup) })
	return nil
}

// Middleware rejects requests whose key is over the limit. onLimit, when
// set, writes the rejection; otherwise a plain 429 is sent.
func Middleware(l Limiter, key func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request, Decision)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(r.Context(), key(r))
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				remaining := d.Limit - d.Count
				if remaining < 0 {
					remaining = 0
				}
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
				if onLimit != nil {
					onLimit(w, r, d)
					return
				}
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
