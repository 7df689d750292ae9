package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/commerce-core/internal/apperror"
)

const (
	// retryAfterSeconds is the fixed guidance returned on a denied request.
	retryAfterSeconds = 60

	cleanupInterval = 5 * time.Minute
	bucketMaxIdle   = 1 * time.Hour
)

// RateLimitConfig configures one rate-limited route group.
type RateLimitConfig struct {
	MaxTokens  float64 // bucket capacity; also the initial fill
	RefillRate float64 // tokens per second
	// KeyFunc derives the bucket key from a request. Defaults to the client
	// IP taken from the first X-Forwarded-For entry.
	KeyFunc func(r *http.Request) string
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimiterStore holds per-key token buckets in process memory. All
// bucket state is guarded by one mutex so a check-and-decrement can never
// race: two callers contending for the last token cannot both win.
type RateLimiterStore struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewRateLimiterStore() *RateLimiterStore {
	return &RateLimiterStore{
		buckets: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Consume refills the key's bucket for the elapsed time, then tries to take
// cost tokens. The refill and timestamp update happen even when the consume
// is denied. Never blocks. Returns whether the tokens were taken and the
// balance left behind.
func (s *RateLimiterStore) Consume(key string, maxTokens, refillRate, cost float64) (bool, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	b, ok := s.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: maxTokens, lastRefill: now}
		s.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = math.Min(maxTokens, b.tokens+elapsed*refillRate)
	b.lastRefill = now

	if b.tokens >= cost {
		b.tokens -= cost
		return true, b.tokens
	}
	return false, b.tokens
}

// StartCleanup launches the background eviction loop. Buckets idle for over
// an hour with zero tokens left are removed; buckets that regenerated any
// tokens are kept regardless of age, since a nonzero balance means the
// client may return and expect its accumulated allowance.
func (s *RateLimiterStore) StartCleanup() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanup(time.Now())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the cleanup loop and waits for it to exit.
func (s *RateLimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *RateLimiterStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-bucketMaxIdle)
	for key, b := range s.buckets {
		if b.lastRefill.Before(cutoff) && b.tokens == 0 {
			delete(s.buckets, key)
		}
	}
}

// Len reports the number of live buckets.
func (s *RateLimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimit gates requests through the store's token buckets. Allowed
// requests carry X-RateLimit-Limit and X-RateLimit-Remaining headers; denied
// requests get Retry-After plus a 429 body with the retry-after value in its
// context.
func RateLimit(store *RateLimiterStore, config RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, remaining := store.Consume(key, config.MaxTokens, config.RefillRate, 1)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", int(config.MaxTokens)))

			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				respondRateLimited(w)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int(math.Floor(remaining))))
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the default bucket key: the first entry of X-Forwarded-For,
// falling back to a sentinel when the header is absent.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return "unknown"
}

func respondRateLimited(w http.ResponseWriter) {
	appErr := apperror.RateLimited(retryAfterSeconds)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    appErr.Code,
			"message": appErr.Message,
			"context": appErr.Context,
		},
	})
}
