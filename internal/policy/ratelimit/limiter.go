// Package ratelimit throttles outbound fetches with token buckets. The allowed
// domain and all of its subdomains draw from one bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/scrape-proxy/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// PerMinute is the sustained request rate per host. Zero or less disables
	// limiting.
	PerMinute float64
	Burst     int
	// Domain is the allowed domain. Hosts equal to it or below it share its
	// bucket.
	Domain string
}

// Limiter manages rate limits keyed by bucket.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	domain   string
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.PerMinute > 0 {
		limit = rate.Limit(cfg.PerMinute / 60)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		domain:   strings.ToLower(strings.TrimSpace(cfg.Domain)),
	}
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool {
	return l.limit != rate.Inf
}

// Wait blocks until a token is available for the URL's bucket. It fails
// immediately when the wait would outlast the context deadline.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if !l.Enabled() {
		return nil
	}
	key := l.bucketKey(hostOf(rawURL))
	limiter := l.forKey(key)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Tokens available up front return in well under a millisecond.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(key, waited)
	}
	return nil
}

func (l *Limiter) bucketKey(host string) string {
	if l.domain != "" && (host == l.domain || strings.HasSuffix(host, "."+l.domain)) {
		return l.domain
	}
	return host
}

func (l *Limiter) forKey(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
