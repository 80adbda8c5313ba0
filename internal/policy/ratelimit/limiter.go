// Package ratelimit paces upstream requests with a token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/hadith-ingest/internal/metrics"
)

// Config holds rate limiter configuration. Hosts overrides DefaultRPS for
// specific hostnames.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	Hosts        map[string]float64
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	hostRates    map[string]rate.Limit
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	hosts := make(map[string]rate.Limit, len(cfg.Hosts))
	for host, rps := range cfg.Hosts {
		hosts[host] = toLimit(rps)
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  toLimit(cfg.DefaultRPS),
		defaultBurst: burst,
		hostRates:    hosts,
	}
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Wait blocks until a token is available for the URL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	start := time.Now()
	if err := l.limiterFor(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		r, override := l.hostRates[host]
		if !override {
			r = l.defaultRate
		}
		limiter = rate.NewLimiter(r, l.defaultBurst)
		l.limiters[host] = limiter
	}
	return limiter
}
