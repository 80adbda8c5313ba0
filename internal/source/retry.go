package source

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// RetryConfig tunes RetryPolicy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *zap.Logger
}

// RetryPolicy retries transient failures with jittered exponential backoff.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger
}

// NewRetryPolicy applies defaults of 4 attempts, 1s base delay and 8s cap.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &RetryPolicy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		logger:      cfg.Logger,
	}
}

// ShouldRetry decides whether err is worth another attempt.
func (p *RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if IsTransient(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// Backoff returns the wait before the attempt following attempt n (0-based).
func (p *RetryPolicy) Backoff(n int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(n))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// attempt budget, or ctx ends. The last error is returned unwrapped so callers
// can match ErrNotFound and TransientError.
func (p *RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(uint(p.maxAttempts)),
		retry.LastErrorOnly(true),
		retry.RetryIf(p.ShouldRetry),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return p.Backoff(int(n))
		}),
		retry.OnRetry(func(n uint, err error) {
			p.logger.Debug("retrying upstream fetch", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
