package cache

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Limiter enforces a fixed-window request limit per tenant.
type Limiter struct {
	cache  domain.Cache
	limit  int64
	window time.Duration
}

// NewLimiter allows limit requests per window. A non-positive limit disables it.
func NewLimiter(c domain.Cache, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{cache: c, limit: int64(limit), window: window}
}

// Enabled reports whether the limiter rejects anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit > 0 && l.cache != nil
}

// Allow counts one request for tenantID and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, tenantID string) (bool, int64, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	n, err := l.cache.IncrementCounter(ctx, tenantID, "ratelimit", l.window)
	if err != nil {
		return false, 0, err
	}
	return n <= l.limit, n, nil
}

// Limit returns the configured limit.
func (l *Limiter) Limit() int64 {
	return l.limit
}

// Window returns the counting window.
func (l *Limiter) Window() time.Duration {
	return l.window
}
