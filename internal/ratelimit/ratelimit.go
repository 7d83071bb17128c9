// Package ratelimit implements a store-backed fixed-window request
// limiter. Counters live in the metadata store keyed by
// (clientID, endpoint, windowStart), so limits survive restarts and are
// shared across replicas pointing at the same database.
package ratelimit

import (
	"log/slog"
	"time"

	"github.com/sweepies/imgur-sans-bullshit/internal/datastore"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
	"github.com/sweepies/imgur-sans-bullshit/internal/hosts"
	"github.com/sweepies/imgur-sans-bullshit/internal/logging"
	"github.com/sweepies/imgur-sans-bullshit/internal/observability/metrics"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter checks and counts requests against fixed windows.
type Limiter struct {
	store   datastore.Interface
	metrics *metrics.RateLimitMetrics
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter backed by the given store. metrics may be nil.
func New(store datastore.Interface, m *metrics.RateLimitMetrics) *Limiter {
	return &Limiter{
		store:   store,
		metrics: m,
		logger:  logging.ForService("ratelimit"),
		now:     time.Now,
	}
}

// Check admits or rejects one request. Admitted requests are counted;
// rejected ones are not, so a client hammering a full window cannot extend
// its own lockout.
func (l *Limiter) Check(clientID, endpoint string, cfg hosts.RateLimitConfig) (*Decision, error) {
	if cfg.Window <= 0 || cfg.MaxRequests <= 0 {
		return nil, errors.Newf("rate limit config must have positive window and max requests").
			Component("ratelimit").
			Category(errors.CategoryConfiguration).
			Build()
	}

	now := l.now()
	windowStart := now.Truncate(cfg.Window)
	resetAt := windowStart.Add(cfg.Window)
	windowKey := windowStart.UnixMilli()

	count, err := l.store.GetRateLimitCount(clientID, endpoint, windowKey)
	if err != nil {
		return nil, errors.Wrap(err).
			Component("ratelimit").
			Category(errors.CategoryDatabase).
			Build()
	}

	if count >= cfg.MaxRequests {
		l.metrics.IncrementRejected(endpoint)
		l.logger.Debug("request rejected", "client", clientID, "endpoint", endpoint, "count", count)
		return &Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	if err := l.store.IncrementRateLimit(clientID, endpoint, windowKey); err != nil {
		return nil, errors.Wrap(err).
			Component("ratelimit").
			Category(errors.CategoryDatabase).
			Build()
	}

	l.metrics.IncrementAllowed(endpoint)
	return &Decision{
		Allowed:   true,
		Remaining: cfg.MaxRequests - count - 1,
		ResetAt:   resetAt,
	}, nil
}
