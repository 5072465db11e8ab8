package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Store counts bad requests per origin key over a fixed window.
// Implementations must be safe for concurrent use.
type Store interface {
	// Incr increments the counter for key, starting a new window of
	// the given duration if none is active, and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Count returns the current counter for key, 0 if no window is
	// active.
	Count(ctx context.Context, key string) (int64, error)
}

// Limiter throttles clients that keep sending malformed or
// unauthenticated callbacks. It is checked before any payload parsing
// so floods are rejected cheaply.
type Limiter struct {
	store     Store
	threshold int64
	window    time.Duration
	logger    *logrus.Entry
}

// New creates a limiter that denies an origin once it has accumulated
// threshold bad requests within the window.
func New(store Store, threshold int, window time.Duration) *Limiter {
	return &Limiter{
		store:     store,
		threshold: int64(threshold),
		window:    window,
		logger:    logrus.WithField("component", "ratelimit"),
	}
}

// IsExceeded reports whether the origin has used up its bad-request
// budget. It never increments; a store failure fails open so a broken
// counter backend cannot block legitimate worker callbacks.
func (l *Limiter) IsExceeded(ctx context.Context, origin string) bool {
	count, err := l.store.Count(ctx, origin)
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"origin": origin,
			"err":    err,
		}).Error("failed to read bad request counter")
		return false
	}
	return count >= l.threshold
}

// Tick records one bad request for the origin
func (l *Limiter) Tick(ctx context.Context, origin string) {
	if _, err := l.store.Incr(ctx, origin, l.window); err != nil {
		l.logger.WithFields(logrus.Fields{
			"origin": origin,
			"err":    err,
		}).Error("failed to increment bad request counter")
	}
}
