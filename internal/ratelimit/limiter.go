// Package ratelimit implements an in-memory fixed-window request counter
// keyed by client. State is per process and is lost on restart.
package ratelimit

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sdko-org/logrelay/internal/metrics"
	"github.com/sirupsen/logrus"
)

type entry struct {
	count       int
	windowStart time.Time
}

// Result is the outcome of a single Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type Limiter struct {
	entries *xsync.Map[string, entry]
	limit   int
	window  time.Duration
	now     func() time.Time
	log     *logrus.Entry
}

func New(logger *logrus.Logger, limit int, window time.Duration) *Limiter {
	return &Limiter{
		entries: xsync.NewMap[string, entry](),
		limit:   limit,
		window:  window,
		now:     time.Now,
		log:     logger.WithField("component", "rate_limiter"),
	}
}

func (l *Limiter) Limit() int {
	return l.limit
}

// Check counts a request for key. A window starts on the first request and is
// hard-reset once the current time passes windowStart+window. Rejected
// requests do not increment the counter.
func (l *Limiter) Check(key string) Result {
	now := l.now()
	var res Result
	created := false

	l.entries.Compute(key, func(cur entry, loaded bool) (entry, xsync.ComputeOp) {
		if !loaded || now.After(cur.windowStart.Add(l.window)) {
			created = !loaded
			res = Result{Allowed: true, Remaining: l.limit - 1, ResetAt: now.Add(l.window)}
			return entry{count: 1, windowStart: now}, xsync.UpdateOp
		}

		resetAt := cur.windowStart.Add(l.window)
		if cur.count >= l.limit {
			res = Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
			return cur, xsync.CancelOp
		}

		cur.count++
		res = Result{Allowed: true, Remaining: l.limit - cur.count, ResetAt: resetAt}
		return cur, xsync.UpdateOp
	})

	if created {
		metrics.RateLimitKeys.Inc()
	}
	return res
}

// Sweep drops every entry whose window has elapsed and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0

	l.entries.Range(func(key string, _ entry) bool {
		l.entries.Compute(key, func(cur entry, loaded bool) (entry, xsync.ComputeOp) {
			if !loaded || !now.After(cur.windowStart.Add(l.window)) {
				return cur, xsync.CancelOp
			}
			removed++
			return cur, xsync.DeleteOp
		})
		return true
	})

	metrics.RateLimitKeys.Set(float64(l.entries.Size()))
	return removed
}

func (l *Limiter) Len() int {
	return l.entries.Size()
}

// Start runs Sweep every interval until ctx is cancelled.
func (l *Limiter) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.log.WithField("interval", interval).Info("Starting rate limit sweeper")

	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.log.WithFields(logrus.Fields{
					"removed": n,
					"active":  l.Len(),
				}).Debug("Swept expired rate limit windows")
			}
		case <-ctx.Done():
			l.log.Info("Stopping rate limit sweeper")
			return
		}
	}
}
