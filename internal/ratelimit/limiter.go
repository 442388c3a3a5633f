package ratelimit

import (
	"context"
	"sync"
	"time"

	"elimu_backend/internal/logger"
)

// Limiter is a sliding-window counter keyed by an arbitrary string,
// typically a provider correlation id. State is per-process only; across
// multiple instances the limiting is best-effort.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time

	now func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempt for the key and reports whether it fits inside
// the window. Stale timestamps are pruned on every call.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false
	}

	l.hits[key] = append(kept, now)
	return true
}

// Sweep discards keys with no activity inside the window to bound memory.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for key, stamps := range l.hits {
		idle := true
		for _, t := range stamps {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// StartSweep runs Sweep on a ticker until the context is cancelled.
func (l *Limiter) StartSweep(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("rate limiter sweep stopped")
				return
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					logger.Debug("rate limiter sweep", "removed_keys", n)
				}
			}
		}
	}()
}
