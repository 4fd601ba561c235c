// Package quota implements the per-client request quota: a sliding
// one-minute window with a fixed threshold. It gates new queries only;
// in-flight work is never interrupted.
package quota

import (
	"sync"
	"time"
)

const (
	DefaultWindow = time.Minute
	DefaultLimit  = 20
)

type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	seen   map[string][]time.Time
	now    func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		window: window,
		limit:  limit,
		seen:   map[string][]time.Time{},
		now:    time.Now,
	}
}

// Allow records one request for the client and reports whether it is within
// quota. A rejected request is not recorded, so a client hammering the
// limiter does not extend its own ban.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.seen[clientID][:0]
	for _, t := range l.seen[clientID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.seen[clientID] = kept
		return false
	}
	l.seen[clientID] = append(kept, now)
	return true
}
