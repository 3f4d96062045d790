// Package ratelimit implements per-user fixed-window request counting.
//
// A window is one hour, identified by its start timestamp; the first request
// in a new window resets the counter. Fixed windows trade strict precision
// for O(1) bookkeeping: a burst straddling a window boundary may admit up to
// twice the limit within a short span. That slack is a documented property
// of the design, not a bug.
package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Window is the fixed counting interval.
const Window = time.Hour

// gcThreshold is the entry count above which stale windows are swept on
// insert.
const gcThreshold = 1024

// Result reports the outcome of a rate-limit check. Both allowed and denied
// results carry the remaining quota and the window reset time so callers can
// self-throttle.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// userWindow is one user's live counter. It carries its own lock so
// unrelated users never serialize on each other.
type userWindow struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// Limiter counts requests per user in fixed windows. The limit itself comes
// from each user's context, so tenants on different plans get independent
// thresholds while sharing the same storage.
type Limiter struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*userWindow

	// now is the clock; overridable in tests.
	now func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		entries: make(map[uuid.UUID]*userWindow),
		now:     time.Now,
	}
}

// CheckAndIncrement records one request for the user if their quota permits
// it. Denied requests do not increment the counter.
func (l *Limiter) CheckAndIncrement(userID uuid.UUID, limit int) Result {
	entry := l.entry(userID)
	now := l.now()
	windowStart := now.Truncate(Window)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.windowStart.Equal(windowStart) {
		entry.windowStart = windowStart
		entry.count = 0
	}

	resetAt := windowStart.Add(Window)
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, ResetAt: resetAt}
}

// entry returns the user's live window, creating it if needed.
func (l *Limiter) entry(userID uuid.UUID) *userWindow {
	l.mu.RLock()
	entry, ok := l.entries[userID]
	l.mu.RUnlock()
	if ok {
		return entry
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok = l.entries[userID]; ok {
		return entry
	}

	if len(l.entries) >= gcThreshold {
		l.sweepLocked()
	}

	entry = &userWindow{}
	l.entries[userID] = entry
	return entry
}

// sweepLocked drops counters idle for two or more windows. Callers must hold
// the write lock.
func (l *Limiter) sweepLocked() {
	cutoff := l.now().Truncate(Window).Add(-2 * Window)
	for userID, entry := range l.entries {
		entry.mu.Lock()
		stale := entry.windowStart.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			delete(l.entries, userID)
		}
	}
}
