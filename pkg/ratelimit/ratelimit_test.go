package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns a limiter pinned to a controllable clock.
func fixedClock(start time.Time) (*Limiter, *time.Time) {
	now := start
	l := NewLimiter()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckAndIncrementWithinLimit(t *testing.T) {
	t.Parallel()

	l, _ := fixedClock(time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC))
	userID := uuid.New()

	for i := 1; i <= 5; i++ {
		result := l.CheckAndIncrement(userID, 5)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, result.Remaining)
	}

	result := l.CheckAndIncrement(userID, 5)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
}

func TestDeniedRequestsDoNotConsumeQuota(t *testing.T) {
	t.Parallel()

	l, now := fixedClock(time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC))
	userID := uuid.New()

	require.True(t, l.CheckAndIncrement(userID, 1).Allowed)
	for range 10 {
		assert.False(t, l.CheckAndIncrement(userID, 1).Allowed)
	}

	// A full count of denials must not extend the lockout past the window.
	*now = now.Add(time.Hour)
	assert.True(t, l.CheckAndIncrement(userID, 1).Allowed)
}

func TestWindowReset(t *testing.T) {
	t.Parallel()

	l, now := fixedClock(time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC))
	userID := uuid.New()

	require.True(t, l.CheckAndIncrement(userID, 2).Allowed)
	require.True(t, l.CheckAndIncrement(userID, 2).Allowed)
	require.False(t, l.CheckAndIncrement(userID, 2).Allowed)

	// Two minutes later a fresh hour window begins.
	*now = now.Add(2 * time.Minute)
	result := l.CheckAndIncrement(userID, 2)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Remaining)
}

func TestResetAtIsWindowEnd(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC)
	l, _ := fixedClock(start)

	result := l.CheckAndIncrement(uuid.New(), 10)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), result.ResetAt)
}

func TestUsersAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := fixedClock(time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC))
	userA := uuid.New()
	userB := uuid.New()

	require.True(t, l.CheckAndIncrement(userA, 1).Allowed)
	require.False(t, l.CheckAndIncrement(userA, 1).Allowed)

	assert.True(t, l.CheckAndIncrement(userB, 1).Allowed, "one user's exhaustion must not affect another")
}

func TestPerUserLimits(t *testing.T) {
	t.Parallel()

	l, _ := fixedClock(time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC))

	free := uuid.New()
	paid := uuid.New()

	require.True(t, l.CheckAndIncrement(free, 1).Allowed)
	assert.False(t, l.CheckAndIncrement(free, 1).Allowed)

	for i := range 100 {
		assert.True(t, l.CheckAndIncrement(paid, 100).Allowed, "request %d", i)
	}
	assert.False(t, l.CheckAndIncrement(paid, 100).Allowed)
}

func TestConcurrentRequestsNeverExceedLimit(t *testing.T) {
	t.Parallel()

	l := NewLimiter()
	userID := uuid.New()
	const limit = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndIncrement(userID, limit).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
}

func TestSweepDropsStaleEntries(t *testing.T) {
	t.Parallel()

	l, now := fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	for range gcThreshold {
		l.CheckAndIncrement(uuid.New(), 10)
	}
	require.Len(t, l.entries, gcThreshold)

	// Three windows later every existing entry is stale; the next insert
	// triggers the sweep.
	*now = now.Add(3 * time.Hour)
	l.CheckAndIncrement(uuid.New(), 10)
	assert.Len(t, l.entries, 1)
}
