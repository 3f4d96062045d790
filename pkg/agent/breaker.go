package agent

import (
	"errors"
	"sync"
	"time"
)

const (
	// breakerFailureThreshold is the consecutive-failure count that opens
	// the circuit.
	breakerFailureThreshold = 5

	// breakerRecoveryTimeout is how long an open circuit waits before
	// letting a trial call through.
	breakerRecoveryTimeout = 60 * time.Second
)

// ErrCircuitOpen is returned without contacting the agent API while the
// circuit breaker is open. It is not transient: retrying immediately would
// only hit the breaker again.
var ErrCircuitOpen = errors.New("agent API circuit open: too many consecutive failures")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker sheds calls to the agent API after repeated transport
// failures so a dead backend fails fast instead of burning a timeout per
// step. Transport errors and 5xx responses count as failures; any other
// response proves the backend reachable and closes the circuit.
type circuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	recoveryTimeout  time.Duration
	failures         int
	lastFailure      time.Time
	state            breakerState
	now              func() time.Time
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: breakerFailureThreshold,
		recoveryTimeout:  breakerRecoveryTimeout,
		now:              time.Now,
	}
}

// allow reports whether a call may proceed. An open circuit moves to
// half-open once the recovery timeout has elapsed, letting a trial call
// through; its outcome decides whether the circuit closes or reopens.
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed, breakerHalfOpen:
		return true
	default:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = breakerClosed
}

// recordFailure counts a failed call. The failure count is not reset on the
// half-open transition, so a failed trial call reopens the circuit at once.
func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.failureThreshold {
		b.state = breakerOpen
	}
}
