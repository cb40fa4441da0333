package natsclient

import (
	"sync"
	"time"
)

const initialBackoff = time.Second

// breaker counts consecutive failures. After threshold of them it stays open
// for backoff, then lets one attempt through; a failure in that state reopens
// it with the backoff doubled.
type breaker struct {
	mu          sync.Mutex
	threshold   int
	maxBackoff  time.Duration
	now         func() time.Time
	consecutive int
	total       int
	backoff     time.Duration
	openUntil   time.Time
	lastFailure time.Time
}

func newBreaker(threshold int, maxBackoff time.Duration) *breaker {
	return &breaker{
		threshold:  threshold,
		maxBackoff: maxBackoff,
		now:        time.Now,
		backoff:    initialBackoff,
	}
}

// failure records a failed operation and reports whether it opened the circuit
func (b *breaker) failure() (opened bool, backoff time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.total++
	b.consecutive++
	b.lastFailure = now

	if b.consecutive < b.threshold {
		return false, 0
	}
	b.consecutive = 0
	backoff = b.backoff
	b.openUntil = now.Add(backoff)
	b.backoff = min(b.backoff*2, b.maxBackoff)
	return true, backoff
}

// success closes the circuit and forgets past failures
func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.total = 0
	b.backoff = initialBackoff
	b.openUntil = time.Time{}
	b.lastFailure = time.Time{}
}

// open reports whether calls must fail fast right now
func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.openUntil)
}

type breakerStats struct {
	failures    int
	backoff     time.Duration
	lastFailure time.Time
}

func (b *breaker) stats() breakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return breakerStats{failures: b.total, backoff: b.backoff, lastFailure: b.lastFailure}
}
