package gateway

import (
	"sync"
	"time"
)

// BreakerState is exposed for logging.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker guards the provider: threshold consecutive transport failures open
// it for cooldown, after which exactly one probe request is let through.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	reopenAt  time.Time
	probing   bool
	now       func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{state: BreakerClosed, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may go out now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && !b.now().Before(b.reopenAt) {
		b.state = BreakerHalfOpen
	}
	if b.state != BreakerHalfOpen {
		return b.state == BreakerClosed
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Record feeds back the outcome of an allowed request.
func (b *Breaker) Record(healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if healthy {
		b.state, b.failures = BreakerClosed, 0
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
		b.reopenAt = b.now().Add(b.cooldown)
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
