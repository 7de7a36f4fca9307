package dedupe

import (
	"sync"
	"time"
)

// Circuit breaker defaults for the external search index.
const (
	defaultBreakerThreshold = 3
	defaultBreakerWindow    = 30 * time.Second
	defaultBreakerCooldown  = 60 * time.Second
)

// breaker is a small circuit-breaker policy gating calls to the external
// search index. After threshold failures within a rolling window it opens
// and short-circuits further calls for a cooldown period; the first success
// after the cooldown closes it again.
type breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	cooldown  time.Duration

	failures    int
	windowStart time.Time
	open        bool
	openedAt    time.Time

	now func() time.Time
}

func newBreaker(threshold int, window, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if window <= 0 {
		window = defaultBreakerWindow
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &breaker{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call to the dependency may proceed. While open,
// calls are rejected until the cooldown elapses; after that, probe calls are
// allowed so a recovered dependency can close the breaker.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	return b.now().Sub(b.openedAt) >= b.cooldown
}

// RecordSuccess closes the breaker and clears the failure window.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = false
	b.failures = 0
	b.windowStart = time.Time{}
}

// RecordFailure counts a failure, restarting the rolling window when the
// previous one has aged out, and opens the breaker at the threshold.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.open {
		// failed probe while open: restart the cooldown
		b.openedAt = now
		return
	}
	if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.window {
		b.windowStart = now
		b.failures = 0
	}
	b.failures++

	if b.failures >= b.threshold {
		b.open = true
		b.openedAt = now
	}
}
