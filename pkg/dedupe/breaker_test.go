package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives a breaker deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) now() time.Time          { return c.t }

func newTestBreaker(threshold int, window, cooldown time.Duration) (*breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newBreaker(threshold, window, cooldown)
	b.now = clock.now
	return b, clock
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Allow(), "below threshold, calls still allowed")

	b.RecordFailure()
	assert.False(t, b.Allow(), "threshold reached, breaker open")
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	b, clock := newTestBreaker(3, 30*time.Second, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	clock.advance(31 * time.Second)

	// The earlier failures aged out; this one starts a fresh window.
	b.RecordFailure()
	assert.True(t, b.Allow())
}

func TestBreakerAllowsProbeAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(1, 30*time.Second, time.Minute)

	b.RecordFailure()
	assert.False(t, b.Allow())

	clock.advance(59 * time.Second)
	assert.False(t, b.Allow(), "cooldown not yet elapsed")

	clock.advance(2 * time.Second)
	assert.True(t, b.Allow(), "probe allowed after cooldown")
}

func TestBreakerSuccessfulProbeCloses(t *testing.T) {
	b, clock := newTestBreaker(1, 30*time.Second, time.Minute)

	b.RecordFailure()
	clock.advance(61 * time.Second)
	assert.True(t, b.Allow())

	b.RecordSuccess()
	assert.True(t, b.Allow())

	// A single new failure re-opens only once the threshold is reached again.
	b.RecordFailure()
	assert.False(t, b.Allow())
}

func TestBreakerFailedProbeRestartsCooldown(t *testing.T) {
	b, clock := newTestBreaker(1, 30*time.Second, time.Minute)

	b.RecordFailure()
	clock.advance(61 * time.Second)
	assert.True(t, b.Allow())

	// The probe fails: the breaker stays open for a full fresh cooldown.
	b.RecordFailure()
	clock.advance(59 * time.Second)
	assert.False(t, b.Allow())

	clock.advance(2 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerDefaults(t *testing.T) {
	b := newBreaker(0, 0, 0)
	assert.Equal(t, defaultBreakerThreshold, b.threshold)
	assert.Equal(t, defaultBreakerWindow, b.window)
	assert.Equal(t, defaultBreakerCooldown, b.cooldown)
}
