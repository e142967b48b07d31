// ABOUTME: Audio clock abstraction for playback scheduling
// ABOUTME: Real monotonic clock plus a manually-advanced clock for tests
package clock

import (
	"sync"
	"time"
)

// AudioClock reports monotonic playback time. Zero is the instant the
// clock was created; the scheduler only ever compares and adds durations,
// so wall-clock jumps cannot disturb scheduling.
type AudioClock interface {
	Now() time.Duration
}

// Monotonic is the hardware-backed clock used in production.
type Monotonic struct {
	start time.Time
}

// NewMonotonic creates a clock anchored at the current instant.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now returns elapsed time since the clock was created.
func (c *Monotonic) Now() time.Duration {
	return time.Since(c.start)
}

// Manual is a test clock advanced explicitly.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManual creates a manual clock starting at zero.
func NewManual() *Manual {
	return &Manual{}
}

// Now returns the current manual time.
func (c *Manual) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set jumps the clock to an absolute playback time.
func (c *Manual) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}
