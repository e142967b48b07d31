// ABOUTME: Trailing-edge throttle for outbound control updates
// ABOUTME: Coalesces rapid calls into at most one send per interval
package session

import (
	"sync"
	"time"
)

// Throttle enforces a minimum interval between sends. The first call in a
// quiet period runs immediately; calls arriving inside the interval are
// coalesced into a single trailing call carrying the most recent state.
// At most one call is ever pending.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	pending  func()
	timer    *time.Timer
}

// NewThrottle creates a throttle with the given minimum send interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Do runs fn now if the interval has elapsed, otherwise replaces any
// pending call with fn and arms a timer for the remainder.
func (t *Throttle) Do(fn func()) {
	t.mu.Lock()

	now := time.Now()
	if t.pending == nil && now.Sub(t.last) >= t.interval {
		t.last = now
		t.mu.Unlock()
		fn()
		return
	}

	// Latest state wins; older pending calls are superseded.
	t.pending = fn
	if t.timer == nil {
		wait := t.interval - now.Sub(t.last)
		if wait < 0 {
			wait = 0
		}
		t.timer = time.AfterFunc(wait, t.fire)
	}
	t.mu.Unlock()
}

// fire runs the pending call.
func (t *Throttle) fire() {
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.timer = nil
	t.last = time.Now()
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Stop cancels any pending call.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
}
