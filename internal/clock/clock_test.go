// ABOUTME: Tests for the audio clock implementations
// ABOUTME: Covers monotonic advancement and manual control
package clock

import (
	"testing"
	"time"
)

func TestMonotonicAdvances(t *testing.T) {
	c := NewMonotonic()

	a := c.Now()
	time.Sleep(10 * time.Millisecond)
	b := c.Now()

	if b <= a {
		t.Errorf("clock did not advance: %v then %v", a, b)
	}
}

func TestManualClock(t *testing.T) {
	c := NewManual()

	if c.Now() != 0 {
		t.Errorf("expected zero start, got %v", c.Now())
	}

	c.Advance(time.Second)
	c.Advance(500 * time.Millisecond)
	if c.Now() != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", c.Now())
	}

	c.Set(10 * time.Second)
	if c.Now() != 10*time.Second {
		t.Errorf("expected 10s, got %v", c.Now())
	}
}
