// ABOUTME: Output graph abstraction the scheduler places buffers on
// ABOUTME: Allows a fake graph in tests and the oto-backed graph in production
package player

import (
	"time"

	"github.com/Soundrift/soundrift-go/internal/audio"
)

// Graph is the audio output graph. The scheduler owns it exclusively:
// buffers are placed at absolute clock times, and the gain stage is ramped
// and replaced on pause/stop so stale scheduled audio from an old run can
// never leak into a new one.
type Graph interface {
	// ScheduleAt places a buffer to begin exactly at the given clock time.
	ScheduleAt(buf audio.Buffer, at time.Duration)

	// RampTo fades the gain stage to the target over the given duration.
	RampTo(gain float64, over time.Duration)

	// Reset discards all scheduled audio and recreates the gain stage at
	// the given level.
	Reset(gain float64)
}
