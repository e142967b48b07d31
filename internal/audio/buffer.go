// ABOUTME: Decoded audio buffer model and builder
// ABOUTME: Reconstructs multi-channel float buffers from interleaved int16 wire bytes
package audio

import (
	"time"

	"go.uber.org/zap"

	"github.com/Soundrift/soundrift-go/internal/metrics"
	"github.com/Soundrift/soundrift-go/internal/pcm"
)

// Buffer is decoded multi-channel audio. Channels hold normalized float
// samples of equal length. A buffer is consumed exactly once by the
// scheduler and discarded after playback.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Frames returns the per-channel sample count.
func (b Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// Interleave flattens the buffer back to interleaved frame order, for
// output devices and the recorder tap.
func (b Buffer) Interleave() []float32 {
	frames := b.Frames()
	out := make([]float32, frames*len(b.Channels))
	for c, ch := range b.Channels {
		for j := 0; j < frames; j++ {
			out[j*len(b.Channels)+c] = ch[j]
		}
	}
	return out
}

// Builder turns raw interleaved wire bytes into playable buffers. It never
// fails: malformed input degrades to silence so a bad segment cannot stall
// the pipeline.
type Builder struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewBuilder creates a buffer builder.
func NewBuilder(log *zap.Logger, m *metrics.Metrics) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{log: log, metrics: m}
}

// Build decodes interleaved 16-bit LE bytes into a multi-channel buffer.
// An odd byte length is truncated to the nearest whole sample. Zero frames
// or a non-positive channel count produce a minimal silent buffer.
func (b *Builder) Build(data []byte, sampleRate, channels int) Buffer {
	if channels <= 0 {
		b.log.Warn("invalid channel count, substituting mono silence",
			zap.Int("channels", channels))
		b.metrics.IncDegenerate()
		return silentBuffer(sampleRate, 1)
	}

	samples := pcm.DecodeSamples(data)
	frames := len(samples) / channels
	if frames == 0 {
		b.log.Warn("audio payload too short, substituting silence",
			zap.Int("bytes", len(data)))
		b.metrics.IncDegenerate()
		return silentBuffer(sampleRate, channels)
	}

	out := Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}

	if channels == 1 {
		out.Channels[0] = samples[:frames]
		return out
	}

	for c := 0; c < channels; c++ {
		ch := make([]float32, frames)
		for j := 0; j < frames; j++ {
			ch[j] = samples[j*channels+c]
		}
		out.Channels[c] = ch
	}
	return out
}

// silentBuffer is the degenerate single-frame fallback.
func silentBuffer(sampleRate, channels int) Buffer {
	out := Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for c := range out.Channels {
		out.Channels[c] = make([]float32, 1)
	}
	return out
}
