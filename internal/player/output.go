// ABOUTME: Real output graph backed by the oto audio library
// ABOUTME: Drains scheduled buffers at their clock times with a software gain stage
package player

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/Soundrift/soundrift-go/internal/audio"
	"github.com/Soundrift/soundrift-go/internal/clock"
	"github.com/Soundrift/soundrift-go/internal/pcm"
)

// scheduled is one buffer waiting for its start time.
type scheduled struct {
	buf audio.Buffer
	at  time.Duration
}

// gainStage is the software gain with an optional linear ramp. Ramps are
// baked into buffers at quantization time, so a fade spans the samples of
// the buffers played while it runs.
type gainStage struct {
	gain   float64
	from   float64
	target float64
	start  time.Duration
	over   time.Duration
}

// ramp begins a linear fade from the current level to the target.
func (s *gainStage) ramp(target float64, over, now time.Duration) {
	s.from = s.at(now)
	s.target = target
	s.start = now
	s.over = over
	s.gain = target
}

// at evaluates the gain at the given time.
func (s *gainStage) at(now time.Duration) float64 {
	if s.over <= 0 {
		return s.gain
	}
	elapsed := now - s.start
	if elapsed >= s.over {
		return s.target
	}
	frac := float64(elapsed) / float64(s.over)
	return s.from + (s.target-s.from)*frac
}

// remaining reports how much of an in-progress ramp is left.
func (s *gainStage) remaining(now time.Duration) time.Duration {
	if s.over <= 0 {
		return 0
	}
	left := s.start + s.over - now
	if left < 0 {
		left = 0
	}
	return left
}

// reset cancels any ramp and sets a flat gain.
func (s *gainStage) reset(gain float64) {
	s.gain = gain
	s.over = 0
}

// applyEnvelope scales samples linearly from the start gain to the end
// gain across the slice.
func applyEnvelope(flat []float32, start, end float64) {
	if start == 1.0 && end == 1.0 {
		return
	}
	n := float64(len(flat))
	for i := range flat {
		gain := start + (end-start)*(float64(i)/n)
		flat[i] = float32(float64(flat[i]) * gain)
	}
}

// OtoGraph is the production output graph. Buffers are held until their
// scheduled start time, gain-scaled, quantized, and handed to oto players.
// Reset discards the queue and retires the live player set, which is the
// moral equivalent of replacing the gain node: nothing scheduled before
// the reset survives into the next run.
type OtoGraph struct {
	mu sync.Mutex

	clock      clock.AudioClock
	log        *zap.Logger
	otoCtx     *oto.Context
	sampleRate int
	channels   int

	queue   []scheduled
	players []*oto.Player

	stage gainStage

	// tap, if set, receives every buffer as it is played (recorder hook).
	tap func(audio.Buffer)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOtoGraph initializes the audio device and starts the drain loop.
func NewOtoGraph(c clock.AudioClock, sampleRate, channels int, log *zap.Logger) (*OtoGraph, error) {
	if log == nil {
		log = zap.NewNop()
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	ctx, cancel := context.WithCancel(context.Background())

	g := &OtoGraph{
		clock:      c,
		log:        log,
		otoCtx:     otoCtx,
		sampleRate: sampleRate,
		channels:   channels,
		stage:      gainStage{gain: 1.0},
		ctx:        ctx,
		cancel:     cancel,
	}

	log.Info("audio output initialized",
		zap.Int("sampleRate", sampleRate),
		zap.Int("channels", channels))

	go g.run()

	return g, nil
}

// SetTap installs the played-audio tap.
func (g *OtoGraph) SetTap(tap func(audio.Buffer)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tap = tap
}

// ScheduleAt queues a buffer to begin at the given clock time.
func (g *OtoGraph) ScheduleAt(buf audio.Buffer, at time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, scheduled{buf: buf, at: at})
}

// RampTo fades the gain stage to the target over the given duration.
func (g *OtoGraph) RampTo(gain float64, over time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stage.ramp(gain, over, g.clock.Now())
}

// Reset discards all scheduled audio and restores a fresh gain stage. An
// in-progress fade keeps the retired players alive until it has elapsed;
// closing them immediately would hard-cut the audio the fade is shaping.
func (g *OtoGraph) Reset(gain float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.queue = nil
	old := g.players
	g.players = nil

	if wait := g.stage.remaining(g.clock.Now()); wait > 0 {
		time.AfterFunc(wait, func() { closePlayers(old) })
	} else {
		closePlayers(old)
	}

	g.stage.reset(gain)
}

// Close tears down the output graph.
func (g *OtoGraph) Close() {
	g.cancel()
	g.Reset(0)
	g.otoCtx.Suspend()
}

func closePlayers(players []*oto.Player) {
	for _, p := range players {
		_ = p.Close()
	}
}

// run drains due buffers. Buffers are handed to the device slightly ahead
// of their start time to cover device latency.
func (g *OtoGraph) run() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.drain()
		}
	}
}

const deviceLead = 20 * time.Millisecond

// drain plays every queued buffer whose start time has arrived.
func (g *OtoGraph) drain() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	remaining := g.queue[:0]
	for _, item := range g.queue {
		if item.at > now+deviceLead {
			remaining = append(remaining, item)
			continue
		}
		g.playLocked(item.buf, now)
	}
	g.queue = remaining

	// Trim finished players so Reset has a bounded set to retire.
	live := g.players[:0]
	for _, p := range g.players {
		if p.IsPlaying() {
			live = append(live, p)
		} else {
			_ = p.Close()
		}
	}
	g.players = live
}

// playLocked quantizes one buffer with the gain envelope over its span
// and starts it. A ramp in progress is baked into the samples, so the
// fade is audible even though the device has no per-player volume.
func (g *OtoGraph) playLocked(buf audio.Buffer, now time.Duration) {
	if g.tap != nil {
		g.tap(buf)
	}

	flat := buf.Interleave()
	applyEnvelope(flat, g.stage.at(now), g.stage.at(now+buf.Duration()))

	data := pcm.EncodeSamples(flat)
	player := g.otoCtx.NewPlayer(bytes.NewReader(data))
	player.Play()
	g.players = append(g.players, player)
}
