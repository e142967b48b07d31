// ABOUTME: Tests for the playback scheduler state machine
// ABOUTME: Covers gapless sequencing, gating, pre-roll, and underrun recovery
package player

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Soundrift/soundrift-go/internal/audio"
	"github.com/Soundrift/soundrift-go/internal/clock"
)

// fakeGraph records scheduler placements.
type fakeGraph struct {
	mu        sync.Mutex
	scheduled []scheduled
	ramps     []time.Duration
	resets    []float64
}

func (g *fakeGraph) ScheduleAt(buf audio.Buffer, at time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scheduled = append(g.scheduled, scheduled{buf: buf, at: at})
}

func (g *fakeGraph) RampTo(gain float64, over time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ramps = append(g.ramps, over)
}

func (g *fakeGraph) Reset(gain float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets = append(g.resets, gain)
}

func (g *fakeGraph) startTimes() []time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]time.Duration, len(g.scheduled))
	for i, s := range g.scheduled {
		out[i] = s.at
	}
	return out
}

// fakeTransport records outbound commands.
type fakeTransport struct {
	mu       sync.Mutex
	commands []string
	playErr  error
}

func (t *fakeTransport) record(cmd string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commands = append(t.commands, cmd)
}

func (t *fakeTransport) Play() error {
	if t.playErr != nil {
		return t.playErr
	}
	t.record("play")
	return nil
}
func (t *fakeTransport) Pause() error        { t.record("pause"); return nil }
func (t *fakeTransport) Stop() error         { t.record("stop"); return nil }
func (t *fakeTransport) ResetContext() error { t.record("reset-context"); return nil }

func (t *fakeTransport) sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.commands...)
}

func oneSecondBuffer() audio.Buffer {
	return audio.Buffer{
		Channels:   [][]float32{make([]float32, 48000), make([]float32, 48000)},
		SampleRate: 48000,
	}
}

func newTestScheduler(t *testing.T, bufferTime time.Duration) (*Scheduler, *clock.Manual, *fakeGraph, *fakeTransport) {
	t.Helper()
	clk := clock.NewManual()
	graph := &fakeGraph{}
	transport := &fakeTransport{}
	s := NewScheduler(clk, graph, transport, bufferTime, nil, nil)
	return s, clk, graph, transport
}

func TestSequentialStartTimesAreContiguous(t *testing.T) {
	s, _, graph, _ := newTestScheduler(t, 2*time.Second)

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	durations := []int{48000, 24000, 12000} // 1s, 0.5s, 0.25s
	for _, frames := range durations {
		s.OnSegmentDecoded(audio.Buffer{
			Channels:   [][]float32{make([]float32, frames), make([]float32, frames)},
			SampleRate: 48000,
		})
	}

	starts := graph.startTimes()
	if len(starts) != 3 {
		t.Fatalf("expected 3 scheduled buffers, got %d", len(starts))
	}
	if starts[0] != 2*time.Second {
		t.Errorf("first start should be the pre-roll, got %v", starts[0])
	}
	if starts[1] != starts[0]+time.Second {
		t.Errorf("second start not contiguous: %v after %v", starts[1], starts[0])
	}
	if starts[2] != starts[1]+500*time.Millisecond {
		t.Errorf("third start not contiguous: %v after %v", starts[2], starts[1])
	}
}

func TestNoSchedulingWhileStopped(t *testing.T) {
	s, _, graph, _ := newTestScheduler(t, 2*time.Second)

	s.OnSegmentDecoded(oneSecondBuffer())

	if len(graph.startTimes()) != 0 {
		t.Error("expected no buffers scheduled while stopped")
	}
	if s.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped segment, got %d", s.Stats().Dropped)
	}
	if s.State() != StateStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
}

func TestUnderrunReanchorsWithFullPreroll(t *testing.T) {
	s, clk, graph, _ := newTestScheduler(t, 2*time.Second)

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	s.OnSegmentDecoded(oneSecondBuffer()) // anchored at 2s, nextStart=3s

	// Force playing, then let the clock pass the scheduled horizon.
	s.mu.Lock()
	s.eventLocked("buffered")
	s.mu.Unlock()
	clk.Set(5 * time.Second)

	s.OnSegmentDecoded(oneSecondBuffer())

	if s.State() != StateLoading {
		t.Errorf("expected loading after underrun, got %s", s.State())
	}
	starts := graph.startTimes()
	if len(starts) != 2 {
		t.Fatalf("expected 2 scheduled buffers, got %d", len(starts))
	}
	if starts[1] != 7*time.Second {
		t.Errorf("expected re-anchor at now+bufferTime (7s), got %v", starts[1])
	}
	if s.Stats().Underruns != 1 {
		t.Errorf("expected 1 underrun, got %d", s.Stats().Underruns)
	}
}

func TestPlayFeedBuffersReachesPlaying(t *testing.T) {
	s, _, graph, transport := newTestScheduler(t, 50*time.Millisecond)

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if s.State() != StateLoading {
		t.Fatalf("expected loading, got %s", s.State())
	}

	for i := 0; i < 3; i++ {
		s.OnSegmentDecoded(oneSecondBuffer())
	}

	// Deferred transition fires after the pre-roll elapses.
	time.Sleep(150 * time.Millisecond)

	if s.State() != StatePlaying {
		t.Errorf("expected playing after pre-roll, got %s", s.State())
	}

	starts := graph.startTimes()
	total := starts[len(starts)-1] + time.Second - starts[0]
	if total != 3*time.Second {
		t.Errorf("expected 3s total scheduled, got %v", total)
	}

	sent := transport.sent()
	if len(sent) != 1 || sent[0] != "play" {
		t.Errorf("expected single outbound play, got %v", sent)
	}
}

func TestPlayWhileLoadingStops(t *testing.T) {
	s, _, _, transport := newTestScheduler(t, 2*time.Second)

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("second play failed: %v", err)
	}

	if s.State() != StateStopped {
		t.Errorf("expected stopped after cancelling buffering, got %s", s.State())
	}
	sent := transport.sent()
	if sent[len(sent)-1] != "stop" {
		t.Errorf("expected outbound stop, got %v", sent)
	}
}

func TestPauseCancelsDeferredTransition(t *testing.T) {
	s, _, graph, _ := newTestScheduler(t, 50*time.Millisecond)

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	s.OnSegmentDecoded(oneSecondBuffer())

	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	// The armed pre-roll timer must not override the user's pause.
	time.Sleep(150 * time.Millisecond)

	if s.State() != StatePaused {
		t.Errorf("expected paused, got %s", s.State())
	}
	if len(graph.resets) != 1 || graph.resets[0] != 0 {
		t.Errorf("expected graph reset at zero gain, got %v", graph.resets)
	}
}

func TestPauseDropsSubsequentAudio(t *testing.T) {
	s, _, graph, _ := newTestScheduler(t, 2*time.Second)

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	s.OnSegmentDecoded(oneSecondBuffer())
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	before := len(graph.startTimes())
	s.OnSegmentDecoded(oneSecondBuffer())

	if len(graph.startTimes()) != before {
		t.Error("expected no scheduling while paused")
	}
}

func TestResumeAfterPauseReanchors(t *testing.T) {
	s, clk, graph, _ := newTestScheduler(t, 2*time.Second)

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	s.OnSegmentDecoded(oneSecondBuffer())
	if err := s.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	clk.Set(10 * time.Second)
	if err := s.Play(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	s.OnSegmentDecoded(oneSecondBuffer())

	starts := graph.startTimes()
	last := starts[len(starts)-1]
	if last != 12*time.Second {
		t.Errorf("expected fresh anchor at now+bufferTime (12s), got %v", last)
	}
}

func TestPlayFailureStaysStopped(t *testing.T) {
	s, _, _, transport := newTestScheduler(t, 2*time.Second)
	transport.playErr = errors.New("dial refused")

	if err := s.Play(); err == nil {
		t.Fatal("expected play to fail")
	}
	if s.State() != StateStopped {
		t.Errorf("expected stopped after failed play, got %s", s.State())
	}
}

func TestTransportFailureForcesStop(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, 2*time.Second)

	var notices []string
	s.OnNotice = func(text string) { notices = append(notices, text) }

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	s.HandleTransportFailure(errors.New("connection reset"))

	if s.State() != StateStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
	if len(notices) == 0 {
		t.Error("expected a retryable notice")
	}
}

func TestResetResumesOnlyWhenStillPaused(t *testing.T) {
	s, _, _, transport := newTestScheduler(t, 2*time.Second)

	restored := false
	s.RestoreDefaults = func() { restored = true }

	if err := s.Play(); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	s.mu.Lock()
	s.eventLocked("buffered")
	s.mu.Unlock()

	if err := s.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if !restored {
		t.Error("expected defaults restored")
	}
	if s.State() != StatePaused {
		t.Fatalf("expected paused right after reset, got %s", s.State())
	}

	// A user stop during the settle delay must win over the auto-resume.
	if err := s.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if s.State() != StateStopped {
		t.Errorf("expected stop to stick through the reset delay, got %s", s.State())
	}

	sent := transport.sent()
	if sent[0] != "play" || sent[1] != "reset-context" {
		t.Errorf("unexpected command order: %v", sent)
	}
}
