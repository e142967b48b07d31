// ABOUTME: Playback scheduler state machine for gapless streamed audio
// ABOUTME: Anchors decoded segments to the audio clock and recovers from underruns
package player

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/Soundrift/soundrift-go/internal/audio"
	"github.com/Soundrift/soundrift-go/internal/clock"
	"github.com/Soundrift/soundrift-go/internal/metrics"
)

// State is the playback lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

const (
	// DefaultBufferTime is the pre-roll inserted before audio starts, to
	// absorb network jitter.
	DefaultBufferTime = 2 * time.Second

	pauseFade  = 100 * time.Millisecond
	stopFade   = 50 * time.Millisecond
	resetDelay = 200 * time.Millisecond
)

// Transport is the outbound half of the session the scheduler drives.
type Transport interface {
	Play() error
	Pause() error
	Stop() error
	ResetContext() error
}

// Stats tracks scheduler activity for the UI.
type Stats struct {
	Received  int64
	Scheduled int64
	Dropped   int64
	Underruns int64
}

// Scheduler is the state machine governing when decoded segments are
// placed on the output graph. All mutation happens under one lock; the
// transport delivers segments one at a time, so scheduling is strictly
// sequential and start times never overlap.
type Scheduler struct {
	mu sync.Mutex

	machine   *fsm.FSM
	clock     clock.AudioClock
	graph     Graph
	transport Transport
	log       *zap.Logger
	metrics   *metrics.Metrics

	bufferTime time.Duration
	nextStart  time.Duration // 0 means not yet anchored for this run
	runID      uint64        // bumped on every transition away from loading
	preroll    *time.Timer

	stats Stats

	// OnStateChange, if set, is invoked after every state transition.
	// It must not call back into the scheduler.
	OnStateChange func(State)

	// OnNotice, if set, surfaces user-visible conditions (underruns,
	// transport failures). It must not call back into the scheduler.
	OnNotice func(text string)

	// RestoreDefaults, if set, is invoked by Reset to push the default
	// generation parameters back to the service.
	RestoreDefaults func()
}

// NewScheduler creates a playback scheduler.
func NewScheduler(c clock.AudioClock, g Graph, t Transport, bufferTime time.Duration, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	if bufferTime <= 0 {
		bufferTime = DefaultBufferTime
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Scheduler{
		clock:      c,
		graph:      g,
		transport:  t,
		log:        log,
		metrics:    m,
		bufferTime: bufferTime,
	}

	s.machine = fsm.NewFSM(
		string(StateStopped),
		fsm.Events{
			{Name: "play", Src: []string{string(StateStopped), string(StatePaused)}, Dst: string(StateLoading)},
			{Name: "buffered", Src: []string{string(StateLoading)}, Dst: string(StatePlaying)},
			{Name: "pause", Src: []string{string(StateLoading), string(StatePlaying)}, Dst: string(StatePaused)},
			{Name: "underrun", Src: []string{string(StatePlaying)}, Dst: string(StateLoading)},
			{Name: "stop", Src: []string{string(StateLoading), string(StatePlaying), string(StatePaused)}, Dst: string(StateStopped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.log.Info("playback state change",
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
		},
	)

	return s
}

// State returns the current playback state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State(s.machine.Current())
}

// Stats returns a snapshot of scheduler activity.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// OnSegmentDecoded schedules a decoded buffer for gapless playback. The
// buffer is dropped when playback is stopped or paused.
func (s *Scheduler) OnSegmentDecoded(buf audio.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Received++

	state := State(s.machine.Current())
	if state != StateLoading && state != StatePlaying {
		s.stats.Dropped++
		s.metrics.IncDroppedSegment()
		return
	}

	now := s.clock.Now()

	if s.nextStart == 0 {
		// First buffer of this run: anchor playback one pre-roll ahead
		// and arm the deferred loading -> playing transition.
		s.nextStart = now + s.bufferTime
		s.armPrerollLocked()
	} else if s.nextStart < now {
		// Underrun: scheduled audio ran out before this segment arrived.
		// Re-anchor with the full pre-roll rather than chasing the clock;
		// a fresh buffer beats a minimal gap.
		s.log.Warn("playback underrun, re-buffering",
			zap.Duration("behind", now-s.nextStart))
		s.stats.Underruns++
		s.metrics.IncUnderrun()
		s.notifyLocked("audio underrun, re-buffering")

		if state == StatePlaying {
			s.eventLocked("underrun")
		}
		s.nextStart = now + s.bufferTime
		s.armPrerollLocked()
	}

	s.graph.ScheduleAt(buf, s.nextStart)
	s.nextStart += buf.Duration()
	s.stats.Scheduled++
	s.metrics.IncScheduled()
	s.metrics.SetBufferedAhead((s.nextStart - now).Seconds())
}

// Play starts or resumes playback. A Play while still buffering is the
// user cancelling, which stops instead.
func (s *Scheduler) Play() error {
	s.mu.Lock()

	switch State(s.machine.Current()) {
	case StateLoading:
		s.mu.Unlock()
		return s.Stop()
	case StatePlaying:
		s.mu.Unlock()
		return nil
	}

	if err := s.transport.Play(); err != nil {
		s.notifyLocked("could not reach the generation service, retry with play")
		s.mu.Unlock()
		return err
	}

	s.nextStart = 0
	s.eventLocked("play")
	s.mu.Unlock()
	return nil
}

// Pause halts playback, fading out and flushing scheduled audio.
func (s *Scheduler) Pause() error {
	s.mu.Lock()

	state := State(s.machine.Current())
	if state == StatePaused || state == StateStopped {
		s.mu.Unlock()
		return nil
	}

	s.eventLocked("pause")
	s.invalidateRunLocked()
	s.graph.RampTo(0, pauseFade)
	s.graph.Reset(0)
	s.nextStart = 0
	s.mu.Unlock()

	return s.transport.Pause()
}

// Stop halts playback and the remote stream entirely.
func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if State(s.machine.Current()) == StateStopped {
		s.mu.Unlock()
		return nil
	}

	s.eventLocked("stop")
	s.invalidateRunLocked()
	s.graph.RampTo(0, stopFade)
	s.graph.Reset(1.0) // reconnect-ready: next run plays at full gain
	s.nextStart = 0
	s.mu.Unlock()

	return s.transport.Stop()
}

// Reset re-initializes the remote generation context and restores default
// parameters. Active playback is paused and resumed shortly after so the
// new context can settle.
func (s *Scheduler) Reset() error {
	if err := s.transport.ResetContext(); err != nil {
		s.mu.Lock()
		s.notifyLocked("context reset failed")
		s.mu.Unlock()
		return err
	}

	if s.RestoreDefaults != nil {
		s.RestoreDefaults()
	}

	state := s.State()
	if state != StatePlaying && state != StateLoading {
		return nil
	}

	if err := s.Pause(); err != nil {
		return err
	}

	time.AfterFunc(resetDelay, func() {
		// Resume only if nothing superseded the pause in the interim.
		if s.State() == StatePaused {
			if err := s.Play(); err != nil {
				s.log.Warn("resume after context reset failed", zap.Error(err))
			}
		}
	})

	return nil
}

// HandleTransportFailure forces a stop after a connection error or close
// and surfaces a retryable notice. Retry is a user action via Play.
func (s *Scheduler) HandleTransportFailure(err error) {
	s.log.Warn("transport failure, stopping playback", zap.Error(err))

	s.mu.Lock()
	s.notifyLocked("connection lost, press play to reconnect")
	s.mu.Unlock()

	if stopErr := s.Stop(); stopErr != nil {
		s.log.Warn("stop after transport failure", zap.Error(stopErr))
	}
}

// armPrerollLocked schedules the one-shot loading -> playing transition.
// The timer is keyed to the current run: any pause/stop in the interim
// bumps the run id and the stale timer does nothing.
func (s *Scheduler) armPrerollLocked() {
	if s.preroll != nil {
		s.preroll.Stop()
	}

	run := s.runID
	s.preroll = time.AfterFunc(s.bufferTime, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.runID != run || State(s.machine.Current()) != StateLoading {
			return
		}
		s.eventLocked("buffered")
	})
}

// invalidateRunLocked cancels the pending deferred transition.
func (s *Scheduler) invalidateRunLocked() {
	s.runID++
	if s.preroll != nil {
		s.preroll.Stop()
		s.preroll = nil
	}
}

// eventLocked fires a state machine event and the state change hook.
func (s *Scheduler) eventLocked(name string) {
	if err := s.machine.Event(context.Background(), name); err != nil {
		s.log.Warn("state transition rejected",
			zap.String("event", name),
			zap.String("state", s.machine.Current()),
			zap.Error(err))
		return
	}
	if s.OnStateChange != nil {
		s.OnStateChange(State(s.machine.Current()))
	}
}

func (s *Scheduler) notifyLocked(text string) {
	if s.OnNotice != nil {
		s.OnNotice(text)
	}
}
