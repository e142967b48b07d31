// ABOUTME: Main console orchestration
// ABOUTME: Wires session, pipeline, scheduler, recorder, and TUI together
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Soundrift/soundrift-go/internal/audio"
	"github.com/Soundrift/soundrift-go/internal/clock"
	"github.com/Soundrift/soundrift-go/internal/config"
	"github.com/Soundrift/soundrift-go/internal/metrics"
	"github.com/Soundrift/soundrift-go/internal/player"
	"github.com/Soundrift/soundrift-go/internal/prompt"
	"github.com/Soundrift/soundrift-go/internal/recorder"
	"github.com/Soundrift/soundrift-go/internal/session"
	"github.com/Soundrift/soundrift-go/internal/ui"
)

// Console is the running application.
type Console struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	client    *session.Client
	builder   *audio.Builder
	scheduler *player.Scheduler
	graph     *player.OtoGraph
	store     *prompt.Store
	recorder  *recorder.Recorder
	controls  *ui.Controls

	// send delivers messages to the TUI; nil in headless mode.
	send func(tea.Msg)

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the console from configuration.
func New(cfg config.Config, controls *ui.Controls, send func(tea.Msg), log *zap.Logger) (*Console, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if send == nil {
		send = func(tea.Msg) {}
	}

	m := metrics.New()

	store, err := prompt.NewStore(cfg.PromptStorePath)
	if err != nil {
		return nil, fmt.Errorf("prompt store: %w", err)
	}

	audioClock := clock.NewMonotonic()
	graph, err := player.NewOtoGraph(audioClock, cfg.SampleRate, cfg.Channels, log)
	if err != nil {
		return nil, fmt.Errorf("audio output: %w", err)
	}

	client := session.NewClient(session.Config{
		ServerAddr:       cfg.ServerAddr,
		ModelID:          cfg.ModelID,
		ClientName:       "soundrift-console",
		ThrottleInterval: cfg.ThrottleInterval,
	}, log, m)

	sched := player.NewScheduler(audioClock, graph, client, cfg.BufferTime, log, m)

	rec := recorder.New(cfg.SampleRate, cfg.Channels, log)
	graph.SetTap(rec.Capture)

	ctx, cancel := context.WithCancel(context.Background())

	c := &Console{
		cfg:       cfg,
		log:       log,
		metrics:   m,
		client:    client,
		builder:   audio.NewBuilder(log, m),
		scheduler: sched,
		graph:     graph,
		store:     store,
		recorder:  rec,
		controls:  controls,
		send:      send,
		ctx:       ctx,
		cancel:    cancel,
	}

	sched.OnStateChange = func(state player.State) {
		c.send(ui.StatusMsg{State: string(state)})
	}
	sched.OnNotice = c.notify
	sched.RestoreDefaults = func() {
		client.SetGenerationConfig(session.DefaultGenerationConfig())
	}

	// A failed prompt/config update is non-fatal, but playback continues
	// in degraded form: pause and tell the user.
	client.OnSendError = func(err error) {
		c.notify(fmt.Sprintf("update failed: %v", err))
		if pauseErr := sched.Pause(); pauseErr != nil {
			log.Warn("defensive pause failed", zap.Error(pauseErr))
		}
	}

	return c, nil
}

// Run drives the single dispatch loop until Stop is called or the user
// quits. All scheduler mutation happens here and on TUI intents, one
// event at a time.
func (c *Console) Run() error {
	if c.cfg.MetricsAddr != "" {
		go c.serveMetrics()
	}

	statsTicker := time.NewTicker(500 * time.Millisecond)
	defer statsTicker.Stop()

	c.pushPrompts()

	for {
		select {
		case <-c.ctx.Done():
			return nil

		case msg := <-c.client.Inbound():
			c.handleInbound(msg)

		case intent := <-c.controls.Intents:
			c.handleIntent(intent)

		case <-statsTicker.C:
			stats := c.scheduler.Stats()
			connected := c.client.IsConnected()
			recording := c.recorder.Recording()
			c.send(ui.StatusMsg{
				Connected: &connected,
				Received:  stats.Received,
				Scheduled: stats.Scheduled,
				Underruns: stats.Underruns,
				Dropped:   stats.Dropped,
				Recording: &recording,
			})
		}
	}
}

// Stop tears the console down.
func (c *Console) Stop() {
	c.cancel()
	if err := c.scheduler.Stop(); err != nil {
		c.log.Warn("stop on shutdown", zap.Error(err))
	}
	c.client.Close()
	c.graph.Close()
}

// handleInbound routes one session event.
func (c *Console) handleInbound(msg session.Inbound) {
	switch msg.Kind {
	case session.KindSetupComplete:
		c.log.Info("session ready")
		connected := true
		c.send(ui.StatusMsg{Connected: &connected})

	case session.KindAudioChunk:
		buf := c.builder.Build(msg.Data, c.cfg.SampleRate, c.cfg.Channels)
		c.scheduler.OnSegmentDecoded(buf)

	case session.KindFilteredPrompt:
		c.notify(fmt.Sprintf("prompt rejected: %q (%s)", msg.Text, msg.Reason))
		c.pushPrompts() // re-render with the filtered flag, re-send without it

	case session.KindError:
		c.scheduler.HandleTransportFailure(msg.Err)

	case session.KindClosed:
		c.scheduler.HandleTransportFailure(fmt.Errorf("session closed by service"))
	}
}

// handleIntent routes one user action.
func (c *Console) handleIntent(intent ui.Intent) {
	switch intent.Kind {
	case ui.IntentPlayPause:
		state := c.scheduler.State()
		if state == player.StatePlaying || state == player.StateLoading {
			if err := c.scheduler.Pause(); err != nil {
				c.log.Warn("pause failed", zap.Error(err))
			}
			return
		}
		if err := c.scheduler.Play(); err != nil {
			c.log.Warn("play failed", zap.Error(err))
			return
		}
		// A fresh run wants the current blend immediately.
		c.pushPrompts()

	case ui.IntentStop:
		if err := c.scheduler.Stop(); err != nil {
			c.log.Warn("stop failed", zap.Error(err))
		}

	case ui.IntentReset:
		if err := c.scheduler.Reset(); err != nil {
			c.log.Warn("reset failed", zap.Error(err))
		}

	case ui.IntentRecordToggle:
		if c.recorder.Recording() {
			c.recorder.Stop()
			if err := c.recorder.ExportWAV(c.cfg.RecordPath); err != nil {
				c.notify(fmt.Sprintf("export failed: %v", err))
				return
			}
			c.notify(fmt.Sprintf("recording saved to %s", c.cfg.RecordPath))
		} else {
			c.recorder.Start()
		}

	case ui.IntentSetWeight:
		if err := c.store.SetWeight(intent.PromptID, intent.Weight); err != nil {
			c.log.Warn("weight update failed", zap.Error(err))
			return
		}
		c.pushPrompts()

	case ui.IntentQuit:
		c.cancel()
	}
}

// notify surfaces a user-facing message in the TUI and the log.
func (c *Console) notify(text string) {
	c.log.Info("notice", zap.String("text", text))
	c.send(ui.NoticeMsg{Text: text})
}

// pushPrompts sends the current blend to the service and refreshes the UI
// prompt rows.
func (c *Console) pushPrompts() {
	prompts := c.store.All()

	weighted := make([]session.WeightedPrompt, 0, len(prompts))
	views := make([]ui.PromptView, 0, len(prompts))
	for _, p := range prompts {
		reason, filtered := c.client.Filtered().Reason(p.Text)
		views = append(views, ui.PromptView{
			ID:       p.ID,
			Text:     p.Text,
			Weight:   p.Weight,
			Color:    p.Color,
			Filtered: filtered,
			Reason:   reason,
		})
		weighted = append(weighted, session.WeightedPrompt{Text: p.Text, Weight: p.Weight})
	}

	c.client.SetWeightedPrompts(weighted)
	c.send(ui.StatusMsg{Prompts: views})
}

// serveMetrics exposes the Prometheus registry.
func (c *Console) serveMetrics() {
	c.log.Info("metrics listening", zap.String("addr", c.cfg.MetricsAddr))
	srv := &http.Server{Addr: c.cfg.MetricsAddr, Handler: c.metrics.Handler()}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		c.log.Warn("metrics server stopped", zap.Error(err))
	}
}
