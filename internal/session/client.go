// ABOUTME: WebSocket session client for the generation service
// ABOUTME: Routes inbound messages in arrival order and throttles outbound updates
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Soundrift/soundrift-go/internal/metrics"
	"github.com/Soundrift/soundrift-go/internal/pcm"
)

// ErrNotConnected is returned for outbound commands on a closed session.
var ErrNotConnected = errors.New("session: not connected")

// DefaultThrottleInterval is the minimum spacing between outbound
// prompt/config updates.
const DefaultThrottleInterval = 200 * time.Millisecond

// Config holds session configuration.
type Config struct {
	ServerAddr       string
	ModelID          string
	ClientName       string
	ThrottleInterval time.Duration
}

// Client bridges the playback engine to the streaming generation session.
// Inbound events are delivered on a single ordered channel; outbound
// prompt and config updates are throttled so rapid UI interaction cannot
// flood the transport.
type Client struct {
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	clientID string

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	done      chan struct{} // per-connection, closed by Close

	inbound  chan Inbound
	filtered *FilteredSet

	promptThrottle *Throttle
	configThrottle *Throttle

	// OnSendError, if set, is invoked when a throttled update fails after
	// the caller has already returned.
	OnSendError func(err error)
}

// NewClient creates a session client. Connect must be called before any
// outbound command other than Play, which dials on demand.
func NewClient(cfg Config, log *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultThrottleInterval
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		cfg:            cfg,
		log:            log,
		metrics:        m,
		clientID:       uuid.New().String(),
		inbound:        make(chan Inbound, 64),
		filtered:       NewFilteredSet(),
		promptThrottle: NewThrottle(cfg.ThrottleInterval),
		configThrottle: NewThrottle(cfg.ThrottleInterval),
	}
}

// Inbound returns the ordered inbound event channel.
func (c *Client) Inbound() <-chan Inbound {
	return c.inbound
}

// Filtered returns the session's filtered prompt set.
func (c *Client) Filtered() *FilteredSet {
	return c.filtered
}

// IsConnected reports connection status.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Connect dials the service and opens a streaming session. A reconnect
// starts a fresh session, so the filtered prompt set is cleared.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	u := url.URL{Scheme: "ws", Host: c.cfg.ServerAddr, Path: "/v1/music/session"}
	c.log.Info("connecting to generation service", zap.String("url", u.String()))

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = done
	c.mu.Unlock()

	c.filtered.Clear()

	setup := envelope{
		Type: typeSetup,
		Payload: setupPayload{
			Model:      c.cfg.ModelID,
			ClientID:   c.clientID,
			ClientName: c.cfg.ClientName,
		},
	}
	if err := c.sendJSON(setup); err != nil {
		c.Close()
		return fmt.Errorf("setup failed: %w", err)
	}

	go c.readLoop(conn, done)

	return nil
}

// Play starts or resumes generation, dialing first if the session is
// closed. This is the manual-retry path after a transport failure.
func (c *Client) Play() error {
	if !c.IsConnected() {
		if err := c.Connect(); err != nil {
			return err
		}
	}
	return c.sendJSON(envelope{Type: typePlay})
}

// Pause suspends generation.
func (c *Client) Pause() error {
	return c.sendJSON(envelope{Type: typePause})
}

// Stop halts generation. Stopping an already-closed session is not an
// error; the stream is gone either way.
func (c *Client) Stop() error {
	if !c.IsConnected() {
		return nil
	}
	return c.sendJSON(envelope{Type: typeStop})
}

// ResetContext asks the service to rebuild its generation context.
func (c *Client) ResetContext() error {
	return c.sendJSON(envelope{Type: typeResetContext})
}

// SetWeightedPrompts sends the current prompt blend, excluding prompts the
// content filter rejected. Rapid calls are coalesced; the most recent
// blend always wins.
func (c *Client) SetWeightedPrompts(prompts []WeightedPrompt) {
	kept := make([]WeightedPrompt, 0, len(prompts))
	for _, p := range prompts {
		if c.filtered.Has(p.Text) {
			continue
		}
		kept = append(kept, p)
	}

	c.promptThrottle.Do(func() {
		err := c.sendJSON(envelope{
			Type:    typeSetWeightedPrompts,
			Payload: weightedPromptsPayload{WeightedPrompts: kept},
		})
		if err != nil {
			c.log.Warn("prompt update failed", zap.Error(err))
			if c.OnSendError != nil {
				c.OnSendError(fmt.Errorf("prompt update: %w", err))
			}
		}
	})
}

// SetGenerationConfig sends generation parameters, throttled like prompt
// updates.
func (c *Client) SetGenerationConfig(cfg GenerationConfig) {
	c.configThrottle.Do(func() {
		err := c.sendJSON(envelope{
			Type:    typeSetGenerationConfig,
			Payload: cfg,
		})
		if err != nil {
			c.log.Warn("config update failed", zap.Error(err))
			if c.OnSendError != nil {
				c.OnSendError(fmt.Errorf("config update: %w", err))
			}
		}
	})
}

// Close tears down the connection.
func (c *Client) Close() {
	c.promptThrottle.Stop()
	c.configThrottle.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.connected {
		c.connected = false
		_ = c.conn.Close()
		c.log.Info("session closed")
	}
}

// sendJSON writes one envelope. gorilla/websocket allows one concurrent
// writer, hence the write lock.
func (c *Client) sendJSON(msg envelope) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// inEnvelope defers payload parsing until the type is known.
type inEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readLoop reads and routes messages until the connection dies. Events are
// forwarded on a single channel so the consumer sees exact arrival order.
func (c *Client) readLoop(conn *websocket.Conn, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			c.connected = false
			c.mu.Unlock()

			if !wasConnected {
				return // local Close, not a transport event
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("session closed by service")
				c.deliver(Inbound{Kind: KindClosed}, done)
			} else {
				c.log.Warn("session read error", zap.Error(err))
				c.deliver(Inbound{Kind: KindError, Err: err}, done)
			}
			return
		}

		c.dispatch(data, done)
	}
}

// deliver forwards one inbound event, abandoning it if the session is
// closed while the consumer is gone. The read loop must never outlive a
// Close just because the inbound buffer filled up.
func (c *Client) deliver(ev Inbound, done <-chan struct{}) {
	select {
	case c.inbound <- ev:
	case <-done:
	}
}

// dispatch parses one wire message into an inbound event.
func (c *Client) dispatch(data []byte, done <-chan struct{}) {
	var msg inEnvelope
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("unparseable message from service", zap.Error(err))
		return
	}

	switch msg.Type {
	case typeSetupComplete:
		c.deliver(Inbound{Kind: KindSetupComplete}, done)

	case typeFilteredPrompt:
		var p filteredPromptPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.log.Warn("bad filtered-prompt payload", zap.Error(err))
			return
		}
		c.filtered.Add(p.Text, p.Reason)
		c.metrics.IncFilteredPrompt()
		c.deliver(Inbound{Kind: KindFilteredPrompt, Text: p.Text, Reason: p.Reason}, done)

	case typeAudioChunk:
		var p audioChunkPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.log.Warn("bad audio-chunk payload", zap.Error(err))
			return
		}
		raw, err := pcm.DecodeBase64(p.Data)
		if err != nil {
			// A corrupt segment is dropped, not fatal; the scheduler
			// absorbs the gap like any late segment.
			c.log.Warn("audio chunk decode failed", zap.Error(err))
			c.metrics.IncDegenerate()
			return
		}
		c.deliver(Inbound{Kind: KindAudioChunk, MimeType: p.MimeType, Data: raw}, done)

	default:
		c.log.Debug("ignoring unknown message type", zap.String("type", msg.Type))
	}
}
