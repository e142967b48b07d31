// ABOUTME: Tests for the session client
// ABOUTME: Covers inbound dispatch order, filtered prompt handling, and outbound filtering
package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soundrift/soundrift-go/internal/pcm"
)

var upgrader = websocket.Upgrader{}

// fakeService is a minimal generation service endpoint for tests.
type fakeService struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan inEnvelope
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	fs := &fakeService{
		conns:    make(chan *websocket.Conn, 1),
		received: make(chan inEnvelope, 32),
	}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		fs.conns <- conn

		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var msg inEnvelope
				if json.Unmarshal(data, &msg) == nil {
					fs.received <- msg
				}
			}
		}()
	}))
	t.Cleanup(fs.srv.Close)

	return fs
}

func (fs *fakeService) addr() string {
	return strings.TrimPrefix(fs.srv.URL, "http://")
}

func (fs *fakeService) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func (fs *fakeService) send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(envelope{Type: msgType, Payload: payload}))
}

func (fs *fakeService) next(t *testing.T) inEnvelope {
	t.Helper()
	select {
	case msg := <-fs.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound message arrived")
		return inEnvelope{}
	}
}

func newTestClient(t *testing.T, fs *fakeService) *Client {
	t.Helper()
	c := NewClient(Config{
		ServerAddr:       fs.addr(),
		ModelID:          "models/test-music",
		ClientName:       "test-console",
		ThrottleInterval: 20 * time.Millisecond,
	}, nil, nil)
	t.Cleanup(c.Close)
	return c
}

func nextInbound(t *testing.T, c *Client) Inbound {
	t.Helper()
	select {
	case msg := <-c.Inbound():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound event arrived")
		return Inbound{}
	}
}

func TestConnectSendsSetup(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)

	require.NoError(t, c.Connect())
	fs.conn(t)

	msg := fs.next(t)
	assert.Equal(t, "setup", msg.Type)

	var p setupPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Equal(t, "models/test-music", p.Model)
	assert.NotEmpty(t, p.ClientID)
}

func TestInboundDispatchOrder(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)
	require.NoError(t, c.Connect())
	conn := fs.conn(t)

	raw := pcm.EncodeSamples([]float32{0.1, -0.1})
	fs.send(t, conn, typeSetupComplete, nil)
	fs.send(t, conn, typeAudioChunk, audioChunkPayload{
		MimeType: "audio/pcm;rate=16000",
		Data:     pcm.EncodeBase64(raw),
	})
	fs.send(t, conn, typeFilteredPrompt, filteredPromptPayload{
		Text:   "forbidden theme",
		Reason: "content policy",
	})

	first := nextInbound(t, c)
	assert.Equal(t, KindSetupComplete, first.Kind)

	second := nextInbound(t, c)
	require.Equal(t, KindAudioChunk, second.Kind)
	assert.Equal(t, "audio/pcm;rate=16000", second.MimeType)
	assert.Equal(t, raw, second.Data)

	third := nextInbound(t, c)
	require.Equal(t, KindFilteredPrompt, third.Kind)
	assert.Equal(t, "forbidden theme", third.Text)
	assert.Equal(t, "content policy", third.Reason)

	assert.True(t, c.Filtered().Has("forbidden theme"))
}

func TestMalformedAudioChunkIsDropped(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)
	require.NoError(t, c.Connect())
	conn := fs.conn(t)

	fs.send(t, conn, typeAudioChunk, audioChunkPayload{Data: "!!! not base64 !!!"})
	fs.send(t, conn, typeSetupComplete, nil)

	// The corrupt chunk must be skipped, not delivered and not fatal.
	msg := nextInbound(t, c)
	assert.Equal(t, KindSetupComplete, msg.Kind)
}

func TestServiceCloseDeliversClosedEvent(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)
	require.NoError(t, c.Connect())
	conn := fs.conn(t)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")))
	conn.Close()

	msg := nextInbound(t, c)
	assert.Equal(t, KindClosed, msg.Kind)
	assert.False(t, c.IsConnected())
}

func TestSetWeightedPromptsExcludesFiltered(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)
	require.NoError(t, c.Connect())
	conn := fs.conn(t)

	fs.next(t) // setup

	fs.send(t, conn, typeFilteredPrompt, filteredPromptPayload{Text: "bad", Reason: "policy"})
	nextInbound(t, c)

	c.SetWeightedPrompts([]WeightedPrompt{
		{Text: "ambient dub", Weight: 1.0},
		{Text: "bad", Weight: 0.5},
	})

	msg := fs.next(t)
	require.Equal(t, "set-weighted-prompts", msg.Type)

	var p weightedPromptsPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	require.Len(t, p.WeightedPrompts, 1)
	assert.Equal(t, "ambient dub", p.WeightedPrompts[0].Text)
}

func TestPromptUpdatesAreThrottled(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)
	require.NoError(t, c.Connect())
	fs.conn(t)
	fs.next(t) // setup

	for i := 0; i < 5; i++ {
		c.SetWeightedPrompts([]WeightedPrompt{{Text: "take", Weight: float64(i)}})
	}
	time.Sleep(100 * time.Millisecond)

	// Immediate first send plus one trailing send with the latest weight.
	first := fs.next(t)
	second := fs.next(t)
	assert.Equal(t, "set-weighted-prompts", first.Type)

	var p weightedPromptsPayload
	require.NoError(t, json.Unmarshal(second.Payload, &p))
	require.Len(t, p.WeightedPrompts, 1)
	assert.Equal(t, 4.0, p.WeightedPrompts[0].Weight)

	select {
	case extra := <-fs.received:
		t.Fatalf("unexpected extra send: %s", extra.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOutboundCommandsRequireConnection(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)

	assert.ErrorIs(t, c.Pause(), ErrNotConnected)
	assert.NoError(t, c.Stop(), "stopping a dead session is not an error")

	// Play dials on demand.
	require.NoError(t, c.Play())
	fs.conn(t)
	assert.Equal(t, "setup", fs.next(t).Type)
	assert.Equal(t, "play", fs.next(t).Type)
}

func TestCloseUnblocksPendingDelivery(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)
	require.NoError(t, c.Connect())
	fs.conn(t)

	c.mu.RLock()
	done := c.done
	c.mu.RUnlock()

	// Saturate the inbound buffer with nothing consuming it, the state a
	// dispatch loop leaves behind when it exits at shutdown.
	for i := 0; i < cap(c.inbound); i++ {
		c.inbound <- Inbound{Kind: KindSetupComplete}
	}

	delivered := make(chan struct{})
	go func() {
		c.deliver(Inbound{Kind: KindSetupComplete}, done)
		close(delivered)
	}()

	c.Close()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery still blocked after close")
	}
}

func TestReconnectClearsFilteredSet(t *testing.T) {
	fs := newFakeService(t)
	c := newTestClient(t, fs)
	require.NoError(t, c.Connect())
	conn := fs.conn(t)

	fs.send(t, conn, typeFilteredPrompt, filteredPromptPayload{Text: "bad", Reason: "policy"})
	nextInbound(t, c)
	require.True(t, c.Filtered().Has("bad"))

	c.Close()
	require.NoError(t, c.Connect())
	fs.conn(t)

	assert.False(t, c.Filtered().Has("bad"), "fresh session must re-evaluate prompts")
}
