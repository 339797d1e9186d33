package e2e_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/loopline/realtime/stream"
)

const testSessionToken = "e2e-session-token"

// endpoint is one websocket path on the harness server: it tracks the
// currently connected client, every frame the client sent, and how many
// times the path was dialled.
type endpoint struct {
	mu       sync.Mutex
	current  *websocket.Conn
	accepted int
	received []string
}

func (ep *endpoint) handle(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}

	ep.mu.Lock()
	ep.accepted++
	ep.current = c
	ep.mu.Unlock()

	for {
		_, data, err := c.Read(context.Background())
		if err != nil {
			return
		}
		ep.mu.Lock()
		ep.received = append(ep.received, string(data))
		ep.mu.Unlock()
	}
}

// push delivers a frame to the currently connected client.
func (ep *endpoint) push(t *testing.T, frame string) {
	t.Helper()

	ep.mu.Lock()
	c := ep.current
	ep.mu.Unlock()
	require.NotNil(t, c, "no client connected")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

// drop closes the current connection uncleanly, from the client's point
// of view.
func (ep *endpoint) drop() {
	ep.mu.Lock()
	c := ep.current
	ep.current = nil
	ep.mu.Unlock()

	if c != nil {
		_ = c.Close(websocket.StatusInternalError, "dropped")
	}
}

func (ep *endpoint) frames() []string {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return append([]string(nil), ep.received...)
}

func (ep *endpoint) dials() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return ep.accepted
}

// harness is the full e2e stack: an httptest server exposing the chat
// and notification websocket paths plus the snapshot API.
type harness struct {
	HTTPURL string
	WSURL   string

	Chat   *endpoint
	Notify *endpoint

	mu           sync.Mutex
	snapshotBody string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		Chat:         &endpoint{},
		Notify:       &endpoint{},
		snapshotBody: `{"unread_count":0,"notifications":[]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat/{conversation}/", h.Chat.handle)
	mux.HandleFunc("/ws/notifications/", h.Notify.handle)
	mux.HandleFunc("/api/notifications/snapshot/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sessionid"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h.mu.Lock()
		body := h.snapshotBody
		h.mu.Unlock()
		_, _ = w.Write([]byte(body))
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	h.HTTPURL = ts.URL
	h.WSURL = "ws" + strings.TrimPrefix(ts.URL, "http")

	return h
}

func (h *harness) setSnapshot(body string) {
	h.mu.Lock()
	h.snapshotBody = body
	h.mu.Unlock()
}

// startChannel runs a channel against the harness until test cleanup.
func startChannel(t *testing.T, name, endpoint string, handler stream.FrameHandler) *stream.Channel {
	t.Helper()

	header := http.Header{}
	header.Set("Cookie", "sessionid="+testSessionToken)

	ch := stream.NewChannel(stream.ChannelConfig{
		Name:     name,
		Endpoint: endpoint,
		Handler:  handler,
		Header:   header,
	}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = ch.Run(ctx) }()

	require.Eventually(t, ch.Connected, 5*time.Second, 10*time.Millisecond, "channel %s never connected", name)

	return ch
}

// chatSink records rendered chat events for assertions.
type chatSink struct {
	mu       sync.Mutex
	messages []string
	typing   []string
	presence []string
	reads    []string
}

func (s *chatSink) RenderMessage(ev stream.ChatMessage, self bool) {
	s.mu.Lock()
	s.messages = append(s.messages, ev.Message)
	s.mu.Unlock()
}

func (s *chatSink) SetPresence(userID, _ string, online bool) {
	s.mu.Lock()
	if online {
		s.presence = append(s.presence, "on:"+userID)
	} else {
		s.presence = append(s.presence, "off:"+userID)
	}
	s.mu.Unlock()
}

func (s *chatSink) MarkRead(messageID string) {
	s.mu.Lock()
	s.reads = append(s.reads, messageID)
	s.mu.Unlock()
}

func (s *chatSink) ShowTyping(username string) {
	s.mu.Lock()
	s.typing = append(s.typing, "show:"+username)
	s.mu.Unlock()
}

func (s *chatSink) HideTyping() {
	s.mu.Lock()
	s.typing = append(s.typing, "hide")
	s.mu.Unlock()
}

func (s *chatSink) renderedMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.messages...)
}

func (s *chatSink) typingCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.typing...)
}

// silentAlerter discards alerts.
type silentAlerter struct{}

func (silentAlerter) Toast(_, _ string)  {}
func (silentAlerter) Native(_, _ string) {}

// deniedPermission never grants native alerts.
type deniedPermission struct{}

func (deniedPermission) State() stream.PermissionState   { return stream.PermissionDenied }
func (deniedPermission) Request() stream.PermissionState { return stream.PermissionDenied }

// containsFrame reports whether any received frame contains the substring.
func containsFrame(frames []string, substr string) bool {
	for _, f := range frames {
		if strings.Contains(f, substr) {
			return true
		}
	}

	return false
}
