// Package stream implements the realtime layer of the Loopline web
// client: two independent long-lived websocket channels (chat and
// notifications) with automatic reconnection, typed frame dispatch, a
// typing-indicator debounce protocol, and notification synchronization.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	apperrors "github.com/loopline/realtime/internal/errors"
	"github.com/loopline/realtime/internal/metrics"
)

const (
	// reconnectDelay is the fixed backoff between reconnect attempts.
	// No jitter and no maximum: connection losses here are transient
	// network blips, not server capacity signals.
	reconnectDelay = 3 * time.Second

	// pingAfter is how long a connection may stay quiet before the event
	// loop sends a keepalive ping.
	pingAfter = 25 * time.Second

	// idleCheckInterval is how often the event loop checks for idleness.
	idleCheckInterval = 10 * time.Second

	// sendChanSize buffers outbound frames between callers and the event
	// loop, which owns all writes to the connection.
	sendChanSize = 64

	// inboundChanSize buffers frames between the reader goroutine and
	// the event loop.
	inboundChanSize = 64

	// readLimit bounds inbound frame size. Chat and notification frames
	// are small JSON objects; 1MB is generous headroom.
	readLimit = 1 << 20
)

// Status is the lifecycle state of a channel's connection.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
	StatusReconnecting
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// wsConn abstracts the websocket connection so Channel can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// dialFunc opens a websocket connection to the endpoint. Replaced in
// tests to inject a mock connection.
type dialFunc func(ctx context.Context, endpoint string) (wsConn, error)

// FrameHandler consumes inbound text frames in receipt order. Handlers
// must not block for long: frames for a channel are dispatched one at a
// time from its event loop.
type FrameHandler interface {
	HandleFrame(data []byte)
}

// FrameHandlerFunc adapts a function to the FrameHandler interface.
type FrameHandlerFunc func(data []byte)

// HandleFrame implements FrameHandler.
func (f FrameHandlerFunc) HandleFrame(data []byte) { f(data) }

// inboundMsg wraps a frame read from the websocket by the reader goroutine.
type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// ChannelConfig holds the parameters for one realtime channel.
type ChannelConfig struct {
	// Name labels the channel in logs and metrics ("chat",
	// "notifications").
	Name string

	// Endpoint is the fully resolved websocket URL.
	Endpoint string

	// Handler receives every inbound text frame.
	Handler FrameHandler

	// OnStatus is invoked with the new connectivity state each time it
	// flips. Optional.
	OnStatus func(connected bool)

	// Header is sent with every dial (session cookie, client id).
	Header http.Header
}

// Channel owns the lifecycle of one long-lived duplex connection: open,
// receive, close, reconnect with fixed backoff.
//
// Architecture: a reader goroutine feeds inbound frames to a single
// event loop goroutine (Run), which dispatches them in receipt order and
// owns all writes to the connection. Callers submit outbound frames
// through Send; channel-local state needs no locking beyond the status
// fields read from other goroutines.
type Channel struct {
	name     string
	endpoint string
	handler  FrameHandler
	onStatus func(bool)
	header   http.Header
	logger   *slog.Logger

	dial dialFunc

	sendCh chan []byte

	mu         sync.RWMutex
	status     Status
	retryCount int

	lastMessage time.Time
	lastMsgMu   sync.Mutex
}

// NewChannel creates a channel for the given endpoint. It does not
// connect; call Run.
func NewChannel(cfg ChannelConfig, logger *slog.Logger) *Channel {
	c := &Channel{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		handler:  cfg.Handler,
		onStatus: cfg.OnStatus,
		header:   cfg.Header,
		logger:   logger.With(slog.String("channel", cfg.Name)),
		sendCh:   make(chan []byte, sendChanSize),
		status:   StatusClosed,
	}
	c.dial = c.dialWebsocket

	return c
}

// dialWebsocket opens a real websocket connection.
func (c *Channel) dialWebsocket(ctx context.Context, endpoint string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: c.header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}
	conn.SetReadLimit(readLimit)

	return conn, nil
}

// Run connects and serves the channel until ctx is cancelled. Every
// connection loss, clean or not, takes the same fixed-backoff retry
// path; reconnecting is always safe and idempotent from the server's
// perspective. Run never returns a connection error to the caller, only
// ctx.Err() on teardown.
func (c *Channel) Run(ctx context.Context) error {
	for {
		c.setStatus(StatusConnecting)

		conn, err := c.dial(ctx, c.endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("dial failed",
				slog.String("error", err.Error()),
				slog.Duration("backoff", reconnectDelay),
			)
			if err := c.waitRetry(ctx); err != nil {
				return err
			}
			continue
		}

		c.markOpen()
		err = c.serve(ctx, conn)
		c.markClosed()
		conn.Close(websocket.StatusNormalClosure, "closing")
		c.drainSendQueue()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", reconnectDelay),
		)
		if err := c.waitRetry(ctx); err != nil {
			return err
		}
	}
}

// serve is the event loop for one connection: inbound frames, outbound
// sends, and keepalive ticks. All writes happen here. Returns on read or
// write error, or on ctx cancellation.
func (c *Channel) serve(ctx context.Context, conn wsConn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inboundCh := c.startReader(connCtx, conn)
	c.touchLastMessage()

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-inboundCh:
			if msg.err != nil {
				return fmt.Errorf("reading frame: %w", msg.err)
			}
			c.touchLastMessage()

			if msg.typ != websocket.MessageText {
				c.logger.Debug("ignoring non-text frame", slog.Int("bytes", len(msg.data)))
				continue
			}

			metrics.FramesReceived.WithLabelValues(c.name).Inc()
			c.handler.HandleFrame(msg.data)

		case data := <-c.sendCh:
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return fmt.Errorf("writing frame: %w", err)
			}

		case <-ticker.C:
			c.lastMsgMu.Lock()
			elapsed := time.Since(c.lastMessage)
			c.lastMsgMu.Unlock()

			if elapsed > pingAfter {
				data, _ := json.Marshal(pingFrame{Type: TypePing})
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return fmt.Errorf("sending ping: %w", err)
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// startReader launches a goroutine that reads from the connection and
// feeds the returned channel. Exits when connCtx is cancelled or a read
// error occurs; the error is delivered as the final message. The channel
// is created per connection so a stale reader can never feed frames
// into a successor connection's loop.
func (c *Channel) startReader(connCtx context.Context, conn wsConn) <-chan inboundMsg {
	ch := make(chan inboundMsg, inboundChanSize)
	go func() {
		for {
			typ, data, err := conn.Read(connCtx)
			select {
			case ch <- inboundMsg{typ: typ, data: data, err: err}:
			case <-connCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	return ch
}

// Send marshals v and queues it for the event loop to write. Returns
// ErrNotConnected when the channel is not open; callers treat that as a
// normal degraded-state no-op, not a failure.
func (c *Channel) Send(v any) error {
	if !c.Connected() {
		return apperrors.ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling frame: %w", err)
	}

	select {
	case c.sendCh <- data:
		return nil
	default:
		return fmt.Errorf("%w: send queue full", apperrors.ErrNotConnected)
	}
}

// drainSendQueue discards frames queued while the connection was dying.
// Outbound intents are ephemeral; replaying a stale typing signal on the
// next connection would be wrong.
func (c *Channel) drainSendQueue() {
	for {
		select {
		case <-c.sendCh:
		default:
			return
		}
	}
}

// waitRetry performs the Closed -> Reconnecting transition and waits out
// the fixed backoff. Retries are unbounded.
func (c *Channel) waitRetry(ctx context.Context) error {
	c.mu.Lock()
	c.status = StatusReconnecting
	c.retryCount++
	c.mu.Unlock()

	metrics.Reconnects.WithLabelValues(c.name).Inc()

	timer := time.NewTimer(reconnectDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markOpen records a successful open: status Open, retry count reset,
// status signal fired.
func (c *Channel) markOpen() {
	c.mu.Lock()
	c.status = StatusOpen
	c.retryCount = 0
	c.mu.Unlock()

	metrics.Connected.WithLabelValues(c.name).Set(1)
	c.logger.Info("connected")

	if c.onStatus != nil {
		c.onStatus(true)
	}
}

// markClosed records any termination, local or remote.
func (c *Channel) markClosed() {
	c.mu.Lock()
	c.status = StatusClosed
	c.mu.Unlock()

	metrics.Connected.WithLabelValues(c.name).Set(0)

	if c.onStatus != nil {
		c.onStatus(false)
	}
}

func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Status returns the current connection status.
func (c *Channel) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.status
}

// Connected reports whether the websocket is live.
func (c *Channel) Connected() bool {
	return c.Status() == StatusOpen
}

// RetryCount returns the number of reconnect transitions since the last
// successful open.
func (c *Channel) RetryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.retryCount
}

func (c *Channel) touchLastMessage() {
	c.lastMsgMu.Lock()
	c.lastMessage = time.Now()
	c.lastMsgMu.Unlock()
}
