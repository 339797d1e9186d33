package stream

import (
	"encoding/json"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/loopline/realtime/internal/metrics"
)

// ChatHandler receives decoded chat-channel events, one call per frame.
type ChatHandler interface {
	HandleChatMessage(ev ChatMessage)
	HandleTypingIndicator(ev TypingIndicator)
	HandleUserOnline(ev Presence)
	HandleUserOffline(ev Presence)
	HandleMessageRead(ev MessageRead)
}

// NotificationHandler receives decoded notification-channel events.
type NotificationHandler interface {
	HandleNewNotification(ev NewNotification)
	HandleNotificationRead(ev NotificationRead)
}

// ChatDispatcher decodes chat-channel frames and routes each to exactly
// one handler method. Malformed frames are dropped with a debug log;
// unknown types are dropped silently so the client tolerates event kinds
// introduced after deployment. Dispatch never panics and never touches
// connection state.
type ChatDispatcher struct {
	handler ChatHandler
	logger  *slog.Logger
}

// NewChatDispatcher creates a dispatcher routing to the given handler.
func NewChatDispatcher(handler ChatHandler, logger *slog.Logger) *ChatDispatcher {
	return &ChatDispatcher{handler: handler, logger: logger}
}

// HandleFrame implements FrameHandler.
func (d *ChatDispatcher) HandleFrame(data []byte) {
	kind := gjson.GetBytes(data, "type").Str
	if kind == "" {
		d.dropMalformed("chat", data)
		return
	}

	switch kind {
	case TypeChatMessage:
		var ev ChatMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			d.dropMalformed("chat", data)
			return
		}
		d.handler.HandleChatMessage(ev)

	case TypeTypingIndicator:
		var ev TypingIndicator
		if err := json.Unmarshal(data, &ev); err != nil {
			d.dropMalformed("chat", data)
			return
		}
		d.handler.HandleTypingIndicator(ev)

	case TypeUserOnline:
		var ev Presence
		if err := json.Unmarshal(data, &ev); err != nil {
			d.dropMalformed("chat", data)
			return
		}
		d.handler.HandleUserOnline(ev)

	case TypeUserOffline:
		var ev Presence
		if err := json.Unmarshal(data, &ev); err != nil {
			d.dropMalformed("chat", data)
			return
		}
		d.handler.HandleUserOffline(ev)

	case TypeMessageRead:
		var ev MessageRead
		if err := json.Unmarshal(data, &ev); err != nil {
			d.dropMalformed("chat", data)
			return
		}
		d.handler.HandleMessageRead(ev)

	case TypePong:
		// Keepalive reply, nothing to route.

	default:
		// Forward compatibility: newer servers may send kinds this
		// client does not know. Not an anomaly, so no log.
		metrics.FramesDropped.WithLabelValues("chat", "unknown_type").Inc()
	}
}

func (d *ChatDispatcher) dropMalformed(channel string, data []byte) {
	metrics.FramesDropped.WithLabelValues(channel, "malformed").Inc()
	d.logger.Debug("dropping malformed frame",
		slog.String("channel", channel),
		slog.Int("bytes", len(data)),
	)
}

// NotificationDispatcher decodes notification-channel frames. Same drop
// rules as the chat dispatcher.
type NotificationDispatcher struct {
	handler NotificationHandler
	logger  *slog.Logger
}

// NewNotificationDispatcher creates a dispatcher routing to the given
// handler.
func NewNotificationDispatcher(handler NotificationHandler, logger *slog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{handler: handler, logger: logger}
}

// HandleFrame implements FrameHandler.
func (d *NotificationDispatcher) HandleFrame(data []byte) {
	kind := gjson.GetBytes(data, "type").Str
	if kind == "" {
		d.dropMalformed(data)
		return
	}

	switch kind {
	case TypeNewNotification:
		var ev NewNotification
		if err := json.Unmarshal(data, &ev); err != nil {
			d.dropMalformed(data)
			return
		}
		d.handler.HandleNewNotification(ev)

	case TypeNotificationRead:
		var ev NotificationRead
		if err := json.Unmarshal(data, &ev); err != nil {
			d.dropMalformed(data)
			return
		}
		d.handler.HandleNotificationRead(ev)

	case TypePong:

	default:
		metrics.FramesDropped.WithLabelValues("notifications", "unknown_type").Inc()
	}
}

func (d *NotificationDispatcher) dropMalformed(data []byte) {
	metrics.FramesDropped.WithLabelValues("notifications", "malformed").Inc()
	d.logger.Debug("dropping malformed frame",
		slog.String("channel", "notifications"),
		slog.Int("bytes", len(data)),
	)
}
