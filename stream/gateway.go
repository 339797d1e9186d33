package stream

import (
	"log/slog"
	"strings"

	"github.com/loopline/realtime/internal/metrics"
)

// Gateway validates and serializes local user actions onto the chat
// channel. Typing signals do not pass through here; they are emitted
// only by the TypingCoordinator so the debounce guarantee stays in one
// place.
type Gateway struct {
	sender  frameSender
	typing  *TypingCoordinator
	onClear func()
	logger  *slog.Logger
}

// NewGateway creates a gateway. onClear, when set, is invoked after a
// message is successfully handed to the channel, so the UI can clear the
// input box.
func NewGateway(sender frameSender, typing *TypingCoordinator, onClear func(), logger *slog.Logger) *Gateway {
	return &Gateway{
		sender:  sender,
		typing:  typing,
		onClear: onClear,
		logger:  logger,
	}
}

// SendChatMessage trims and sends a chat message. An empty result, or a
// channel that is not open, makes the call a silent no-op: that is
// normal typing-box behavior, not a failure, and the input box is left
// unchanged. On success the input is cleared and the typing coordinator
// is forced to Idle (sending counts as ceasing composition).
func (g *Gateway) SendChatMessage(text string) {
	body := strings.TrimSpace(text)
	if body == "" {
		return
	}

	if err := g.sender.Send(OutboundChatMessage{Type: TypeChatMessage, Message: body}); err != nil {
		g.logger.Debug("chat message not sent", slog.String("error", err.Error()))
		return
	}

	metrics.FramesSent.WithLabelValues(TypeChatMessage).Inc()

	if g.onClear != nil {
		g.onClear()
	}
	g.typing.MessageSent()
}

// SendReadReceipt acknowledges a delivered message. Silent no-op when
// disconnected, like every other local action.
func (g *Gateway) SendReadReceipt(messageID string) {
	if messageID == "" {
		return
	}

	if err := g.sender.Send(OutboundReadReceipt{Type: TypeReadReceipt, MessageID: messageID}); err != nil {
		g.logger.Debug("read receipt not sent",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
		return
	}

	metrics.FramesSent.WithLabelValues(TypeReadReceipt).Inc()
}
