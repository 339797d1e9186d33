package stream

import "time"

// Inbound frame type discriminators. Both channels carry text frames
// holding a JSON object with a required "type" field.
const (
	TypeChatMessage      = "chat_message"
	TypeTypingIndicator  = "typing_indicator"
	TypeUserOnline       = "user_online"
	TypeUserOffline      = "user_offline"
	TypeMessageRead      = "message_read"
	TypeNewNotification  = "new_notification"
	TypeNotificationRead = "notification_read"
	TypePong             = "pong"
)

// Outbound frame type discriminators.
const (
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeReadReceipt = "read_receipt"
	TypePing        = "ping"
)

// ChatMessage is a message delivered on the chat channel.
type ChatMessage struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingIndicator signals that a user started or stopped composing.
// is_typing=false is the explicit stop signal.
type TypingIndicator struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// Presence is carried by user_online and user_offline events.
type Presence struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// MessageRead is a read receipt for a delivered chat message.
type MessageRead struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// NewNotification announces a freshly created notification on the
// notification channel.
type NewNotification struct {
	Type           string    `json:"type"`
	NotificationID string    `json:"notification_id"`
	Kind           string    `json:"notification_type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// NotificationRead signals that a notification was read, possibly on
// another device.
type NotificationRead struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id"`
}

// OutboundChatMessage is sent by the client to deliver a chat message.
type OutboundChatMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TypingSignal is sent by the client when composition starts or stops.
// Emitted only by the TypingCoordinator.
type TypingSignal struct {
	Type string `json:"type"`
}

// OutboundReadReceipt acknowledges a delivered message.
type OutboundReadReceipt struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// pingFrame is the keepalive sent after a quiet period.
type pingFrame struct {
	Type string `json:"type"`
}
