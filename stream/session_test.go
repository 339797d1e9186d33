package stream

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderRecorder captures render sink calls.
type renderRecorder struct {
	messages []ChatMessage
	selfs    []bool
	presence []string
	reads    []string
}

func (r *renderRecorder) RenderMessage(ev ChatMessage, self bool) {
	r.messages = append(r.messages, ev)
	r.selfs = append(r.selfs, self)
}

func (r *renderRecorder) SetPresence(userID, _ string, online bool) {
	state := "off:"
	if online {
		state = "on:"
	}
	r.presence = append(r.presence, state+userID)
}

func (r *renderRecorder) MarkRead(messageID string) {
	r.reads = append(r.reads, messageID)
}

func newTestSession(selfID string) (*ChatSession, *TypingCoordinator, *renderRecorder, *displayRecorder) {
	display := &displayRecorder{}
	typing := NewTypingCoordinator(&recordSender{}, display, slog.Default())
	renderer := &renderRecorder{}

	return NewChatSession(selfID, typing, renderer, slog.Default()), typing, renderer, display
}

func TestChatSession_MessageClearsTypistThenRenders(t *testing.T) {
	session, typing, renderer, display := newTestSession("me")

	session.HandleTypingIndicator(TypingIndicator{UserID: "u1", Username: "ana", IsTyping: true})
	name, ok := typing.ActiveTypist()
	require.True(t, ok)
	require.Equal(t, "ana", name)

	session.HandleChatMessage(ChatMessage{MessageID: "m1", UserID: "u1", Username: "ana", Message: "hi"})

	_, ok = typing.ActiveTypist()
	assert.False(t, ok, "a delivered message removes the sender's typing entry")
	require.Len(t, renderer.messages, 1)
	assert.Equal(t, "m1", renderer.messages[0].MessageID)
	assert.Equal(t, []string{"show:ana", "hide"}, display.recorded())
}

func TestChatSession_SelfAttribution(t *testing.T) {
	session, _, renderer, _ := newTestSession("me")

	session.HandleChatMessage(ChatMessage{MessageID: "m1", UserID: "me"})
	session.HandleChatMessage(ChatMessage{MessageID: "m2", UserID: "u1"})
	// System messages carry no sender and are always remote.
	session.HandleChatMessage(ChatMessage{MessageID: "m3"})

	assert.Equal(t, []bool{true, false, false}, renderer.selfs)
}

func TestChatSession_OwnTypingEchoIgnored(t *testing.T) {
	session, typing, _, display := newTestSession("me")

	session.HandleTypingIndicator(TypingIndicator{UserID: "me", Username: "me", IsTyping: true})

	_, ok := typing.ActiveTypist()
	assert.False(t, ok)
	assert.Empty(t, display.recorded())
}

func TestChatSession_PresenceRoster(t *testing.T) {
	session, _, renderer, _ := newTestSession("me")

	session.HandleUserOnline(Presence{UserID: "u2", Username: "bo"})
	session.HandleUserOnline(Presence{UserID: "u1", Username: "ana"})
	assert.Equal(t, []string{"u1", "u2"}, session.OnlineUsers())

	// Re-announce is harmless.
	session.HandleUserOnline(Presence{UserID: "u1", Username: "ana"})
	assert.Equal(t, []string{"u1", "u2"}, session.OnlineUsers())

	session.HandleUserOffline(Presence{UserID: "u2", Username: "bo"})
	assert.Equal(t, []string{"u1"}, session.OnlineUsers())

	assert.Equal(t, []string{"on:u2", "on:u1", "on:u1", "off:u2"}, renderer.presence)
}

func TestChatSession_OwnPresenceEchoIgnored(t *testing.T) {
	session, _, renderer, _ := newTestSession("me")

	session.HandleUserOnline(Presence{UserID: "me", Username: "me"})

	assert.Empty(t, session.OnlineUsers())
	assert.Empty(t, renderer.presence)
}

func TestChatSession_MessageRead(t *testing.T) {
	session, _, renderer, _ := newTestSession("me")

	session.HandleMessageRead(MessageRead{MessageID: "m1", UserID: "u1"})
	// The local user's own read receipts echo back; nothing to mark.
	session.HandleMessageRead(MessageRead{MessageID: "m2", UserID: "me"})

	assert.Equal(t, []string{"m1"}, renderer.reads)
}
