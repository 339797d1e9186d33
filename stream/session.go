package stream

import (
	"log/slog"
	"sort"
	"sync"
)

// ChatRenderer is the presentation sink for the chat view.
type ChatRenderer interface {
	RenderMessage(ev ChatMessage, self bool)
	SetPresence(userID, username string, online bool)
	MarkRead(messageID string)
}

// ChatSession wires decoded chat events to the typing coordinator, a
// presence roster, and the render sink. It implements ChatHandler and
// holds the self/remote attribution rule: an event is self only when it
// carries an explicit sender id equal to the current user's; events
// without a sender are always remote.
type ChatSession struct {
	selfID   string
	typing   *TypingCoordinator
	renderer ChatRenderer
	logger   *slog.Logger

	mu     sync.Mutex
	online map[string]string // userID -> username, last write wins
}

// NewChatSession creates a session for the current user.
func NewChatSession(selfID string, typing *TypingCoordinator, renderer ChatRenderer, logger *slog.Logger) *ChatSession {
	return &ChatSession{
		selfID:   selfID,
		typing:   typing,
		renderer: renderer,
		logger:   logger,
		online:   make(map[string]string),
	}
}

func (cs *ChatSession) isSelf(userID string) bool {
	return userID != "" && userID == cs.selfID
}

// HandleChatMessage implements ChatHandler. A delivered message removes
// the sender's typing entry before rendering.
func (cs *ChatSession) HandleChatMessage(ev ChatMessage) {
	cs.typing.RemoteMessage(ev.UserID)
	cs.renderer.RenderMessage(ev, cs.isSelf(ev.UserID))
}

// HandleTypingIndicator implements ChatHandler. Echoes of the local
// user's own typing are never displayed.
func (cs *ChatSession) HandleTypingIndicator(ev TypingIndicator) {
	if cs.isSelf(ev.UserID) {
		return
	}
	cs.typing.RemoteTyping(ev.UserID, ev.Username, ev.IsTyping)
}

// HandleUserOnline implements ChatHandler.
func (cs *ChatSession) HandleUserOnline(ev Presence) {
	if cs.isSelf(ev.UserID) {
		return
	}

	cs.mu.Lock()
	cs.online[ev.UserID] = ev.Username
	cs.mu.Unlock()

	cs.renderer.SetPresence(ev.UserID, ev.Username, true)
}

// HandleUserOffline implements ChatHandler.
func (cs *ChatSession) HandleUserOffline(ev Presence) {
	if cs.isSelf(ev.UserID) {
		return
	}

	cs.mu.Lock()
	delete(cs.online, ev.UserID)
	cs.mu.Unlock()

	cs.renderer.SetPresence(ev.UserID, ev.Username, false)
}

// HandleMessageRead implements ChatHandler.
func (cs *ChatSession) HandleMessageRead(ev MessageRead) {
	if cs.isSelf(ev.UserID) {
		return
	}
	cs.renderer.MarkRead(ev.MessageID)
}

// OnlineUsers returns the ids of users currently flagged online, sorted
// for stable display.
func (cs *ChatSession) OnlineUsers() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	ids := make([]string, 0, len(cs.online))
	for id := range cs.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
