package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/loopline/realtime/internal/metrics"
)

const (
	// typingInactivity is how long after the last input change the local
	// state machine falls back to Idle and emits a stop signal.
	typingInactivity = 1 * time.Second

	// typingDisplayWindow is how long a remote typing indicator stays
	// visible without a refresh.
	typingDisplayWindow = 5 * time.Second
)

// frameSender is the subset of Channel the coordinator and gateway need.
type frameSender interface {
	Send(v any) error
}

// TypingDisplay renders the transient "user is typing" entry.
type TypingDisplay interface {
	ShowTyping(username string)
	HideTyping()
}

// typingEntry is the remote side's state: who is typing and until when
// the indicator may be shown. An entry past expiresAt is logically
// absent even before the expiry timer collects it.
type typingEntry struct {
	userID    string
	username  string
	expiresAt time.Time
}

// TypingCoordinator owns the typing protocol for one conversation.
//
// Local side: a two-state machine (Idle/Composing). The first input
// change emits exactly one typing_start; further input resets the
// inactivity timer without re-emitting. Inactivity, message send, or
// navigating away returns to Idle, emitting typing_stop only when
// Composing. All typing signals leave through here, which is what keeps
// the at-most-one-start-per-composing guarantee in one place.
//
// Remote side: at most one indicator per conversation; the most recent
// remote typist wins. A chat message or stop signal from the shown user
// removes the entry immediately, independent of expiry.
type TypingCoordinator struct {
	sender  frameSender
	display TypingDisplay
	logger  *slog.Logger

	mu sync.Mutex

	composing  bool
	lastInput  time.Time
	inactivity *time.Timer

	remote *typingEntry
	expiry *time.Timer
}

// NewTypingCoordinator creates a coordinator emitting through sender and
// rendering through display.
func NewTypingCoordinator(sender frameSender, display TypingDisplay, logger *slog.Logger) *TypingCoordinator {
	return &TypingCoordinator{
		sender:  sender,
		display: display,
		logger:  logger,
	}
}

// InputChanged records local keystroke activity. The first call since
// Idle emits typing_start; subsequent calls only reset the inactivity
// timer.
func (tc *TypingCoordinator) InputChanged() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.lastInput = time.Now()

	if tc.composing {
		tc.inactivity.Reset(typingInactivity)
		return
	}

	tc.composing = true
	tc.emit(TypeTypingStart)
	tc.inactivity = time.AfterFunc(typingInactivity, tc.inactivityExpired)
}

// inactivityExpired runs when the inactivity timer fires. The timer may
// race with a concurrent InputChanged reset, so the deadline is
// re-checked against lastInput and the timer re-armed for the remainder
// when input arrived in the meantime.
func (tc *TypingCoordinator) inactivityExpired() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if !tc.composing {
		return
	}

	if remaining := typingInactivity - time.Since(tc.lastInput); remaining > 0 {
		tc.inactivity = time.AfterFunc(remaining, tc.inactivityExpired)
		return
	}

	tc.stopLocked()
}

// MessageSent forces the machine to Idle: sending a message counts as
// ceasing composition.
func (tc *TypingCoordinator) MessageSent() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.stopLocked()
}

// NavigateAway tears down the conversation view: the pending inactivity
// timer is cancelled (no orphaned timers firing into a torn-down view),
// a final stop is emitted if Composing, and any remote indicator is
// cleared.
func (tc *TypingCoordinator) NavigateAway() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.stopLocked()

	if tc.remote != nil {
		tc.remote = nil
		if tc.expiry != nil {
			tc.expiry.Stop()
		}
		tc.display.HideTyping()
	}
}

// stopLocked performs Composing -> Idle. Emits typing_stop only when
// currently Composing, guarding against duplicate stop emission.
func (tc *TypingCoordinator) stopLocked() {
	if !tc.composing {
		return
	}

	tc.composing = false
	if tc.inactivity != nil {
		tc.inactivity.Stop()
	}
	tc.emit(TypeTypingStop)
}

// Composing reports whether the local machine is in the Composing state.
func (tc *TypingCoordinator) Composing() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	return tc.composing
}

func (tc *TypingCoordinator) emit(kind string) {
	if err := tc.sender.Send(TypingSignal{Type: kind}); err != nil {
		// Not connected is normal degraded state; the signal is simply
		// dropped.
		tc.logger.Debug("typing signal not sent",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.FramesSent.WithLabelValues(kind).Inc()
}

// RemoteTyping handles a typing_indicator from another user. A start
// creates or refreshes the entry; is_typing=false is the explicit stop.
func (tc *TypingCoordinator) RemoteTyping(userID, username string, isTyping bool) {
	if !isTyping {
		tc.RemoteStopped(userID)
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	// Last remote typist wins; there is no queue of multiple typists.
	tc.remote = &typingEntry{
		userID:    userID,
		username:  username,
		expiresAt: time.Now().Add(typingDisplayWindow),
	}

	if tc.expiry == nil {
		tc.expiry = time.AfterFunc(typingDisplayWindow, tc.remoteExpired)
	} else {
		tc.expiry.Reset(typingDisplayWindow)
	}

	tc.display.ShowTyping(username)
}

// RemoteStopped removes the indicator if the given user is the one shown.
func (tc *TypingCoordinator) RemoteStopped(userID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.clearRemoteLocked(userID)
}

// RemoteMessage handles a delivered chat message from the given user:
// their typing entry is removed immediately, independent of expiry.
func (tc *TypingCoordinator) RemoteMessage(userID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.clearRemoteLocked(userID)
}

func (tc *TypingCoordinator) clearRemoteLocked(userID string) {
	if tc.remote == nil || tc.remote.userID != userID {
		return
	}

	tc.remote = nil
	if tc.expiry != nil {
		tc.expiry.Stop()
	}
	tc.display.HideTyping()
}

// remoteExpired runs when the display window elapses. A refresh may have
// pushed expiresAt forward, in which case the timer is re-armed.
func (tc *TypingCoordinator) remoteExpired() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.remote == nil {
		return
	}

	if remaining := time.Until(tc.remote.expiresAt); remaining > 0 {
		tc.expiry.Reset(remaining)
		return
	}

	tc.remote = nil
	tc.display.HideTyping()
}

// ActiveTypist returns the username to display, if any. An entry past
// its expiry is reported absent even if not yet collected.
func (tc *TypingCoordinator) ActiveTypist() (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.remote == nil || !time.Now().Before(tc.remote.expiresAt) {
		return "", false
	}

	return tc.remote.username, true
}
