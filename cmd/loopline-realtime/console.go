package main

import (
	"log/slog"

	"github.com/loopline/realtime/stream"
)

// consoleSink is the presentation layer for the headless client: chat
// rendering, typing indicator, presence, connectivity indicator, and
// notification alerts all land in the structured log.
type consoleSink struct {
	logger *slog.Logger
}

func newConsoleSink(logger *slog.Logger) *consoleSink {
	return &consoleSink{logger: logger}
}

// RenderMessage implements stream.ChatRenderer.
func (c *consoleSink) RenderMessage(ev stream.ChatMessage, self bool) {
	c.logger.Info("message",
		slog.String("from", ev.Username),
		slog.String("body", ev.Message),
		slog.Bool("self", self),
		slog.Time("at", ev.Timestamp),
	)
}

// SetPresence implements stream.ChatRenderer.
func (c *consoleSink) SetPresence(userID, username string, online bool) {
	c.logger.Info("presence",
		slog.String("user", username),
		slog.Bool("online", online),
	)
}

// MarkRead implements stream.ChatRenderer.
func (c *consoleSink) MarkRead(messageID string) {
	c.logger.Info("message read", slog.String("message_id", messageID))
}

// ShowTyping implements stream.TypingDisplay.
func (c *consoleSink) ShowTyping(username string) {
	c.logger.Info("typing", slog.String("user", username))
}

// HideTyping implements stream.TypingDisplay.
func (c *consoleSink) HideTyping() {
	c.logger.Info("typing cleared")
}

// Toast implements stream.Alerter.
func (c *consoleSink) Toast(title, body string) {
	c.logger.Info("notification",
		slog.String("title", title),
		slog.String("body", body),
	)
}

// Native implements stream.Alerter. The headless client has no OS alert
// surface; the distinct log line stands in for one.
func (c *consoleSink) Native(title, body string) {
	c.logger.Info("native alert",
		slog.String("title", title),
		slog.String("body", body),
	)
}

// SetConnected is the chat status indicator.
func (c *consoleSink) SetConnected(connected bool) {
	c.logger.Info("chat channel status", slog.Bool("connected", connected))
}

// ClearInput is the input-box clear callback. Stdin has no buffer to
// clear; the hook exists for parity with the browser client.
func (c *consoleSink) ClearInput() {}
