// Package errors defines the sentinel errors shared across the realtime
// client packages.
package errors

import "errors"

// Channel errors.
var (
	ErrNotConnected  = errors.New("channel is not connected")
	ErrChannelClosed = errors.New("channel is shut down")
)

// Configuration errors.
var (
	ErrNoConversation = errors.New("no conversation id configured")
	ErrInvalidBaseURL = errors.New("invalid server base URL")
)

// Snapshot/API errors.
var (
	ErrSnapshotRequest  = errors.New("snapshot request failed")
	ErrSnapshotResponse = errors.New("unexpected snapshot response")
)
