// Package config loads environment-based configuration for the realtime
// client and resolves the channel endpoints from the server base URL.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	apperrors "github.com/loopline/realtime/internal/errors"
)

// Config holds all environment-based configuration for the realtime client.
type Config struct {
	// ServerURL is the base URL of the Loopline web application,
	// e.g. https://loopline.example.com. The websocket scheme is derived
	// from it: https becomes wss, http becomes ws.
	ServerURL string `env:"SERVER_URL"`

	// SessionToken is the session cookie value used to authenticate both
	// websocket dials and the notification snapshot request.
	SessionToken string `env:"SESSION_TOKEN"`

	// UserID identifies the current user. Inbound events carrying this id
	// are attributed to self; everything else is remote.
	UserID string `env:"USER_ID"`

	// Username is the current user's display name, used only for local
	// rendering.
	Username string `env:"USERNAME" envDefault:""`

	// ConversationID selects the conversation for the chat channel. When
	// empty the chat channel never starts; the notification channel is
	// unaffected.
	ConversationID string `env:"CONVERSATION_ID" envDefault:""`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// MetricsAddr enables the Prometheus /metrics listener when non-empty.
	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`

	// NativeAlerts is the native alert permission state: "granted",
	// "denied", or "default". A "default" state triggers one best-effort
	// permission request at startup.
	NativeAlerts string `env:"NATIVE_ALERTS" envDefault:"default"`

	// ClientID is a per-session identifier sent on every dial. Generated
	// at load time, never persisted.
	ClientID string `env:"-"`

	wsBase *url.URL
}

// Load reads configuration from environment variables. It first attempts
// to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ClientID = uuid.NewString()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := cfg.resolveWSBase(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}
	if c.SessionToken == "" {
		return fmt.Errorf("SESSION_TOKEN is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("USER_ID is required")
	}

	switch c.NativeAlerts {
	case "granted", "denied", "default":
	default:
		return fmt.Errorf("NATIVE_ALERTS must be granted, denied, or default, got %q", c.NativeAlerts)
	}

	return nil
}

// resolveWSBase derives the websocket base URL from ServerURL. The socket
// transport mirrors the page transport: an encrypted page gets an
// encrypted socket.
func (c *Config) resolveWSBase() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidBaseURL, err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidBaseURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", apperrors.ErrInvalidBaseURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	c.wsBase = u

	return nil
}

// ChatEndpoint returns the chat channel websocket URL for the configured
// conversation. Returns ErrNoConversation when no conversation id is set;
// callers treat that as a normal boot-time no-op for the chat channel.
func (c *Config) ChatEndpoint() (string, error) {
	if c.ConversationID == "" {
		return "", apperrors.ErrNoConversation
	}

	return c.wsBase.String() + "/ws/chat/" + url.PathEscape(c.ConversationID) + "/", nil
}

// NotificationEndpoint returns the notification channel websocket URL.
// The notification channel is global per session.
func (c *Config) NotificationEndpoint() string {
	return c.wsBase.String() + "/ws/notifications/"
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
