package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loopline/realtime/internal/config"
	apperrors "github.com/loopline/realtime/internal/errors"
	"github.com/loopline/realtime/internal/logging"
	"github.com/loopline/realtime/internal/metrics"
	"github.com/loopline/realtime/stream"
)

var Version = "dev"

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("loopline-realtime starting",
		slog.String("version", Version),
		slog.String("server", cfg.ServerURL),
		slog.Bool("chat", cfg.ConversationID != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	header := http.Header{}
	header.Set("Origin", cfg.ServerURL)
	header.Set("Cookie", "sessionid="+cfg.SessionToken)
	header.Set("X-Client-ID", cfg.ClientID)

	console := newConsoleSink(logger)

	// Notification channel: global per session.
	sync := stream.NewSynchronizer(stream.SynchronizerConfig{
		Alerter:    console,
		Permission: staticPermission{state: stream.PermissionState(cfg.NativeAlerts), logger: logger},
		OnBadge: func(count int) {
			logger.Info("unread badge", slog.Int("count", count))
		},
	}, logger)

	snapshotClient := stream.NewSnapshotClient(nil, cfg.ServerURL, cfg.SessionToken)
	if err := sync.LoadSnapshot(ctx, snapshotClient); err != nil {
		// Degraded start: push events still arrive; the next page load
		// resyncs.
		logger.Warn("snapshot load failed", slog.String("error", err.Error()))
	}

	notifChannel := stream.NewChannel(stream.ChannelConfig{
		Name:     "notifications",
		Endpoint: cfg.NotificationEndpoint(),
		Handler:  stream.NewNotificationDispatcher(sync, logger),
		OnStatus: func(connected bool) {
			logger.Info("notification channel status", slog.Bool("connected", connected))
		},
		Header: header,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return notifChannel.Run(gctx)
	})

	// Chat channel: requires a conversation id from page context. Absent
	// id means the channel never starts; a normal boot-time no-op.
	chatEndpoint, err := cfg.ChatEndpoint()
	switch {
	case errors.Is(err, apperrors.ErrNoConversation):
		logger.Info("chat channel disabled, no conversation id")
	case err != nil:
		return fmt.Errorf("resolving chat endpoint: %w", err)
	default:
		var dispatcher stream.FrameHandler

		chatChannel := stream.NewChannel(stream.ChannelConfig{
			Name:     "chat",
			Endpoint: chatEndpoint,
			Handler: stream.FrameHandlerFunc(func(data []byte) {
				dispatcher.HandleFrame(data)
			}),
			OnStatus: console.SetConnected,
			Header:   header,
		}, logger)

		typing := stream.NewTypingCoordinator(chatChannel, console, logger)
		session := stream.NewChatSession(cfg.UserID, typing, console, logger)
		dispatcher = stream.NewChatDispatcher(session, logger)

		gateway := stream.NewGateway(chatChannel, typing, console.ClearInput, logger)

		g.Go(func() error {
			defer typing.NavigateAway()
			return chatChannel.Run(gctx)
		})

		go inputLoop(gctx, gateway, typing)
	}

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, logger)
		})
	}

	return g.Wait()
}

// inputLoop reads lines from stdin and sends each as a chat message.
// Stdin reads are not cancellable, so the loop runs detached and checks
// the context between lines.
func inputLoop(ctx context.Context, gateway *stream.Gateway, typing *stream.TypingCoordinator) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		typing.InputChanged()
		gateway.SendChatMessage(scanner.Text())
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("metrics listener started", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	}
}

// staticPermission is the native-alert permission primitive for a
// headless client: the state comes from configuration and cannot be
// prompted for interactively, so a request from the undetermined state
// resolves to denied.
type staticPermission struct {
	state  stream.PermissionState
	logger *slog.Logger
}

func (p staticPermission) State() stream.PermissionState {
	return p.state
}

func (p staticPermission) Request() stream.PermissionState {
	p.logger.Info("native alert permission undetermined, treating as denied")
	return stream.PermissionDenied
}
