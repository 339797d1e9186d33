// Package metrics provides Prometheus instrumentation for the realtime
// client: counters for frame throughput and reconnects, gauges for
// connection status and the unread notification count.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connected reports whether a channel's websocket is live, labeled by
	// channel name ("chat", "notifications"). 1 = connected.
	Connected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loopline_channel_connected",
		Help: "Whether the channel websocket is currently connected",
	}, []string{"channel"})

	// Reconnects counts reconnect attempts per channel.
	Reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loopline_channel_reconnects_total",
		Help: "Total number of reconnect attempts",
	}, []string{"channel"})

	// FramesReceived counts inbound text frames per channel.
	FramesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loopline_frames_received_total",
		Help: "Total number of inbound frames received",
	}, []string{"channel"})

	// FramesDropped counts dropped inbound frames, labeled by channel and
	// reason: "malformed" or "unknown_type".
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loopline_frames_dropped_total",
		Help: "Total number of inbound frames dropped",
	}, []string{"channel", "reason"})

	// FramesSent counts outbound frames, labeled by frame type.
	FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loopline_frames_sent_total",
		Help: "Total number of outbound frames sent",
	}, []string{"type"})

	// NotificationsReceived counts push-delivered notifications, labeled
	// by outcome: "inserted" or "duplicate".
	NotificationsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loopline_notifications_received_total",
		Help: "Total number of push-delivered notifications",
	}, []string{"outcome"})

	// UnreadNotifications tracks the derived unread notification count.
	UnreadNotifications = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loopline_unread_notifications",
		Help: "Current number of unread notifications",
	})
)

func init() {
	prometheus.MustRegister(
		Connected,
		Reconnects,
		FramesReceived,
		FramesDropped,
		FramesSent,
		NotificationsReceived,
		UnreadNotifications,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
