package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/samber/lo"

	apperrors "github.com/loopline/realtime/internal/errors"
	"github.com/loopline/realtime/internal/metrics"
)

// defaultRecentLimit bounds the notification list exposed to the UI.
// Records themselves are never deleted within a session.
const defaultRecentLimit = 50

// PermissionState is the native-alert permission primitive's state.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionDefault PermissionState = "default"
)

// NotificationRecord is one notification as held by the synchronizer.
type NotificationRecord struct {
	ID        string     `json:"id"`
	Kind      string     `json:"notification_type"`
	Title     string     `json:"title"`
	Body      string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

// Snapshot is the authoritative notification state fetched at session
// start.
type Snapshot struct {
	UnreadCount   int                  `json:"unread_count"`
	Notifications []NotificationRecord `json:"notifications"`
}

// Alerter delivers user-facing alerts: a passive in-app toast and a
// native OS-level alert.
type Alerter interface {
	Toast(title, body string)
	Native(title, body string)
}

// PermissionStore is the native-alert permission primitive.
type PermissionStore interface {
	State() PermissionState
	Request() PermissionState
}

// Synchronizer maintains the notification record set and its derived
// unread count. The count is always computed from the records: there is
// no separate counter mutation path, so the visible badge can never
// drift from the record set.
type Synchronizer struct {
	alerter Alerter
	logger  *slog.Logger
	now     func() time.Time

	// onBadge, when set, receives the freshly derived unread count after
	// every mutation.
	onBadge func(count int)

	recentLimit int
	granted     bool

	mu      sync.Mutex
	records map[string]*NotificationRecord
	order   []string // insertion order, oldest first
}

// SynchronizerConfig holds the synchronizer's collaborators.
type SynchronizerConfig struct {
	Alerter    Alerter
	Permission PermissionStore
	OnBadge    func(count int)
}

// NewSynchronizer creates a synchronizer. If the native-alert permission
// state is neither granted nor denied, one best-effort request is issued
// here; native alerts fire only when the resulting state is granted.
func NewSynchronizer(cfg SynchronizerConfig, logger *slog.Logger) *Synchronizer {
	state := cfg.Permission.State()
	if state != PermissionGranted && state != PermissionDenied {
		state = cfg.Permission.Request()
		logger.Debug("native alert permission requested", slog.String("state", string(state)))
	}

	return &Synchronizer{
		alerter:     cfg.Alerter,
		logger:      logger,
		now:         time.Now,
		onBadge:     cfg.OnBadge,
		recentLimit: defaultRecentLimit,
		granted:     state == PermissionGranted,
		records:     make(map[string]*NotificationRecord),
	}
}

// LoadSnapshot fetches the authoritative snapshot and replaces local
// state wholesale. The snapshot is the source of truth at boot; nothing
// is merged.
func (s *Synchronizer) LoadSnapshot(ctx context.Context, client *SnapshotClient) error {
	snap, err := client.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("loading notification snapshot: %w", err)
	}

	s.Replace(snap)

	return nil
}

// Replace swaps in the snapshot's record set.
func (s *Synchronizer) Replace(snap *Snapshot) {
	s.mu.Lock()

	s.records = make(map[string]*NotificationRecord, len(snap.Notifications))
	s.order = s.order[:0]

	for i := range snap.Notifications {
		rec := snap.Notifications[i]
		if _, ok := s.records[rec.ID]; ok {
			continue
		}
		s.records[rec.ID] = &rec
		s.order = append(s.order, rec.ID)
	}

	derived := s.unreadLocked()
	s.mu.Unlock()

	// The server's unread_count is advisory; the derived value wins.
	if snap.UnreadCount != derived {
		s.logger.Warn("snapshot unread count disagrees with record set",
			slog.Int("snapshot", snap.UnreadCount),
			slog.Int("derived", derived),
		)
	}

	s.publishBadge(derived)
}

// HandleNewNotification implements NotificationHandler. Duplicate ids
// are absorbed silently; duplicates are expected during a reconnect
// window, not an error.
func (s *Synchronizer) HandleNewNotification(ev NewNotification) {
	if ev.NotificationID == "" {
		s.logger.Debug("dropping notification without id")
		return
	}

	s.mu.Lock()

	if _, ok := s.records[ev.NotificationID]; ok {
		s.mu.Unlock()
		metrics.NotificationsReceived.WithLabelValues("duplicate").Inc()
		s.logger.Debug("duplicate notification ignored", slog.String("id", ev.NotificationID))
		return
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	rec := &NotificationRecord{
		ID:        ev.NotificationID,
		Kind:      ev.Kind,
		Title:     ev.Title,
		Body:      ev.Message,
		CreatedAt: createdAt,
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)

	derived := s.unreadLocked()
	s.mu.Unlock()

	metrics.NotificationsReceived.WithLabelValues("inserted").Inc()
	s.publishBadge(derived)

	s.alerter.Toast(ev.Title, ev.Message)
	if s.granted {
		s.alerter.Native(ev.Title, ev.Message)
	}
}

// HandleNotificationRead implements NotificationHandler.
func (s *Synchronizer) HandleNotificationRead(ev NotificationRead) {
	s.markRead(ev.NotificationID)
}

// MarkRead records a local acknowledgment. Same idempotent path as a
// remote read event.
func (s *Synchronizer) MarkRead(id string) {
	s.markRead(id)
}

func (s *Synchronizer) markRead(id string) {
	s.mu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("read event for unknown notification", slog.String("id", id))
		return
	}

	if rec.ReadAt != nil {
		// Already read; re-setting is a no-op.
		s.mu.Unlock()
		return
	}

	t := s.now()
	rec.ReadAt = &t

	derived := s.unreadLocked()
	s.mu.Unlock()

	s.publishBadge(derived)
}

// UnreadCount returns the derived unread count: the number of records
// with no read timestamp.
func (s *Synchronizer) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.unreadLocked()
}

func (s *Synchronizer) unreadLocked() int {
	return lo.CountBy(lo.Values(s.records), func(rec *NotificationRecord) bool {
		return rec.ReadAt == nil
	})
}

// Recent returns up to recentLimit records, newest first, for the
// dropdown UI.
func (s *Synchronizer) Recent() []NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.order
	if len(ids) > s.recentLimit {
		ids = ids[len(ids)-s.recentLimit:]
	}

	recent := lo.Map(ids, func(id string, _ int) NotificationRecord {
		return *s.records[id]
	})

	return lo.Reverse(recent)
}

// Len returns the total number of records held this session.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

func (s *Synchronizer) publishBadge(count int) {
	metrics.UnreadNotifications.Set(float64(count))
	if s.onBadge != nil {
		s.onBadge(count)
	}
}

// SnapshotClient fetches the authoritative notification snapshot over
// the request/response API.
type SnapshotClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewSnapshotClient creates a snapshot client with the given http.Client.
// If httpClient is nil, http.DefaultClient is used.
func NewSnapshotClient(httpClient *http.Client, baseURL, token string) *SnapshotClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &SnapshotClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
	}
}

// Fetch performs the snapshot request.
func (c *SnapshotClient) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/notifications/snapshot/", nil)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.token})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSnapshotRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", apperrors.ErrSnapshotResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", apperrors.ErrSnapshotRequest, resp.StatusCode)
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSnapshotResponse, err)
	}

	return &snap, nil
}
