package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/bus"
)

// DefaultBackgroundThreshold separates a short backgrounding from a long one.
const DefaultBackgroundThreshold = 10 * time.Minute

// Rows is the backend surface the manager needs.
type Rows interface {
	StartSession(ctx context.Context, userID string, device backend.DeviceInfo) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	BeaconSessionEnd(sessionID string)
}

// EventSink receives session analytics. Implemented by the analytics emitter.
type EventSink interface {
	SessionStart(userID, sessionID string, device backend.DeviceInfo)
	SessionEnd(userID, sessionID string, duration time.Duration)
}

// Handle is an open session as tracked by this client.
type Handle struct {
	SessionID string
	UserID    string
	StartedAt time.Time
}

// Manager tracks the single logical session bounded by foreground/background
// transitions. States: Closed (current == nil) and Open. A background
// transition records its timestamp so the next foreground can compute the
// elapsed duration against the threshold.
type Manager struct {
	mu             sync.Mutex
	rows           Rows
	sink           EventSink
	bus            *bus.Bus
	logger         *zap.Logger
	threshold      time.Duration
	now            func() time.Time
	current        *Handle
	starting       bool      // a StartSession call is in flight
	backgroundedAt time.Time // zero when no background record exists
}

// NewManager creates a session lifecycle manager.
func NewManager(rows Rows, sink EventSink, b *bus.Bus, threshold time.Duration, logger *zap.Logger) *Manager {
	if threshold <= 0 {
		threshold = DefaultBackgroundThreshold
	}
	return &Manager{
		rows:      rows,
		sink:      sink,
		bus:       b,
		logger:    logger,
		threshold: threshold,
		now:       time.Now,
	}
}

// Current returns the open session handle, or nil when Closed.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	h := *m.current
	return &h
}

// HandleAuthenticated starts a session for a freshly authenticated user with
// a completed profile. A user mid-onboarding gets no session. No-op while a
// session is already open or while a background record is pending (the next
// foreground owns that start).
func (m *Manager) HandleAuthenticated(ctx context.Context, ident *backend.Identity, device backend.DeviceInfo) {
	if ident == nil || !ident.ProfileComplete {
		return
	}
	m.mu.Lock()
	if m.current != nil || m.starting || !m.backgroundedAt.IsZero() {
		m.mu.Unlock()
		return
	}
	m.starting = true
	m.mu.Unlock()
	m.start(ctx, ident.UserID, device, "authenticated")
}

// HandleForeground reacts to the app becoming visible. With a background
// record pending, the elapsed background duration is compared against the
// threshold; both branches start a fresh session — the product defines a
// continuation concept but does not differentiate it yet, and that symmetry
// is kept rather than guessed at. The branch taken is recorded as the start
// reason so the data can settle the question later.
func (m *Manager) HandleForeground(ctx context.Context, ident *backend.Identity, device backend.DeviceInfo) {
	if ident == nil || !ident.ProfileComplete {
		return
	}
	m.mu.Lock()
	if m.current != nil || m.starting {
		m.mu.Unlock()
		return
	}
	reason := "foreground"
	if !m.backgroundedAt.IsZero() {
		elapsed := m.now().Sub(m.backgroundedAt)
		if elapsed < m.threshold {
			reason = "resumed_within_threshold"
		} else {
			reason = "resumed_after_threshold"
		}
		m.logger.Info("returning from background",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", m.threshold),
			zap.String("reason", reason))
		m.backgroundedAt = time.Time{}
	}
	m.starting = true
	m.mu.Unlock()
	m.start(ctx, ident.UserID, device, reason)
}

// HandleBackground ends the open session with a best-effort beacon and
// records the background transition. No-op while Closed.
func (m *Manager) HandleBackground() {
	m.mu.Lock()
	h := m.current
	if h == nil {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.backgroundedAt = m.now()
	m.mu.Unlock()

	// Beacon transport: the request must not depend on this process staying
	// alive to await a response.
	m.rows.BeaconSessionEnd(h.SessionID)
	m.finishClose(h, "background")
}

// HandleLogout ends the open session, awaiting the backend write.
func (m *Manager) HandleLogout(ctx context.Context) {
	m.EndSession(ctx)
	m.mu.Lock()
	m.backgroundedAt = time.Time{}
	m.mu.Unlock()
}

// EndSession closes the open session. Idempotent: calling with no open
// session is a no-op and never errors.
func (m *Manager) EndSession(ctx context.Context) {
	m.mu.Lock()
	h := m.current
	if h == nil {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	if err := m.rows.EndSession(ctx, h.SessionID); err != nil {
		m.logger.Warn("end session failed", zap.Error(err), zap.String("session_id", h.SessionID))
	}
	m.finishClose(h, "explicit")
}

// start performs the backend write outside the mutex, so a background or
// logout arriving mid-start never queues behind the network call. The
// starting flag set by the caller keeps a second start out; it is cleared
// here. A failed write is absorbed: the manager stays Closed and callers
// tolerate the missing session indefinitely.
func (m *Manager) start(ctx context.Context, userID string, device backend.DeviceInfo, reason string) {
	sessionID, err := m.rows.StartSession(ctx, userID, device)

	m.mu.Lock()
	m.starting = false
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("start session failed", zap.Error(err), zap.String("user_id", userID))
		return
	}
	m.current = &Handle{
		SessionID: sessionID,
		UserID:    userID,
		StartedAt: m.now(),
	}
	m.mu.Unlock()

	m.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("reason", reason))
	if m.sink != nil {
		m.sink.SessionStart(userID, sessionID, device)
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.started",
			Timestamp: m.now(),
			Payload:   map[string]string{"session_id": sessionID, "reason": reason},
		})
	}
}

// finishClose emits the end-of-session bookkeeping for a handle already
// detached from the manager.
func (m *Manager) finishClose(h *Handle, reason string) {
	duration := m.now().Sub(h.StartedAt)
	m.logger.Info("session ended",
		zap.String("session_id", h.SessionID),
		zap.Duration("duration", duration),
		zap.String("reason", reason))
	if m.sink != nil {
		m.sink.SessionEnd(h.UserID, h.SessionID, duration)
	}
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.ended",
			Timestamp: m.now(),
			Payload:   map[string]string{"session_id": h.SessionID, "reason": reason},
		})
	}
}
