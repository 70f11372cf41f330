package analytics

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/bus"
	"github.com/remedygo/remedyd/internal/status"
	"github.com/remedygo/remedyd/internal/store"
)

// Inserter is the backend surface the emitter needs.
type Inserter interface {
	InsertEvent(ctx context.Context, e backend.EventRecord) error
}

// Emitter delivers analytics events to the backend, falling back to the
// durable offline queue. Emission never fails from the caller's point of
// view: every error is absorbed, logged and queued.
type Emitter struct {
	rows    Inserter
	db      *store.DB
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewEmitter creates an analytics emitter.
func NewEmitter(rows Inserter, db *store.DB, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Emitter {
	return &Emitter{
		rows:    rows,
		db:      db,
		machine: machine,
		bus:     b,
		logger:  logger,
	}
}

// Emit attempts remote delivery of one event, queueing on any failure.
// With the device offline the remote attempt is skipped entirely.
func (e *Emitter) Emit(ctx context.Context, userID string, p Payload) {
	evt := New(userID, p)
	body, err := json.Marshal(p)
	if err != nil {
		e.logger.Error("marshal event payload", zap.Error(err), zap.String("kind", string(p.Kind())))
		return
	}
	rec := backend.EventRecord{
		EventID:    evt.ID,
		Kind:       string(p.Kind()),
		UserID:     userID,
		Payload:    body,
		OccurredAt: evt.OccurredAt.UnixMilli(),
	}

	if !e.machine.Online() {
		e.enqueue(rec)
		return
	}
	if err := e.rows.InsertEvent(ctx, rec); err != nil {
		e.logger.Warn("event delivery failed, queueing", zap.Error(err), zap.String("kind", rec.Kind))
		e.enqueue(rec)
	}
}

func (e *Emitter) enqueue(rec backend.EventRecord) {
	entry := &store.QueueEntry{
		EventID:    rec.EventID,
		Kind:       rec.Kind,
		UserID:     rec.UserID,
		Payload:    string(rec.Payload),
		OccurredAt: rec.OccurredAt,
	}
	if err := e.db.EnqueueEvent(entry); err != nil {
		// Last resort: the event is lost. Telemetry loss is tolerated by
		// design, never surfaced to the user.
		e.logger.Error("enqueue event failed", zap.Error(err), zap.String("kind", rec.Kind))
		return
	}
	if e.bus != nil {
		e.bus.Publish(bus.Event{
			Kind:      "analytics.queued",
			Timestamp: time.Now(),
			Payload:   map[string]string{"event_id": rec.EventID, "kind": rec.Kind},
		})
	}
}

// emitDetached runs an emission off the caller's goroutine. Used by the
// typed helpers below, which are called from lifecycle paths that must not
// block on network writes.
func (e *Emitter) emitDetached(userID string, p Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		e.Emit(ctx, userID, p)
	}()
}

// SessionStart implements session.EventSink.
func (e *Emitter) SessionStart(userID, sessionID string, device backend.DeviceInfo) {
	e.emitDetached(userID, SessionStartPayload{
		SessionID: sessionID,
		Platform:  device.Platform,
		UserAgent: device.UserAgent,
		Viewport:  device.Viewport,
	})
}

// SessionEnd implements session.EventSink.
func (e *Emitter) SessionEnd(userID, sessionID string, duration time.Duration) {
	e.emitDetached(userID, SessionEndPayload{
		SessionID:  sessionID,
		DurationMs: duration.Milliseconds(),
	})
}

// ScreenView implements tracker.Sink.
func (e *Emitter) ScreenView(userID, screen, path string) {
	e.emitDetached(userID, ScreenViewPayload{Screen: screen, Path: path})
}

// AIQuery implements assist.Sink.
func (e *Emitter) AIQuery(userID, query string, answered bool, latency time.Duration) {
	e.emitDetached(userID, AIQueryPayload{
		Query:     query,
		Answered:  answered,
		LatencyMs: latency.Milliseconds(),
	})
}
