package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/backend"
	"github.com/remedygo/remedyd/internal/bus"
	"github.com/remedygo/remedyd/internal/status"
)

// DefaultDrainInterval is the periodic drain cadence.
const DefaultDrainInterval = 30 * time.Second

// Drainer flushes the offline event queue. A drain pass tries each queued
// entry at most once: delivered entries are deleted, failed ones are
// requeued for the next pass. The pass-level mutex plus row-per-entry
// storage means enqueues arriving mid-drain are never lost.
type Drainer struct {
	emitter  *Emitter
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
}

// NewDrainer creates an offline-queue drainer.
func NewDrainer(emitter *Emitter, machine *status.Machine, b *bus.Bus, interval time.Duration, logger *zap.Logger) *Drainer {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	return &Drainer{
		emitter:  emitter,
		machine:  machine,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start begins draining on connectivity recovery, on session start, and on a
// periodic ticker. Entries left in 'delivering' by a crashed previous run
// are requeued first so they stay eligible for retry.
func (d *Drainer) Start(ctx context.Context) {
	if n, err := d.emitter.db.RecoverDeliveringEvents(); err != nil {
		d.logger.Error("recover stranded queue entries", zap.Error(err))
	} else if n > 0 {
		d.logger.Info("requeued entries stranded by previous run", zap.Int64("entries", n))
	}

	ctx, d.cancel = context.WithCancel(ctx)
	connCh, unsubConn := d.bus.Subscribe(bus.NamespaceConnectivity, 64)
	sessCh, unsubSess := d.bus.Subscribe("session.started", 64)

	go func() {
		defer unsubConn()
		defer unsubSess()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case evt := <-connCh:
				if change, ok := evt.Payload.(status.Change); ok && change.To == status.Live {
					d.drainLogged(ctx)
				}
			case <-sessCh:
				d.drainLogged(ctx)
			case <-ticker.C:
				if d.machine.Online() {
					d.drainLogged(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the drain loop.
func (d *Drainer) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Drainer) drainLogged(ctx context.Context) {
	delivered, failed, err := d.Drain(ctx)
	if err != nil {
		d.logger.Error("queue drain failed", zap.Error(err))
		return
	}
	if delivered > 0 || failed > 0 {
		d.logger.Info("queue drained", zap.Int("delivered", delivered), zap.Int("failed", failed))
	}
}

// Drain runs one pass over the queue. Safe to call concurrently with new
// enqueues: entries are individual rows, and an entry is marked delivering
// before its remote attempt so an overlapping pass skips it.
func (d *Drainer) Drain(ctx context.Context) (delivered, failed int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending, err := d.emitter.db.PendingEvents()
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range pending {
		if err := d.emitter.db.MarkEventDelivering(entry.ID); err != nil {
			d.logger.Error("mark delivering failed", zap.Error(err), zap.String("event_id", entry.EventID))
			continue
		}
		rec := backend.EventRecord{
			EventID:    entry.EventID,
			Kind:       entry.Kind,
			UserID:     entry.UserID,
			Payload:    json.RawMessage(entry.Payload),
			OccurredAt: entry.OccurredAt,
		}
		if insErr := d.emitter.rows.InsertEvent(ctx, rec); insErr != nil {
			failed++
			if reqErr := d.emitter.db.RequeueEvent(entry.ID, insErr.Error()); reqErr != nil {
				d.logger.Error("requeue failed", zap.Error(reqErr), zap.String("event_id", entry.EventID))
			}
			continue
		}
		delivered++
		if delErr := d.emitter.db.DeleteQueueEntry(entry.ID); delErr != nil {
			// The event was delivered; the stale row will retry and the
			// backend's idempotency key makes that retry harmless.
			d.logger.Warn("delete delivered entry failed", zap.Error(delErr), zap.String("event_id", entry.EventID))
			_ = d.emitter.db.RequeueEvent(entry.ID, "delivered but not dequeued")
		}
	}

	if d.bus != nil && (delivered > 0 || failed > 0) {
		d.bus.Publish(bus.Event{
			Kind:      "analytics.drained",
			Timestamp: time.Now(),
			Payload:   map[string]int{"delivered": delivered, "failed": failed},
		})
	}
	return delivered, failed, nil
}
