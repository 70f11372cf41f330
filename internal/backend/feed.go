package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/remedygo/remedyd/internal/bus"
	"github.com/remedygo/remedyd/internal/config"
	"github.com/remedygo/remedyd/internal/status"
)

// Tables the feed subscribes to. Typing broadcasts arrive on the same
// connection as a pseudo-table.
var feedTables = []string{"messages", "message_reactions", "chats", "chat_members", "typing"}

// Feed maintains the websocket subscription to the backend's row-level
// change feed. Every delta is published on the bus as "feed.<table>.<op>";
// the chat engine is the consumer. The feed also drives the connectivity
// state machine: a live socket means the device is online.
type Feed struct {
	url     string
	apiKey  string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewFeed creates a change-feed subscriber.
func NewFeed(cfg config.Backend, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Feed {
	return &Feed{
		url:     cfg.FeedURL,
		apiKey:  cfg.APIKey,
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// Start begins the connect/read/reconnect loop.
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	go f.run(ctx)
}

// Stop terminates the feed loop.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Feed) run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		_ = f.machine.Transition(status.Connecting)
		conn, err := f.dial(ctx)
		if err != nil {
			f.logger.Warn("feed dial failed", zap.Error(err))
			_ = f.machine.Transition(status.Offline)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			_ = f.machine.Transition(status.Reconnecting)
			continue
		}

		backoff = time.Second
		_ = f.machine.Transition(status.Live)
		f.logger.Info("feed connected", zap.Strings("tables", feedTables))

		err = f.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("feed disconnected", zap.Error(err))
		_ = f.machine.Transition(status.Reconnecting)
	}
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("apikey", f.apiKey)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	for _, table := range feedTables {
		sub := map[string]string{"action": "subscribe", "table": table}
		if err := conn.WriteJSON(sub); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscribe %s: %w", table, err)
		}
	}
	return conn, nil
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		delta, err := ParseDelta(data)
		if err != nil {
			f.logger.Warn("feed frame dropped", zap.Error(err))
			continue
		}
		f.bus.Publish(bus.Event{
			Kind:      DeltaKind(delta),
			Timestamp: time.Now(),
			Payload:   delta,
		})
	}
}

// ParseDelta decodes one feed frame into a Delta.
func ParseDelta(data []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(data, &d); err != nil {
		return Delta{}, fmt.Errorf("decode delta: %w", err)
	}
	if d.Table == "" || d.Op == "" {
		return Delta{}, fmt.Errorf("delta missing table or op: %s", string(data))
	}
	return d, nil
}

// DeltaKind maps a delta to its bus event kind, e.g. "feed.messages.insert".
func DeltaKind(d Delta) string {
	return bus.NamespaceFeed + d.Table + "." + d.Op
}
