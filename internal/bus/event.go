package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Well-known kind namespaces. Subscribers filter by prefix, so a
// subscription to "feed." receives every change-feed delta regardless
// of table.
const (
	// feed.<table>.<op> — raw change-feed deltas from the backend.
	NamespaceFeed = "feed."
	// chat.* — local chat state changes (message.pending, message.sent,
	// message.failed, message.upserted, reaction.toggled, typing.changed).
	NamespaceChat = "chat."
	// session.* — session lifecycle (started, ended).
	NamespaceSession = "session."
	// analytics.* — emitter and drainer activity (queued, drained).
	NamespaceAnalytics = "analytics."
	// connectivity.* — status machine transitions.
	NamespaceConnectivity = "connectivity."
)
