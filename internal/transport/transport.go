// Package transport defines the notification boundary between the
// coordination core and the outside world. The core fires grant/revoke/
// task/thread/sync notifications through the Transport interface and
// never waits for delivery confirmation: sends are fire-and-forget with
// at-most-once semantics. Adapters decide what delivery means — the
// in-memory adapter records and republishes on the event bus, the
// websocket hub fans frames out to connected clients.
package transport

import "context"

// Broadcast is the special recipient meaning "all participants".
const Broadcast = "broadcast"

// Transport delivers coordination notifications to participants.
// Implementations must be safe for concurrent use and must never block
// indefinitely: a slow or dead recipient is dropped, not awaited.
type Transport interface {
	// Send delivers a notification of the given type to the recipients.
	// A recipients slice containing Broadcast addresses all participants.
	// The returned error reports local failures only (e.g., adapter shut
	// down); remote delivery is not acknowledged.
	Send(ctx context.Context, eventType string, payload map[string]any, sender string, recipients []string) error
}

// IsBroadcast reports whether the recipient list addresses all participants.
func IsBroadcast(recipients []string) bool {
	for _, r := range recipients {
		if r == Broadcast {
			return true
		}
	}
	return false
}
