package interfaces

import "riskwatch/src/models"

// -----------------------------------------------------------------------------
// IDownstream is one open connection to a dashboard client, as seen by the
// multiplexer and the broadcast router. The websocket plumbing lives behind it.
// -----------------------------------------------------------------------------

type IDownstream interface {

	// ID uniquely identifies the connection (not the client).
	ID() string

	// -----------------------------------------------------------------------------

	// Send enqueues a message without blocking. Returns false when the
	// connection is closed or its buffer is full; the caller skips it.
	Send(v interface{}) bool
}

// -----------------------------------------------------------------------------
// IMarginNotifier receives recomputed margin snapshots for fan-out.
// -----------------------------------------------------------------------------

type IMarginNotifier interface {

	// PushMarginUpdate delivers a snapshot to every identified connection of
	// the client. Best-effort per connection.
	PushMarginUpdate(clientID string, status models.MMarginStatus)
}
