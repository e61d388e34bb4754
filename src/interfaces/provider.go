package interfaces

import (
	"context"

	"riskwatch/src/models"
)

// -----------------------------------------------------------------------------
// IPriceProvider is the external market-data provider: single-symbol REST
// lookups plus a streaming endpoint for batch quote subscriptions.
// -----------------------------------------------------------------------------

type IPriceProvider interface {

	// FetchPrice performs one paced REST price lookup. Returns
	// provider.ErrRateLimited when the provider signals quota exhaustion.
	FetchPrice(ctx context.Context, symbol string) (float64, error)

	// -----------------------------------------------------------------------------

	// DialStream opens a connection to the provider's streaming endpoint.
	DialStream(ctx context.Context) (IStreamConn, error)
}

// -----------------------------------------------------------------------------
// IStreamConn is one live streaming session with the provider.
// -----------------------------------------------------------------------------

type IStreamConn interface {
	ISubscriptionSink

	// ReadEvent blocks for the next event. A provider.ErrBadMessage error is
	// recoverable; any other error means the session is gone.
	ReadEvent() (models.MProviderEvent, error)

	// -----------------------------------------------------------------------------

	// Heartbeat sends the provider's keepalive message.
	Heartbeat() error

	// -----------------------------------------------------------------------------

	Close() error
}

// -----------------------------------------------------------------------------
// ISubscriptionSink receives the rotation deltas of the multiplexer.
// -----------------------------------------------------------------------------

type ISubscriptionSink interface {

	// Subscribe adds symbols to the live quote stream.
	Subscribe(symbols []string) error

	// -----------------------------------------------------------------------------

	// Unsubscribe removes symbols from the live quote stream.
	Unsubscribe(symbols []string) error
}
