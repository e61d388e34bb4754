package mux

import (
	"context"
	"time"

	"riskwatch/src/interfaces"
	"riskwatch/src/utils"
)

// -----------------------------------------------------------------------------
// Rotation scheduler
// -----------------------------------------------------------------------------

// RunRotation drives periodic rotation against the given sink until the
// context ends. One out-of-band pass runs immediately at start; the feed
// restarts this loop after every reconnect with a fresh sink.
func (m *Multiplexer) RunRotation(ctx context.Context, sink interfaces.ISubscriptionSink, interval time.Duration, gate *utils.MarketHours) {
	m.rotateGated(sink, gate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.rotateGated(sink, gate)
		}
	}
}

// -----------------------------------------------------------------------------

// rotateGated skips the pass while every demanded symbol's market is closed,
// keeping the quota free of dead subscriptions. An empty demand set still
// rotates so a lingering active set is unsubscribed.
func (m *Multiplexer) rotateGated(sink interfaces.ISubscriptionSink, gate *utils.MarketHours) {
	if gate != nil {
		symbols := m.DemandedSymbols()
		if len(symbols) > 0 && !gate.AnyOpen(symbols) {
			m.Logger.Debug("All markets closed for %d demanded symbols, skipping rotation", len(symbols))
			return
		}
	}
	m.Rotate(sink)
}
