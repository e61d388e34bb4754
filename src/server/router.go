package server

import (
	"encoding/json"
	"fmt"

	"riskwatch/src/interfaces"
	"riskwatch/src/models"
)

// -----------------------------------------------------------------------------
// Broadcast Router
// -----------------------------------------------------------------------------
// Fan-out of price ticks and margin updates to downstream connections. Sends
// are best-effort per connection: a dead or saturated connection is skipped,
// never aborting delivery to the others.
// -----------------------------------------------------------------------------

// BroadcastPrice notifies every live connection whose desired set contains
// the symbol.
func (s *Server) BroadcastPrice(symbol string, price float64, timestamp int64) {
	msg := models.MPriceUpdate{
		Type:      "priceUpdate",
		Symbol:    symbol,
		Price:     price,
		Timestamp: timestamp,
	}

	s.Mux.ForEachDesiring(symbol, func(conn interfaces.IDownstream) {
		if !conn.Send(msg) {
			s.Logger.Debug("Skipped price update to %s (connection gone or saturated)", conn.ID())
		}
	})
}

// -----------------------------------------------------------------------------

// PushMarginUpdate notifies every live, identified connection bound to the
// client. A result arriving after the client disconnected is simply dropped.
func (s *Server) PushMarginUpdate(clientID string, status models.MMarginStatus) {
	msg := models.MMarginUpdate{
		Type:          "marginUpdate",
		MMarginStatus: status,
	}

	s.Mux.ForEachClient(clientID, func(conn interfaces.IDownstream) {
		if !conn.Send(msg) {
			s.Logger.Debug("Skipped margin update to %s (connection gone or saturated)", conn.ID())
		}
	})
}

// -----------------------------------------------------------------------------
// Inbound decoding
// -----------------------------------------------------------------------------

func decodeCommand(message []byte) (models.MClientCommand, error) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		return cmd, err
	}
	if cmd.Type == "" {
		return cmd, fmt.Errorf("message missing type")
	}
	return cmd, nil
}
