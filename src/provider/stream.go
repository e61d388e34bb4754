package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Streaming session
// -----------------------------------------------------------------------------

// DialStream opens a websocket session against the provider's quote stream.
func (c *Client) DialStream(ctx context.Context) (interfaces.IStreamConn, error) {
	streamURL, err := url.Parse(c.Config.Provider.StreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider stream url: %w", err)
	}
	q := streamURL.Query()
	q.Set("apikey", c.apiKey)
	streamURL.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("stream dial failed: %w", err)
	}

	return &StreamConn{conn: conn, logger: c.Logger}, nil
}

// -----------------------------------------------------------------------------

// StreamConn wraps one provider websocket session. The rotation loop, the
// keepalive ticker and the read loop's heartbeat reply all write control
// frames; the websocket allows a single writer, so writeMu serializes them.
type StreamConn struct {
	conn    *websocket.Conn
	logger  *logger.Logger
	writeMu sync.Mutex
}

// The provider control protocol: actions carry a comma-separated symbol list.
type controlMessage struct {
	Action string         `json:"action"`
	Params *controlParams `json:"params,omitempty"`
}

type controlParams struct {
	Symbols string `json:"symbols"`
}

// -----------------------------------------------------------------------------

func (s *StreamConn) Subscribe(symbols []string) error {
	return s.writeControl(controlMessage{
		Action: "subscribe",
		Params: &controlParams{Symbols: strings.Join(symbols, ",")},
	})
}

// -----------------------------------------------------------------------------

func (s *StreamConn) Unsubscribe(symbols []string) error {
	return s.writeControl(controlMessage{
		Action: "unsubscribe",
		Params: &controlParams{Symbols: strings.Join(symbols, ",")},
	})
}

// -----------------------------------------------------------------------------

func (s *StreamConn) Heartbeat() error {
	return s.writeControl(controlMessage{Action: "heartbeat"})
}

// -----------------------------------------------------------------------------

func (s *StreamConn) writeControl(msg controlMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// -----------------------------------------------------------------------------

// ReadEvent blocks for the next stream event. Undecodable payloads yield
// ErrBadMessage and leave the session open; transport errors are terminal.
func (s *StreamConn) ReadEvent() (models.MProviderEvent, error) {
	_, payload, err := s.conn.ReadMessage()
	if err != nil {
		return models.MProviderEvent{}, err
	}

	var event models.MProviderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return models.MProviderEvent{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return event, nil
}

// -----------------------------------------------------------------------------

func (s *StreamConn) Close() error {
	return s.conn.Close()
}
