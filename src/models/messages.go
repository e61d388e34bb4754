package models

// -----------------------------------------------------------------------------
// Downstream client messages
// -----------------------------------------------------------------------------

// MClientCommand is the envelope for inbound messages from a dashboard client.
type MClientCommand struct {
	Type     string   `json:"type"` // "register" or "subscribe"
	ClientID string   `json:"clientId"`
	Symbols  []string `json:"symbols"`
}

// MPriceUpdate is pushed to every connection desiring the symbol.
type MPriceUpdate struct {
	Type      string  `json:"type"` // "priceUpdate"
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// MMarginUpdate is pushed to every identified connection of the client.
type MMarginUpdate struct {
	Type string `json:"type"` // "marginUpdate"
	MMarginStatus
}
