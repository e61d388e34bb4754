package models

// MPriceCacheEntry is the last observed price for a symbol.
// Last-writer-wins: both the live tick path and the backfill path upsert it.
type MPriceCacheEntry struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	ObservedAt int64   `json:"observed_at"`
}

// MChartPoint is one stored point of a symbol's price history.
type MChartPoint struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
}

// MProviderEvent is one decoded message from the provider's streaming endpoint.
type MProviderEvent struct {
	Event     string  `json:"event"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
	Status    string  `json:"status"`
}
