package utils

import (
	"sync"

	"riskwatch/src/models"
)

// -----------------------------------------------------------------------------
// TickTape keeps the most recent ticks per symbol in memory, so the dashboard
// can show a live tape without a storage round trip. Bounded per symbol by a
// fixed ring; old ticks fall off the back.
// -----------------------------------------------------------------------------

type TickTape struct {
	rings    map[string]*TickRing
	capacity int
	mu       sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewTickTape(pointsPerSymbol int) *TickTape {
	if pointsPerSymbol <= 0 {
		pointsPerSymbol = DefaultTapePoints
	}

	return &TickTape{
		rings:    make(map[string]*TickRing),
		capacity: pointsPerSymbol,
	}
}

// -----------------------------------------------------------------------------

// Record appends one tick to the symbol's ring, creating it on first sight.
func (t *TickTape) Record(point models.MChartPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring, ok := t.rings[point.Symbol]
	if !ok {
		ring = NewTickRing(t.capacity)
		t.rings[point.Symbol] = ring
	}
	ring.Append(point)
}

// -----------------------------------------------------------------------------

// Latest returns the n newest ticks for the symbol in chronological order.
func (t *TickTape) Latest(symbol string, n int) []models.MChartPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ring, ok := t.rings[symbol]
	if !ok {
		return []models.MChartPoint{}
	}
	return ring.Latest(n)
}

// -----------------------------------------------------------------------------

// SymbolCount returns the number of symbols with buffered ticks. Surfaced on
// the health endpoint.
func (t *TickTape) SymbolCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rings)
}
