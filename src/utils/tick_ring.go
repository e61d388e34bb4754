package utils

import (
	"riskwatch/src/models"
)

// -----------------------------------------------------------------------------
// TickRing is a fixed-size circular buffer of chart points.
// True ring buffer - no resizing on append!
// -----------------------------------------------------------------------------

type TickRing struct {
	data     []models.MChartPoint
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewTickRing creates a new buffer with fixed capacity
func NewTickRing(capacity int) *TickRing {
	if capacity <= 0 {
		capacity = DefaultTapePoints
	}

	return &TickRing{
		data:     make([]models.MChartPoint, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append adds one point, overwriting the oldest once full
func (r *TickRing) Append(point models.MChartPoint) {
	r.data[r.index] = point
	r.index = (r.index + 1) % r.capacity

	if r.size < r.capacity {
		r.size++
	}
}

// -----------------------------------------------------------------------------

// Latest returns the n newest points in chronological order
func (r *TickRing) Latest(n int) []models.MChartPoint {
	if r.size == 0 || n <= 0 {
		return []models.MChartPoint{}
	}

	count := n
	if count > r.size {
		count = r.size
	}

	result := make([]models.MChartPoint, count)
	startIdx := (r.index - count + r.capacity) % r.capacity

	for i := 0; i < count; i++ {
		result[i] = r.data[(startIdx+i)%r.capacity]
	}
	return result
}
