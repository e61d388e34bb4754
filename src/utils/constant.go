package utils

import "math"

// -----------------------------------------------------------------------------

// Constants for the in-memory tick tape.
// The rotation tick runs every 2 minutes, so an active symbol receives about
// 30 prices per hour, or roughly 200 over a 6.5 hour trading session.
const (
	DefaultTapeRetentionDays = 3
	DefaultTapePoints        = 600
)

// -----------------------------------------------------------------------------

// TapePointsForDays sizes a per-symbol ring for the given retention.
// approx 200 points per day (covering 6.5h market hours)
func TapePointsForDays(days int) int {
	if days <= 0 {
		return DefaultTapePoints
	}
	return int(math.Ceil(float64(days) * 200))
}
