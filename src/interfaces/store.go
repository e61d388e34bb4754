package interfaces

import (
	"time"

	"riskwatch/src/models"
)

// -----------------------------------------------------------------------------
// IStore defines the contract for the persistence collaborator. The core only
// ever issues get/put operations; the storage engine behind them is external.
// -----------------------------------------------------------------------------

type IStore interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// GetPositions returns all holdings of a client. Read-only within the core.
	GetPositions(clientID string) ([]models.MPosition, error)

	// -----------------------------------------------------------------------------

	// GetMarginAccount returns the client's loan record, or nil when absent.
	GetMarginAccount(clientID string) (*models.MMarginAccount, error)

	// -----------------------------------------------------------------------------

	// UpdateMarginRequirement writes back a freshly computed requirement.
	UpdateMarginRequirement(clientID string, value float64) error

	// -----------------------------------------------------------------------------

	// GetCachedPrice returns the cached price for a symbol; found is false
	// when the symbol has never been priced.
	GetCachedPrice(symbol string) (entry models.MPriceCacheEntry, found bool, err error)

	// -----------------------------------------------------------------------------

	// UpsertCachedPrice records a price observation. Last writer wins.
	UpsertCachedPrice(symbol string, price float64, observedAt time.Time) error

	// -----------------------------------------------------------------------------

	// SaveChartPoints appends price history points for the chart endpoint.
	SaveChartPoints(points []models.MChartPoint) error

	// -----------------------------------------------------------------------------

	// GetChartPoints returns stored history for a symbol from a timestamp on.
	GetChartPoints(symbol string, fromTs int64) ([]models.MChartPoint, error)

	// -----------------------------------------------------------------------------

	// SavePosition upserts a holding (seeding/admin path, not used by the core).
	SavePosition(p models.MPosition) error

	// -----------------------------------------------------------------------------

	// SaveMarginAccount upserts a loan record (seeding/admin path).
	SaveMarginAccount(a models.MMarginAccount) error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
