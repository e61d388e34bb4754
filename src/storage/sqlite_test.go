package storage

import (
	"testing"
	"time"

	"riskwatch/src/logger"
	"riskwatch/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func newMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()

	cfg := &models.MConfig{}
	cfg.Storage.DBPath = ":memory:"

	store, err := NewSQLiteStore(cfg, logger.NewLogger("ERROR", "storage-test"))
	require.NoError(t, err)
	require.NoError(t, store.Initialize())
	t.Cleanup(func() { store.Close() })

	return store
}

// -----------------------------------------------------------------------------

func TestPositionsRoundTrip(t *testing.T) {
	store := newMemoryStore(t)

	require.NoError(t, store.SavePosition(models.MPosition{ClientID: "c1", Symbol: "AAPL", Quantity: 10}))
	require.NoError(t, store.SavePosition(models.MPosition{ClientID: "c1", Symbol: "MSFT", Quantity: 2.5}))
	require.NoError(t, store.SavePosition(models.MPosition{ClientID: "c2", Symbol: "AAPL", Quantity: 7}))

	positions, err := store.GetPositions("c1")
	require.NoError(t, err)
	assert.Len(t, positions, 2)

	// Re-saving the same (client, symbol) pair replaces the quantity.
	require.NoError(t, store.SavePosition(models.MPosition{ClientID: "c1", Symbol: "AAPL", Quantity: 12}))
	positions, err = store.GetPositions("c1")
	require.NoError(t, err)
	for _, p := range positions {
		if p.Symbol == "AAPL" {
			assert.Equal(t, 12.0, p.Quantity)
		}
	}
}

func TestGetPositionsUnknownClientIsEmpty(t *testing.T) {
	store := newMemoryStore(t)

	positions, err := store.GetPositions("nobody")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

// -----------------------------------------------------------------------------

func TestMarginAccountRoundTrip(t *testing.T) {
	store := newMemoryStore(t)

	account, err := store.GetMarginAccount("c1")
	require.NoError(t, err)
	assert.Nil(t, account, "missing account reads as nil, not as an error")

	require.NoError(t, store.SaveMarginAccount(models.MMarginAccount{ClientID: "c1", Loan: 1000}))

	account, err = store.GetMarginAccount("c1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, 1000.0, account.Loan)

	require.NoError(t, store.UpdateMarginRequirement("c1", 250))
	account, err = store.GetMarginAccount("c1")
	require.NoError(t, err)
	assert.Equal(t, 250.0, account.MarginRequirement)
}

// -----------------------------------------------------------------------------

func TestPriceCacheUpsertLastWins(t *testing.T) {
	store := newMemoryStore(t)

	_, found, err := store.GetCachedPrice("AAPL")
	require.NoError(t, err)
	assert.False(t, found)

	now := time.Now().UTC()
	require.NoError(t, store.UpsertCachedPrice("AAPL", 100, now))
	require.NoError(t, store.UpsertCachedPrice("AAPL", 101.5, now.Add(time.Second)))

	entry, found, err := store.GetCachedPrice("AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 101.5, entry.Price)
	assert.Equal(t, now.Add(time.Second).Unix(), entry.ObservedAt)
}

// -----------------------------------------------------------------------------

func TestChartPointsOrderedFromTimestamp(t *testing.T) {
	store := newMemoryStore(t)

	require.NoError(t, store.SaveChartPoints([]models.MChartPoint{
		{Symbol: "AAPL", Timestamp: 300, Price: 103},
		{Symbol: "AAPL", Timestamp: 100, Price: 101},
		{Symbol: "AAPL", Timestamp: 200, Price: 102},
		{Symbol: "MSFT", Timestamp: 150, Price: 400},
	}))

	points, err := store.GetChartPoints("AAPL", 150)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(200), points[0].Timestamp)
	assert.Equal(t, int64(300), points[1].Timestamp)

	// Re-inserting a (symbol, timestamp) pair overwrites the price.
	require.NoError(t, store.SaveChartPoints([]models.MChartPoint{
		{Symbol: "AAPL", Timestamp: 200, Price: 999},
	}))
	points, err = store.GetChartPoints("AAPL", 200)
	require.NoError(t, err)
	assert.Equal(t, 999.0, points[0].Price)
}
