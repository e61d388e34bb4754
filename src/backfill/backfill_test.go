package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/models"
	"riskwatch/src/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeProvider struct {
	mu      sync.Mutex
	prices  map[string]float64
	failing map[string]error
	calls   []string
}

func (p *fakeProvider) FetchPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	p.calls = append(p.calls, symbol)
	p.mu.Unlock()

	if err, bad := p.failing[symbol]; bad {
		return 0, err
	}
	price, ok := p.prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return price, nil
}

func (p *fakeProvider) DialStream(context.Context) (interfaces.IStreamConn, error) {
	return nil, errors.New("not used")
}

// -----------------------------------------------------------------------------

type cacheOnlyStore struct {
	mu     sync.Mutex
	cached map[string]float64
}

func (s *cacheOnlyStore) Initialize() error { return nil }
func (s *cacheOnlyStore) Close() error      { return nil }

func (s *cacheOnlyStore) UpsertCachedPrice(symbol string, price float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		s.cached = make(map[string]float64)
	}
	s.cached[symbol] = price
	return nil
}

func (s *cacheOnlyStore) GetCachedPrice(string) (models.MPriceCacheEntry, bool, error) {
	return models.MPriceCacheEntry{}, false, nil
}

func (s *cacheOnlyStore) GetPositions(string) ([]models.MPosition, error)       { return nil, nil }
func (s *cacheOnlyStore) GetMarginAccount(string) (*models.MMarginAccount, error) { return nil, nil }
func (s *cacheOnlyStore) UpdateMarginRequirement(string, float64) error         { return nil }
func (s *cacheOnlyStore) SaveChartPoints([]models.MChartPoint) error            { return nil }
func (s *cacheOnlyStore) GetChartPoints(string, int64) ([]models.MChartPoint, error) {
	return nil, nil
}
func (s *cacheOnlyStore) SavePosition(models.MPosition) error           { return nil }
func (s *cacheOnlyStore) SaveMarginAccount(models.MMarginAccount) error { return nil }

// -----------------------------------------------------------------------------

func newTestScheduler(p *fakeProvider, store *cacheOnlyStore, batchSize int) (*Scheduler, *int) {
	s := NewScheduler(p, store, batchSize, time.Minute, logger.NewLogger("ERROR", "backfill-test"))

	pauses := 0
	s.pause = func(context.Context, time.Duration) bool {
		pauses++
		return true
	}
	return s, &pauses
}

func symbolList(n int) ([]string, map[string]float64) {
	symbols := make([]string, n)
	prices := make(map[string]float64, n)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("SYM%d", i)
		prices[symbols[i]] = float64(100 + i)
	}
	return symbols, prices
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestBackfillSplitsIntoPacedBatches(t *testing.T) {
	symbols, prices := symbolList(10)
	p := &fakeProvider{prices: prices}
	store := &cacheOnlyStore{}

	s, pauses := newTestScheduler(p, store, 8)
	result := s.Backfill(context.Background(), symbols)

	require.Len(t, result, 10)
	assert.Equal(t, 1, *pauses, "two batches need exactly one pacing delay")
	assert.Len(t, p.calls, 10)

	// Successes land in the cache as well as the result.
	for symbol, price := range prices {
		assert.Equal(t, price, store.cached[symbol])
		assert.Equal(t, price, result[symbol])
	}
}

func TestBackfillSingleBatchNeverPauses(t *testing.T) {
	symbols, prices := symbolList(8)
	p := &fakeProvider{prices: prices}

	s, pauses := newTestScheduler(p, &cacheOnlyStore{}, 8)
	result := s.Backfill(context.Background(), symbols)

	assert.Len(t, result, 8)
	assert.Zero(t, *pauses)
}

func TestBackfillOmitsFailedSymbols(t *testing.T) {
	p := &fakeProvider{
		prices: map[string]float64{"AAPL": 100},
		failing: map[string]error{
			"LIMITED": provider.ErrRateLimited,
			"BROKEN":  errors.New("boom"),
		},
	}
	store := &cacheOnlyStore{}

	s, _ := newTestScheduler(p, store, 8)
	result := s.Backfill(context.Background(), []string{"AAPL", "LIMITED", "BROKEN"})

	require.Len(t, result, 1)
	assert.Equal(t, 100.0, result["AAPL"])
	assert.NotContains(t, store.cached, "LIMITED")
	assert.NotContains(t, store.cached, "BROKEN")
}

func TestBackfillCancelledBetweenBatchesReturnsPartialResult(t *testing.T) {
	symbols, prices := symbolList(10)
	p := &fakeProvider{prices: prices}

	s := NewScheduler(p, &cacheOnlyStore{}, 8, time.Minute, logger.NewLogger("ERROR", "backfill-test"))
	s.pause = func(context.Context, time.Duration) bool { return false }

	result := s.Backfill(context.Background(), symbols)

	assert.Len(t, result, 8, "only the first batch resolves when pacing is cut short")
	assert.Len(t, p.calls, 8)
}
