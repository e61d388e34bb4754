package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/provider"
)

// -----------------------------------------------------------------------------
// Scheduler
// -----------------------------------------------------------------------------

// Scheduler fetches prices missing from the cache in bounded, delay-paced
// batches. The inter-batch delay equals the provider's quota window, which is
// what keeps the total request rate under the per-minute ceiling. It is a
// deliberate throttle: no timeout wraps it and cold symbols simply take
// several minutes to resolve.
type Scheduler struct {
	Provider  interfaces.IPriceProvider
	Store     interfaces.IStore
	Logger    *logger.Logger
	BatchSize int
	Pacing    time.Duration

	// pause suspends between batches; replaced in tests.
	pause func(ctx context.Context, d time.Duration) bool
}

// -----------------------------------------------------------------------------

func NewScheduler(p interfaces.IPriceProvider, store interfaces.IStore, batchSize int, pacing time.Duration, l *logger.Logger) *Scheduler {
	return &Scheduler{
		Provider:  p,
		Store:     store,
		Logger:    l,
		BatchSize: batchSize,
		Pacing:    pacing,
		pause:     sleepCtx,
	}
}

// -----------------------------------------------------------------------------

// Backfill resolves prices for the given symbols, preserving input order when
// partitioning into batches. Failed symbols are logged and omitted from the
// result; they never fail the batch. Successes are upserted into the price
// cache before being returned.
func (s *Scheduler) Backfill(ctx context.Context, symbols []string) map[string]float64 {
	result := make(map[string]float64, len(symbols))

	for start := 0; start < len(symbols); start += s.BatchSize {
		end := start + s.BatchSize
		if end > len(symbols) {
			end = len(symbols)
		}

		s.fetchBatch(ctx, symbols[start:end], result)

		if end < len(symbols) {
			if !s.pause(ctx, s.Pacing) {
				s.Logger.Info("Backfill cancelled with %d of %d symbols resolved", len(result), len(symbols))
				return result
			}
		}
	}

	return result
}

// -----------------------------------------------------------------------------

// fetchBatch issues all lookups of one batch concurrently and waits for all
// of them to settle.
func (s *Scheduler) fetchBatch(ctx context.Context, batch []string, result map[string]float64) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range batch {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			price, err := s.Provider.FetchPrice(ctx, symbol)
			if err != nil {
				if errors.Is(err, provider.ErrRateLimited) {
					s.Logger.Warning("Backfill of %s rate-limited this cycle, skipping", symbol)
				} else {
					s.Logger.Warning("Backfill of %s failed: %v", symbol, err)
				}
				return
			}

			observedAt := time.Now().UTC()
			if err := s.Store.UpsertCachedPrice(symbol, price, observedAt); err != nil {
				s.Logger.Error("Failed to cache backfilled price for %s: %v", symbol, err)
			}

			mu.Lock()
			result[symbol] = price
			mu.Unlock()
		}(symbol)
	}

	wg.Wait()
}

// -----------------------------------------------------------------------------

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
