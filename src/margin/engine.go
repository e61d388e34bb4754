package margin

import (
	"context"
	"fmt"
	"time"

	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/models"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Collaborator contracts
// -----------------------------------------------------------------------------

// IBackfiller resolves prices missing from the cache.
type IBackfiller interface {
	Backfill(ctx context.Context, symbols []string) map[string]float64
}

// IAffectedLister maps a ticked symbol to the client ids it concerns.
type IAffectedLister interface {
	AffectedClients(symbol string) []string
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine recomputes a client's margin status from positions, loan and the
// price cache, backfilling cold symbols through the paced scheduler.
type Engine struct {
	Store      interfaces.IStore
	Backfiller IBackfiller
	Clients    IAffectedLister
	Notifier   interfaces.IMarginNotifier
	Logger     *logger.Logger

	maintenanceRate decimal.Decimal
}

// -----------------------------------------------------------------------------

func NewEngine(store interfaces.IStore, bf IBackfiller, clients IAffectedLister, notifier interfaces.IMarginNotifier, maintenanceRate float64, l *logger.Logger) *Engine {
	return &Engine{
		Store:           store,
		Backfiller:      bf,
		Clients:         clients,
		Notifier:        notifier,
		Logger:          l,
		maintenanceRate: decimal.NewFromFloat(maintenanceRate),
	}
}

// -----------------------------------------------------------------------------
// Computation
// -----------------------------------------------------------------------------

// ComputeMarginStatus produces a fresh margin snapshot for the client.
// Persistence read failures are fatal to this single call and propagated;
// unresolved prices only exclude their positions from the portfolio value.
func (e *Engine) ComputeMarginStatus(ctx context.Context, clientID string) (models.MMarginStatus, error) {
	positions, err := e.Store.GetPositions(clientID)
	if err != nil {
		return models.MMarginStatus{}, fmt.Errorf("positions fetch for %s failed: %w", clientID, err)
	}

	account, err := e.Store.GetMarginAccount(clientID)
	if err != nil {
		return models.MMarginStatus{}, fmt.Errorf("margin account fetch for %s failed: %w", clientID, err)
	}

	loan := decimal.Zero
	if account != nil {
		loan = decimal.NewFromFloat(account.Loan)
	}

	var status models.MMarginStatus
	if len(positions) == 0 {
		status = e.emptyPortfolioStatus(clientID, loan)
	} else {
		status = e.pricedPortfolioStatus(ctx, clientID, positions, loan)
	}
	status.Timestamp = time.Now().UTC().Unix()

	if account != nil {
		if err := e.Store.UpdateMarginRequirement(clientID, status.MarginRequirement); err != nil {
			e.Logger.Error("Failed to write back margin requirement for %s: %v", clientID, err)
		}
	}

	return status, nil
}

// -----------------------------------------------------------------------------

// emptyPortfolioStatus covers the no-positions case: the full loan is the
// shortfall and a margin call exists whenever a loan does.
func (e *Engine) emptyPortfolioStatus(clientID string, loan decimal.Decimal) models.MMarginStatus {
	netEquity := loan.Neg()

	shortfall := netEquity.Neg()
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}

	return models.MMarginStatus{
		ClientID:          clientID,
		Positions:         []models.MPricedPosition{},
		PortfolioValue:    0,
		LoanAmount:        loan.InexactFloat64(),
		NetEquity:         netEquity.InexactFloat64(),
		MarginRequirement: 0,
		MarginShortfall:   shortfall.InexactFloat64(),
		MarginCall:        netEquity.IsNegative() && loan.IsPositive(),
	}
}

// -----------------------------------------------------------------------------

func (e *Engine) pricedPortfolioStatus(ctx context.Context, clientID string, positions []models.MPosition, loan decimal.Decimal) models.MMarginStatus {
	prices := e.resolvePrices(ctx, positions)

	priced := make([]models.MPricedPosition, 0, len(positions))
	portfolioValue := decimal.Zero

	for _, position := range positions {
		price, ok := prices[position.Symbol]
		if !ok {
			// No resolvable price: the position is excluded from the
			// portfolio value, not silently valued at zero.
			e.Logger.Warning("No price for %s, excluding position from %s's portfolio value", position.Symbol, clientID)
			continue
		}

		value := decimal.NewFromFloat(position.Quantity).Mul(decimal.NewFromFloat(price))
		portfolioValue = portfolioValue.Add(value)

		priced = append(priced, models.MPricedPosition{
			Symbol:   position.Symbol,
			Quantity: position.Quantity,
			Price:    price,
			Value:    value.InexactFloat64(),
		})
	}

	netEquity := portfolioValue.Sub(loan)
	requirement := e.maintenanceRate.Mul(portfolioValue)
	shortfall := requirement.Sub(netEquity) // negative means surplus

	return models.MMarginStatus{
		ClientID:          clientID,
		Positions:         priced,
		PortfolioValue:    portfolioValue.InexactFloat64(),
		LoanAmount:        loan.InexactFloat64(),
		NetEquity:         netEquity.InexactFloat64(),
		MarginRequirement: requirement.InexactFloat64(),
		MarginShortfall:   shortfall.InexactFloat64(),
		MarginCall:        shortfall.IsPositive(),
	}
}

// -----------------------------------------------------------------------------

// resolvePrices reads held symbols from the price cache and sends the misses
// through the backfill scheduler.
func (e *Engine) resolvePrices(ctx context.Context, positions []models.MPosition) map[string]float64 {
	prices := make(map[string]float64, len(positions))
	seen := make(map[string]struct{}, len(positions))
	var missing []string

	for _, position := range positions {
		if _, done := seen[position.Symbol]; done {
			continue
		}
		seen[position.Symbol] = struct{}{}

		entry, found, err := e.Store.GetCachedPrice(position.Symbol)
		if err != nil {
			e.Logger.Warning("Price cache read for %s failed: %v", position.Symbol, err)
		}
		if err == nil && found {
			prices[position.Symbol] = entry.Price
			continue
		}

		missing = append(missing, position.Symbol)
	}

	if len(missing) > 0 {
		for symbol, price := range e.Backfiller.Backfill(ctx, missing) {
			prices[symbol] = price
		}
	}

	return prices
}

// -----------------------------------------------------------------------------
// Tick trigger
// -----------------------------------------------------------------------------

// HandleTick recomputes margin for every identified client subscribed to the
// ticked symbol, at most once per client id, concurrently across clients.
// Results go out through the notifier; a symbol nobody subscribes to is a
// no-op.
func (e *Engine) HandleTick(ctx context.Context, symbol string) {
	for _, clientID := range e.Clients.AffectedClients(symbol) {
		go func(clientID string) {
			status, err := e.ComputeMarginStatus(ctx, clientID)
			if err != nil {
				e.Logger.Error("Tick-driven margin recompute for %s failed: %v", clientID, err)
				return
			}
			e.Notifier.PushMarginUpdate(clientID, status)
		}(clientID)
	}
}
