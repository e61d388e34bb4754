package utils

import (
	"strings"
	"sync"
	"time"

	"riskwatch/src/logger"
)

// MarketHours gates upstream activity on venue trading hours so the
// subscription quota is not spent rotating symbols of closed markets.
// Crypto pairs (containing a slash) trade around the clock and always
// count as open.
type MarketHours struct {
	Logger    *logger.Logger
	calendars map[string]*TradingCalendar
	mu        sync.Mutex
}

// -----------------------------------------------------------------------------

func NewMarketHours(l *logger.Logger) *MarketHours {
	return &MarketHours{
		Logger:    l,
		calendars: make(map[string]*TradingCalendar),
	}
}

// -----------------------------------------------------------------------------

// AnyOpen reports whether at least one of the given symbols is tradable now.
func (mh *MarketHours) AnyOpen(symbols []string) bool {
	now := time.Now().UTC()
	for _, symbol := range symbols {
		if mh.isOpen(symbol, now) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

func (mh *MarketHours) isOpen(symbol string, at time.Time) bool {
	if strings.Contains(symbol, "/") {
		return true
	}

	mh.mu.Lock()
	cal, ok := mh.calendars[symbol]
	if !ok {
		cal = CalendarForSymbol(symbol)
		mh.calendars[symbol] = cal
	}
	mh.mu.Unlock()

	return cal.IsOpenAt(at)
}
