package utils

import (
	"testing"

	"riskwatch/src/logger"

	"github.com/stretchr/testify/assert"
)

func TestAnyOpenEmptyListIsClosed(t *testing.T) {
	mh := NewMarketHours(logger.NewLogger("ERROR", "hours-test"))
	assert.False(t, mh.AnyOpen(nil))
}

func TestAnyOpenCryptoAlwaysOpen(t *testing.T) {
	mh := NewMarketHours(logger.NewLogger("ERROR", "hours-test"))
	assert.True(t, mh.AnyOpen([]string{"BTC/USD"}))
	assert.True(t, mh.AnyOpen([]string{"AAPL", "ETH/USD"}))
}
