package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"riskwatch/src/config"
	"riskwatch/src/logger"
	"riskwatch/src/models"
	"riskwatch/src/mux"
	"riskwatch/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func newHTTPServer(t *testing.T) *Server {
	t.Helper()

	l := logger.NewLogger("ERROR", "server-test")
	cfg := &config.Config{MConfig: &models.MConfig{LogLevel: "ERROR"}}
	return NewServer(cfg, mux.NewMultiplexer(8, l), nil, l)
}

// -----------------------------------------------------------------------------

func TestHealthReportsTapeSymbols(t *testing.T) {
	s := newHTTPServer(t)
	s.Tape = utils.NewTickTape(8)
	s.Tape.Record(models.MChartPoint{Symbol: "AAPL", Timestamp: 1, Price: 100})
	s.Tape.Record(models.MChartPoint{Symbol: "MSFT", Timestamp: 2, Price: 400})

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, 200, w.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, float64(2), payload["tape_symbols"])
}

func TestHealthWithoutTapeOmitsTapeCount(t *testing.T) {
	s := newHTTPServer(t)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	require.Equal(t, 200, w.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.NotContains(t, payload, "tape_symbols")
}
