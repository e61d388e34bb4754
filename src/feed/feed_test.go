package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"riskwatch/src/config"
	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/models"
	"riskwatch/src/mux"
	"riskwatch/src/provider"
	"riskwatch/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Scripted stream connection
// -----------------------------------------------------------------------------

type scriptStep struct {
	event models.MProviderEvent
	err   error
}

type scriptedConn struct {
	mu         sync.Mutex
	script     []scriptStep
	next       int
	heartbeats int
	closed     bool
}

func (c *scriptedConn) ReadEvent() (models.MProviderEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next >= len(c.script) {
		return models.MProviderEvent{}, errors.New("connection closed")
	}
	step := c.script[c.next]
	c.next++
	return step.event, step.err
}

func (c *scriptedConn) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeats++
	return nil
}

func (c *scriptedConn) Subscribe([]string) error   { return nil }
func (c *scriptedConn) Unsubscribe([]string) error { return nil }

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptedConn) heartbeatCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeats
}

// -----------------------------------------------------------------------------
// Recording collaborators
// -----------------------------------------------------------------------------

type recordingStore struct {
	mu     sync.Mutex
	cached map[string]float64
	points []models.MChartPoint
}

func (s *recordingStore) Initialize() error { return nil }
func (s *recordingStore) Close() error      { return nil }

func (s *recordingStore) UpsertCachedPrice(symbol string, price float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		s.cached = make(map[string]float64)
	}
	s.cached[symbol] = price
	return nil
}

func (s *recordingStore) SaveChartPoints(points []models.MChartPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, points...)
	return nil
}

func (s *recordingStore) GetCachedPrice(string) (models.MPriceCacheEntry, bool, error) {
	return models.MPriceCacheEntry{}, false, nil
}
func (s *recordingStore) GetPositions(string) ([]models.MPosition, error)         { return nil, nil }
func (s *recordingStore) GetMarginAccount(string) (*models.MMarginAccount, error) { return nil, nil }
func (s *recordingStore) UpdateMarginRequirement(string, float64) error           { return nil }
func (s *recordingStore) GetChartPoints(string, int64) ([]models.MChartPoint, error) {
	return nil, nil
}
func (s *recordingStore) SavePosition(models.MPosition) error           { return nil }
func (s *recordingStore) SaveMarginAccount(models.MMarginAccount) error { return nil }

// -----------------------------------------------------------------------------

type recordingRouter struct {
	mu        sync.Mutex
	broadcast []string
}

func (r *recordingRouter) BroadcastPrice(symbol string, _ float64, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, symbol)
}

type recordingTicks struct {
	mu      sync.Mutex
	symbols []string
}

func (h *recordingTicks) HandleTick(_ context.Context, symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.symbols = append(h.symbols, symbol)
}

// -----------------------------------------------------------------------------

type flakyProvider struct {
	mu    sync.Mutex
	dials int
	conns []*scriptedConn
}

func (p *flakyProvider) FetchPrice(context.Context, string) (float64, error) {
	return 0, errors.New("not used")
}

func (p *flakyProvider) DialStream(context.Context) (interfaces.IStreamConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if len(p.conns) == 0 {
		return nil, fmt.Errorf("dial %d refused", p.dials)
	}
	conn := p.conns[0]
	p.conns = p.conns[1:]
	return conn, nil
}

// -----------------------------------------------------------------------------

func newTestFeed(p interfaces.IPriceProvider, store *recordingStore, router *recordingRouter, ticks *recordingTicks) *UpstreamFeed {
	mc := &models.MConfig{}
	mc.Provider.ReconnectDelaySeconds = 1
	mc.Provider.KeepaliveIntervalSecond = 3600
	mc.Subscription.RotationIntervalSeconds = 3600

	l := logger.NewLogger("ERROR", "feed-test")
	cfg := &config.Config{MConfig: mc}
	f := NewUpstreamFeed(cfg, p, mux.NewMultiplexer(8, l), ticks, router, store, nil, l)
	f.Tape = utils.NewTickTape(16)
	return f
}

// -----------------------------------------------------------------------------
// Tests
// -----------------------------------------------------------------------------

func TestReadLoopDispatchesPriceEvents(t *testing.T) {
	conn := &scriptedConn{script: []scriptStep{
		{event: models.MProviderEvent{Event: "price", Symbol: "AAPL", Price: 187.43, Timestamp: 1700000000}},
	}}
	store := &recordingStore{}
	router := &recordingRouter{}
	ticks := &recordingTicks{}

	feed := newTestFeed(&flakyProvider{}, store, router, ticks)
	feed.readLoop(context.Background(), conn)

	assert.Equal(t, 187.43, store.cached["AAPL"])
	require.Len(t, store.points, 1)
	assert.Equal(t, int64(1700000000), store.points[0].Timestamp)
	assert.Equal(t, []string{"AAPL"}, router.broadcast)
	assert.Equal(t, []string{"AAPL"}, ticks.symbols)

	tape := feed.Tape.Latest("AAPL", 10)
	require.Len(t, tape, 1)
	assert.Equal(t, 187.43, tape[0].Price)
}

func TestReadLoopAnswersHeartbeats(t *testing.T) {
	conn := &scriptedConn{script: []scriptStep{
		{event: models.MProviderEvent{Event: "heartbeat"}},
		{event: models.MProviderEvent{Event: "heartbeat"}},
	}}

	feed := newTestFeed(&flakyProvider{}, &recordingStore{}, &recordingRouter{}, &recordingTicks{})
	feed.readLoop(context.Background(), conn)

	assert.Equal(t, 2, conn.heartbeatCount())
}

func TestReadLoopSkipsBadMessages(t *testing.T) {
	conn := &scriptedConn{script: []scriptStep{
		{err: fmt.Errorf("garbled frame: %w", provider.ErrBadMessage)},
		{event: models.MProviderEvent{Event: "price", Symbol: "AAPL", Price: 100, Timestamp: 1700000000}},
	}}
	router := &recordingRouter{}

	feed := newTestFeed(&flakyProvider{}, &recordingStore{}, router, &recordingTicks{})
	feed.readLoop(context.Background(), conn)

	// The undecodable frame was skipped, the session survived to the tick.
	assert.Equal(t, []string{"AAPL"}, router.broadcast)
}

func TestReadLoopEndsOnTransportError(t *testing.T) {
	conn := &scriptedConn{script: []scriptStep{
		{err: errors.New("broken pipe")},
		{event: models.MProviderEvent{Event: "price", Symbol: "AAPL", Price: 100}},
	}}
	router := &recordingRouter{}

	feed := newTestFeed(&flakyProvider{}, &recordingStore{}, router, &recordingTicks{})
	feed.readLoop(context.Background(), conn)

	assert.Empty(t, router.broadcast, "nothing after a transport failure is processed")
}

func TestRunRedialsAfterSessionLoss(t *testing.T) {
	first := &scriptedConn{script: []scriptStep{
		{event: models.MProviderEvent{Event: "price", Symbol: "AAPL", Price: 100, Timestamp: 1700000000}},
	}}
	second := &scriptedConn{script: []scriptStep{
		{event: models.MProviderEvent{Event: "price", Symbol: "MSFT", Price: 400, Timestamp: 1700000010}},
	}}
	p := &flakyProvider{conns: []*scriptedConn{first, second}}
	router := &recordingRouter{}

	feed := newTestFeed(p, &recordingStore{}, router, &recordingTicks{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		router.mu.Lock()
		defer router.mu.Unlock()
		return len(router.broadcast) >= 2
	}, 10*time.Second, 10*time.Millisecond, "second session never delivered")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}

	assert.True(t, first.closed)
	assert.Equal(t, StateDisconnected, feed.State())
}
