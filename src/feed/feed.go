package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"riskwatch/src/config"
	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/models"
	"riskwatch/src/mux"
	"riskwatch/src/provider"
	"riskwatch/src/utils"
)

// -----------------------------------------------------------------------------
// State machine
// -----------------------------------------------------------------------------

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// -----------------------------------------------------------------------------
// Collaborator contracts
// -----------------------------------------------------------------------------

// ITickHandler consumes each incoming price tick.
type ITickHandler interface {
	HandleTick(ctx context.Context, symbol string)
}

// IPriceBroadcaster fans a tick out to the downstream connections.
type IPriceBroadcaster interface {
	BroadcastPrice(symbol string, price float64, timestamp int64)
}

// -----------------------------------------------------------------------------
// UpstreamFeed
// -----------------------------------------------------------------------------

// UpstreamFeed maintains the single persistent connection to the provider's
// streaming endpoint. It cycles Disconnected -> Connecting -> Connected ->
// Disconnected, restarting rotation from a fresh snapshot after every
// reconnect and answering provider heartbeats to keep the session alive.
type UpstreamFeed struct {
	Config   *config.Config
	Provider interfaces.IPriceProvider
	Mux      *mux.Multiplexer
	Engine   ITickHandler
	Router   IPriceBroadcaster
	Store    interfaces.IStore
	Gate     *utils.MarketHours
	Logger   *logger.Logger

	// Tape, when set, receives every incoming tick for the live tape view.
	Tape *utils.TickTape

	state       atomic.Int32
	lastTraffic atomic.Int64
}

// -----------------------------------------------------------------------------

func NewUpstreamFeed(cfg *config.Config, p interfaces.IPriceProvider, m *mux.Multiplexer, engine ITickHandler, router IPriceBroadcaster, store interfaces.IStore, gate *utils.MarketHours, l *logger.Logger) *UpstreamFeed {
	return &UpstreamFeed{
		Config:   cfg,
		Provider: p,
		Mux:      m,
		Engine:   engine,
		Router:   router,
		Store:    store,
		Gate:     gate,
		Logger:   l,
	}
}

// -----------------------------------------------------------------------------

// State reports the current connection state.
func (f *UpstreamFeed) State() State {
	return State(f.state.Load())
}

func (f *UpstreamFeed) setState(s State) {
	f.state.Store(int32(s))
}

// -----------------------------------------------------------------------------
// Connection loop
// -----------------------------------------------------------------------------

// Run dials the provider and serves the session until it closes, then redials
// after a fixed backoff. Only context cancellation ends the loop.
func (f *UpstreamFeed) Run(ctx context.Context) {
	for ctx.Err() == nil {
		f.setState(StateConnecting)
		f.Logger.Info("Connecting to upstream feed")

		conn, err := f.Provider.DialStream(ctx)
		if err != nil {
			f.setState(StateDisconnected)
			f.Logger.Warning("Upstream dial failed: %v, retrying in %v", err, f.Config.ReconnectDelay())
			if !sleepCtx(ctx, f.Config.ReconnectDelay()) {
				return
			}
			continue
		}

		f.setState(StateConnected)
		f.Logger.Info("Upstream feed connected")
		f.lastTraffic.Store(time.Now().UnixNano())

		// Rotation restarts from a fresh snapshot on every session.
		f.Mux.ResetRotation()

		sessionCtx, cancel := context.WithCancel(ctx)
		go f.Mux.RunRotation(sessionCtx, conn, f.Config.RotationInterval(), f.Gate)
		go f.keepalive(sessionCtx, conn)

		f.readLoop(sessionCtx, conn)

		cancel()
		_ = conn.Close()
		f.setState(StateDisconnected)
		f.Logger.Info("Upstream feed closed, reconnecting in %v", f.Config.ReconnectDelay())

		if !sleepCtx(ctx, f.Config.ReconnectDelay()) {
			return
		}
	}
}

// -----------------------------------------------------------------------------

// readLoop consumes the session until it dies. Undecodable payloads are
// logged and skipped; only a transport-level failure ends the session.
func (f *UpstreamFeed) readLoop(ctx context.Context, conn interfaces.IStreamConn) {
	for {
		event, err := conn.ReadEvent()
		if err != nil {
			if errors.Is(err, provider.ErrBadMessage) {
				f.Logger.Warning("Skipping bad upstream message: %v", err)
				continue
			}
			if ctx.Err() == nil {
				f.Logger.Warning("Upstream read failed: %v", err)
			}
			return
		}

		f.lastTraffic.Store(time.Now().UnixNano())

		switch event.Event {
		case "price":
			f.handlePrice(ctx, event)
		case "heartbeat":
			// The provider expects its ping answered to keep the session.
			if err := conn.Heartbeat(); err != nil {
				f.Logger.Warning("Heartbeat reply failed: %v", err)
			}
		case "subscribe-status", "unsubscribe-status":
			f.Logger.Debug("Upstream %s: %s", event.Event, event.Status)
		default:
			f.Logger.Debug("Ignoring upstream event %q", event.Event)
		}
	}
}

// -----------------------------------------------------------------------------

func (f *UpstreamFeed) handlePrice(ctx context.Context, event models.MProviderEvent) {
	timestamp := event.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UTC().Unix()
	}
	observedAt := time.Unix(timestamp, 0).UTC()

	point := models.MChartPoint{
		Symbol:    event.Symbol,
		Timestamp: timestamp,
		Price:     event.Price,
	}
	if f.Tape != nil {
		f.Tape.Record(point)
	}

	if err := f.Store.UpsertCachedPrice(event.Symbol, event.Price, observedAt); err != nil {
		f.Logger.Error("Price cache upsert for %s failed: %v", event.Symbol, err)
	}
	if err := f.Store.SaveChartPoints([]models.MChartPoint{point}); err != nil {
		f.Logger.Error("Chart history write for %s failed: %v", event.Symbol, err)
	}

	f.Router.BroadcastPrice(event.Symbol, event.Price, timestamp)
	f.Engine.HandleTick(ctx, event.Symbol)
}

// -----------------------------------------------------------------------------

// keepalive sends the provider heartbeat whenever the session has been idle
// for a full interval.
func (f *UpstreamFeed) keepalive(ctx context.Context, conn interfaces.IStreamConn) {
	interval := f.Config.KeepaliveInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, f.lastTraffic.Load()))
			if idle < interval {
				continue
			}
			if err := conn.Heartbeat(); err != nil {
				f.Logger.Warning("Keepalive heartbeat failed: %v", err)
			}
		}
	}
}

// -----------------------------------------------------------------------------

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
