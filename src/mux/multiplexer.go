package mux

import (
	"sort"
	"sync"

	"riskwatch/src/interfaces"
	"riskwatch/src/logger"
	"riskwatch/src/utils"
)

// -----------------------------------------------------------------------------
// Multiplexer
// -----------------------------------------------------------------------------

// Multiplexer merges the symbol interests of all downstream connections into
// one master demand set and rotates a quota-bounded window of it through the
// upstream subscription. All state is guarded by a single mutex; rotation
// ticks, feed events and inbound messages serialize on it.
type Multiplexer struct {
	Logger *logger.Logger

	mu     sync.Mutex
	conns  map[interfaces.IDownstream]*connState
	demand map[string]int // symbol -> number of connections desiring it
	order  []string       // stable (insertion) ordering of the demand set
	cursor int
	active utils.Set[string]
	quota  int
}

type connState struct {
	clientID string
	desired  utils.Set[string]
}

// -----------------------------------------------------------------------------

func NewMultiplexer(quota int, l *logger.Logger) *Multiplexer {
	return &Multiplexer{
		Logger: l,
		conns:  make(map[interfaces.IDownstream]*connState),
		demand: make(map[string]int),
		active: utils.NewSet[string](),
		quota:  quota,
	}
}

// -----------------------------------------------------------------------------
// Connection lifecycle
// -----------------------------------------------------------------------------

// Add places a fresh, unidentified connection in the registry.
func (m *Multiplexer) Add(conn interfaces.IDownstream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[conn]; !exists {
		m.conns[conn] = &connState{desired: utils.NewSet[string]()}
	}
}

// -----------------------------------------------------------------------------

// Register binds an identity to a connection. Idempotent; never touches
// subscriptions.
func (m *Multiplexer) Register(conn interfaces.IDownstream, clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.conns[conn]
	if !exists {
		state = &connState{desired: utils.NewSet[string]()}
		m.conns[conn] = state
	}
	state.clientID = clientID
}

// -----------------------------------------------------------------------------

// Subscribe accumulates symbols into the connection's desired set and the
// master demand set. Duplicates are no-ops. No upstream traffic results here;
// rotation is purely tick-driven so connect bursts cannot cause churn storms.
func (m *Multiplexer) Subscribe(conn interfaces.IDownstream, symbols []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.conns[conn]
	if !exists {
		state = &connState{desired: utils.NewSet[string]()}
		m.conns[conn] = state
	}

	for _, symbol := range symbols {
		if symbol == "" || state.desired.Include(symbol) {
			continue
		}
		state.desired.Insert(symbol)
		if m.demand[symbol] == 0 {
			m.order = append(m.order, symbol)
		}
		m.demand[symbol]++
	}
}

// -----------------------------------------------------------------------------

// Disconnect removes the connection. Each symbol it desired leaves the master
// demand set only when no other live connection still wants it. The cursor is
// reset when the shrunk demand set no longer covers it.
func (m *Multiplexer) Disconnect(conn interfaces.IDownstream) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.conns[conn]
	if !exists {
		return
	}
	delete(m.conns, conn)

	for symbol := range state.desired {
		m.demand[symbol]--
		if m.demand[symbol] > 0 {
			continue
		}
		delete(m.demand, symbol)
		for i, s := range m.order {
			if s == symbol {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}

	if m.cursor >= len(m.order) {
		m.cursor = 0
	}
}

// -----------------------------------------------------------------------------
// Rotation
// -----------------------------------------------------------------------------

// Rotate performs one rotation pass: select the next quota-sized window of
// the demand snapshot, diff it against the active set and issue only the
// deltas (unsubscribe first). Safe to call redundantly: a demand set within
// quota resolves to the same window every pass and produces no traffic.
func (m *Multiplexer) Rotate(sink interfaces.ISubscriptionSink) {
	m.mu.Lock()

	if len(m.order) == 0 {
		toUnsubscribe := m.active.Slice()
		m.active = utils.NewSet[string]()
		m.cursor = 0
		m.mu.Unlock()

		if len(toUnsubscribe) > 0 {
			sort.Strings(toUnsubscribe)
			if err := sink.Unsubscribe(toUnsubscribe); err != nil {
				m.Logger.Warning("Upstream unsubscribe failed: %v", err)
			}
		}
		return
	}

	snapshot := make([]string, len(m.order))
	copy(snapshot, m.order)

	n := m.quota
	if len(snapshot) < n {
		n = len(snapshot)
	}

	next := utils.NewSet[string]()
	for i := 0; i < n; i++ {
		next.Insert(snapshot[(m.cursor+i)%len(snapshot)])
	}

	toUnsubscribe := m.active.Diff(next)
	toSubscribe := next.Diff(m.active)

	m.cursor = (m.cursor + n) % len(snapshot)
	m.active = next
	m.mu.Unlock()

	sort.Strings(toUnsubscribe)
	sort.Strings(toSubscribe)

	if len(toUnsubscribe) > 0 {
		if err := sink.Unsubscribe(toUnsubscribe); err != nil {
			m.Logger.Warning("Upstream unsubscribe failed: %v", err)
		}
	}
	if len(toSubscribe) > 0 {
		if err := sink.Subscribe(toSubscribe); err != nil {
			m.Logger.Warning("Upstream subscribe failed: %v", err)
		}
	}
}

// -----------------------------------------------------------------------------

// ResetRotation clears rotation state ahead of a reconnect: the next pass
// starts from a fresh snapshot with nothing considered subscribed.
func (m *Multiplexer) ResetRotation() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cursor = 0
	m.active = utils.NewSet[string]()
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// AffectedClients returns the deduplicated client ids of identified
// connections whose desired set contains the symbol.
func (m *Multiplexer) AffectedClients(symbol string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := utils.NewSet[string]()
	var clients []string
	for _, state := range m.conns {
		if state.clientID == "" || !state.desired.Include(symbol) {
			continue
		}
		if seen.Include(state.clientID) {
			continue
		}
		seen.Insert(state.clientID)
		clients = append(clients, state.clientID)
	}
	return clients
}

// -----------------------------------------------------------------------------

// ForEachDesiring invokes fn for every live connection desiring the symbol.
func (m *Multiplexer) ForEachDesiring(symbol string, fn func(interfaces.IDownstream)) {
	for _, conn := range m.connsDesiring(symbol) {
		fn(conn)
	}
}

func (m *Multiplexer) connsDesiring(symbol string) []interfaces.IDownstream {
	m.mu.Lock()
	defer m.mu.Unlock()

	var conns []interfaces.IDownstream
	for conn, state := range m.conns {
		if state.desired.Include(symbol) {
			conns = append(conns, conn)
		}
	}
	return conns
}

// -----------------------------------------------------------------------------

// ForEachClient invokes fn for every identified connection bound to clientID.
func (m *Multiplexer) ForEachClient(clientID string, fn func(interfaces.IDownstream)) {
	for _, conn := range m.connsForClient(clientID) {
		fn(conn)
	}
}

func (m *Multiplexer) connsForClient(clientID string) []interfaces.IDownstream {
	m.mu.Lock()
	defer m.mu.Unlock()

	var conns []interfaces.IDownstream
	for conn, state := range m.conns {
		if state.clientID == clientID {
			conns = append(conns, conn)
		}
	}
	return conns
}

// -----------------------------------------------------------------------------

// DemandedSymbols returns the demand set in its stable order.
func (m *Multiplexer) DemandedSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]string, len(m.order))
	copy(snapshot, m.order)
	return snapshot
}

// -----------------------------------------------------------------------------

// ActiveSymbols returns the currently subscribed window.
func (m *Multiplexer) ActiveSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbols := m.active.Slice()
	sort.Strings(symbols)
	return symbols
}

// -----------------------------------------------------------------------------

// ConnectionCount reports the number of live downstream connections.
func (m *Multiplexer) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}
