// Package realtime maintains the live price feed: one WebSocket
// connection shared by all subscribers, with automatic reconnection and
// subscription replay.
package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whytheybuy/marketdata/internal/platform/observability"
)

// ConnectionState describes the feed connection lifecycle.
type ConnectionState int

const (
	// StateDisconnected means no connection and none pending
	StateDisconnected ConnectionState = iota
	// StateConnecting means a dial is in flight
	StateConnecting
	// StateConnected means the feed is live
	StateConnected
	// StateError means the last connection failed and a retry is scheduled
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// DefaultRetryDelay is the fixed pause before each reconnect attempt.
	DefaultRetryDelay = 3 * time.Second
	// DefaultBufferSize is the per-subscriber tick channel capacity.
	DefaultBufferSize = 64

	dialTimeout       = 30 * time.Second
	writeTimeout      = 10 * time.Second
	stateChanCapacity = 8
)

// ServiceConfig holds feed service configuration.
type ServiceConfig struct {
	Endpoint   string
	Dialer     Dialer
	RetryDelay time.Duration
	BufferSize int
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Service owns the single feed connection. Subscribers register per-symbol
// or firehose listeners; the service fans every trade tick out to them.
// Slow subscribers lose ticks rather than stalling the rest: delivery is
// drop-on-full per channel, and ticks that do fit keep arrival order.
type Service struct {
	endpoint   string
	dialer     Dialer
	retryDelay time.Duration
	bufferSize int
	logger     *observability.Logger
	metrics    *observability.Metrics

	mu             sync.Mutex
	state          ConnectionState
	conn           Transport
	refs           map[string]int
	listeners      map[string]map[uuid.UUID]chan Tick
	allListeners   map[uuid.UUID]chan Tick
	stateListeners map[uuid.UUID]chan ConnectionState
	retryTimer     *time.Timer
	manualClose    bool
	runCtx         context.Context
	runCancel      context.CancelFunc
	readCancel     context.CancelFunc
}

// NewService creates a feed service. It does not connect until Connect
// is called.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Dialer == nil {
		cfg.Dialer = NewDialer()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	return &Service{
		endpoint:       cfg.Endpoint,
		dialer:         cfg.Dialer,
		retryDelay:     cfg.RetryDelay,
		bufferSize:     cfg.BufferSize,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		state:          StateDisconnected,
		refs:           make(map[string]int),
		listeners:      make(map[string]map[uuid.UUID]chan Tick),
		allListeners:   make(map[uuid.UUID]chan Tick),
		stateListeners: make(map[uuid.UUID]chan ConnectionState),
	}
}

// Connect establishes the feed connection. Calling it while connected or
// connecting is a no-op. A failed dial leaves the service in StateError
// with a retry scheduled; failures are observable through States and the
// log, never returned to the caller.
func (s *Service) Connect(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return
	}
	s.manualClose = false
	if s.runCancel == nil {
		s.runCtx, s.runCancel = context.WithCancel(ctx)
	}
	s.mu.Unlock()

	s.connect()
}

// Disconnect closes the connection and suppresses reconnection until the
// next Connect. Subscriptions are kept and replayed when the service
// connects again.
func (s *Service) Disconnect() {
	s.mu.Lock()
	s.manualClose = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	conn := s.conn
	s.conn = nil
	if s.readCancel != nil {
		s.readCancel()
		s.readCancel = nil
	}
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
		s.runCtx = nil
	}
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if s.metrics != nil {
		s.metrics.SetFeedConnected(context.Background(), false)
	}
	if s.logger != nil {
		s.logger.Info("feed disconnected")
	}
}

// State returns the current connection state.
func (s *Service) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscriptions returns the currently subscribed symbols, sorted.
func (s *Service) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, len(s.refs))
	for symbol := range s.refs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Ticks subscribes to trades for one symbol. The symbol is canonicalized
// to upper case, so "aapl" and "AAPL" share a subscription. The returned
// cancel releases this listener; the upstream subscription ends when the
// last listener for the symbol cancels. Cancel is safe to call twice.
func (s *Service) Ticks(symbol string) (<-chan Tick, func()) {
	symbol = Canonical(symbol)
	ch := make(chan Tick, s.bufferSize)
	id := uuid.New()

	s.mu.Lock()
	if s.listeners[symbol] == nil {
		s.listeners[symbol] = make(map[uuid.UUID]chan Tick)
	}
	s.listeners[symbol][id] = ch
	s.refs[symbol]++
	first := s.refs[symbol] == 1
	connected := s.state == StateConnected
	count := int64(len(s.refs))
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetSubscriptions(context.Background(), count)
	}
	if first && connected {
		s.writeControl(actionSubscribe, symbol)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners[symbol], id)
			if len(s.listeners[symbol]) == 0 {
				delete(s.listeners, symbol)
			}
			s.refs[symbol]--
			last := s.refs[symbol] <= 0
			if last {
				delete(s.refs, symbol)
			}
			connected := s.state == StateConnected
			count := int64(len(s.refs))
			s.mu.Unlock()

			if s.metrics != nil {
				s.metrics.SetSubscriptions(context.Background(), count)
			}
			if last && connected {
				s.writeControl(actionUnsubscribe, symbol)
			}
		})
	}

	return ch, cancel
}

// AllTicks subscribes to every trade regardless of symbol. It does not
// touch upstream subscriptions; it only taps what flows through.
func (s *Service) AllTicks() (<-chan Tick, func()) {
	ch := make(chan Tick, s.bufferSize)
	id := uuid.New()

	s.mu.Lock()
	s.allListeners[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.allListeners, id)
			s.mu.Unlock()
		})
	}

	return ch, cancel
}

// States subscribes to connection state changes. The current state is
// delivered first.
func (s *Service) States() (<-chan ConnectionState, func()) {
	ch := make(chan ConnectionState, stateChanCapacity)
	id := uuid.New()

	s.mu.Lock()
	ch <- s.state
	s.stateListeners[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.stateListeners, id)
			s.mu.Unlock()
		})
	}

	return ch, cancel
}

// Canonical returns the canonical form of a symbol.
func Canonical(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *Service) connect() {
	s.mu.Lock()
	if s.manualClose || s.conn != nil || s.state == StateConnecting {
		s.mu.Unlock()
		return
	}
	// A connect supersedes any pending retry; without this a late timer
	// fire could dial a second connection alongside a live one
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.setStateLocked(StateConnecting)
	ctx := s.runCtx
	s.mu.Unlock()

	if ctx == nil {
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := s.dialer.Dial(dialCtx, s.endpoint)
	cancel()
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordFeedConnection(ctx, false)
		}
		if s.logger != nil {
			s.logger.LogError(ctx, "feed dial failed", err, "endpoint", s.endpoint)
		}
		s.mu.Lock()
		s.setStateLocked(StateError)
		s.scheduleRetryLocked()
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.manualClose || s.conn != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	readCtx, readCancel := context.WithCancel(ctx)
	s.readCancel = readCancel
	s.setStateLocked(StateConnected)
	symbols := make([]string, 0, len(s.refs))
	for symbol := range s.refs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordFeedConnection(ctx, true)
		s.metrics.SetFeedConnected(ctx, true)
	}
	if s.logger != nil {
		s.logger.Info("feed connected", "endpoint", s.endpoint, "replayed_subscriptions", len(symbols))
	}

	// Replay active subscriptions so the new connection carries the same
	// symbol set as the one that dropped
	for _, symbol := range symbols {
		s.writeControl(actionSubscribe, symbol)
	}

	go s.readLoop(readCtx, conn)
}

func (s *Service) readLoop(ctx context.Context, conn Transport) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		s.handleFrame(ctx, data)
	}
}

func (s *Service) handleDisconnect(conn Transport, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// A stale read loop from a connection already replaced or torn
		// down; make sure its transport is closed before exiting
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = nil
	if s.readCancel != nil {
		s.readCancel()
		s.readCancel = nil
	}
	manual := s.manualClose
	if manual {
		s.setStateLocked(StateDisconnected)
	} else {
		s.setStateLocked(StateError)
		s.scheduleRetryLocked()
	}
	s.mu.Unlock()

	conn.Close()

	if s.metrics != nil {
		s.metrics.SetFeedConnected(context.Background(), false)
	}
	if !manual && s.logger != nil {
		s.logger.Warn("feed connection lost, retry scheduled",
			"error", err,
			"retry_delay", s.retryDelay,
		)
	}
}

// scheduleRetryLocked arms the reconnect timer. At most one timer exists:
// arming again cancels the previous one first. Caller must hold s.mu.
func (s *Service) scheduleRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}
	s.retryTimer = time.AfterFunc(s.retryDelay, func() {
		s.mu.Lock()
		s.retryTimer = nil
		manual := s.manualClose
		s.mu.Unlock()
		if manual {
			return
		}
		if s.metrics != nil {
			s.metrics.RecordFeedReconnection(context.Background())
		}
		s.connect()
	})
}

func (s *Service) handleFrame(ctx context.Context, data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// Malformed frames are dropped; one bad frame must not kill the feed
		if s.logger != nil {
			s.logger.Debug("dropping malformed feed frame", "error", err)
		}
		return
	}

	switch msg.Type {
	case messageTypeTrade:
		if msg.Symbol == "" {
			return
		}
		msg.Symbol = Canonical(msg.Symbol)
		s.dispatch(ctx, msg.tick())
	case messageTypeConnected:
		s.mu.Lock()
		s.setStateLocked(StateConnected)
		s.mu.Unlock()
	default:
		// Unknown message types are ignored for forward compatibility
	}
}

func (s *Service) dispatch(ctx context.Context, tick Tick) {
	s.mu.Lock()
	dropped := 0
	for _, ch := range s.listeners[tick.Symbol] {
		select {
		case ch <- tick:
		default:
			dropped++
		}
	}
	for _, ch := range s.allListeners {
		select {
		case ch <- tick:
		default:
			dropped++
		}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordTick(ctx, tick.Symbol)
		for i := 0; i < dropped; i++ {
			s.metrics.RecordTickDropped(ctx, tick.Symbol)
		}
	}
}

// setStateLocked updates the state and notifies state listeners. Caller
// must hold s.mu.
func (s *Service) setStateLocked(state ConnectionState) {
	if s.state == state {
		return
	}
	s.state = state
	for _, ch := range s.stateListeners {
		select {
		case ch <- state:
		default:
		}
	}
}

func (s *Service) writeControl(action, symbol string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := json.Marshal(clientMessage{Action: action, Symbol: symbol})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := conn.Write(ctx, data); err != nil && s.logger != nil {
		s.logger.Warn("feed control write failed", "action", action, "symbol", symbol, "error", err)
	}
}
