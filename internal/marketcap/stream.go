package marketcap

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/observability"
)

// StreamConfig configures trade-feed connection behavior.
type StreamConfig struct {
	// ReconnectBase is the delay before the first reconnect attempt.
	// Attempt n waits min(ReconnectMax, ReconnectBase * 2^n).
	ReconnectBase time.Duration
	// ReconnectMax caps the delay between reconnect attempts.
	ReconnectMax time.Duration
	// MaxReconnectAttempts is the number of consecutive failed attempts
	// after which the stream stops retrying for good.
	MaxReconnectAttempts int
	// HandshakeTimeout is the websocket dial timeout.
	HandshakeTimeout time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default trade-feed configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectBase:        5 * time.Second,
		ReconnectMax:         30 * time.Second,
		MaxReconnectAttempts: 20,
		HandshakeTimeout:     10 * time.Second,
		PingInterval:         30 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// Stream errors.
var (
	ErrStreamClosed = errors.New("trade stream closed")
	ErrStreamFailed = errors.New("trade stream permanently failed")
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// TradeStream maintains a single persistent websocket connection to the
// trade feed. It remembers the last-requested subscription set and
// replays it after every reconnect. Trades are parsed and upserted into
// the valuation cache; acknowledgments and unknown messages are dropped.
type TradeStream struct {
	endpoint string
	config   StreamConfig
	cache    *Cache
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu    sync.Mutex // guards conn and state
	conn  *websocket.Conn
	state connState

	writeMu sync.Mutex // serializes websocket writes (subscription, pings)

	subMu      sync.Mutex
	subscribed []string

	// attempts counts consecutive failed connection attempts. Touched
	// only by the run goroutine.
	attempts int

	started atomic.Bool
	closed  atomic.Bool
	gaveUp  atomic.Bool

	failed chan struct{} // closed when the stream gives up
	done   chan struct{}
	wg     sync.WaitGroup
}

// StreamOption configures TradeStream.
type StreamOption func(*TradeStream)

// WithStreamConfig overrides the connection configuration.
func WithStreamConfig(cfg StreamConfig) StreamOption {
	return func(s *TradeStream) {
		s.config = cfg
	}
}

// WithStreamLogger sets the logger.
func WithStreamLogger(logger *zap.Logger) StreamOption {
	return func(s *TradeStream) {
		s.logger = logger
	}
}

// WithStreamMetrics sets the metrics registry.
func WithStreamMetrics(m *observability.Metrics) StreamOption {
	return func(s *TradeStream) {
		s.metrics = m
	}
}

// NewTradeStream creates a trade stream for the given feed endpoint.
// The stream does not connect until Connect or Subscribe is called.
func NewTradeStream(endpoint string, cache *Cache, opts ...StreamOption) *TradeStream {
	s := &TradeStream{
		endpoint: endpoint,
		config:   DefaultStreamConfig(),
		cache:    cache,
		logger:   zap.NewNop(),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect starts the connection manager. Calling it while already
// connected or connecting is a no-op.
func (s *TradeStream) Connect() error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if s.gaveUp.Load() {
		return ErrStreamFailed
	}
	if !s.started.Swap(true) {
		s.wg.Add(1)
		go s.run()
	}
	return nil
}

// Subscribe replaces the remembered subscription set. When connected the
// subscription message is sent immediately; otherwise a connection
// attempt is triggered and the send is deferred until the next Connected
// transition.
func (s *TradeStream) Subscribe(mints []string) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}

	s.subMu.Lock()
	s.subscribed = append([]string(nil), mints...)
	s.subMu.Unlock()

	s.mu.Lock()
	connected := s.state == stateConnected
	conn := s.conn
	s.mu.Unlock()

	if connected && conn != nil {
		return s.sendSubscription(conn)
	}
	return s.Connect()
}

// GaveUp reports whether the stream exhausted its reconnect budget.
func (s *TradeStream) GaveUp() bool {
	return s.gaveUp.Load()
}

// Failed returns a channel closed when the stream gives up reconnecting.
func (s *TradeStream) Failed() <-chan struct{} {
	return s.failed
}

// Close shuts the stream down. Safe to call more than once.
func (s *TradeStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.mu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// run owns the connect / read / reconnect cycle.
func (s *TradeStream) run() {
	defer s.wg.Done()

	for !s.closed.Load() {
		s.setState(stateConnecting)

		conn, err := s.dial()
		if err != nil {
			s.setState(stateDisconnected)
			s.logger.Warn("trade feed dial failed",
				zap.Int("attempt", s.attempts),
				zap.Error(err))
			if !s.backoff() {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.state = stateConnected
		s.mu.Unlock()

		s.attempts = 0
		s.logger.Info("trade feed connected", zap.String("endpoint", s.endpoint))
		if s.metrics != nil {
			s.metrics.StreamConnects.Inc()
		}

		// Replay the remembered subscription set.
		if err := s.sendSubscription(conn); err != nil {
			s.logger.Warn("resubscribe after connect failed", zap.Error(err))
		}

		s.readUntilError(conn)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()

		s.setState(stateDisconnected)
		if s.closed.Load() {
			return
		}
		if s.metrics != nil {
			s.metrics.StreamDisconnects.Inc()
		}
		if !s.backoff() {
			return
		}
	}
}

// backoff waits min(ReconnectMax, ReconnectBase * 2^attempts) and
// increments the attempt counter. It returns false when the stream is
// closed or the reconnect budget is exhausted.
func (s *TradeStream) backoff() bool {
	if s.closed.Load() {
		return false
	}
	if s.attempts >= s.config.MaxReconnectAttempts {
		s.gaveUp.Store(true)
		close(s.failed)
		if s.metrics != nil {
			s.metrics.StreamGiveUps.Inc()
		}
		s.logger.Error("trade feed gave up reconnecting",
			zap.Int("attempts", s.attempts))
		return false
	}

	delay := s.config.ReconnectBase << uint(s.attempts)
	if delay > s.config.ReconnectMax || delay <= 0 {
		delay = s.config.ReconnectMax
	}
	s.attempts++

	select {
	case <-s.done:
		return false
	case <-time.After(delay):
		return true
	}
}

func (s *TradeStream) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
	}
	conn, _, err := dialer.Dial(s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// readUntilError reads and dispatches messages until the connection
// errors or the stream is closed.
func (s *TradeStream) readUntilError(conn *websocket.Conn) {
	stopPing := make(chan struct{})
	defer close(stopPing)

	s.wg.Add(1)
	go s.pingLoop(conn, stopPing)

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Warn("trade feed read error", zap.Error(err))
			}
			return
		}
		s.handleMessage(data)
	}
}

// pingLoop sends ping frames to keep the connection alive.
func (s *TradeStream) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// subscribeRequest is the outbound subscription message.
type subscribeRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys"`
}

// sendSubscription sends the remembered subscription set, if any.
func (s *TradeStream) sendSubscription(conn *websocket.Conn) error {
	s.subMu.Lock()
	keys := append([]string(nil), s.subscribed...)
	s.subMu.Unlock()

	if len(keys) == 0 {
		return nil
	}

	req := subscribeRequest{
		Method: "subscribeTokenTrade",
		Keys:   keys,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscription: %w", err)
	}

	s.logger.Info("subscribed to token trades", zap.Int("keys", len(keys)))
	return nil
}

// handleMessage classifies and dispatches a single inbound message.
func (s *TradeStream) handleMessage(data []byte) {
	msg := classifyMessage(data, time.Now())
	switch msg.kind {
	case messageTrade:
		s.cache.Upsert(domain.EntryFromTrade(msg.trade))
		if s.metrics != nil {
			s.metrics.TradeEventsProcessed.Inc()
			s.metrics.CachedMints.Set(float64(s.cache.Len()))
		}
		s.logger.Debug("trade event",
			zap.String("mint", msg.trade.Mint),
			zap.Float64("market_cap_sol", msg.trade.MarketCapSol),
			zap.String("tx_type", string(msg.trade.TxType)))
	case messageAck:
		s.logger.Debug("feed acknowledgment", zap.String("message", msg.ackText))
	default:
		s.logger.Debug("unclassified feed message", zap.ByteString("data", data))
	}
}

func (s *TradeStream) setState(state connState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *TradeStream) connState() connState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
