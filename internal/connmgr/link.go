package connmgr

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"crest_go/internal/domain"
	"crest_go/internal/infra"
)

// LinkState is the lifecycle state of one maker connection.
type LinkState int32

const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateAuthenticated
	StateHealthy
	StateUnstable
)

func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateHealthy:
		return "HEALTHY"
	case StateUnstable:
		return "UNSTABLE"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrLinkNotReady = errors.New("maker link not ready")
	ErrCircuitOpen  = errors.New("maker circuit breaker open")
	ErrRateLimited  = errors.New("maker request rate exceeded")
)

// Arrival is a quote response together with its receive timestamp.
type Arrival struct {
	Resp domain.QuoteResponse
	At   time.Time
}

// LinkOptions carries the health thresholds for a maker link.
type LinkOptions struct {
	PingInterval          time.Duration
	ReadTimeout           time.Duration
	UnstableAfterMissed   int
	DisconnectAfterMissed int
	MaxReconnectAttempts  int
	RequestBurst          int
	RequestPerSec         float64
}

// Link owns one persistent WebSocket connection to a market maker. It
// implements infra.WebSocketHandler; the embedded worker drives dialing,
// reconnection, and the ping schedule. Responses are correlated back to
// in-flight requests by requestId.
type Link struct {
	id     string
	url    string
	secret string
	opts   LinkOptions

	worker  *infra.BaseWSWorker
	breaker *infra.CircuitBreaker
	limiter *infra.RateLimiter

	state    atomic.Int32
	rejected atomic.Bool
	missed   atomic.Int32

	mu      sync.Mutex
	address common.Address
	pairs   map[string]struct{}
	pending map[string]chan Arrival
}

// NewLink builds a link for one configured maker. Start must be called
// before the link can serve requests.
func NewLink(cfg infra.MakerConfig, secret string, opts LinkOptions) *Link {
	l := &Link{
		id:      cfg.ID,
		url:     cfg.WSURL,
		secret:  secret,
		opts:    opts,
		breaker: infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("maker:" + cfg.ID)),
		limiter: infra.NewMakerLimiter(opts.RequestBurst, opts.RequestPerSec),
		pairs:   make(map[string]struct{}),
		pending: make(map[string]chan Arrival),
	}

	l.worker = infra.NewBaseWSWorker(l)
	if opts.PingInterval > 0 {
		l.worker.PingInterval = opts.PingInterval
	}
	if opts.ReadTimeout > 0 {
		l.worker.ReadTimeout = opts.ReadTimeout
	}
	l.worker.MaxRetries = opts.MaxReconnectAttempts
	return l
}

// Start begins dialing the maker.
func (l *Link) Start(ctx context.Context) {
	l.setState(StateConnecting)
	l.worker.Start(ctx)
}

// Stop tears the link down.
func (l *Link) Stop() {
	l.worker.Stop()
	l.setState(StateDisconnected)
}

// State returns the current lifecycle state.
func (l *Link) State() LinkState {
	return LinkState(l.state.Load())
}

func (l *Link) setState(s LinkState) {
	old := LinkState(l.state.Swap(int32(s)))
	if old != s {
		slog.Debug("Maker link state change", "id", l.id, "from", old.String(), "to", s.String())
	}
}

// Ready reports whether the link can accept quote requests. Unstable links
// stay eligible; only unauthenticated or dead links are excluded.
func (l *Link) Ready() bool {
	s := l.State()
	return s == StateAuthenticated || s == StateHealthy || s == StateUnstable
}

// Address returns the maker's settlement signing address from its auth.
func (l *Link) Address() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// SupportsPair reports whether the maker declared the asset pair.
func (l *Link) SupportsPair(pair string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pairs[pair]
	return ok
}

// RequestQuote sends a solicitation to the maker and returns a channel that
// receives at most one response. The returned cancel func releases the
// pending slot; callers must invoke it once the window closes.
func (l *Link) RequestQuote(req domain.QuoteRequest) (<-chan Arrival, func(), error) {
	if !l.Ready() {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrLinkNotReady, l.id, l.State())
	}
	if !l.breaker.Allow() {
		return nil, nil, fmt.Errorf("%w: %s", ErrCircuitOpen, l.id)
	}
	if !l.limiter.TryAcquire() {
		return nil, nil, fmt.Errorf("%w: %s", ErrRateLimited, l.id)
	}

	env, err := domain.NewEnvelope(domain.MsgQuoteRequest, req)
	if err != nil {
		return nil, nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Arrival, 1)
	l.mu.Lock()
	l.pending[req.RequestID] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		delete(l.pending, req.RequestID)
		l.mu.Unlock()
	}

	if err := l.worker.Write(websocket.TextMessage, data); err != nil {
		cancel()
		l.breaker.RecordFailure()
		return nil, nil, fmt.Errorf("send quote request to %s: %w", l.id, err)
	}

	return ch, cancel, nil
}

// ReportSuccess feeds the circuit breaker after a usable response.
func (l *Link) ReportSuccess() { l.breaker.RecordSuccess() }

// ReportFailure feeds the circuit breaker after a timeout or bad response.
func (l *Link) ReportFailure() { l.breaker.RecordFailure() }

// GetURL implements infra.WebSocketHandler.
func (l *Link) GetURL() string { return l.url }

// ID implements infra.WebSocketHandler.
func (l *Link) ID() string { return l.id }

// normalizePair folds a declared pair into the canonical lowercase form
// used by domain.PairKey.
func normalizePair(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// OnConnect implements infra.WebSocketHandler. Authentication is driven by
// the maker, which must send its auth message as the first frame.
func (l *Link) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	l.missed.Store(0)
	l.rejected.Store(false)
	l.setState(StateConnecting)
	return nil
}

// OnMessage implements infra.WebSocketHandler.
func (l *Link) OnMessage(ctx context.Context, msg []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		slog.Warn("Maker sent malformed frame", "id", l.id, "err", err)
		return
	}

	switch env.Type {
	case domain.MsgAuth:
		l.handleAuth(env.Data)
	case domain.MsgPong:
		l.missed.Store(0)
		if l.State() == StateUnstable {
			l.setState(StateHealthy)
		}
	case domain.MsgPing:
		l.replyPong()
	case domain.MsgQuoteResponse:
		l.handleQuoteResponse(env.Data)
	default:
		slog.Debug("Ignoring unknown frame type", "id", l.id, "type", env.Type)
	}
}

func (l *Link) handleAuth(data []byte) {
	var auth domain.AuthMessage
	if err := json.Unmarshal(data, &auth); err != nil {
		slog.Warn("Malformed auth from maker", "id", l.id, "err", err)
		return
	}

	if l.secret != "" &&
		subtle.ConstantTimeCompare([]byte(auth.Credential), []byte(l.secret)) != 1 {
		slog.Warn("Maker auth rejected: bad credential", "id", l.id)
		l.rejected.Store(true)
		return
	}
	if !common.IsHexAddress(auth.Address) {
		slog.Warn("Maker auth rejected: bad address", "id", l.id, "address", auth.Address)
		l.rejected.Store(true)
		return
	}

	l.mu.Lock()
	l.address = common.HexToAddress(auth.Address)
	l.pairs = make(map[string]struct{}, len(auth.SupportedPairs))
	for _, p := range auth.SupportedPairs {
		l.pairs[normalizePair(p)] = struct{}{}
	}
	l.mu.Unlock()

	l.setState(StateAuthenticated)
	slog.Info("Maker authenticated", "id", l.id, "address", auth.Address, "pairs", len(auth.SupportedPairs))
	l.setState(StateHealthy)
}

func (l *Link) handleQuoteResponse(data []byte) {
	var resp domain.QuoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("Malformed quote response", "id", l.id, "err", err)
		return
	}

	l.mu.Lock()
	ch, ok := l.pending[resp.RequestID]
	if ok {
		delete(l.pending, resp.RequestID)
	}
	l.mu.Unlock()

	if !ok {
		// Late or duplicate response; the window already closed.
		slog.Debug("Dropping uncorrelated quote response", "id", l.id, "requestId", resp.RequestID)
		return
	}

	ch <- Arrival{Resp: resp, At: time.Now()}
}

func (l *Link) replyPong() {
	env, err := domain.NewEnvelope(domain.MsgPong, nil)
	if err != nil {
		return
	}
	data, _ := json.Marshal(env)
	if err := l.worker.Write(websocket.TextMessage, data); err != nil {
		slog.Warn("Pong write failed", "id", l.id, "err", err)
	}
}

// OnPing implements infra.WebSocketHandler. It sends the application-level
// ping and enforces the missed-pong thresholds. Returning an error makes
// the worker drop the connection and redial.
func (l *Link) OnPing(ctx context.Context, conn *websocket.Conn) error {
	if l.rejected.Load() {
		return errors.New("auth rejected")
	}
	if l.State() == StateConnecting {
		return errors.New("maker did not authenticate in time")
	}

	missed := l.missed.Add(1)
	if l.opts.DisconnectAfterMissed > 0 && int(missed) > l.opts.DisconnectAfterMissed {
		return fmt.Errorf("missed %d pings", missed-1)
	}
	if l.opts.UnstableAfterMissed > 0 && int(missed) > l.opts.UnstableAfterMissed {
		if l.State() == StateHealthy {
			l.setState(StateUnstable)
		}
	}

	env, err := domain.NewEnvelope(domain.MsgPing, nil)
	if err != nil {
		return err
	}
	data, _ := json.Marshal(env)
	return l.worker.Write(websocket.TextMessage, data)
}

// OnDisconnect implements infra.WebSocketHandler. All in-flight requests
// fail fast so the engine does not wait out the window for a dead link.
func (l *Link) OnDisconnect(err error) {
	l.setState(StateDisconnected)

	l.mu.Lock()
	dropped := l.pending
	l.pending = make(map[string]chan Arrival)
	l.mu.Unlock()

	for _, ch := range dropped {
		close(ch)
	}
	if len(dropped) > 0 {
		slog.Warn("Dropped in-flight requests on disconnect", "id", l.id, "count", len(dropped))
	}
}
