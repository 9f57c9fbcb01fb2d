package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"crest_go/internal/connmgr"
	"crest_go/internal/domain"
)

// Maker is the engine's view of one connected market maker link.
type Maker interface {
	ID() string
	Address() common.Address
	RequestQuote(req domain.QuoteRequest) (<-chan connmgr.Arrival, func(), error)
	ReportSuccess()
	ReportFailure()
}

// Registry supplies the eligible makers for an asset pair.
type Registry interface {
	Candidates(pair string) []Maker
}

// Outcome classifies a finished RFQ round.
type Outcome int

const (
	// OutcomeQuote means a winning quote was selected.
	OutcomeQuote Outcome = iota
	// OutcomeNoLiquidity means no maker produced a valid in-window quote.
	// It is a result, not an error.
	OutcomeNoLiquidity
)

// Request is a user's ask for a firm price.
type Request struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	User     common.Address
}

// Validate rejects structurally bad requests before any maker is pinged.
func (r *Request) Validate() error {
	if r.User == (common.Address{}) {
		return domain.ErrMissingUser
	}
	if r.TokenIn == (common.Address{}) || r.TokenOut == (common.Address{}) {
		return errors.New("token addresses are required")
	}
	if r.TokenIn == r.TokenOut {
		return domain.ErrSameToken
	}
	if r.AmountIn == nil || r.AmountIn.Sign() <= 0 {
		return domain.ErrZeroAmountIn
	}
	return nil
}

// Result is the outcome of one RFQ round.
type Result struct {
	RequestID string
	Outcome   Outcome

	// Set when Outcome == OutcomeQuote.
	MakerID string
	Quote   domain.SignedQuote
	Latency time.Duration

	Pinged    int
	Responded int
}

// Config carries the engine's tunables.
type Config struct {
	Window        time.Duration
	MaxCandidates int
	Weights       Weights
	Domain        domain.SigningDomain
}

// Engine runs RFQ rounds: pick candidate makers, broadcast the request,
// collect responses inside a fixed window, validate signatures, and score
// the survivors.
type Engine struct {
	reg   Registry
	stats *domain.StatsBook
	cfg   Config
	log   *slog.Logger
}

// New builds an engine over the given maker registry.
func New(reg Registry, stats *domain.StatsBook, cfg Config, log *slog.Logger) *Engine {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 4
	}
	if cfg.Window <= 0 {
		cfg.Window = 500 * time.Millisecond
	}
	return &Engine{reg: reg, stats: stats, cfg: cfg, log: log}
}

// reply carries one maker's answer (or channel close) back to the round.
type reply struct {
	maker Maker
	arr   connmgr.Arrival
	ok    bool
}

// RequestQuote runs one complete RFQ round. Validation failures are errors;
// an empty book is OutcomeNoLiquidity.
func (e *Engine) RequestQuote(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	requestID := uuid.NewString()
	res := Result{RequestID: requestID, Outcome: OutcomeNoLiquidity}

	pair := domain.PairKey(req.TokenIn, req.TokenOut)
	picked := e.pickCandidates(pair)
	if len(picked) == 0 {
		e.log.Info("RFQ round: no eligible makers", "requestId", requestID, "pair", pair)
		return res, nil
	}

	wireReq := domain.QuoteRequest{
		RequestID: requestID,
		TokenIn:   req.TokenIn.Hex(),
		TokenOut:  req.TokenOut.Hex(),
		AmountIn:  req.AmountIn.String(),
		User:      req.User.Hex(),
	}

	// Historical reliability is captured before the round so scoring does
	// not shift with response arrival order.
	reliability := make(map[string]float64, len(picked))
	for _, m := range picked {
		reliability[m.ID()] = e.stats.Get(m.ID()).SuccessRate()
	}

	start := time.Now()
	replies := make(chan reply, len(picked))
	done := make(chan struct{})
	defer close(done)

	pinged := make([]Maker, 0, len(picked))
	for _, m := range picked {
		ch, cancel, err := m.RequestQuote(wireReq)
		if err != nil {
			e.log.Warn("Skipping maker", "requestId", requestID, "maker", m.ID(), "err", err)
			continue
		}
		defer cancel()
		pinged = append(pinged, m)

		go func(m Maker, ch <-chan connmgr.Arrival) {
			select {
			case arr, ok := <-ch:
				replies <- reply{maker: m, arr: arr, ok: ok}
			case <-done:
			}
		}(m, ch)
	}

	res.Pinged = len(pinged)
	if len(pinged) == 0 {
		return res, nil
	}

	valid, responded, err := e.collect(ctx, req, requestID, pinged, replies, reliability, start)
	if err != nil {
		return Result{}, err
	}
	res.Responded = responded

	if len(valid) == 0 {
		e.log.Info("RFQ round: no liquidity", "requestId", requestID, "pinged", res.Pinged, "responded", responded)
		return res, nil
	}

	best := valid[selectBest(valid, e.cfg.Weights, e.cfg.Window)]
	res.Outcome = OutcomeQuote
	res.MakerID = best.makerID
	res.Quote = best.quote
	res.Latency = best.latency

	e.log.Info("RFQ round: quote selected",
		"requestId", requestID,
		"maker", best.makerID,
		"amountOut", best.quote.Params.AmountOut,
		"latencyMs", best.latency.Milliseconds(),
		"validQuotes", len(valid))
	return res, nil
}

// pickCandidates ranks the pair's ready makers by historical score and
// takes the top MaxCandidates.
func (e *Engine) pickCandidates(pair string) []Maker {
	cands := e.reg.Candidates(pair)

	type ranked struct {
		m     Maker
		score float64
	}
	rs := make([]ranked, 0, len(cands))
	for _, m := range cands {
		st := e.stats.Get(m.ID())
		rs = append(rs, ranked{m: m, score: historyScore(st, e.cfg.Window)})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score != rs[j].score {
			return rs[i].score > rs[j].score
		}
		return rs[i].m.ID() < rs[j].m.ID()
	})

	n := e.cfg.MaxCandidates
	if n > len(rs) {
		n = len(rs)
	}
	out := make([]Maker, n)
	for i := 0; i < n; i++ {
		out[i] = rs[i].m
	}
	return out
}

// historyScore ranks makers for candidate selection: mostly reliability,
// with fast responders ahead among equals.
func historyScore(st domain.MakerStats, window time.Duration) float64 {
	latScore := 1.0
	if window > 0 && st.AvgLatencyUS > 0 {
		frac := float64(st.AvgLatencyUS) / float64(window.Microseconds())
		if frac > 1 {
			frac = 1
		}
		latScore = 1 - frac
	}
	return 0.8*st.SuccessRate() + 0.2*latScore
}

// collect gathers replies until the window closes or every pinged maker
// has answered. Late responses are abandoned by the window and recorded as
// failures; so are disconnects and invalid responses.
func (e *Engine) collect(
	ctx context.Context,
	req Request,
	requestID string,
	pinged []Maker,
	replies <-chan reply,
	reliability map[string]float64,
	start time.Time,
) ([]scoredQuote, int, error) {
	// The window is anchored at broadcast start, the same instant latency
	// is measured against, not at collection entry.
	timer := time.NewTimer(e.cfg.Window - time.Since(start))
	defer timer.Stop()

	answered := make(map[string]bool, len(pinged))
	var valid []scoredQuote
	responded := 0

	for len(answered) < len(pinged) {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()

		case <-timer.C:
			// Window closed. Everyone still silent counts against
			// reliability.
			for _, m := range pinged {
				if !answered[m.ID()] {
					e.stats.RecordFailure(m.ID())
					m.ReportFailure()
				}
			}
			return valid, responded, nil

		case r := <-replies:
			answered[r.maker.ID()] = true
			if !r.ok {
				// Link dropped the request (disconnect).
				e.stats.RecordFailure(r.maker.ID())
				r.maker.ReportFailure()
				continue
			}
			responded++

			latency := r.arr.At.Sub(start)
			sq, err := e.validateResponse(req, requestID, r.maker, r.arr.Resp)
			if err != nil {
				e.log.Warn("Rejecting quote response",
					"requestId", requestID, "maker", r.maker.ID(), "err", err)
				e.stats.RecordFailure(r.maker.ID())
				r.maker.ReportFailure()
				continue
			}

			e.stats.RecordSuccess(r.maker.ID(), latency)
			r.maker.ReportSuccess()
			valid = append(valid, scoredQuote{
				makerID:     r.maker.ID(),
				quote:       sq,
				latency:     latency,
				arrivedAt:   r.arr.At,
				reliability: reliability[r.maker.ID()],
			})
		}
	}
	return valid, responded, nil
}

// validateResponse reconstructs the quote a response claims to price and
// verifies the maker's signature over its digest. Anything malformed,
// expired, or mis-signed is rejected.
func (e *Engine) validateResponse(req Request, requestID string, m Maker, resp domain.QuoteResponse) (domain.SignedQuote, error) {
	var zero domain.SignedQuote

	if resp.RequestID != requestID {
		return zero, fmt.Errorf("requestId mismatch: %s", resp.RequestID)
	}

	amountOut, err := domain.ParseAmount(resp.AmountOut)
	if err != nil {
		return zero, err
	}
	if amountOut.Sign() <= 0 {
		return zero, domain.ErrZeroAmountOut
	}
	if resp.Expiry <= time.Now().Unix() {
		return zero, fmt.Errorf("quote already expired at %d", resp.Expiry)
	}

	quoteID, err := domain.ParseQuoteID(resp.QuoteID)
	if err != nil {
		return zero, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(resp.Signature, "0x"))
	if err != nil {
		return zero, fmt.Errorf("malformed signature: %w", err)
	}

	params := domain.QuoteParams{
		User:        req.User,
		MarketMaker: m.Address(),
		TokenIn:     req.TokenIn,
		TokenOut:    req.TokenOut,
		AmountIn:    req.AmountIn,
		AmountOut:   amountOut,
		Expiry:      resp.Expiry,
		QuoteID:     quoteID,
	}
	if err := params.Validate(); err != nil {
		return zero, err
	}

	digest := domain.HashQuote(e.cfg.Domain, &params)
	signer, err := recoverSigner(digest, sig)
	if err != nil {
		return zero, err
	}
	if signer != m.Address() {
		return zero, fmt.Errorf("signature by %s, expected %s", signer.Hex(), m.Address().Hex())
	}

	return domain.SignedQuote{Params: params, Signature: sig}, nil
}

// recoverSigner recovers the ECDSA signer of a 65-byte signature over the
// digest. Contract signatures are a settlement concern; the engine only
// pre-flights plain ECDSA.
func recoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature length %d, want 65", len(sig))
	}
	s := make([]byte, 65)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
