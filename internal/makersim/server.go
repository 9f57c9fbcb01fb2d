package makersim

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"crest_go/internal/domain"
	"crest_go/internal/signer"
)

// Config parameterizes one simulated market maker.
type Config struct {
	MakerID    string
	Credential string
	Wallet     signer.Wallet
	Pairs      []string

	// Price is tokenOut units per tokenIn unit; SpreadBps is skimmed off.
	Price     decimal.Decimal
	SpreadBps int64

	QuoteTTL time.Duration
	Domain   domain.SigningDomain

	// ResponseDelay simulates maker-side pricing latency.
	ResponseDelay time.Duration
}

// Server is a WebSocket market maker: it authenticates on connect, answers
// pings, and prices every quote request at Price minus SpreadBps, signing
// with its wallet. Used by cmd/makersim and the integration binary.
type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New builds a simulated maker.
func New(cfg Config, log *slog.Logger) *Server {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 5 * time.Minute
	}
	return &Server{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the maker session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "id", s.cfg.MakerID, "err", err)
		return
	}
	defer conn.Close()
	s.session(conn)
}

func (s *Server) session(conn *websocket.Conn) {
	if err := s.send(conn, domain.MsgAuth, domain.AuthMessage{
		MakerID:        s.cfg.MakerID,
		Address:        s.cfg.Wallet.Address().Hex(),
		Credential:     s.cfg.Credential,
		SupportedPairs: s.cfg.Pairs,
	}); err != nil {
		return
	}
	s.log.Info("Session started", "id", s.cfg.MakerID)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.log.Info("Session closed", "id", s.cfg.MakerID, "err", err)
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		switch env.Type {
		case domain.MsgPing:
			s.send(conn, domain.MsgPong, nil)
		case domain.MsgQuoteRequest:
			var req domain.QuoteRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				continue
			}
			s.quote(conn, req)
		}
	}
}

// quote prices one request and answers with a signed quote.
func (s *Server) quote(conn *websocket.Conn, req domain.QuoteRequest) {
	if s.cfg.ResponseDelay > 0 {
		time.Sleep(s.cfg.ResponseDelay)
	}

	amountIn, err := domain.ParseAmount(req.AmountIn)
	if err != nil || amountIn.Sign() <= 0 {
		s.log.Warn("Unpriceable request", "id", s.cfg.MakerID, "amountIn", req.AmountIn)
		return
	}

	gross := decimal.NewFromBigInt(amountIn, 0).Mul(s.cfg.Price)
	net := gross.Mul(decimal.NewFromInt(10000 - s.cfg.SpreadBps)).
		Div(decimal.NewFromInt(10000)).Floor()
	amountOut := net.BigInt()
	if amountOut.Sign() <= 0 {
		return
	}

	var quoteID [32]byte
	if _, err := rand.Read(quoteID[:]); err != nil {
		return
	}
	expiry := time.Now().Add(s.cfg.QuoteTTL).Unix()

	params := domain.QuoteParams{
		User:        hexAddr(req.User),
		MarketMaker: s.cfg.Wallet.Address(),
		TokenIn:     hexAddr(req.TokenIn),
		TokenOut:    hexAddr(req.TokenOut),
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		Expiry:      expiry,
		QuoteID:     quoteID,
	}
	sig, err := s.cfg.Wallet.SignHash(domain.HashQuote(s.cfg.Domain, &params))
	if err != nil {
		s.log.Warn("Signing failed", "id", s.cfg.MakerID, "err", err)
		return
	}

	s.send(conn, domain.MsgQuoteResponse, domain.QuoteResponse{
		RequestID: req.RequestID,
		QuoteID:   domain.FormatQuoteID(quoteID),
		AmountOut: amountOut.String(),
		Expiry:    expiry,
		Signature: "0x" + hex.EncodeToString(sig),
	})
	s.log.Debug("Quoted", "id", s.cfg.MakerID, "requestId", req.RequestID, "amountOut", amountOut)
}

func hexAddr(s string) common.Address { return common.HexToAddress(s) }

func (s *Server) send(conn *websocket.Conn, msgType string, payload any) error {
	env, err := domain.NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
