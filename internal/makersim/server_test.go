package makersim

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"crest_go/internal/domain"
	"crest_go/internal/signer"
)

var simDomain = domain.SigningDomain{
	ChainID:           5115,
	VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000005e7"),
}

func startSim(t *testing.T, spreadBps int64) (*httptest.Server, *signer.LocalWallet) {
	t.Helper()
	wallet, err := signer.NewLocalWallet()
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}

	sim := New(Config{
		MakerID:    "sim-1",
		Credential: "secret",
		Wallet:     wallet,
		Pairs:      []string{"0x1/0x2"},
		Price:      decimal.NewFromFloat(1.95),
		SpreadBps:  spreadBps,
		Domain:     simDomain,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	server := httptest.NewServer(sim)
	t.Cleanup(server.Close)
	return server, wallet
}

func dialSim(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(server.URL, "http://", "ws://", 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env domain.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func TestServer_AuthFirst(t *testing.T) {
	server, wallet := startSim(t, 0)
	conn := dialSim(t, server)

	env := readEnvelope(t, conn)
	if env.Type != domain.MsgAuth {
		t.Fatalf("first frame = %s, want auth", env.Type)
	}
	var auth domain.AuthMessage
	if err := json.Unmarshal(env.Data, &auth); err != nil {
		t.Fatalf("unmarshal auth: %v", err)
	}
	if auth.MakerID != "sim-1" || auth.Credential != "secret" {
		t.Errorf("auth = %+v", auth)
	}
	if common.HexToAddress(auth.Address) != wallet.Address() {
		t.Errorf("auth address = %s, want wallet address", auth.Address)
	}
}

func TestServer_SignedQuote(t *testing.T) {
	server, wallet := startSim(t, 30)
	conn := dialSim(t, server)
	readEnvelope(t, conn) // auth

	req := domain.QuoteRequest{
		RequestID: "req-1",
		TokenIn:   "0x1111111111111111111111111111111111111111",
		TokenOut:  "0x2222222222222222222222222222222222222222",
		AmountIn:  "1000000000000000000",
		User:      "0x00000000000000000000000000000000000000aa",
	}
	env, _ := domain.NewEnvelope(domain.MsgQuoteRequest, req)
	data, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := readEnvelope(t, conn)
	if got.Type != domain.MsgQuoteResponse {
		t.Fatalf("frame = %s, want quote_response", got.Type)
	}
	var resp domain.QuoteResponse
	if err := json.Unmarshal(got.Data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("requestId = %s", resp.RequestID)
	}

	// 1e18 * 1.95 * (1 - 30/10000) = 1.94415e18
	wantOut, _ := new(big.Int).SetString("1944150000000000000", 10)
	amountOut, err := domain.ParseAmount(resp.AmountOut)
	if err != nil {
		t.Fatalf("amountOut: %v", err)
	}
	if amountOut.Cmp(wantOut) != 0 {
		t.Errorf("amountOut = %s, want %s", amountOut, wantOut)
	}
	if resp.Expiry <= time.Now().Unix() {
		t.Errorf("expiry %d not in the future", resp.Expiry)
	}

	// The signature must recover to the maker's wallet.
	quoteID, err := domain.ParseQuoteID(resp.QuoteID)
	if err != nil {
		t.Fatalf("quoteId: %v", err)
	}
	amountIn, _ := domain.ParseAmount(req.AmountIn)
	params := domain.QuoteParams{
		User:        common.HexToAddress(req.User),
		MarketMaker: wallet.Address(),
		TokenIn:     common.HexToAddress(req.TokenIn),
		TokenOut:    common.HexToAddress(req.TokenOut),
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		Expiry:      resp.Expiry,
		QuoteID:     quoteID,
	}
	digest := domain.HashQuote(simDomain, &params)

	sig, err := hex.DecodeString(strings.TrimPrefix(resp.Signature, "0x"))
	if err != nil || len(sig) != 65 {
		t.Fatalf("signature: %v len=%d", err, len(sig))
	}
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != wallet.Address() {
		t.Error("signature does not recover to the maker wallet")
	}
}

func TestServer_PingPong(t *testing.T) {
	server, _ := startSim(t, 0)
	conn := dialSim(t, server)
	readEnvelope(t, conn) // auth

	env, _ := domain.NewEnvelope(domain.MsgPing, nil)
	data, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	if got := readEnvelope(t, conn); got.Type != domain.MsgPong {
		t.Errorf("frame = %s, want pong", got.Type)
	}
}
