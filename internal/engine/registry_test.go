package engine

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crest_go/internal/connmgr"
	"crest_go/internal/domain"
	"crest_go/internal/infra"
	"crest_go/internal/makersim"
	"crest_go/internal/signer"
)

func TestLinkRegistry_ExposesReadyLinks(t *testing.T) {
	wallet, err := signer.NewLocalWallet()
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pair := domain.PairKey(testTokenIn, testTokenOut)

	sim := makersim.New(makersim.Config{
		MakerID:    "mm-sim",
		Credential: "secret",
		Wallet:     wallet,
		Pairs:      []string{pair},
		Price:      decimal.NewFromFloat(1.95),
		Domain:     testDomain,
	}, logger)
	server := httptest.NewServer(sim)
	t.Cleanup(server.Close)

	cfg := &infra.Config{}
	cfg.Auth.SharedSecret = "secret"
	cfg.Connection.PingIntervalSec = 30
	cfg.Connection.ReadTimeoutSec = 60
	cfg.Connection.UnstableAfterMissed = 2
	cfg.Connection.DisconnectAfterMissed = 4
	cfg.Connection.MaxReconnectAttempts = 5
	cfg.Makers = []infra.MakerConfig{{
		ID:    "mm-sim",
		WSURL: strings.Replace(server.URL, "http://", "ws://", 1),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := connmgr.NewManager(cfg, logger)
	mgr.Start(ctx)
	defer mgr.Stop()

	reg := NewLinkRegistry(mgr)
	deadline := time.Now().Add(3 * time.Second)
	for len(reg.Candidates(pair)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	makers := reg.Candidates(pair)
	if len(makers) != 1 {
		t.Fatalf("candidates = %d, want 1", len(makers))
	}
	if makers[0].ID() != "mm-sim" {
		t.Errorf("maker id = %s, want mm-sim", makers[0].ID())
	}
	if makers[0].Address() != wallet.Address() {
		t.Error("maker address does not match the simulator wallet")
	}

	if got := reg.Candidates("0xaaaa/0xbbbb"); len(got) != 0 {
		t.Errorf("undeclared pair returned %d makers", len(got))
	}
}
