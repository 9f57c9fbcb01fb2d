package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"crest_go/internal/chain"
	"crest_go/internal/connmgr"
	"crest_go/internal/domain"
	"crest_go/internal/engine"
	"crest_go/internal/event"
	"crest_go/internal/infra"
	"crest_go/internal/makersim"
	"crest_go/internal/signer"
	"crest_go/internal/storage"
)

const (
	feeBps      = 30
	chainID     = 5115
	makerCount  = 3
	authSecret  = "integration-secret"
	oneCBTC     = "1000000000000000000"
	usdcPerBTC  = 1950.0
	quoteWindow = 500 * time.Millisecond
)

// The integration binary runs one full trade lifecycle in-process: three
// simulated makers, an RFQ round over real websockets, and settlement of
// the winning quote against the chain model.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting Crest integration round...")

	if err := run(logger); err != nil {
		slog.Error("❌ Integration round failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✨ Integration round complete")
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Chain model: state, event WAL, token, wrapper, settlement.
	store, err := storage.NewEventStore(filepath.Join(os.TempDir(), fmt.Sprintf("crest_integration_%d.db", os.Getpid())))
	if err != nil {
		return err
	}
	defer store.Close()

	state := chain.NewState()
	state.SetBlockTime(time.Now().Unix())
	log := chain.NewEventLog(func(ev event.Event) {
		if err := store.SaveEvent(ctx, ev); err != nil {
			slog.Warn("WAL append failed", "err", err)
		}
	})
	wrapper := chain.NewWCBTC(state, log)
	ledger := chain.NewQuoteLedger()

	owner, err := signer.NewLocalWallet()
	if err != nil {
		return err
	}
	settlement, err := chain.NewSettlement(state, wrapper, ledger, log, owner.Address(), feeBps, chainID)
	if err != nil {
		return err
	}

	usdc := state.DeployToken("USDC")
	user, err := signer.NewLocalWallet()
	if err != nil {
		return err
	}

	amountIn, _ := new(big.Int).SetString(oneCBTC, 10)
	state.FundNative(user.Address(), amountIn)

	pair := domain.PairKey(domain.NativeToken, usdc.Address())

	// 2. Three makers with different spreads; tightest spread should win.
	spreads := []int64{30, 55, 80}
	makerURLs := make([]string, makerCount)
	for i := 0; i < makerCount; i++ {
		wallet, err := signer.NewLocalWallet()
		if err != nil {
			return err
		}
		// Makers need USDC inventory and an allowance for settlement.
		supply, _ := new(big.Int).SetString("10000000000000000000000", 10)
		usdc.Mint(wallet.Address(), supply)
		usdc.Approve(wallet.Address(), settlement.Address(), supply)

		sim := makersim.New(makersim.Config{
			MakerID:    fmt.Sprintf("sim-%d", i+1),
			Credential: authSecret,
			Wallet:     wallet,
			Pairs:      []string{pair},
			Price:      decimal.NewFromFloat(usdcPerBTC),
			SpreadBps:  spreads[i],
			Domain:     settlement.Domain(),
		}, logger)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: sim}
		go srv.Serve(ln)
		defer srv.Close()
		makerURLs[i] = "ws://" + ln.Addr().String()
	}

	// 3. Node side: links, stats, engine.
	cfg := &infra.Config{}
	cfg.Auth.SharedSecret = authSecret
	cfg.Connection.PingIntervalSec = 30
	cfg.Connection.ReadTimeoutSec = 60
	cfg.Connection.UnstableAfterMissed = 2
	cfg.Connection.DisconnectAfterMissed = 4
	cfg.Connection.MaxReconnectAttempts = 5
	for i, url := range makerURLs {
		cfg.Makers = append(cfg.Makers, infra.MakerConfig{ID: fmt.Sprintf("sim-%d", i+1), WSURL: url})
	}

	mgr := connmgr.NewManager(cfg, logger)
	mgr.Start(ctx)
	defer mgr.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for len(mgr.Candidates(pair)) < makerCount && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if n := len(mgr.Candidates(pair)); n < makerCount {
		return fmt.Errorf("only %d/%d makers ready", n, makerCount)
	}
	slog.Info("✅ All makers authenticated")

	stats := domain.NewStatsBook()
	eng := engine.New(engine.NewLinkRegistry(mgr), stats, engine.Config{
		Window:        quoteWindow,
		MaxCandidates: 4,
		Weights:       engine.DefaultWeights,
		Domain:        settlement.Domain(),
	}, logger)

	// 4. RFQ round.
	res, err := eng.RequestQuote(ctx, engine.Request{
		TokenIn:  domain.NativeToken,
		TokenOut: usdc.Address(),
		AmountIn: amountIn,
		User:     user.Address(),
	})
	if err != nil {
		return err
	}
	if res.Outcome != engine.OutcomeQuote {
		return fmt.Errorf("no liquidity: pinged=%d responded=%d", res.Pinged, res.Responded)
	}
	slog.Info("✅ Quote selected",
		"maker", res.MakerID,
		"amountOut", res.Quote.Params.AmountOut,
		"latencyMs", res.Latency.Milliseconds())

	// 5. Settle the winning quote, trader-initiated with attached native value.
	err = settlement.SettleRFQT(
		chain.Call{Caller: user.Address(), Value: amountIn},
		res.Quote.Params,
		res.Quote.Signature,
	)
	if err != nil {
		return fmt.Errorf("settlement: %w", err)
	}

	userUSDC := usdc.BalanceOf(user.Address())
	fees := ledger.FeeBalance(usdc.Address())
	slog.Info("✅ Settled",
		"userUSDC", userUSDC,
		"protocolFees", fees,
		"userNative", state.NativeBalanceOf(user.Address()))

	lastSeq, err := store.GetLastSeq(ctx)
	if err != nil {
		return err
	}
	settled, err := store.LoadSettlements(ctx, 1)
	if err != nil {
		return err
	}
	slog.Info("✅ WAL", "lastSeq", lastSeq, "settlements", len(settled))

	if userUSDC.Sign() <= 0 || fees.Sign() <= 0 || len(settled) != 1 {
		return fmt.Errorf("inconsistent outcome: usdc=%s fees=%s settlements=%d", userUSDC, fees, len(settled))
	}
	return nil
}
