package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"crest_go/internal/domain"
	"crest_go/internal/makersim"
	"crest_go/internal/signer"
)

// makersim runs a standalone simulated market maker. Point a Crest node's
// makers config at its listen address to get signed quotes.
func main() {
	var (
		listen   = flag.String("listen", ":9001", "listen address")
		makerID  = flag.String("id", "sim-maker", "maker identifier")
		price    = flag.String("price", "1.95", "tokenOut units per tokenIn unit")
		spread   = flag.Int64("spread", 30, "spread in basis points")
		delay    = flag.Duration("delay", 0, "artificial pricing delay")
		pairs    = flag.String("pairs", "", "comma-separated tokenIn/tokenOut pairs")
		chainID  = flag.Uint64("chain", 5115, "settlement chain id")
		contract = flag.String("contract", "", "settlement contract address")
		keyHex   = flag.String("key", "", "hex private key (random if empty)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var wallet *signer.LocalWallet
	var err error
	if *keyHex != "" {
		wallet, err = signer.FromHex(*keyHex)
	} else {
		wallet, err = signer.NewLocalWallet()
	}
	if err != nil {
		slog.Error("Wallet setup failed", "err", err)
		os.Exit(1)
	}

	px, err := decimal.NewFromString(*price)
	if err != nil {
		slog.Error("Bad price", "price", *price, "err", err)
		os.Exit(1)
	}

	var pairList []string
	if *pairs != "" {
		pairList = strings.Split(*pairs, ",")
	}

	sim := makersim.New(makersim.Config{
		MakerID:       *makerID,
		Credential:    os.Getenv("CREST_AUTH_SECRET"),
		Wallet:        wallet,
		Pairs:         pairList,
		Price:         px,
		SpreadBps:     *spread,
		ResponseDelay: *delay,
		Domain: domain.SigningDomain{
			ChainID:           *chainID,
			VerifyingContract: common.HexToAddress(*contract),
		},
	}, logger)

	slog.Info("Maker simulator listening",
		"addr", *listen,
		"id", *makerID,
		"address", wallet.Address().Hex(),
		"price", px.String(),
		"spreadBps", *spread)

	if err := http.ListenAndServe(*listen, sim); err != nil {
		slog.Error("Server failed", "err", err)
		os.Exit(1)
	}
}
