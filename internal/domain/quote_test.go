package domain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func validQuote() QuoteParams {
	return QuoteParams{
		User:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MarketMaker: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		TokenIn:     NativeToken,
		TokenOut:    common.HexToAddress("0x3333333333333333333333333333333333333333"),
		AmountIn:    big.NewInt(100),
		AmountOut:   big.NewInt(195000),
		Expiry:      1900000000,
		QuoteID:     [32]byte{0xAB},
	}
}

func TestQuoteParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*QuoteParams)
		wantErr error
	}{
		{"valid", func(q *QuoteParams) {}, nil},
		{"missing user", func(q *QuoteParams) { q.User = common.Address{} }, ErrMissingUser},
		{"missing maker", func(q *QuoteParams) { q.MarketMaker = common.Address{} }, ErrMissingMaker},
		{"same token", func(q *QuoteParams) { q.TokenOut = q.TokenIn }, ErrSameToken},
		{"nil amountIn", func(q *QuoteParams) { q.AmountIn = nil }, ErrZeroAmountIn},
		{"zero amountIn", func(q *QuoteParams) { q.AmountIn = big.NewInt(0) }, ErrZeroAmountIn},
		{"negative amountIn", func(q *QuoteParams) { q.AmountIn = big.NewInt(-5) }, ErrZeroAmountIn},
		{"zero amountOut", func(q *QuoteParams) { q.AmountOut = big.NewInt(0) }, ErrZeroAmountOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuote()
			tt.mutate(&q)
			err := q.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNativeSentinel(t *testing.T) {
	q := validQuote()
	if !q.IsNativeIn() {
		t.Error("tokenIn set to sentinel should report native")
	}
	if q.IsNativeOut() {
		t.Error("tokenOut is a token contract, not native")
	}
}
