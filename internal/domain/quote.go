package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel address denoting the chain's native asset
// (cBTC) rather than a token contract.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

var (
	ErrZeroAmountIn   = errors.New("amountIn must be positive")
	ErrZeroAmountOut  = errors.New("amountOut must be positive")
	ErrSameToken      = errors.New("tokenIn and tokenOut must differ")
	ErrMissingUser    = errors.New("user address is required")
	ErrMissingMaker   = errors.New("market maker address is required")
)

// QuoteParams is the atomic unit of a trade agreement. Once signed it is
// immutable; the QuoteID is consumable exactly once by settlement.
type QuoteParams struct {
	User        common.Address
	MarketMaker common.Address
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *big.Int
	AmountOut   *big.Int
	Expiry      int64 // unix seconds, absolute
	QuoteID     [32]byte
}

// Validate checks structural validity. Temporal checks (expiry vs. block
// time) belong to settlement, not here.
func (q *QuoteParams) Validate() error {
	if q.User == (common.Address{}) {
		return ErrMissingUser
	}
	if q.MarketMaker == (common.Address{}) {
		return ErrMissingMaker
	}
	if q.TokenIn == q.TokenOut {
		return ErrSameToken
	}
	if q.AmountIn == nil || q.AmountIn.Sign() <= 0 {
		return ErrZeroAmountIn
	}
	if q.AmountOut == nil || q.AmountOut.Sign() <= 0 {
		return ErrZeroAmountOut
	}
	return nil
}

// IsNativeIn reports whether the input leg is the native asset.
func (q *QuoteParams) IsNativeIn() bool { return q.TokenIn == NativeToken }

// IsNativeOut reports whether the output leg is the native asset.
func (q *QuoteParams) IsNativeOut() bool { return q.TokenOut == NativeToken }

func (q *QuoteParams) String() string {
	return fmt.Sprintf("quote %x: %s %s -> %s %s (user=%s maker=%s exp=%d)",
		q.QuoteID[:4], q.AmountIn, q.TokenIn.Hex(), q.AmountOut, q.TokenOut.Hex(),
		q.User.Hex(), q.MarketMaker.Hex(), q.Expiry)
}

// SignedQuote pairs immutable quote parameters with the market maker's
// signature over their EIP-712 digest.
type SignedQuote struct {
	Params    QuoteParams
	Signature []byte
}
