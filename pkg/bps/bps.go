package bps

import (
	"math/big"
)

// Denominator is the basis-point scale: 10000 bps = 100%.
const Denominator = 10000

// MaxFeeBps is the hard upper bound for any configurable fee rate (10%).
const MaxFeeBps = 1000

// Fee computes amount * bps / 10000 with floor division.
// The result is a fresh big.Int; amount is never mutated.
func Fee(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return fee.Div(fee, big.NewInt(Denominator))
}

// Split divides amount into (userReceive, fee) for the given rate.
// Invariant: userReceive + fee == amount, exactly. Fee rounds down, so the
// truncation remainder always lands on the user side.
func Split(amount *big.Int, bps uint64) (userReceive, fee *big.Int) {
	fee = Fee(amount, bps)
	userReceive = new(big.Int).Sub(amount, fee)
	return userReceive, fee
}

// ValidRate reports whether a fee rate is within the allowed bound.
func ValidRate(bps uint64) bool {
	return bps <= MaxFeeBps
}
