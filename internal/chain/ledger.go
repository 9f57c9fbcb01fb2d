package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrQuoteConsumed = errors.New("quoteId already consumed")

// QuoteLedger is the settlement contract's storage: the executed-set of
// one-time quote identifiers and the accumulated per-asset fee balances.
// It is an explicit object so tests can instantiate isolated ledgers; it is
// covered by the settlement snapshot, so a reverted execution never leaves
// a consumed id or a credited fee behind.
type QuoteLedger struct {
	executed map[[32]byte]bool
	fees     map[common.Address]*big.Int
}

// NewQuoteLedger creates an empty ledger.
func NewQuoteLedger() *QuoteLedger {
	return &QuoteLedger{
		executed: make(map[[32]byte]bool),
		fees:     make(map[common.Address]*big.Int),
	}
}

// IsExecuted reports whether the quote id has been consumed.
func (l *QuoteLedger) IsExecuted(id [32]byte) bool { return l.executed[id] }

// MarkExecuted consumes the quote id. Must be called before any external
// transfer so the replay window is closed ahead of reentrant callbacks.
func (l *QuoteLedger) MarkExecuted(id [32]byte) error {
	if l.executed[id] {
		return ErrQuoteConsumed
	}
	l.executed[id] = true
	return nil
}

// CreditFee accumulates a collected fee for the asset.
func (l *QuoteLedger) CreditFee(asset common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	b, ok := l.fees[asset]
	if !ok {
		b = new(big.Int)
		l.fees[asset] = b
	}
	b.Add(b, amount)
}

// FeeBalance returns a copy of the unclaimed fee balance for the asset.
func (l *QuoteLedger) FeeBalance(asset common.Address) *big.Int {
	if b, ok := l.fees[asset]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// TakeFee zeroes the asset's fee balance and returns the amount taken.
func (l *QuoteLedger) TakeFee(asset common.Address) *big.Int {
	b, ok := l.fees[asset]
	if !ok {
		return new(big.Int)
	}
	taken := new(big.Int).Set(b)
	b.SetInt64(0)
	return taken
}

type ledgerSnap struct {
	executed map[[32]byte]bool
	fees     map[common.Address]*big.Int
}

func (l *QuoteLedger) snapshot() *ledgerSnap {
	snap := &ledgerSnap{
		executed: make(map[[32]byte]bool, len(l.executed)),
		fees:     make(map[common.Address]*big.Int, len(l.fees)),
	}
	for id := range l.executed {
		snap.executed[id] = true
	}
	for a, b := range l.fees {
		snap.fees[a] = new(big.Int).Set(b)
	}
	return snap
}

func (l *QuoteLedger) restore(snap *ledgerSnap) {
	l.executed = make(map[[32]byte]bool, len(snap.executed))
	for id := range snap.executed {
		l.executed[id] = true
	}
	l.fees = make(map[common.Address]*big.Int, len(snap.fees))
	for a, b := range snap.fees {
		l.fees[a] = new(big.Int).Set(b)
	}
}
