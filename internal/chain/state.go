package chain

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInsufficientNative = errors.New("insufficient native balance")
	ErrZeroAddress        = errors.New("zero address")
)

// State models the settlement chain's world state: native balances, deployed
// token ledgers, and registered contract signature validators. Execution is
// single-threaded per transaction; State itself performs no locking.
type State struct {
	blockTime  int64 // unix seconds
	nonce      uint64
	native     map[common.Address]*big.Int
	tokens     map[common.Address]*Token
	validators map[common.Address]SignatureValidator
}

// NewState creates an empty chain state.
func NewState() *State {
	return &State{
		native:     make(map[common.Address]*big.Int),
		tokens:     make(map[common.Address]*Token),
		validators: make(map[common.Address]SignatureValidator),
	}
}

// SetBlockTime sets the current block timestamp (unix seconds). The host
// chain guarantees it is monotonic; tests advance it explicitly.
func (s *State) SetBlockTime(t int64) { s.blockTime = t }

// Now returns the current block timestamp.
func (s *State) Now() int64 { return s.blockTime }

// nextAddress derives a fresh deterministic contract/account address.
func (s *State) nextAddress() common.Address {
	s.nonce++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.nonce)
	return common.BytesToAddress(crypto.Keccak256(buf[:])[12:])
}

// FundNative credits an account with native asset, for genesis/test setup.
func (s *State) FundNative(addr common.Address, amount *big.Int) {
	s.creditNative(addr, amount)
}

// NativeBalanceOf returns a copy of the account's native balance.
func (s *State) NativeBalanceOf(addr common.Address) *big.Int {
	if b, ok := s.native[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (s *State) creditNative(addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	b, ok := s.native[addr]
	if !ok {
		b = new(big.Int)
		s.native[addr] = b
	}
	b.Add(b, amount)
}

// TransferNative moves native asset between accounts, failing atomically on
// insufficient balance.
func (s *State) TransferNative(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	b, ok := s.native[from]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientNative
	}
	b.Sub(b, amount)
	s.creditNative(to, amount)
	return nil
}

// DeployToken deploys a fresh in-state token ledger at a derived address.
func (s *State) DeployToken(symbol string) *Token {
	t := newToken(symbol, s.nextAddress())
	s.tokens[t.addr] = t
	return t
}

// TokenAt returns the token deployed at addr, or nil.
func (s *State) TokenAt(addr common.Address) *Token {
	return s.tokens[addr]
}

// RegisterValidator installs a contract signature validator at addr.
func (s *State) RegisterValidator(addr common.Address, v SignatureValidator) {
	s.validators[addr] = v
}

// ValidatorAt returns the contract validator registered at addr, or nil.
func (s *State) ValidatorAt(addr common.Address) SignatureValidator {
	return s.validators[addr]
}

// stateSnap is a deep copy of all mutable world state.
type stateSnap struct {
	native map[common.Address]*big.Int
	tokens map[common.Address]*tokenSnap
}

func (s *State) snapshot() *stateSnap {
	snap := &stateSnap{
		native: make(map[common.Address]*big.Int, len(s.native)),
		tokens: make(map[common.Address]*tokenSnap, len(s.tokens)),
	}
	for a, b := range s.native {
		snap.native[a] = new(big.Int).Set(b)
	}
	for a, t := range s.tokens {
		snap.tokens[a] = t.snapshot()
	}
	return snap
}

func (s *State) restore(snap *stateSnap) {
	s.native = make(map[common.Address]*big.Int, len(snap.native))
	for a, b := range snap.native {
		s.native[a] = new(big.Int).Set(b)
	}
	for a, t := range s.tokens {
		if ts, ok := snap.tokens[a]; ok {
			t.restore(ts)
		}
	}
}
