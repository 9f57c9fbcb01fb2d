package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
)

// Token is an in-state fungible token ledger with ERC20 transfer semantics.
// The optional transfer hook lets tests model tokens whose transfers call
// back into the receiver (the reentrancy window settlement must guard).
type Token struct {
	symbol      string
	addr        common.Address
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int

	onTransfer func(from, to common.Address, amount *big.Int)
}

func newToken(symbol string, addr common.Address) *Token {
	return &Token{
		symbol:      symbol,
		addr:        addr,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// Address returns the token's deployed address.
func (t *Token) Address() common.Address { return t.addr }

// TotalSupply returns a copy of the total minted supply.
func (t *Token) TotalSupply() *big.Int { return new(big.Int).Set(t.totalSupply) }

// BalanceOf returns a copy of the holder's balance.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Allowance returns a copy of the spender's remaining allowance from owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// Approve sets the spender's allowance from owner.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

// Mint creates new supply credited to the holder.
func (t *Token) Mint(holder common.Address, amount *big.Int) {
	t.credit(holder, amount)
	t.totalSupply.Add(t.totalSupply, amount)
}

// Burn destroys supply held by the holder.
func (t *Token) Burn(holder common.Address, amount *big.Int) error {
	if err := t.debit(holder, amount); err != nil {
		return err
	}
	t.totalSupply.Sub(t.totalSupply, amount)
	return nil
}

// Transfer moves tokens directly from the caller's balance.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	if t.onTransfer != nil {
		t.onTransfer(from, to, amount)
	}
	return nil
}

// TransferFrom moves tokens from owner using spender's allowance.
func (t *Token) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	allowance := t.Allowance(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.debit(owner, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	t.allowances[owner][spender] = allowance.Sub(allowance, amount)
	if t.onTransfer != nil {
		t.onTransfer(owner, to, amount)
	}
	return nil
}

// SetTransferHook installs a callback fired after each transfer. Test-only
// instrument for modeling callback-style tokens.
func (t *Token) SetTransferHook(hook func(from, to common.Address, amount *big.Int)) {
	t.onTransfer = hook
}

func (t *Token) credit(addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	b, ok := t.balances[addr]
	if !ok {
		b = new(big.Int)
		t.balances[addr] = b
	}
	b.Add(b, amount)
}

func (t *Token) debit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	b, ok := t.balances[addr]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	return nil
}

type tokenSnap struct {
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

func (t *Token) snapshot() *tokenSnap {
	snap := &tokenSnap{
		totalSupply: new(big.Int).Set(t.totalSupply),
		balances:    make(map[common.Address]*big.Int, len(t.balances)),
		allowances:  make(map[common.Address]map[common.Address]*big.Int, len(t.allowances)),
	}
	for a, b := range t.balances {
		snap.balances[a] = new(big.Int).Set(b)
	}
	for owner, m := range t.allowances {
		mc := make(map[common.Address]*big.Int, len(m))
		for spender, a := range m {
			mc[spender] = new(big.Int).Set(a)
		}
		snap.allowances[owner] = mc
	}
	return snap
}

func (t *Token) restore(snap *tokenSnap) {
	t.totalSupply = new(big.Int).Set(snap.totalSupply)
	t.balances = make(map[common.Address]*big.Int, len(snap.balances))
	for a, b := range snap.balances {
		t.balances[a] = new(big.Int).Set(b)
	}
	t.allowances = make(map[common.Address]map[common.Address]*big.Int, len(snap.allowances))
	for owner, m := range snap.allowances {
		mc := make(map[common.Address]*big.Int, len(m))
		for spender, a := range m {
			mc[spender] = new(big.Int).Set(a)
		}
		t.allowances[owner] = mc
	}
}
