package chain

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crest_go/internal/event"
)

var ErrZeroWrapAmount = errors.New("wrap amount must be positive")

// WCBTC wraps the chain's native asset (cBTC) into a fungible token, 1:1
// backed. Total token supply always equals the native balance held by the
// wrapper.
type WCBTC struct {
	state *State
	token *Token
	log   *EventLog
}

// NewWCBTC deploys the wrapper and its backing token into the state.
func NewWCBTC(state *State, log *EventLog) *WCBTC {
	return &WCBTC{
		state: state,
		token: state.DeployToken("WCBTC"),
		log:   log,
	}
}

// Address returns the wrapper's (and its token's) address.
func (w *WCBTC) Address() common.Address { return w.token.Address() }

// Token returns the fungible representation's ledger.
func (w *WCBTC) Token() *Token { return w.token }

// Wrap accepts native asset from the caller and mints exactly that amount
// of WCBTC to the caller. No fee, no rounding.
func (w *WCBTC) Wrap(caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroWrapAmount
	}
	if err := w.state.TransferNative(caller, w.Address(), amount); err != nil {
		return err
	}
	w.token.Mint(caller, amount)
	w.emit(event.WrapEvent{
		BaseEvent: event.BaseEvent{Seq: w.log.nextSeq(), Ts: w.ts()},
		Account:   caller,
		Amount:    new(big.Int).Set(amount),
	})
	return nil
}

// Unwrap burns the caller's WCBTC and returns equal native asset. The burn
// happens before the native transfer: state change precedes external effect.
func (w *WCBTC) Unwrap(caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroWrapAmount
	}
	if err := w.token.Burn(caller, amount); err != nil {
		return err
	}
	if err := w.state.TransferNative(w.Address(), caller, amount); err != nil {
		// Backing invariant makes this unreachable; restore the burn so the
		// wrapper never under-reports supply if it ever happens.
		w.token.Mint(caller, amount)
		return err
	}
	w.emit(event.UnwrapEvent{
		BaseEvent: event.BaseEvent{Seq: w.log.nextSeq(), Ts: w.ts()},
		Account:   caller,
		Amount:    new(big.Int).Set(amount),
	})
	return nil
}

// Receive handles a plain native transfer to the wrapper with no calldata:
// it is treated as a Wrap for the sender.
func (w *WCBTC) Receive(caller common.Address, amount *big.Int) error {
	return w.Wrap(caller, amount)
}

func (w *WCBTC) emit(ev event.Event) { w.log.append(ev) }

func (w *WCBTC) ts() int64 {
	if t := w.state.Now(); t > 0 {
		return t * int64(time.Second/time.Microsecond)
	}
	return 0
}
