package chain

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crest_go/internal/domain"
	"crest_go/internal/event"
	"crest_go/pkg/bps"
)

var (
	ErrNotQuoteUser          = errors.New("caller is not the quote user")
	ErrAlreadyExecuted       = errors.New("quote already executed")
	ErrQuoteExpired          = errors.New("quote expired")
	ErrInvalidMakerSignature = errors.New("invalid market maker signature")
	ErrInvalidUserSignature  = errors.New("invalid user signature")
	ErrNativeInputRelayed    = errors.New("native input unsupported in relayer mode")
	ErrBadNativeAmount       = errors.New("attached native amount does not match amountIn")
	ErrUnexpectedValue       = errors.New("unexpected native value attached")
	ErrReentrantCall         = errors.New("reentrant settlement call")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrFeeAboveCap           = errors.New("fee exceeds maximum basis points")
	ErrNothingToWithdraw     = errors.New("no accumulated fees for asset")
	ErrZeroRecipient         = errors.New("withdrawal recipient is the zero address")
	ErrUnknownToken          = errors.New("token not deployed on this chain")
)

// Call carries the transaction context of a settlement invocation: who sent
// it and how much native asset rides along.
type Call struct {
	Caller common.Address
	Value  *big.Int
}

func (c Call) value() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// Settlement executes signed quotes atomically: dual/single signature
// verification, replay protection through the quote ledger, native-asset
// wrapping and fee extraction. Every entry point is all-or-nothing; any
// failure restores the entry snapshot.
type Settlement struct {
	addr    common.Address
	owner   common.Address
	feeBps  uint64
	state   *State
	ledger  *QuoteLedger
	wrapper *WCBTC
	ver     *Verifier
	dom     domain.SigningDomain
	log     *EventLog

	// txMu serializes top-level transactions the way the host chain does.
	// entered catches nested re-entry from token callbacks inside a
	// transaction, where txMu is already held by the outer call.
	txMu    sync.Mutex
	entered bool
}

// NewSettlement deploys the settlement contract into the state.
func NewSettlement(state *State, wrapper *WCBTC, ledger *QuoteLedger, log *EventLog,
	owner common.Address, feeBps uint64, chainID uint64) (*Settlement, error) {

	if owner == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if !bps.ValidRate(feeBps) {
		return nil, ErrFeeAboveCap
	}
	s := &Settlement{
		addr:    state.nextAddress(),
		owner:   owner,
		feeBps:  feeBps,
		state:   state,
		ledger:  ledger,
		wrapper: wrapper,
		ver:     NewVerifier(state),
		log:     log,
	}
	s.dom = domain.SigningDomain{ChainID: chainID, VerifyingContract: s.addr}
	return s, nil
}

// Address returns the contract's deployed address.
func (s *Settlement) Address() common.Address { return s.addr }

// Domain returns the EIP-712 signing domain off-chain signers must use.
func (s *Settlement) Domain() domain.SigningDomain { return s.dom }

// FeeBasisPoints returns the current protocol fee rate.
func (s *Settlement) FeeBasisPoints() uint64 {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.feeBps
}

// Verifier exposes the read-only signature verifier for off-chain
// pre-flight checks against the same state.
func (s *Settlement) Verifier() *Verifier { return s.ver }

// SettleRFQT is trader-initiated settlement: the quote user submits the
// transaction with the market maker's signature. Native tokenIn is allowed;
// the attached value must equal amountIn exactly.
func (s *Settlement) SettleRFQT(call Call, p domain.QuoteParams, makerSig []byte) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.settle(call, p, makerSig, nil, true)
}

// SettleRFQM is relayer-initiated settlement: any caller may submit with
// both the market maker's and the user's signatures. Native tokenIn is
// rejected before any signature check.
func (s *Settlement) SettleRFQM(call Call, p domain.QuoteParams, makerSig, userSig []byte) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.settle(call, p, makerSig, userSig, false)
}

// settle runs one settlement transaction under snapshot protection.
// Top-level callers hold txMu, so entered is race-free; a nested call from
// a token callback runs on the owning goroutine and trips the flag.
func (s *Settlement) settle(call Call, p domain.QuoteParams, makerSig, userSig []byte, traderInitiated bool) error {
	if s.entered {
		return ErrReentrantCall
	}
	s.entered = true
	defer func() { s.entered = false }()

	rev := s.takeRevision()
	if err := s.execute(call, p, makerSig, userSig, traderInitiated); err != nil {
		s.revert(rev)
		return err
	}
	s.log.commit()
	return nil
}

func (s *Settlement) execute(call Call, p domain.QuoteParams, makerSig, userSig []byte, traderInitiated bool) error {
	if !traderInitiated && p.IsNativeIn() {
		return ErrNativeInputRelayed
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if traderInitiated && call.Caller != p.User {
		return ErrNotQuoteUser
	}

	// Native value must be exactly amountIn in the trader/native case and
	// absent everywhere else, checked before any transfer.
	if traderInitiated && p.IsNativeIn() {
		if call.value().Cmp(p.AmountIn) != 0 {
			return ErrBadNativeAmount
		}
	} else if call.value().Sign() != 0 {
		return ErrUnexpectedValue
	}

	if s.ledger.IsExecuted(p.QuoteID) {
		return ErrAlreadyExecuted
	}
	if s.state.Now() > p.Expiry {
		return ErrQuoteExpired
	}

	digest := domain.HashQuote(s.dom, &p)
	if !s.ver.Verify(p.MarketMaker, digest, makerSig) {
		return ErrInvalidMakerSignature
	}
	if !traderInitiated && !s.ver.Verify(p.User, digest, userSig) {
		return ErrInvalidUserSignature
	}

	// Consume the id before any external transfer to close the
	// replay/reentrancy window.
	if err := s.ledger.MarkExecuted(p.QuoteID); err != nil {
		return ErrAlreadyExecuted
	}

	if err := s.moveInput(call, &p); err != nil {
		return err
	}
	if err := s.moveOutput(&p); err != nil {
		return err
	}

	s.log.append(event.SettlementEvent{
		BaseEvent:         event.BaseEvent{Seq: s.log.nextSeq(), Ts: s.ts()},
		QuoteID:           p.QuoteID,
		User:              p.User,
		MarketMaker:       p.MarketMaker,
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		AmountIn:          new(big.Int).Set(p.AmountIn),
		AmountOut:         new(big.Int).Set(p.AmountOut),
		IsTraderInitiated: traderInitiated,
	})
	return nil
}

// moveInput transfers amountIn of tokenIn from the user to the market maker,
// wrapping first when the input is native.
func (s *Settlement) moveInput(call Call, p *domain.QuoteParams) error {
	if p.IsNativeIn() {
		if err := s.state.TransferNative(call.Caller, s.addr, call.value()); err != nil {
			return fmt.Errorf("pull native input: %w", err)
		}
		if err := s.wrapper.Wrap(s.addr, p.AmountIn); err != nil {
			return fmt.Errorf("wrap input: %w", err)
		}
		if err := s.wrapper.Token().Transfer(s.addr, p.MarketMaker, p.AmountIn); err != nil {
			return fmt.Errorf("forward wrapped input: %w", err)
		}
		return nil
	}

	token := s.state.TokenAt(p.TokenIn)
	if token == nil {
		return ErrUnknownToken
	}
	if err := token.TransferFrom(s.addr, p.User, p.MarketMaker, p.AmountIn); err != nil {
		return fmt.Errorf("pull token input: %w", err)
	}
	return nil
}

// moveOutput pulls amountOut of tokenOut from the market maker, retains the
// protocol fee, and delivers the remainder to the user (unwrapping when the
// output is native).
func (s *Settlement) moveOutput(p *domain.QuoteParams) error {
	userReceive, fee := bps.Split(p.AmountOut, s.feeBps)

	if p.IsNativeOut() {
		wtoken := s.wrapper.Token()
		if err := wtoken.TransferFrom(s.addr, p.MarketMaker, s.addr, p.AmountOut); err != nil {
			return fmt.Errorf("pull wrapped output: %w", err)
		}
		if err := s.wrapper.Unwrap(s.addr, p.AmountOut); err != nil {
			return fmt.Errorf("unwrap output: %w", err)
		}
		if err := s.state.TransferNative(s.addr, p.User, userReceive); err != nil {
			return fmt.Errorf("deliver native output: %w", err)
		}
		s.ledger.CreditFee(domain.NativeToken, fee)
		return nil
	}

	token := s.state.TokenAt(p.TokenOut)
	if token == nil {
		return ErrUnknownToken
	}
	if err := token.TransferFrom(s.addr, p.MarketMaker, s.addr, p.AmountOut); err != nil {
		return fmt.Errorf("pull token output: %w", err)
	}
	if err := token.Transfer(s.addr, p.User, userReceive); err != nil {
		return fmt.Errorf("deliver token output: %w", err)
	}
	s.ledger.CreditFee(p.TokenOut, fee)
	return nil
}

// SetFeeBasisPoints updates the protocol fee rate within the hard cap.
// Owner-gated; emits a change event recording old and new values.
func (s *Settlement) SetFeeBasisPoints(caller common.Address, newBps uint64) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if caller != s.owner {
		return ErrNotOwner
	}
	if !bps.ValidRate(newBps) {
		return ErrFeeAboveCap
	}

	old := s.feeBps
	s.feeBps = newBps
	s.log.append(event.FeeChangeEvent{
		BaseEvent: event.BaseEvent{Seq: s.log.nextSeq(), Ts: s.ts()},
		OldFeeBps: old,
		NewFeeBps: newBps,
	})
	return nil
}

// WithdrawFees zeroes the ledger entry for one asset and transfers the full
// accumulated amount to the recipient. Owner-gated.
func (s *Settlement) WithdrawFees(caller, asset, recipient common.Address) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if caller != s.owner {
		return ErrNotOwner
	}
	if recipient == (common.Address{}) {
		return ErrZeroRecipient
	}
	if s.ledger.FeeBalance(asset).Sign() == 0 {
		return ErrNothingToWithdraw
	}

	rev := s.takeRevision()
	amount := s.ledger.TakeFee(asset)

	var err error
	if asset == domain.NativeToken {
		err = s.state.TransferNative(s.addr, recipient, amount)
	} else if token := s.state.TokenAt(asset); token != nil {
		err = token.Transfer(s.addr, recipient, amount)
	} else {
		err = ErrUnknownToken
	}
	if err != nil {
		s.revert(rev)
		return fmt.Errorf("withdraw fees: %w", err)
	}

	s.log.append(event.FeeWithdrawEvent{
		BaseEvent: event.BaseEvent{Seq: s.log.nextSeq(), Ts: s.ts()},
		Asset:     asset,
		Recipient: recipient,
		Amount:    amount,
	})
	s.log.commit()
	return nil
}

// revision captures everything a failed transaction must roll back.
type revision struct {
	state     *stateSnap
	ledger    *ledgerSnap
	eventMark int
	seqMark   uint64
}

func (s *Settlement) takeRevision() revision {
	return revision{
		state:     s.state.snapshot(),
		ledger:    s.ledger.snapshot(),
		eventMark: s.log.mark(),
		seqMark:   s.log.seq,
	}
}

func (s *Settlement) revert(rev revision) {
	s.state.restore(rev.state)
	s.ledger.restore(rev.ledger)
	s.log.revertTo(rev.eventMark, rev.seqMark)
}

func (s *Settlement) ts() int64 {
	return s.state.Now() * int64(time.Second/time.Microsecond)
}
