package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Type defines the type of event.
type Type uint16

const (
	EvSettlement Type = iota + 1
	EvFeeChange
	EvFeeWithdraw
	EvWrap
	EvUnwrap
)

// Event is the interface for all settlement-chain events. Events form an
// append-only list produced by state transitions; indexers and tests read
// them, nothing mutates them.
type Event interface {
	GetSeq() uint64
	GetTs() int64 // unix microseconds
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64 { return e.Seq }
func (e BaseEvent) GetTs() int64   { return e.Ts }

// SettlementEvent records one executed trade.
type SettlementEvent struct {
	BaseEvent
	QuoteID           [32]byte       `json:"quoteId"`
	User              common.Address `json:"user"`
	MarketMaker       common.Address `json:"marketMaker"`
	TokenIn           common.Address `json:"tokenIn"`
	TokenOut          common.Address `json:"tokenOut"`
	AmountIn          *big.Int       `json:"amountIn"`
	AmountOut         *big.Int       `json:"amountOut"`
	IsTraderInitiated bool           `json:"isTraderInitiated"`
}

func (e SettlementEvent) GetType() Type { return EvSettlement }

// FeeChangeEvent records an owner fee-rate update.
type FeeChangeEvent struct {
	BaseEvent
	OldFeeBps uint64 `json:"oldFeeBps"`
	NewFeeBps uint64 `json:"newFeeBps"`
}

func (e FeeChangeEvent) GetType() Type { return EvFeeChange }

// FeeWithdrawEvent records an owner fee withdrawal.
type FeeWithdrawEvent struct {
	BaseEvent
	Asset     common.Address `json:"asset"`
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
}

func (e FeeWithdrawEvent) GetType() Type { return EvFeeWithdraw }

// WrapEvent records native asset wrapped into WCBTC.
type WrapEvent struct {
	BaseEvent
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

func (e WrapEvent) GetType() Type { return EvWrap }

// UnwrapEvent records WCBTC burned back to native asset.
type UnwrapEvent struct {
	BaseEvent
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

func (e UnwrapEvent) GetType() Type { return EvUnwrap }
