package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Message types carried in the Envelope over a maker link.
const (
	MsgAuth          = "auth"
	MsgQuoteRequest  = "quote_request"
	MsgQuoteResponse = "quote_response"
	MsgPing          = "ping"
	MsgPong          = "pong"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return &Envelope{Type: msgType, Data: data}, nil
}

// AuthMessage is sent by a market maker after the transport handshake to
// register its identity and declared asset-pair support.
type AuthMessage struct {
	MakerID        string   `json:"makerId"`
	Address        string   `json:"address"`    // settlement signing address, hex
	Credential     string   `json:"credential"` // shared-secret token
	SupportedPairs []string `json:"supportedPairs"`
}

// QuoteRequest is the engine -> maker solicitation. Amounts travel as decimal
// strings to avoid JSON number precision loss.
type QuoteRequest struct {
	RequestID string `json:"requestId"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	AmountIn  string `json:"amountIn"`
	User      string `json:"user"`
}

// QuoteResponse is the maker -> engine answer to a QuoteRequest.
type QuoteResponse struct {
	RequestID string `json:"requestId"`
	QuoteID   string `json:"quoteId"` // 32-byte hex
	AmountOut string `json:"amountOut"`
	Expiry    int64  `json:"expiry"`
	Signature string `json:"signature"` // hex over the EIP-712 quote digest
}

// PairKey normalizes an asset pair to the registry's canonical "IN/OUT" form.
func PairKey(tokenIn, tokenOut common.Address) string {
	return strings.ToLower(tokenIn.Hex()) + "/" + strings.ToLower(tokenOut.Hex())
}

// ParseAmount converts a decimal-string wire amount into a big.Int.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}

// ParseQuoteID decodes a 32-byte hex quote identifier.
func ParseQuoteID(s string) ([32]byte, error) {
	var id [32]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != 32 {
		return id, fmt.Errorf("malformed quoteId %q", s)
	}
	copy(id[:], b)
	return id, nil
}

// FormatQuoteID encodes a quote identifier for the wire.
func FormatQuoteID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
