package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EIP-712 type strings. Off-chain signers and the settlement verifier must
// produce byte-identical digests, so these are fixed protocol constants.
const (
	domainTypeString = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	quoteTypeString  = "Quote(address user,address tokenIn,address tokenOut,uint256 amountIn,uint256 amountOut,uint256 expiry,bytes32 quoteId)"

	DomainName    = "Crest Settlement"
	DomainVersion = "1"
)

var (
	domainTypeHash = crypto.Keccak256([]byte(domainTypeString))
	quoteTypeHash  = crypto.Keccak256([]byte(quoteTypeString))
)

// SigningDomain identifies the settlement deployment a quote is bound to.
// Quotes signed for one domain never verify under another.
type SigningDomain struct {
	ChainID           uint64
	VerifyingContract common.Address
}

// Separator computes the EIP-712 domain separator.
func (d SigningDomain) Separator() common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(DomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		uint256Word(new(big.Int).SetUint64(d.ChainID)),
		addressWord(d.VerifyingContract),
	))
}

// HashQuote computes the EIP-712 digest of a quote under the given domain:
// keccak256(0x19 0x01 || domainSeparator || structHash).
func HashQuote(d SigningDomain, q *QuoteParams) common.Hash {
	structHash := crypto.Keccak256(
		quoteTypeHash,
		addressWord(q.User),
		addressWord(q.TokenIn),
		addressWord(q.TokenOut),
		uint256Word(q.AmountIn),
		uint256Word(q.AmountOut),
		uint256Word(big.NewInt(q.Expiry)),
		q.QuoteID[:],
	)
	sep := d.Separator()
	return common.BytesToHash(crypto.Keccak256(
		[]byte{0x19, 0x01},
		sep[:],
		structHash,
	))
}

// uint256Word ABI-encodes an unsigned integer into a 32-byte word.
func uint256Word(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// addressWord ABI-encodes an address into a 32-byte word.
func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}
