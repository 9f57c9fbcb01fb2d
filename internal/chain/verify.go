package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SigLengthECDSA is the exact length of a simple secp256k1 signature
// (r || s || v). Any other non-zero length is treated as a contract
// signature.
const SigLengthECDSA = 65

// ValidSignatureMagic is the ERC-1271 success value a contract validator
// must return for a signature to count as valid.
var ValidSignatureMagic = [4]byte{0x16, 0x26, 0xba, 0x7e}

// SignatureValidator is the on-chain entry point of a smart-contract
// identity. Implementations may misbehave arbitrarily; the verifier treats
// every error and panic as an invalid signature.
type SignatureValidator interface {
	IsValidSignature(hash common.Hash, sig []byte) ([4]byte, error)
}

// Verifier validates simple-key and contract-based signatures against the
// chain state's validator registry. It is read-only and reusable for both
// off-chain pre-flight checks and authoritative settlement checks.
type Verifier struct {
	state *State
}

// NewVerifier binds a verifier to a chain state.
func NewVerifier(state *State) *Verifier {
	return &Verifier{state: state}
}

// Verify reports whether sig is a valid signature by signer over hash.
// Never panics and never mutates state.
func (v *Verifier) Verify(signer common.Address, hash common.Hash, sig []byte) bool {
	switch {
	case len(sig) == 0:
		return false
	case len(sig) == SigLengthECDSA:
		return verifyECDSA(signer, hash, sig)
	default:
		return v.verifyContract(signer, hash, sig)
	}
}

func verifyECDSA(signer common.Address, hash common.Hash, sig []byte) bool {
	// Normalize the recovery id: wallets emit 27/28, libsecp256k1 wants 0/1.
	// Copy first; verification must not mutate the caller's signature.
	norm := make([]byte, SigLengthECDSA)
	copy(norm, sig)
	if norm[64] >= 27 {
		norm[64] -= 27
	}
	if norm[64] > 1 {
		return false
	}

	pub, err := crypto.SigToPub(hash[:], norm)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == signer
}

func (v *Verifier) verifyContract(signer common.Address, hash common.Hash, sig []byte) (ok bool) {
	validator := v.state.ValidatorAt(signer)
	if validator == nil {
		return false
	}

	// A reverting validator must read as "invalid", never propagate.
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	magic, err := validator.IsValidSignature(hash, sig)
	if err != nil {
		return false
	}
	return magic == ValidSignatureMagic
}
