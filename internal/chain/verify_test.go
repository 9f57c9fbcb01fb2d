package chain

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"crest_go/internal/signer"
)

type stubValidator struct {
	magic [4]byte
	err   error
	panic bool
}

func (v *stubValidator) IsValidSignature(hash common.Hash, sig []byte) ([4]byte, error) {
	if v.panic {
		panic("validator exploded")
	}
	return v.magic, v.err
}

func testDigest() common.Hash {
	return common.BytesToHash(crypto.Keccak256([]byte("crest verify test")))
}

func TestVerifyECDSA(t *testing.T) {
	state := NewState()
	ver := NewVerifier(state)

	w, err := signer.NewLocalWallet()
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	other, _ := signer.NewLocalWallet()

	digest := testDigest()
	sig, err := w.SignHash(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if !ver.Verify(w.Address(), digest, sig) {
		t.Error("valid signature rejected")
	}
	if ver.Verify(other.Address(), digest, sig) {
		t.Error("signature verified for wrong signer")
	}

	otherDigest := common.BytesToHash(crypto.Keccak256([]byte("different payload")))
	if ver.Verify(w.Address(), otherDigest, sig) {
		t.Error("signature verified over wrong digest")
	}
}

func TestVerifyECDSADoesNotMutateSignature(t *testing.T) {
	state := NewState()
	ver := NewVerifier(state)

	w, _ := signer.NewLocalWallet()
	digest := testDigest()
	sig, _ := w.SignHash(digest)

	before := make([]byte, len(sig))
	copy(before, sig)
	ver.Verify(w.Address(), digest, sig)

	for i := range sig {
		if sig[i] != before[i] {
			t.Fatal("Verify mutated the caller's signature")
		}
	}
}

func TestVerifyMalformed(t *testing.T) {
	state := NewState()
	ver := NewVerifier(state)
	w, _ := signer.NewLocalWallet()
	digest := testDigest()
	sig, _ := w.SignHash(digest)

	tests := []struct {
		name string
		sig  []byte
	}{
		{"empty", nil},
		{"zero length", []byte{}},
		{"garbage 65 bytes", make([]byte, 65)},
		{"bad recovery id", append(append([]byte{}, sig[:64]...), 0x63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ver.Verify(w.Address(), digest, tt.sig) {
				t.Error("malformed signature accepted")
			}
		})
	}
}

func TestVerifyContractSignature(t *testing.T) {
	digest := testDigest()
	contractSig := []byte("opaque contract proof") // not 65 bytes

	tests := []struct {
		name      string
		validator *stubValidator
		want      bool
	}{
		{"magic match", &stubValidator{magic: ValidSignatureMagic}, true},
		{"wrong magic", &stubValidator{magic: [4]byte{0xde, 0xad, 0xbe, 0xef}}, false},
		{"validator error", &stubValidator{magic: ValidSignatureMagic, err: errors.New("revert")}, false},
		{"validator panic", &stubValidator{panic: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState()
			contract := state.nextAddress()
			state.RegisterValidator(contract, tt.validator)

			ver := NewVerifier(state)
			if got := ver.Verify(contract, digest, contractSig); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyContractSignatureNoValidator(t *testing.T) {
	state := NewState()
	ver := NewVerifier(state)

	// 64 bytes: not an ECDSA signature, routes to the contract path, and no
	// validator is registered at the address.
	if ver.Verify(common.HexToAddress("0xabc"), testDigest(), make([]byte, 64)) {
		t.Error("signature accepted for address with no validator")
	}
}
