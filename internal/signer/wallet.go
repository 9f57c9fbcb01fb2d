package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet produces settlement signatures given a 32-byte digest. It is the
// boundary to whatever key management the operator runs; the engine and the
// maker simulator only see this interface.
type Wallet interface {
	Address() common.Address
	SignHash(hash common.Hash) ([]byte, error)
}

// LocalWallet signs with an in-memory secp256k1 key. Used by the maker
// simulator and tests.
type LocalWallet struct {
	priv *ecdsa.PrivateKey
}

// NewLocalWallet generates a fresh random key.
func NewLocalWallet() (*LocalWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &LocalWallet{priv: key}, nil
}

// FromHex loads a wallet from a hex-encoded private key.
func FromHex(hexKey string) (*LocalWallet, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &LocalWallet{priv: key}, nil
}

// Address returns the wallet's signing address.
func (w *LocalWallet) Address() common.Address {
	return crypto.PubkeyToAddress(w.priv.PublicKey)
}

// SignHash signs the digest, returning a 65-byte r||s||v signature with the
// conventional 27/28 recovery id.
func (w *LocalWallet) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], w.priv)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
