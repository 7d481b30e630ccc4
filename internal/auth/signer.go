package auth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs message hashes with a secp256k1 private key. The engine only
// verifies signatures; Signer exists for tests and operational tooling that
// need to produce valid signed messages.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner generates a fresh random keypair.
func NewSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// NewSignerFromHex loads a signer from a hex-encoded private key.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the wallet address for this key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces a 65-byte [R || S || V] signature over hash.
func (s *Signer) Sign(hash [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}
