package auth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
)

// DelegatedKeyAuthorization is a wallet-signed grant allowing a secondary key
// to sign orders on the wallet's behalf. The authorization's nonce timestamp
// anchors the grant in time: orders with nonces older than the grant are
// rejected, and invalidating the grant's nonce revokes the key.
type DelegatedKeyAuthorization struct {
	SignatureHashVersion uint8          `json:"signatureHashVersion"`
	Nonce                uuid.UUID      `json:"nonce"`
	Wallet               common.Address `json:"wallet"`
	DelegatedKey         common.Address `json:"delegatedKey"`
	ExpiresAtMs          int64          `json:"expiresAtMs"`
	Signature            []byte         `json:"signature"`
}

// Hash returns the canonical signing digest for the authorization.
func (a *DelegatedKeyAuthorization) Hash() [32]byte {
	return NewHasher("DelegatedKeyAuthorization").
		Uint8(a.SignatureHashVersion).
		UUID(a.Nonce).
		Address(a.Wallet).
		Address(a.DelegatedKey).
		Int64(a.ExpiresAtMs).
		Sum()
}

// DelegatedKey is the validated, stored form of an authorization.
type DelegatedKey struct {
	Key            common.Address `json:"key"`
	AuthorizedAtMs int64          `json:"authorizedAtMs"`
	ExpiresAtMs    int64          `json:"expiresAtMs"`
	NonceTsMs      int64          `json:"nonceTsMs"`
}

// ValidateAuthorization checks version, signature, and nonce, returning the
// storable key grant.
func ValidateAuthorization(a *DelegatedKeyAuthorization, nonces *NonceState, nowMs, propagationDelayMs int64) (*DelegatedKey, error) {
	if a.SignatureHashVersion != SignatureHashVersion {
		return nil, errs.Validation("signature hash version mismatch: got %d, want %d", a.SignatureHashVersion, SignatureHashVersion)
	}
	if a.DelegatedKey == (common.Address{}) {
		return nil, errs.Validation("delegated key must not be the zero address")
	}
	ts, err := NonceTimestampMs(a.Nonce)
	if err != nil {
		return nil, err
	}
	if err := nonces.ValidateNonce(a.Nonce, nowMs, propagationDelayMs); err != nil {
		return nil, err
	}
	if a.ExpiresAtMs <= ts {
		return nil, errs.Validation("delegated key expiry precedes authorization")
	}
	if err := VerifySignature(a.Hash(), a.Signature, a.Wallet); err != nil {
		return nil, errs.Validation("invalid delegated key authorization signature: %v", err)
	}
	return &DelegatedKey{
		Key:            a.DelegatedKey,
		AuthorizedAtMs: ts,
		ExpiresAtMs:    a.ExpiresAtMs,
		NonceTsMs:      ts,
	}, nil
}

// ValidateDelegatedUse checks whether a stored delegated key may sign a
// message whose nonce timestamp is msgNonceTsMs.
func (k *DelegatedKey) ValidateDelegatedUse(msgNonceTsMs, nowMs int64, nonces *NonceState, propagationDelayMs int64) error {
	if msgNonceTsMs < k.AuthorizedAtMs {
		return errs.Validation("order nonce predates delegated key authorization")
	}
	if nowMs > k.ExpiresAtMs {
		return errs.Validation("delegated key expired")
	}
	// Invalidating the wallet's nonces at or past the grant's own nonce
	// revokes the key.
	if k.NonceTsMs <= nonces.EffectiveCutoffMs(nowMs, propagationDelayMs) {
		return errs.Validation("delegated key authorization nonce invalidated")
	}
	return nil
}
