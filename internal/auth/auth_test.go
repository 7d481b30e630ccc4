package auth_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
)

const propagationDelayMs = 60_000

func TestNonceTimestampRoundTrip(t *testing.T) {
	for _, ts := range []int64{0, 1, 1_700_000_000_000, 1_700_000_000_001} {
		n := auth.NewNonceAt(ts)
		if n.Version() != 1 {
			t.Fatalf("NewNonceAt produced version %d", n.Version())
		}
		got, err := auth.NonceTimestampMs(n)
		if err != nil {
			t.Fatalf("NonceTimestampMs: %v", err)
		}
		if got != ts {
			t.Errorf("timestamp round trip: got %d, want %d", got, ts)
		}
	}
}

func TestNonceTimestampRejectsNonV1(t *testing.T) {
	n := auth.NewNonceAt(1000)
	n[6] = (n[6] & 0x0f) | 0x40 // rewrite version to 4
	if _, err := auth.NonceTimestampMs(n); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for non-v1 nonce, got %v", err)
	}
}

func TestSignAndRecover(t *testing.T) {
	signer, err := auth.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	hash := auth.NewHasher("Test").String("payload").Sum()
	sig, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := auth.VerifySignature(hash, sig, signer.Address()); err != nil {
		t.Errorf("VerifySignature: %v", err)
	}
	other := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	if err := auth.VerifySignature(hash, sig, other); err == nil {
		t.Error("expected signer mismatch error")
	}
	// A different message must not verify against the old signature.
	hash2 := auth.NewHasher("Test").String("tampered").Sum()
	if err := auth.VerifySignature(hash2, sig, signer.Address()); err == nil {
		t.Error("expected verification failure for tampered message")
	}
}

func TestHasherFieldBoundaries(t *testing.T) {
	// Length prefixes must keep adjacent strings from aliasing.
	a := auth.NewHasher("T").String("ab").String("c").Sum()
	b := auth.NewHasher("T").String("a").String("bc").Sum()
	if a == b {
		t.Error("hash collision across string field boundaries")
	}
}

func TestNonceInvalidationPropagationDelay(t *testing.T) {
	var state auth.NonceState
	now := int64(1_000_000)

	if err := state.Schedule(now-100, now, propagationDelayMs); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// Before the delay elapses, an older nonce still validates.
	oldNonce := auth.NewNonceAt(now - 200)
	if err := state.ValidateNonce(oldNonce, now+propagationDelayMs-1, propagationDelayMs); err != nil {
		t.Errorf("nonce rejected before propagation delay elapsed: %v", err)
	}

	// After the delay, the same nonce is permanently unusable.
	if err := state.ValidateNonce(oldNonce, now+propagationDelayMs, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error after delay, got %v", err)
	}

	// Nonces past the cutoff keep working.
	newNonce := auth.NewNonceAt(now - 50)
	if err := state.ValidateNonce(newNonce, now+propagationDelayMs, propagationDelayMs); err != nil {
		t.Errorf("nonce past cutoff rejected: %v", err)
	}
}

func TestScheduleRules(t *testing.T) {
	var state auth.NonceState
	now := int64(1_000_000)

	if err := state.Schedule(now+1, now, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for future cutoff, got %v", err)
	}
	if err := state.Schedule(now-100, now, propagationDelayMs); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	// Second invalidation while one is pending conflicts.
	if err := state.Schedule(now-50, now+1, propagationDelayMs); !errs.IsKind(err, errs.KindConflict) {
		t.Errorf("expected conflict for overlapping invalidation, got %v", err)
	}
	// Once promoted, a further (higher) cutoff is accepted.
	later := now + propagationDelayMs
	if err := state.Schedule(now-10, later, propagationDelayMs); err != nil {
		t.Errorf("Schedule after promotion: %v", err)
	}
	// But the cutoff may never move backward.
	evenLater := later + propagationDelayMs
	if err := state.Schedule(now-500, evenLater, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for regressing cutoff, got %v", err)
	}
}

func TestDelegatedKeyAuthorization(t *testing.T) {
	wallet, err := auth.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	delegate, err := auth.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	now := int64(2_000_000)
	authMsg := &auth.DelegatedKeyAuthorization{
		SignatureHashVersion: auth.SignatureHashVersion,
		Nonce:                auth.NewNonceAt(now - 1000),
		Wallet:               wallet.Address(),
		DelegatedKey:         delegate.Address(),
		ExpiresAtMs:          now + 86_400_000,
	}
	authMsg.Signature, err = wallet.Sign(authMsg.Hash())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	var nonces auth.NonceState
	key, err := auth.ValidateAuthorization(authMsg, &nonces, now, propagationDelayMs)
	if err != nil {
		t.Fatalf("ValidateAuthorization: %v", err)
	}
	if key.Key != delegate.Address() {
		t.Errorf("stored key = %s, want %s", key.Key.Hex(), delegate.Address().Hex())
	}

	// An order nonce predating the grant is rejected.
	if err := key.ValidateDelegatedUse(now-2000, now, &nonces, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for predating nonce, got %v", err)
	}
	// A nonce after the grant is fine.
	if err := key.ValidateDelegatedUse(now-500, now, &nonces, propagationDelayMs); err != nil {
		t.Errorf("ValidateDelegatedUse: %v", err)
	}
	// Past expiry the key is dead.
	if err := key.ValidateDelegatedUse(now-500, authMsg.ExpiresAtMs+1, &nonces, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error after expiry, got %v", err)
	}
	// Invalidating the wallet's nonces past the grant revokes the key.
	if err := nonces.Schedule(now-900, now, propagationDelayMs); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	after := now + propagationDelayMs
	if err := key.ValidateDelegatedUse(now-500, after, &nonces, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error after revocation, got %v", err)
	}
}

func TestDelegatedAuthorizationRejections(t *testing.T) {
	wallet, _ := auth.NewSigner()
	delegate, _ := auth.NewSigner()
	now := int64(2_000_000)

	base := func() *auth.DelegatedKeyAuthorization {
		m := &auth.DelegatedKeyAuthorization{
			SignatureHashVersion: auth.SignatureHashVersion,
			Nonce:                auth.NewNonceAt(now - 1000),
			Wallet:               wallet.Address(),
			DelegatedKey:         delegate.Address(),
			ExpiresAtMs:          now + 1000,
		}
		m.Signature, _ = wallet.Sign(m.Hash())
		return m
	}

	var nonces auth.NonceState

	m := base()
	m.SignatureHashVersion = 1
	if _, err := auth.ValidateAuthorization(m, &nonces, now, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for hash version, got %v", err)
	}

	m = base()
	m.ExpiresAtMs = now - 2000
	m.Signature, _ = wallet.Sign(m.Hash())
	if _, err := auth.ValidateAuthorization(m, &nonces, now, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for expiry before grant, got %v", err)
	}

	m = base()
	m.Signature, _ = delegate.Sign(m.Hash()) // signed by the wrong key
	if _, err := auth.ValidateAuthorization(m, &nonces, now, propagationDelayMs); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for wrong signer, got %v", err)
	}
}
