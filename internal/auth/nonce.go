package auth

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
)

// 100ns intervals between the Gregorian epoch (1582-10-15) and the Unix
// epoch, the offset used by version 1 UUID timestamps.
const gregorianToUnix100ns = 122192928000000000

// NewNonceAt builds a version 1 UUID whose embedded timestamp is tsMs.
// Tooling and tests use it to mint nonces at controlled timestamps; the
// random clock-sequence and node fields keep simultaneous nonces distinct.
func NewNonceAt(tsMs int64) uuid.UUID {
	t := uint64(tsMs)*10_000 + gregorianToUnix100ns
	u := uuid.New()
	binary.BigEndian.PutUint32(u[0:4], uint32(t))
	binary.BigEndian.PutUint16(u[4:6], uint16(t>>32))
	binary.BigEndian.PutUint16(u[6:8], uint16(t>>48)&0x0fff|0x1000)
	u[8] = (u[8] & 0x3f) | 0x80
	return u
}

// NonceTimestampMs extracts the millisecond Unix timestamp embedded in a
// version 1 (time-ordered) UUID nonce.
func NonceTimestampMs(nonce uuid.UUID) (int64, error) {
	if nonce.Version() != 1 {
		return 0, errs.Validation("nonce must be a version 1 UUID, got version %d", nonce.Version())
	}
	sec, nsec := nonce.Time().UnixTime()
	return sec*1000 + nsec/1_000_000, nil
}

// PendingInvalidation is a nonce-invalidation request that has been accepted
// but has not yet propagated. It takes effect once the propagation delay has
// elapsed since submission; until then, previously signed orders keep
// settling.
type PendingInvalidation struct {
	TimestampMs   int64 `json:"timestampMs"`
	SubmittedAtMs int64 `json:"submittedAtMs"`
}

// NonceState tracks a wallet's invalidation cutoff. Nonces with embedded
// timestamps at or before the effective cutoff are permanently unusable.
type NonceState struct {
	InvalidatedBeforeMs int64                `json:"invalidatedBeforeMs"`
	Pending             *PendingInvalidation `json:"pending,omitempty"`
}

// promote folds a pending invalidation into the effective cutoff once its
// propagation delay has elapsed.
func (s *NonceState) promote(nowMs, propagationDelayMs int64) {
	if s.Pending == nil {
		return
	}
	if nowMs-s.Pending.SubmittedAtMs >= propagationDelayMs {
		if s.Pending.TimestampMs > s.InvalidatedBeforeMs {
			s.InvalidatedBeforeMs = s.Pending.TimestampMs
		}
		s.Pending = nil
	}
}

// EffectiveCutoffMs returns the invalidation cutoff in force at nowMs,
// promoting any pending invalidation whose delay has elapsed.
func (s *NonceState) EffectiveCutoffMs(nowMs, propagationDelayMs int64) int64 {
	s.promote(nowMs, propagationDelayMs)
	return s.InvalidatedBeforeMs
}

// Schedule records a new invalidation cutoff. Only one invalidation may be in
// flight at a time, and the cutoff must move forward.
func (s *NonceState) Schedule(cutoffMs, nowMs, propagationDelayMs int64) error {
	s.promote(nowMs, propagationDelayMs)
	if s.Pending != nil {
		return errs.Conflict("nonce invalidation already pending")
	}
	if cutoffMs <= s.InvalidatedBeforeMs {
		return errs.Validation("invalidation cutoff must exceed current cutoff")
	}
	if cutoffMs > nowMs {
		return errs.Validation("invalidation cutoff must not be in the future")
	}
	s.Pending = &PendingInvalidation{TimestampMs: cutoffMs, SubmittedAtMs: nowMs}
	return nil
}

// ValidateNonce rejects a nonce whose embedded timestamp falls at or before
// the effective cutoff.
func (s *NonceState) ValidateNonce(nonce uuid.UUID, nowMs, propagationDelayMs int64) error {
	ts, err := NonceTimestampMs(nonce)
	if err != nil {
		return err
	}
	if ts <= s.EffectiveCutoffMs(nowMs, propagationDelayMs) {
		return errs.Validation("nonce timestamp invalidated")
	}
	return nil
}
