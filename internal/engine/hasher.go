package engine

import (
	"crypto/sha256"
	"encoding/binary"
)

const genesisHashSeed = "riskengine:genesis:v1"

// StateHasher maintains the event log's hash chain:
// hash[N] = SHA-256(hash[N-1] || sequence || digest).
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes the chain at the genesis hash.
func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: sha256.Sum256([]byte(genesisHashSeed))}
}

// ComputeHash extends the chain with one event and returns the new tip.
func (h *StateHasher) ComputeHash(sequence int64, digest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])
	hasher.Write(digest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// PrevHash returns the current chain tip.
func (h *StateHasher) PrevHash() [32]byte {
	return h.prevHash
}

// Reset pins the chain tip, used when restoring from a snapshot.
func (h *StateHasher) Reset(tip [32]byte) {
	h.prevHash = tip
}
