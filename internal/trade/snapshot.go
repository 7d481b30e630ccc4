package trade

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// FillEntry is one order's cumulative fill counter in a snapshot.
type FillEntry struct {
	Wallet common.Address `json:"wallet"`
	Nonce  uuid.UUID      `json:"nonce"`
	Filled int64          `json:"filled"`
}

// FillTrackerSnapshot is the tracker's full serializable state.
type FillTrackerSnapshot struct {
	Fills []FillEntry `json:"fills"`
}

// Snapshot copies the tracker, entries sorted by wallet then nonce.
func (t *FillTracker) Snapshot() *FillTrackerSnapshot {
	snap := &FillTrackerSnapshot{Fills: make([]FillEntry, 0, len(t.filled))}
	for k, filled := range t.filled {
		snap.Fills = append(snap.Fills, FillEntry{Wallet: k.wallet, Nonce: k.nonce, Filled: filled})
	}
	sort.Slice(snap.Fills, func(i, j int) bool {
		a, b := snap.Fills[i], snap.Fills[j]
		if c := a.Wallet.Cmp(b.Wallet); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Nonce[:], b.Nonce[:]) < 0
	})
	return snap
}

// Restore replaces the tracker's state with the snapshot's.
func (t *FillTracker) Restore(snap *FillTrackerSnapshot) {
	t.filled = make(map[fillKey]int64, len(snap.Fills))
	for _, e := range snap.Fills {
		t.filled[fillKey{e.Wallet, e.Nonce}] = e.Filled
	}
}
