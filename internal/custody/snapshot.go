package custody

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// NonceUse is one consumed withdrawal or transfer nonce in a snapshot.
type NonceUse struct {
	Wallet common.Address `json:"wallet"`
	Nonce  uuid.UUID      `json:"nonce"`
}

// CustodianSnapshot is the custodian's full serializable state.
type CustodianSnapshot struct {
	UsedNonces []NonceUse       `json:"usedNonces,omitempty"`
	Bridges    []common.Address `json:"bridges,omitempty"`
}

// Snapshot copies the custodian's state, deterministically ordered.
func (c *Custodian) Snapshot() *CustodianSnapshot {
	snap := &CustodianSnapshot{
		UsedNonces: make([]NonceUse, 0, len(c.used)),
		Bridges:    make([]common.Address, 0, len(c.bridges)),
	}
	for k := range c.used {
		snap.UsedNonces = append(snap.UsedNonces, NonceUse{Wallet: k.wallet, Nonce: k.nonce})
	}
	sort.Slice(snap.UsedNonces, func(i, j int) bool {
		a, b := snap.UsedNonces[i], snap.UsedNonces[j]
		if c := a.Wallet.Cmp(b.Wallet); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Nonce[:], b.Nonce[:]) < 0
	})
	for a := range c.bridges {
		snap.Bridges = append(snap.Bridges, a)
	}
	sort.Slice(snap.Bridges, func(i, j int) bool { return snap.Bridges[i].Cmp(snap.Bridges[j]) < 0 })
	return snap
}

// Restore replaces the custodian's state with the snapshot's.
func (c *Custodian) Restore(snap *CustodianSnapshot) {
	c.used = make(map[nonceKey]struct{}, len(snap.UsedNonces))
	for _, u := range snap.UsedNonces {
		c.used[nonceKey{u.Wallet, u.Nonce}] = struct{}{}
	}
	c.bridges = make(map[common.Address]struct{}, len(snap.Bridges))
	for _, a := range snap.Bridges {
		c.bridges[a] = struct{}{}
	}
}
