package account

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
)

// WalletEntry is one wallet's balance and state in a snapshot.
type WalletEntry struct {
	Address common.Address `json:"address"`
	Balance int64          `json:"balance"`
	State   WalletState    `json:"state"`
}

// LedgerSnapshot is the ledger's full serializable state, deterministically
// ordered.
type LedgerSnapshot struct {
	Wallets   []WalletEntry `json:"wallets"`
	Positions []Position    `json:"positions"`
}

// Snapshot deep-copies the ledger: wallets sorted by address, positions by
// wallet then market.
func (l *Ledger) Snapshot() *LedgerSnapshot {
	addrs := make(map[common.Address]struct{}, len(l.balances)+len(l.wallets))
	for a := range l.balances {
		addrs[a] = struct{}{}
	}
	for a := range l.wallets {
		addrs[a] = struct{}{}
	}

	snap := &LedgerSnapshot{Wallets: make([]WalletEntry, 0, len(addrs))}
	for a := range addrs {
		entry := WalletEntry{Address: a, Balance: l.balances[a]}
		if w, ok := l.wallets[a]; ok {
			entry.State = WalletState{ExitedAtMs: w.ExitedAtMs, Nonces: w.Nonces}
			if w.Nonces.Pending != nil {
				p := *w.Nonces.Pending
				entry.State.Nonces.Pending = &p
			}
			if len(w.DelegatedKeys) > 0 {
				entry.State.DelegatedKeys = make(map[common.Address]*auth.DelegatedKey, len(w.DelegatedKeys))
				for k, g := range w.DelegatedKeys {
					cp := *g
					entry.State.DelegatedKeys[k] = &cp
				}
			}
		}
		snap.Wallets = append(snap.Wallets, entry)
	}
	sort.Slice(snap.Wallets, func(i, j int) bool {
		return snap.Wallets[i].Address.Cmp(snap.Wallets[j].Address) < 0
	})

	snap.Positions = make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		snap.Positions = append(snap.Positions, *p)
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if c := a.Wallet.Cmp(b.Wallet); c != 0 {
			return c < 0
		}
		return a.Market < b.Market
	})
	return snap
}

// Restore replaces the ledger's state with the snapshot's.
func (l *Ledger) Restore(snap *LedgerSnapshot) {
	l.balances = make(map[common.Address]int64, len(snap.Wallets))
	l.wallets = make(map[common.Address]*WalletState, len(snap.Wallets))
	for _, e := range snap.Wallets {
		if e.Balance != 0 {
			l.balances[e.Address] = e.Balance
		}
		st := e.State
		if st.Nonces.Pending != nil {
			p := *st.Nonces.Pending
			st.Nonces.Pending = &p
		}
		if len(e.State.DelegatedKeys) > 0 {
			st.DelegatedKeys = make(map[common.Address]*auth.DelegatedKey, len(e.State.DelegatedKeys))
			for k, g := range e.State.DelegatedKeys {
				cp := *g
				st.DelegatedKeys[k] = &cp
			}
		}
		l.wallets[e.Address] = &st
	}
	l.positions = make(map[PositionKey]*Position, len(snap.Positions))
	for _, p := range snap.Positions {
		cp := p
		l.positions[PositionKey{p.Wallet, p.Market}] = &cp
	}
}
