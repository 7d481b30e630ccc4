package market

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// OverrideEntry is one wallet's per-market risk override in a snapshot.
type OverrideEntry struct {
	Wallet common.Address `json:"wallet"`
	Symbol string         `json:"symbol"`
	Risk   RiskParameters `json:"risk"`
}

// RegistrySnapshot is the registry's full serializable state.
type RegistrySnapshot struct {
	Markets   []Market        `json:"markets"`
	Overrides []OverrideEntry `json:"overrides,omitempty"`
}

// Snapshot copies the registry into a deterministic, serializable form:
// markets in registration order, overrides sorted by wallet then symbol.
func (r *Registry) Snapshot() *RegistrySnapshot {
	snap := &RegistrySnapshot{Markets: make([]Market, 0, len(r.order))}
	for _, symbol := range r.order {
		snap.Markets = append(snap.Markets, *r.markets[symbol])
	}
	for k, risk := range r.overrides {
		snap.Overrides = append(snap.Overrides, OverrideEntry{Wallet: k.wallet, Symbol: k.symbol, Risk: risk})
	}
	sort.Slice(snap.Overrides, func(i, j int) bool {
		a, b := snap.Overrides[i], snap.Overrides[j]
		if c := a.Wallet.Cmp(b.Wallet); c != 0 {
			return c < 0
		}
		return a.Symbol < b.Symbol
	})
	return snap
}

// Restore replaces the registry's state with the snapshot's.
func (r *Registry) Restore(snap *RegistrySnapshot) {
	r.markets = make(map[string]*Market, len(snap.Markets))
	r.order = make([]string, 0, len(snap.Markets))
	for _, m := range snap.Markets {
		cp := m
		r.markets[m.Symbol] = &cp
		r.order = append(r.order, m.Symbol)
	}
	r.overrides = make(map[overrideKey]RiskParameters, len(snap.Overrides))
	for _, o := range snap.Overrides {
		r.overrides[overrideKey{o.Wallet, o.Symbol}] = o.Risk
	}
}
