// Package market holds the per-market configuration the engine prices and
// margins against: index prices, activation state, and risk parameters with
// optional per-wallet overrides.
package market

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// RiskParameters configures margin requirements and position limits for one
// market. Fractions are pips (0.05 = 5_000_000), sizes are base-asset pips.
type RiskParameters struct {
	InitialMarginFraction            int64 `json:"initialMarginFraction"`
	MaintenanceMarginFraction        int64 `json:"maintenanceMarginFraction"`
	IncrementalInitialMarginFraction int64 `json:"incrementalInitialMarginFraction"`
	BaselinePositionSize             int64 `json:"baselinePositionSize"`
	IncrementalPositionSize          int64 `json:"incrementalPositionSize"`
	MaximumPositionSize              int64 `json:"maximumPositionSize"`
	MinimumPositionSize              int64 `json:"minimumPositionSize"`
}

// Validate enforces the structural invariants every parameter set must hold.
func (p RiskParameters) Validate() error {
	if p.MaintenanceMarginFraction <= 0 {
		return errs.Validation("maintenance margin fraction must be positive")
	}
	if p.InitialMarginFraction < p.MaintenanceMarginFraction {
		return errs.Validation("initial margin fraction must be at least the maintenance fraction")
	}
	if p.InitialMarginFraction >= pip.One {
		return errs.Validation("initial margin fraction must be below 1")
	}
	if p.IncrementalInitialMarginFraction < 0 {
		return errs.Validation("incremental initial margin fraction must not be negative")
	}
	if p.IncrementalPositionSize <= 0 {
		return errs.Validation("incremental position size must be positive")
	}
	if p.MinimumPositionSize <= 0 {
		return errs.Validation("minimum position size must be positive")
	}
	if p.BaselinePositionSize < p.MinimumPositionSize {
		return errs.Validation("baseline position size must be at least the minimum")
	}
	if p.MaximumPositionSize < p.BaselinePositionSize {
		return errs.Validation("maximum position size must be at least the baseline")
	}
	return nil
}

// Market is one perpetual-futures market quoted in the collateral asset.
type Market struct {
	Symbol                   string         `json:"symbol"`
	Active                   bool           `json:"active"`
	IndexPrice               int64          `json:"indexPrice"`
	IndexTimestampMs         int64          `json:"indexTimestampMs"`
	IndexPriceAtDeactivation int64          `json:"indexPriceAtDeactivation"`
	Risk                     RiskParameters `json:"risk"`
}

// EffectivePrice returns the price positions in this market are valued at:
// the live index price while active, the frozen price after deactivation.
func (m *Market) EffectivePrice() int64 {
	if !m.Active && m.IndexPriceAtDeactivation > 0 {
		return m.IndexPriceAtDeactivation
	}
	return m.IndexPrice
}

type overrideKey struct {
	wallet common.Address
	symbol string
}

// Registry is the authoritative set of markets. Not thread-safe; the engine
// serializes all access.
type Registry struct {
	markets   map[string]*Market
	overrides map[overrideKey]RiskParameters
	order     []string // insertion order, for deterministic iteration
}

func NewRegistry() *Registry {
	return &Registry{
		markets:   make(map[string]*Market),
		overrides: make(map[overrideKey]RiskParameters),
	}
}

// Add registers a new market. The market starts active with no index price;
// valuation operations fail until the first price report lands.
func (r *Registry) Add(symbol string, risk RiskParameters) error {
	if symbol == "" {
		return errs.Validation("market symbol must not be empty")
	}
	if _, ok := r.markets[symbol]; ok {
		return errs.Conflict("market %s already exists", symbol)
	}
	if err := risk.Validate(); err != nil {
		return err
	}
	r.markets[symbol] = &Market{Symbol: symbol, Active: true, Risk: risk}
	r.order = append(r.order, symbol)
	return nil
}

// Get returns the market or a validation error for unknown symbols.
func (r *Registry) Get(symbol string) (*Market, error) {
	m, ok := r.markets[symbol]
	if !ok {
		return nil, errs.Validation("unknown market %s", symbol)
	}
	return m, nil
}

// Symbols returns all market symbols in registration order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SetIndexPrice applies a price report. Prices must be positive and report
// timestamps strictly increasing; stale or non-positive reports are rejected.
func (r *Registry) SetIndexPrice(symbol string, price, timestampMs int64) error {
	m, err := r.Get(symbol)
	if err != nil {
		return err
	}
	if price <= 0 {
		return errs.Validation("index price must be positive")
	}
	if timestampMs <= m.IndexTimestampMs {
		return errs.Validation("index price timestamp not increasing: got %d, have %d", timestampMs, m.IndexTimestampMs)
	}
	m.IndexPrice = price
	m.IndexTimestampMs = timestampMs
	return nil
}

// Deactivate freezes the market at its current index price. Open positions
// remain and can only be closed by liquidation at the frozen price.
func (r *Registry) Deactivate(symbol string) error {
	m, err := r.Get(symbol)
	if err != nil {
		return err
	}
	if !m.Active {
		return errs.Conflict("market %s already deactivated", symbol)
	}
	if m.IndexPrice <= 0 {
		return errs.Validation("cannot deactivate market %s before first price report", symbol)
	}
	m.Active = false
	m.IndexPriceAtDeactivation = m.IndexPrice
	return nil
}

// Reactivate restores trading and clears the frozen price.
func (r *Registry) Reactivate(symbol string) error {
	m, err := r.Get(symbol)
	if err != nil {
		return err
	}
	if m.Active {
		return errs.Conflict("market %s already active", symbol)
	}
	m.Active = true
	m.IndexPriceAtDeactivation = 0
	return nil
}

// SetRiskParameters replaces the global parameter set. Called only from
// governance finalization.
func (r *Registry) SetRiskParameters(symbol string, risk RiskParameters) error {
	m, err := r.Get(symbol)
	if err != nil {
		return err
	}
	if err := risk.Validate(); err != nil {
		return err
	}
	m.Risk = risk
	return nil
}

// SetWalletOverrides installs a per-wallet parameter set that fully replaces
// the market defaults for that wallet. Called only from governance
// finalization.
func (r *Registry) SetWalletOverrides(wallet common.Address, symbol string, risk RiskParameters) error {
	if _, err := r.Get(symbol); err != nil {
		return err
	}
	if err := risk.Validate(); err != nil {
		return err
	}
	r.overrides[overrideKey{wallet, symbol}] = risk
	return nil
}

// ClearWalletOverrides removes a wallet's override set, restoring defaults.
func (r *Registry) ClearWalletOverrides(wallet common.Address, symbol string) {
	delete(r.overrides, overrideKey{wallet, symbol})
}

// RiskFor returns the parameter set in force for a wallet in a market: the
// wallet's override set when present, the market defaults otherwise.
func (r *Registry) RiskFor(wallet common.Address, symbol string) (RiskParameters, error) {
	m, err := r.Get(symbol)
	if err != nil {
		return RiskParameters{}, err
	}
	if o, ok := r.overrides[overrideKey{wallet, symbol}]; ok {
		return o, nil
	}
	return m.Risk, nil
}
