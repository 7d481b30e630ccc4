// Package margin computes account value and tiered margin requirements.
package margin

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/funding"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// Health classifies a wallet against its requirements.
type Health int

const (
	Healthy      Health = iota // meets initial margin
	AtRisk                     // below initial, at or above maintenance
	Liquidatable               // below maintenance
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case AtRisk:
		return "at_risk"
	case Liquidatable:
		return "liquidatable"
	default:
		return "unknown"
	}
}

// TieredFraction returns the margin fraction for a position of |quantity|
// under the given parameters: the base fraction up to the baseline size, then
// one incremental step per started incrementalPositionSize of excess. The
// stepped fraction applies to the whole notional, not just the excess.
func TieredFraction(risk market.RiskParameters, baseFraction, quantity int64) int64 {
	absQty := pip.Abs(quantity)
	if absQty <= risk.BaselinePositionSize {
		return baseFraction
	}
	excess := pip.Sub(absQty, risk.BaselinePositionSize)
	steps := (excess + risk.IncrementalPositionSize - 1) / risk.IncrementalPositionSize
	bump := pip.MultiplyFraction(risk.IncrementalInitialMarginFraction, steps, 1, pip.RoundTowardZero)
	return pip.Add(baseFraction, bump)
}

// Calculator values wallets against the market registry, applying any
// outstanding funding before every computation so valuations always reflect
// the full published multiplier history.
type Calculator struct {
	registry *market.Registry
	ledger   *account.Ledger
	funding  *funding.Store
}

func NewCalculator(registry *market.Registry, ledger *account.Ledger, fundingStore *funding.Store) *Calculator {
	return &Calculator{registry: registry, ledger: ledger, funding: fundingStore}
}

// AccountValue returns quote balance plus the value of every open position
// at its market's effective price.
func (c *Calculator) AccountValue(wallet common.Address) (int64, error) {
	c.funding.Apply(c.ledger, wallet)
	value := c.ledger.Balance(wallet)
	for _, p := range c.ledger.PositionsOf(wallet) {
		m, err := c.registry.Get(p.Market)
		if err != nil {
			return 0, err
		}
		price := m.EffectivePrice()
		if price <= 0 {
			return 0, errs.Validation("no index price for market %s", p.Market)
		}
		value = pip.Add(value, pip.Multiply(p.Quantity, price))
	}
	return value, nil
}

func (c *Calculator) requirement(wallet common.Address, initial bool) (int64, error) {
	c.funding.Apply(c.ledger, wallet)
	var total int64
	for _, p := range c.ledger.PositionsOf(wallet) {
		m, err := c.registry.Get(p.Market)
		if err != nil {
			return 0, err
		}
		price := m.EffectivePrice()
		if price <= 0 {
			return 0, errs.Validation("no index price for market %s", p.Market)
		}
		risk, err := c.registry.RiskFor(wallet, p.Market)
		if err != nil {
			return 0, err
		}
		base := risk.MaintenanceMarginFraction
		if initial {
			base = risk.InitialMarginFraction
		}
		fraction := TieredFraction(risk, base, p.Quantity)
		notional := pip.Multiply(pip.Abs(p.Quantity), price)
		total = pip.Add(total, pip.Multiply(notional, fraction))
	}
	return total, nil
}

// InitialMarginRequirement is the threshold for opening or increasing risk:
// new positions, withdrawals, and transfers must leave the wallet at or
// above it.
func (c *Calculator) InitialMarginRequirement(wallet common.Address) (int64, error) {
	return c.requirement(wallet, true)
}

// MaintenanceMarginRequirement is the liquidation threshold.
func (c *Calculator) MaintenanceMarginRequirement(wallet common.Address) (int64, error) {
	return c.requirement(wallet, false)
}

// MeetsInitialMargin reports whether account value covers the initial
// requirement.
func (c *Calculator) MeetsInitialMargin(wallet common.Address) (bool, error) {
	value, err := c.AccountValue(wallet)
	if err != nil {
		return false, err
	}
	req, err := c.InitialMarginRequirement(wallet)
	if err != nil {
		return false, err
	}
	return value >= req, nil
}

// MeetsMaintenanceMargin reports whether account value covers the
// maintenance requirement.
func (c *Calculator) MeetsMaintenanceMargin(wallet common.Address) (bool, error) {
	value, err := c.AccountValue(wallet)
	if err != nil {
		return false, err
	}
	req, err := c.MaintenanceMarginRequirement(wallet)
	if err != nil {
		return false, err
	}
	return value >= req, nil
}

// HealthOf classifies the wallet.
func (c *Calculator) HealthOf(wallet common.Address) (Health, error) {
	value, err := c.AccountValue(wallet)
	if err != nil {
		return Healthy, err
	}
	imr, err := c.InitialMarginRequirement(wallet)
	if err != nil {
		return Healthy, err
	}
	if value >= imr {
		return Healthy, nil
	}
	mmr, err := c.MaintenanceMarginRequirement(wallet)
	if err != nil {
		return Healthy, err
	}
	if value >= mmr {
		return AtRisk, nil
	}
	return Liquidatable, nil
}

// PositionMaintenanceRequirement returns one position's share of the
// maintenance requirement. Liquidation uses it to allocate an under-water
// account's deficit across positions.
func (c *Calculator) PositionMaintenanceRequirement(p *account.Position) (int64, error) {
	m, err := c.registry.Get(p.Market)
	if err != nil {
		return 0, err
	}
	price := m.EffectivePrice()
	if price <= 0 {
		return 0, errs.Validation("no index price for market %s", p.Market)
	}
	risk, err := c.registry.RiskFor(p.Wallet, p.Market)
	if err != nil {
		return 0, err
	}
	fraction := TieredFraction(risk, risk.MaintenanceMarginFraction, p.Quantity)
	return pip.Multiply(pip.Multiply(pip.Abs(p.Quantity), price), fraction), nil
}
