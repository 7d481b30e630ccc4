package liquidation

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/funding"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/margin"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// Config carries the backstop wallet addresses and liquidation policy.
type Config struct {
	InsuranceFund       common.Address
	ExitFund            common.Address
	DeactivationFeeRate int64 // pip fraction of position value
	ExitDelayMs         int64
}

// Engine resolves insolvent, dust, exited, and stranded positions.
type Engine struct {
	cfg      Config
	registry *market.Registry
	ledger   *account.Ledger
	margin   *margin.Calculator
	funding  *funding.Store
}

func NewEngine(cfg Config, registry *market.Registry, ledger *account.Ledger, calc *margin.Calculator, fundingStore *funding.Store) *Engine {
	return &Engine{cfg: cfg, registry: registry, ledger: ledger, margin: calc, funding: fundingStore}
}

// PositionClose proposes closing one position at a signed quote quantity
// (positive pays the liquidated wallet). The engine recomputes the expected
// quote for the path and requires exact pip equality.
type PositionClose struct {
	Market        string
	QuoteQuantity int64
}

// Args is one liquidation request.
type Args struct {
	Wallet common.Address
	Closes []PositionClose
	NowMs  int64
}

// ResolveInsolvency validates and executes one liquidation path atomically:
// either every proposed close applies and the counterparty fund remains
// sound, or nothing changes.
func (e *Engine) ResolveInsolvency(path Path, args *Args) error {
	if args.Wallet == e.cfg.InsuranceFund || args.Wallet == e.cfg.ExitFund {
		return errs.Validation("fund wallets cannot be liquidated")
	}
	if len(args.Closes) == 0 {
		return errs.Validation("liquidation requires at least one position close")
	}

	counterparty := e.cfg.InsuranceFund
	if path == InMaintenanceDuringSystemRecovery {
		counterparty = e.cfg.ExitFund
	}

	e.funding.Apply(e.ledger, args.Wallet)
	e.funding.Apply(e.ledger, counterparty)

	expected, err := e.expectedCloses(path, args)
	if err != nil {
		return err
	}
	if len(expected) != len(args.Closes) {
		return errs.Validation("liquidation must close all of the wallet's positions")
	}
	for i, want := range expected {
		got := args.Closes[i]
		if got.Market != want.Market || got.QuoteQuantity != want.QuoteQuantity {
			return errs.Validation("invalid liquidation quote quantity for %s", want.Market)
		}
	}

	snap := e.snapshot(args.Wallet, counterparty, expected)
	for _, c := range expected {
		p := e.ledger.Position(args.Wallet, c.Market)
		q := p.Quantity
		marker := e.fundingMarker(c.Market, args.NowMs)
		e.ledger.ApplyPositionDelta(args.Wallet, c.Market, -q, -c.QuoteQuantity, p.LastFundingPeriod)
		e.ledger.ApplyPositionDelta(counterparty, c.Market, q, c.QuoteQuantity, marker)
		e.ledger.Adjust(args.Wallet, c.QuoteQuantity)
		e.ledger.Adjust(counterparty, -c.QuoteQuantity)
	}

	if err := e.validateCounterparty(path, counterparty); err != nil {
		e.restore(snap)
		return err
	}
	return nil
}

// expectedCloses checks the path precondition and recomputes the canonical
// close set, ordered by market symbol.
func (e *Engine) expectedCloses(path Path, args *Args) ([]PositionClose, error) {
	switch path {
	case BelowMinimum:
		return e.expectedBelowMinimum(args)
	case DeactivatedMarket:
		return e.expectedDeactivatedMarket(args)
	case InMaintenance, InMaintenanceDuringSystemRecovery:
		return e.expectedInMaintenance(path, args)
	case Exited:
		return e.expectedExited(args)
	default:
		return nil, errs.Validation("unknown liquidation path")
	}
}

func (e *Engine) expectedBelowMinimum(args *Args) ([]PositionClose, error) {
	if len(args.Closes) != 1 {
		return nil, errs.Validation("below-minimum liquidation closes exactly one position")
	}
	symbol := args.Closes[0].Market
	p := e.ledger.Position(args.Wallet, symbol)
	if p == nil {
		return nil, errs.Validation("no open position in %s", symbol)
	}
	m, err := e.registry.Get(symbol)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, errs.Validation("market %s is inactive", symbol)
	}
	risk, err := e.registry.RiskFor(args.Wallet, symbol)
	if err != nil {
		return nil, err
	}
	if pip.Abs(p.Quantity) >= risk.MinimumPositionSize {
		return nil, errs.Validation("position not below minimum size")
	}
	return []PositionClose{{
		Market:        symbol,
		QuoteQuantity: pip.Multiply(p.Quantity, e.effectivePrice(m)),
	}}, nil
}

func (e *Engine) expectedDeactivatedMarket(args *Args) ([]PositionClose, error) {
	if len(args.Closes) != 1 {
		return nil, errs.Validation("deactivated-market liquidation closes exactly one position")
	}
	symbol := args.Closes[0].Market
	p := e.ledger.Position(args.Wallet, symbol)
	if p == nil {
		return nil, errs.Validation("no open position in %s", symbol)
	}
	m, err := e.registry.Get(symbol)
	if err != nil {
		return nil, err
	}
	if m.Active {
		return nil, errs.Validation("market %s is still active", symbol)
	}
	gross := pip.Multiply(p.Quantity, m.IndexPriceAtDeactivation)
	fee := pip.Multiply(pip.Abs(gross), e.cfg.DeactivationFeeRate)
	return []PositionClose{{
		Market:        symbol,
		QuoteQuantity: pip.Sub(gross, fee),
	}}, nil
}

// expectedInMaintenance computes bankruptcy-price closes: the wallet's
// remaining account value is allocated across positions in proportion to
// their maintenance margin, leaving the wallet's balance at exactly zero
// after the full close. The final position absorbs the rounding residue.
func (e *Engine) expectedInMaintenance(path Path, args *Args) ([]PositionClose, error) {
	if path == InMaintenanceDuringSystemRecovery {
		ok, err := e.margin.MeetsMaintenanceMargin(e.cfg.InsuranceFund)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, errs.Validation("insurance fund is solvent")
		}
	}
	health, err := e.margin.HealthOf(args.Wallet)
	if err != nil {
		return nil, err
	}
	if health != margin.Liquidatable {
		return nil, errs.Validation("wallet meets maintenance margin")
	}
	value, err := e.margin.AccountValue(args.Wallet)
	if err != nil {
		return nil, err
	}
	totalMMR, err := e.margin.MaintenanceMarginRequirement(args.Wallet)
	if err != nil {
		return nil, err
	}

	positions := e.ledger.PositionsOf(args.Wallet)
	closes := make([]PositionClose, 0, len(positions))
	var allocated int64
	for i, p := range positions {
		m, err := e.registry.Get(p.Market)
		if err != nil {
			return nil, err
		}
		positionValue := pip.Multiply(p.Quantity, e.effectivePrice(m))
		var share int64
		if i == len(positions)-1 {
			share = pip.Sub(value, allocated)
		} else {
			mmr, err := e.margin.PositionMaintenanceRequirement(p)
			if err != nil {
				return nil, err
			}
			share = pip.MultiplyFraction(value, mmr, totalMMR, pip.RoundTowardZero)
			allocated = pip.Add(allocated, share)
		}
		closes = append(closes, PositionClose{
			Market:        p.Market,
			QuoteQuantity: pip.Sub(positionValue, share),
		})
	}
	return closes, nil
}

func (e *Engine) expectedExited(args *Args) ([]PositionClose, error) {
	w := e.ledger.Wallet(args.Wallet)
	if !w.Exited() {
		return nil, errs.Validation("wallet has not exited")
	}
	if args.NowMs < w.ExitedAtMs+e.cfg.ExitDelayMs {
		return nil, errs.Validation("exit delay has not elapsed")
	}
	positions := e.ledger.PositionsOf(args.Wallet)
	closes := make([]PositionClose, 0, len(positions))
	for _, p := range positions {
		m, err := e.registry.Get(p.Market)
		if err != nil {
			return nil, err
		}
		closes = append(closes, PositionClose{
			Market:        p.Market,
			QuoteQuantity: pip.Multiply(p.Quantity, e.effectivePrice(m)),
		})
	}
	return closes, nil
}

func (e *Engine) validateCounterparty(path Path, counterparty common.Address) error {
	if counterparty == e.cfg.ExitFund {
		// The exit fund is the last resort; its exposure is bounded by the
		// withdrawal-delay safeguard at the custody boundary, not margin.
		return nil
	}
	var ok bool
	var err error
	if path == BelowMinimum {
		ok, err = e.margin.MeetsInitialMargin(counterparty)
	} else {
		ok, err = e.margin.MeetsMaintenanceMargin(counterparty)
	}
	if err != nil {
		return err
	}
	if !ok {
		return errs.Insufficiency("insurance fund margin insufficient")
	}
	return nil
}

func (e *Engine) effectivePrice(m *market.Market) int64 {
	price := m.EffectivePrice()
	if price <= 0 {
		panic("FATAL: liquidation against unpriced market " + m.Symbol)
	}
	return price
}

func (e *Engine) fundingMarker(symbol string, nowMs int64) int64 {
	if last, ok := e.funding.LatestPeriod(symbol); ok {
		return last
	}
	return funding.PeriodOf(nowMs)
}

// --- atomic rollback ---

type positionState struct {
	wallet common.Address
	market string
	pos    *account.Position // copy; nil = was flat
}

type ledgerSnapshot struct {
	balances  map[common.Address]int64
	positions []positionState
}

func (e *Engine) snapshot(wallet, counterparty common.Address, closes []PositionClose) *ledgerSnapshot {
	snap := &ledgerSnapshot{
		balances: map[common.Address]int64{
			wallet:       e.ledger.Balance(wallet),
			counterparty: e.ledger.Balance(counterparty),
		},
	}
	for _, c := range closes {
		for _, w := range []common.Address{wallet, counterparty} {
			st := positionState{wallet: w, market: c.Market}
			if p := e.ledger.Position(w, c.Market); p != nil {
				cp := *p
				st.pos = &cp
			}
			snap.positions = append(snap.positions, st)
		}
	}
	return snap
}

func (e *Engine) restore(snap *ledgerSnapshot) {
	for w, bal := range snap.balances {
		e.ledger.Adjust(w, bal-e.ledger.Balance(w))
	}
	for _, st := range snap.positions {
		if cur := e.ledger.Position(st.wallet, st.market); cur != nil {
			e.ledger.ApplyPositionDelta(st.wallet, st.market, -cur.Quantity, -cur.CostBasis, 0)
		}
		if st.pos != nil {
			e.ledger.ApplyPositionDelta(st.wallet, st.market, st.pos.Quantity, st.pos.CostBasis, st.pos.LastFundingPeriod)
		}
	}
}
