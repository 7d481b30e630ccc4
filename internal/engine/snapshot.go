package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/custody"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/funding"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/governance"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/trade"
)

// PolicySnapshot captures the configuration values that finalized upgrades
// can change at runtime. Values upgrades never touch (quote asset, delays)
// always come from process configuration and are not captured.
type PolicySnapshot struct {
	FeeWallet         common.Address `json:"feeWallet"`
	InsuranceFund     common.Address `json:"insuranceFund"`
	ExitFund          common.Address `json:"exitFund"`
	MaxFeeRate        int64          `json:"maxFeeRate"`
	MakerRebateCap    int64          `json:"makerRebateCap"`
	MaxGasFeeFraction int64          `json:"maxGasFeeFraction"`
}

// State is the engine's full serializable state at one sequence point.
// Restoring it and replaying the event log from Sequence reproduces the
// exact hash chain.
type State struct {
	Sequence   int64                          `json:"sequence"`
	ChainTip   [32]byte                       `json:"chainTip"`
	Registry   *market.RegistrySnapshot       `json:"registry"`
	Ledger     *account.LedgerSnapshot        `json:"ledger"`
	Funding    *funding.StoreSnapshot         `json:"funding"`
	Fills      *trade.FillTrackerSnapshot     `json:"fills"`
	Custody    *custody.CustodianSnapshot     `json:"custody"`
	Governance *governance.UpgraderSnapshot   `json:"governance"`
	Policy     *PolicySnapshot                `json:"policy"`
}

// Snapshot captures the engine's state. Safe to call between commands; the
// mutex excludes concurrent mutation.
func (e *Engine) Snapshot() (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	gov, err := e.upgrades.Snapshot()
	if err != nil {
		return nil, err
	}
	return &State{
		Sequence:   e.sequence,
		ChainTip:   e.hasher.PrevHash(),
		Registry:   e.registry.Snapshot(),
		Ledger:     e.ledger.Snapshot(),
		Funding:    e.funding.Snapshot(),
		Fills:      e.fills.Snapshot(),
		Custody:    e.custodian.Snapshot(),
		Governance: gov,
		Policy: &PolicySnapshot{
			FeeWallet:         e.cfg.FeeWallet,
			InsuranceFund:     e.cfg.InsuranceFund,
			ExitFund:          e.cfg.ExitFund,
			MaxFeeRate:        e.cfg.MaxFeeRate,
			MakerRebateCap:    e.cfg.MakerRebateCap,
			MaxGasFeeFraction: e.cfg.MaxGasFeeFraction,
		},
	}, nil
}

// Restore replaces the engine's state with a snapshot. The caller replays
// persisted events with sequence >= snap.Sequence afterward.
func (e *Engine) Restore(snap *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.upgrades.Restore(snap.Governance); err != nil {
		return err
	}
	e.registry.Restore(snap.Registry)
	e.ledger.Restore(snap.Ledger)
	e.funding.Restore(snap.Funding)
	e.fills.Restore(snap.Fills)
	e.custodian.Restore(snap.Custody)
	if p := snap.Policy; p != nil {
		e.cfg.FeeWallet = p.FeeWallet
		e.cfg.InsuranceFund = p.InsuranceFund
		e.cfg.ExitFund = p.ExitFund
		e.cfg.MaxFeeRate = p.MaxFeeRate
		e.cfg.MakerRebateCap = p.MakerRebateCap
		e.cfg.MaxGasFeeFraction = p.MaxGasFeeFraction
		e.custodian.SetFundWallets(p.FeeWallet, p.InsuranceFund, p.ExitFund)
		e.custodian.SetMaxGasFeeFraction(p.MaxGasFeeFraction)
		e.rebuildPolicyComponents()
	}
	e.sequence = snap.Sequence
	e.hasher.Reset(snap.ChainTip)
	return nil
}
