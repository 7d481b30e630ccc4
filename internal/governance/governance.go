// Package governance implements delayed two-phase configuration upgrades:
// an upgrade is initiated with its full payload, becomes finalizable only
// after a fixed block delay, and may be canceled at any point before
// finalization. At most one upgrade per kind may be in flight.
package governance

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
)

// Kind is the closed set of upgradable configuration domains.
type Kind uint8

const (
	MarketRiskParameters Kind = iota + 1
	WalletRiskOverrides
	FeeRates
	BridgeAllowList
	FundWallets
)

func (k Kind) String() string {
	switch k {
	case MarketRiskParameters:
		return "marketRiskParameters"
	case WalletRiskOverrides:
		return "walletRiskOverrides"
	case FeeRates:
		return "feeRates"
	case BridgeAllowList:
		return "bridgeAllowList"
	case FundWallets:
		return "fundWallets"
	default:
		return "unknown"
	}
}

// Payload is the full proposed configuration for one upgrade kind. Payloads
// are validated at initiation so a broken proposal can never sit pending.
type Payload interface {
	UpgradeKind() Kind
	Validate() error
}

// MarketRiskParametersPayload replaces one market's risk parameter set.
type MarketRiskParametersPayload struct {
	Market string                `json:"market"`
	Risk   market.RiskParameters `json:"risk"`
}

func (p *MarketRiskParametersPayload) UpgradeKind() Kind { return MarketRiskParameters }

func (p *MarketRiskParametersPayload) Validate() error {
	if p.Market == "" {
		return errs.Validation("market symbol required")
	}
	return p.Risk.Validate()
}

// WalletRiskOverridesPayload replaces (or clears) one wallet's per-market
// risk parameter overrides.
type WalletRiskOverridesPayload struct {
	Wallet    common.Address                   `json:"wallet"`
	Overrides map[string]market.RiskParameters `json:"overrides,omitempty"`
	Clear     bool                             `json:"clear,omitempty"`
}

func (p *WalletRiskOverridesPayload) UpgradeKind() Kind { return WalletRiskOverrides }

func (p *WalletRiskOverridesPayload) Validate() error {
	if p.Wallet == (common.Address{}) {
		return errs.Validation("wallet address required")
	}
	if p.Clear {
		if len(p.Overrides) != 0 {
			return errs.Validation("clearing overrides must not carry a new set")
		}
		return nil
	}
	if len(p.Overrides) == 0 {
		return errs.Validation("override set must not be empty")
	}
	for symbol, risk := range p.Overrides {
		if symbol == "" {
			return errs.Validation("market symbol required")
		}
		if err := risk.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FeeRatesPayload replaces the settlement and custody fee caps.
type FeeRatesPayload struct {
	MaxFeeRate        int64 `json:"maxFeeRate"`
	MakerRebateCap    int64 `json:"makerRebateCap"`
	MaxGasFeeFraction int64 `json:"maxGasFeeFraction"`
}

func (p *FeeRatesPayload) UpgradeKind() Kind { return FeeRates }

func (p *FeeRatesPayload) Validate() error {
	for _, v := range []int64{p.MaxFeeRate, p.MakerRebateCap, p.MaxGasFeeFraction} {
		if v < 0 {
			return errs.Validation("fee rates must not be negative")
		}
	}
	return nil
}

// BridgeAllowListPayload replaces the set of permitted bridge adapters.
type BridgeAllowListPayload struct {
	Adapters []common.Address `json:"adapters"`
}

func (p *BridgeAllowListPayload) UpgradeKind() Kind { return BridgeAllowList }

func (p *BridgeAllowListPayload) Validate() error {
	seen := make(map[common.Address]struct{}, len(p.Adapters))
	for _, a := range p.Adapters {
		if a == (common.Address{}) {
			return errs.Validation("bridge adapter address required")
		}
		if _, dup := seen[a]; dup {
			return errs.Validation("duplicate bridge adapter %s", a.Hex())
		}
		seen[a] = struct{}{}
	}
	return nil
}

// FundWalletsPayload replaces the reserved wallet addresses.
type FundWalletsPayload struct {
	InsuranceFund common.Address `json:"insuranceFund"`
	ExitFund      common.Address `json:"exitFund"`
	FeeWallet     common.Address `json:"feeWallet"`
}

func (p *FundWalletsPayload) UpgradeKind() Kind { return FundWallets }

func (p *FundWalletsPayload) Validate() error {
	if p.InsuranceFund == (common.Address{}) || p.ExitFund == (common.Address{}) || p.FeeWallet == (common.Address{}) {
		return errs.Validation("fund wallet addresses required")
	}
	if p.InsuranceFund == p.ExitFund || p.InsuranceFund == p.FeeWallet || p.ExitFund == p.FeeWallet {
		return errs.Validation("fund wallet addresses must be distinct")
	}
	return nil
}

// Pending is one in-flight upgrade.
type Pending struct {
	Kind          Kind    `json:"kind"`
	Payload       Payload `json:"payload"`
	InitiatedAtMs int64   `json:"initiatedAtMs"`
	ReadyAtMs     int64   `json:"readyAtMs"`
}

// Upgrader holds the pending upgrade per kind. Applying a finalized payload
// is the caller's job; the upgrader only sequences the phases.
type Upgrader struct {
	delayMs int64
	pending map[Kind]*Pending
}

func NewUpgrader(delayMs int64) *Upgrader {
	return &Upgrader{delayMs: delayMs, pending: make(map[Kind]*Pending)}
}

// Initiate validates the payload and opens the delay window.
func (u *Upgrader) Initiate(payload Payload, nowMs int64) error {
	kind := payload.UpgradeKind()
	if _, exists := u.pending[kind]; exists {
		return errs.Conflict("upgrade already in progress")
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	u.pending[kind] = &Pending{
		Kind:          kind,
		Payload:       payload,
		InitiatedAtMs: nowMs,
		ReadyAtMs:     nowMs + u.delayMs,
	}
	return nil
}

// Cancel discards the pending upgrade of the given kind.
func (u *Upgrader) Cancel(kind Kind) error {
	if _, exists := u.pending[kind]; !exists {
		return errs.Validation("no pending %s upgrade", kind)
	}
	delete(u.pending, kind)
	return nil
}

// Finalize closes the pending upgrade once its delay has elapsed and returns
// the payload for the caller to apply.
func (u *Upgrader) Finalize(kind Kind, nowMs int64) (Payload, error) {
	p, exists := u.pending[kind]
	if !exists {
		return nil, errs.Validation("no pending %s upgrade", kind)
	}
	if nowMs < p.ReadyAtMs {
		return nil, errs.Validation("%s upgrade delay has not elapsed", kind)
	}
	delete(u.pending, kind)
	return p.Payload, nil
}

// Pending returns the in-flight upgrade of the given kind, or nil.
func (u *Upgrader) Pending(kind Kind) *Pending {
	return u.pending[kind]
}
