package margin_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/funding"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/margin"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func ethRisk() market.RiskParameters {
	return market.RiskParameters{
		InitialMarginFraction:            5_000_000, // 5%
		MaintenanceMarginFraction:        3_000_000, // 3%
		IncrementalInitialMarginFraction: 1_000_000, // 1%
		BaselinePositionSize:             10 * pip.One,
		IncrementalPositionSize:          5 * pip.One,
		MaximumPositionSize:              1000 * pip.One,
		MinimumPositionSize:              pip.One / 100,
	}
}

func setup(t *testing.T) (*market.Registry, *account.Ledger, *funding.Store, *margin.Calculator) {
	t.Helper()
	r := market.NewRegistry()
	if err := r.Add("ETH", ethRisk()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.SetIndexPrice("ETH", 2000*pip.One, 1); err != nil {
		t.Fatalf("SetIndexPrice: %v", err)
	}
	l := account.NewLedger()
	f := funding.NewStore()
	return r, l, f, margin.NewCalculator(r, l, f)
}

func TestAccountValue(t *testing.T) {
	_, l, _, c := setup(t)
	l.Adjust(alice, 10_000*pip.One)
	l.ApplyPositionDelta(alice, "ETH", 2*pip.One, 4000*pip.One, 0)

	// Value = 10000 balance + 2 * 2000 position value.
	got, err := c.AccountValue(alice)
	if err != nil {
		t.Fatalf("AccountValue: %v", err)
	}
	if got != 14_000*pip.One {
		t.Errorf("AccountValue = %s, want 14000", pip.String(got))
	}
}

func TestRequirements(t *testing.T) {
	_, l, _, c := setup(t)
	l.Adjust(alice, 10_000*pip.One)
	l.ApplyPositionDelta(alice, "ETH", 2*pip.One, 4000*pip.One, 0)

	imr, err := c.InitialMarginRequirement(alice)
	if err != nil {
		t.Fatalf("InitialMarginRequirement: %v", err)
	}
	if imr != 200*pip.One { // 4000 notional * 5%
		t.Errorf("IMR = %s, want 200", pip.String(imr))
	}
	mmr, err := c.MaintenanceMarginRequirement(alice)
	if err != nil {
		t.Fatalf("MaintenanceMarginRequirement: %v", err)
	}
	if mmr != 120*pip.One { // 4000 notional * 3%
		t.Errorf("MMR = %s, want 120", pip.String(mmr))
	}
	if imr < mmr {
		t.Error("initial requirement below maintenance requirement")
	}
}

// Requirements never decrease as position size grows: the step function is
// monotone in |quantity|.
func TestRequirementMonotonicity(t *testing.T) {
	_, l, _, c := setup(t)
	l.Adjust(alice, 1_000_000*pip.One)
	var prev int64
	for qty := int64(1); qty <= 40; qty++ {
		l.ApplyPositionDelta(alice, "ETH", pip.One, 2000*pip.One, 0)
		imr, err := c.InitialMarginRequirement(alice)
		if err != nil {
			t.Fatalf("InitialMarginRequirement at qty %d: %v", qty, err)
		}
		if imr < prev {
			t.Fatalf("IMR decreased at qty %d: %s < %s", qty, pip.String(imr), pip.String(prev))
		}
		prev = imr
	}
}

// At exactly the baseline size the base fraction applies; one pip above, the
// first incremental step kicks in.
func TestTieredFractionBoundary(t *testing.T) {
	risk := ethRisk()

	atBaseline := margin.TieredFraction(risk, risk.InitialMarginFraction, risk.BaselinePositionSize)
	if atBaseline != risk.InitialMarginFraction {
		t.Errorf("fraction at baseline = %d, want %d", atBaseline, risk.InitialMarginFraction)
	}
	oneAbove := margin.TieredFraction(risk, risk.InitialMarginFraction, risk.BaselinePositionSize+1)
	want := risk.InitialMarginFraction + risk.IncrementalInitialMarginFraction
	if oneAbove != want {
		t.Errorf("fraction one pip above baseline = %d, want %d", oneAbove, want)
	}
	// A full increment later the second step starts.
	secondStep := margin.TieredFraction(risk, risk.InitialMarginFraction, risk.BaselinePositionSize+risk.IncrementalPositionSize+1)
	want = risk.InitialMarginFraction + 2*risk.IncrementalInitialMarginFraction
	if secondStep != want {
		t.Errorf("fraction at second step = %d, want %d", secondStep, want)
	}
	// Shorts tier the same as longs.
	if margin.TieredFraction(risk, risk.InitialMarginFraction, -(risk.BaselinePositionSize + 1)) != oneAbove {
		t.Error("short position tiered differently from long")
	}
}

func TestHealthTransitions(t *testing.T) {
	r, l, _, c := setup(t)
	l.Adjust(alice, 150*pip.One)
	// Long 2 @ 2000 paid from a separate short leg; model entry directly.
	l.ApplyPositionDelta(alice, "ETH", 2*pip.One, 4000*pip.One, 0)
	l.Adjust(alice, -4000*pip.One) // paid for the position

	// Value = 150 - 4000 + 4000 = 150 >= IMR 200? No: 150 < 200, >= MMR 120.
	h, err := c.HealthOf(alice)
	if err != nil {
		t.Fatalf("HealthOf: %v", err)
	}
	if h != margin.AtRisk {
		t.Errorf("health = %s, want at_risk", h)
	}

	// Price falls: value = 150 - 4000 + 2*1950 = 50, MMR = 117 -> liquidatable.
	if err := r.SetIndexPrice("ETH", 1950*pip.One, 2); err != nil {
		t.Fatalf("SetIndexPrice: %v", err)
	}
	h, _ = c.HealthOf(alice)
	if h != margin.Liquidatable {
		t.Errorf("health = %s, want liquidatable", h)
	}

	// Price recovers: value = 150 - 4000 + 2*2100 = 350 >= IMR 210.
	if err := r.SetIndexPrice("ETH", 2100*pip.One, 3); err != nil {
		t.Fatalf("SetIndexPrice: %v", err)
	}
	h, _ = c.HealthOf(alice)
	if h != margin.Healthy {
		t.Errorf("health = %s, want healthy", h)
	}
}

// Valuation applies outstanding funding first, so a published multiplier
// shifts account value before any margin decision.
func TestValuationAppliesFunding(t *testing.T) {
	_, l, f, c := setup(t)
	l.Adjust(alice, 100*pip.One)
	l.ApplyPositionDelta(alice, "ETH", 2*pip.One, 4000*pip.One, 100)
	l.Adjust(alice, -4000*pip.One)

	f.Publish("ETH", 101, -10*pip.One) // longs pay 10 per base

	got, err := c.AccountValue(alice)
	if err != nil {
		t.Fatalf("AccountValue: %v", err)
	}
	// 100 - 4000 + 4000 - 20 funding = 80.
	if got != 80*pip.One {
		t.Errorf("AccountValue = %s, want 80", pip.String(got))
	}
	if l.Balance(alice) != -3920*pip.One {
		t.Errorf("funding not folded into balance: %s", pip.String(l.Balance(alice)))
	}
}

func TestWalletOverridesAffectRequirement(t *testing.T) {
	r, l, _, c := setup(t)
	l.ApplyPositionDelta(alice, "ETH", 2*pip.One, 4000*pip.One, 0)

	override := ethRisk()
	override.InitialMarginFraction = 2_000_000 // 2%
	override.MaintenanceMarginFraction = 1_000_000
	if err := r.SetWalletOverrides(alice, "ETH", override); err != nil {
		t.Fatalf("SetWalletOverrides: %v", err)
	}
	imr, err := c.InitialMarginRequirement(alice)
	if err != nil {
		t.Fatalf("InitialMarginRequirement: %v", err)
	}
	if imr != 80*pip.One { // 4000 * 2%
		t.Errorf("IMR with override = %s, want 80", pip.String(imr))
	}
}
