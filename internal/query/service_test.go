package query_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/engine"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/query"
)

func newFixture(t *testing.T) (*engine.Engine, *query.Service) {
	t.Helper()

	cfg := engine.Config{
		QuoteAsset:              "USD",
		FeeWallet:               common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		InsuranceFund:           common.HexToAddress("0x00000000000000000000000000000000000000f2"),
		ExitFund:                common.HexToAddress("0x00000000000000000000000000000000000000f3"),
		MaxFeeRate:              10_000_000,
		MakerRebateCap:          50_000_000,
		MaxGasFeeFraction:       1_000_000,
		DeactivationFeeRate:     1_000_000,
		ExitDelayMs:             60_000,
		NoncePropagationDelayMs: 60_000,
		GovernanceDelayMs:       60_000,
		IdempotencyCapacity:     64,
	}
	persist := make(chan engine.Output, 64)
	project := make(chan engine.Output, 64)
	eng := engine.New(cfg, persist, project, nil, nil, zerolog.Nop())
	return eng, query.NewService(eng, nil, nil)
}

func TestServiceServesLiveViews(t *testing.T) {
	eng, svc := newFixture(t)

	risk := market.RiskParameters{
		InitialMarginFraction:            5_000_000,
		MaintenanceMarginFraction:        3_000_000,
		IncrementalInitialMarginFraction: 1_000_000,
		BaselinePositionSize:             100 * pip.One,
		IncrementalPositionSize:          50 * pip.One,
		MaximumPositionSize:              1000 * pip.One,
		MinimumPositionSize:              pip.One / 100,
	}
	nowMs := int64(1_700_000_000_000)
	if err := eng.ListMarket("ETH", risk, nowMs); err != nil {
		t.Fatalf("list market: %v", err)
	}
	if err := eng.UpdateIndexPrice("ETH", 2000*pip.One, nowMs+1); err != nil {
		t.Fatalf("update price: %v", err)
	}

	wallet := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	var depositID uuid.UUID
	depositID[15] = 1
	depositID[6] = 0x40
	depositID[8] = 0x80
	if err := eng.Deposit(depositID, wallet, 500*pip.One, nowMs+2); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	account, err := svc.Account(wallet)
	if err != nil {
		t.Fatalf("account query: %v", err)
	}
	if account.Balance != 500*pip.One {
		t.Errorf("balance = %d, want %d", account.Balance, 500*pip.One)
	}
	if account.Health != "healthy" {
		t.Errorf("health = %q, want %q", account.Health, "healthy")
	}
	if account.Sequence != eng.Sequence() {
		t.Errorf("view sequence = %d, engine sequence = %d", account.Sequence, eng.Sequence())
	}

	markets := svc.Markets()
	if len(markets) != 1 || markets[0].Symbol != "ETH" {
		t.Fatalf("markets = %+v, want one ETH listing", markets)
	}
	if !markets[0].Active || markets[0].IndexPrice != 2000*pip.One {
		t.Errorf("ETH view = %+v", markets[0])
	}

	view, err := svc.Market("ETH")
	if err != nil {
		t.Fatalf("market query: %v", err)
	}
	if view.EffectivePrice != 2000*pip.One {
		t.Errorf("effective price = %d, want %d", view.EffectivePrice, 2000*pip.One)
	}

	if _, err := svc.Market("DOGE"); err == nil {
		t.Error("expected error for unlisted market")
	}

	if positions := svc.Positions(wallet); len(positions) != 0 {
		t.Errorf("positions = %+v, want none", positions)
	}
}
