package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
)

// PositionView is one open position as reported by queries.
type PositionView struct {
	Market            string `json:"market"`
	Quantity          int64  `json:"quantity"`
	CostBasis         int64  `json:"costBasis"`
	LastFundingPeriod int64  `json:"lastFundingPeriod"`
}

// AccountView is a wallet's full margin picture at one sequence point.
// Balance is the raw ledger balance; AccountValue folds in outstanding
// funding and unrealized PnL.
type AccountView struct {
	Wallet                       common.Address `json:"wallet"`
	Balance                      int64          `json:"balance"`
	AccountValue                 int64          `json:"accountValue"`
	InitialMarginRequirement     int64          `json:"initialMarginRequirement"`
	MaintenanceMarginRequirement int64          `json:"maintenanceMarginRequirement"`
	Health                       string         `json:"health"`
	Exited                       bool           `json:"exited"`
	Positions                    []PositionView `json:"positions"`
	Sequence                     int64          `json:"sequence"`
}

// MarketView is one market's listing as reported by queries.
type MarketView struct {
	Symbol           string                `json:"symbol"`
	Active           bool                  `json:"active"`
	IndexPrice       int64                 `json:"indexPrice"`
	IndexTimestampMs int64                 `json:"indexTimestampMs"`
	EffectivePrice   int64                 `json:"effectivePrice"`
	Risk             market.RiskParameters `json:"risk"`
}

// QueryAccount reports a wallet's balance, margin requirements, health, and
// open positions. AccountValue applies funding lazily through the margin
// calculator, so the reported value reflects every published period without
// mutating the ledger mid-query inconsistently: funding application is
// idempotent and the mutex serializes it against commands.
func (e *Engine) QueryAccount(wallet common.Address) (*AccountView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	value, err := e.margin.AccountValue(wallet)
	if err != nil {
		return nil, err
	}
	imr, err := e.margin.InitialMarginRequirement(wallet)
	if err != nil {
		return nil, err
	}
	mmr, err := e.margin.MaintenanceMarginRequirement(wallet)
	if err != nil {
		return nil, err
	}
	health, err := e.margin.HealthOf(wallet)
	if err != nil {
		return nil, err
	}

	positions := e.ledger.PositionsOf(wallet)
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, PositionView{
			Market:            p.Market,
			Quantity:          p.Quantity,
			CostBasis:         p.CostBasis,
			LastFundingPeriod: p.LastFundingPeriod,
		})
	}

	return &AccountView{
		Wallet:                       wallet,
		Balance:                      e.ledger.Balance(wallet),
		AccountValue:                 value,
		InitialMarginRequirement:     imr,
		MaintenanceMarginRequirement: mmr,
		Health:                       health.String(),
		Exited:                       e.ledger.Wallet(wallet).Exited(),
		Positions:                    views,
		Sequence:                     e.sequence,
	}, nil
}

// QueryPositions reports a wallet's open positions.
func (e *Engine) QueryPositions(wallet common.Address) []PositionView {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := e.ledger.PositionsOf(wallet)
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, PositionView{
			Market:            p.Market,
			Quantity:          p.Quantity,
			CostBasis:         p.CostBasis,
			LastFundingPeriod: p.LastFundingPeriod,
		})
	}
	return views
}

// QueryMarkets lists every market in registration order.
func (e *Engine) QueryMarkets() []MarketView {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbols := e.registry.Symbols()
	views := make([]MarketView, 0, len(symbols))
	for _, symbol := range symbols {
		m, err := e.registry.Get(symbol)
		if err != nil {
			continue
		}
		views = append(views, marketView(m))
	}
	return views
}

// QueryMarket reports a single market.
func (e *Engine) QueryMarket(symbol string) (*MarketView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.registry.Get(symbol)
	if err != nil {
		return nil, err
	}
	v := marketView(m)
	return &v, nil
}

func marketView(m *market.Market) MarketView {
	return MarketView{
		Symbol:           m.Symbol,
		Active:           m.Active,
		IndexPrice:       m.IndexPrice,
		IndexTimestampMs: m.IndexTimestampMs,
		EffectivePrice:   m.EffectivePrice(),
		Risk:             m.Risk,
	}
}
