package trade_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/funding"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/margin"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/trade"
)

var (
	feeWallet     = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	insuranceFund = common.HexToAddress("0x000000000000000000000000000000000000001f")
	exitFund      = common.HexToAddress("0x000000000000000000000000000000000000002e")
)

const (
	nowMs      = int64(1_700_000_000_000)
	delayMs    = int64(60_000)
	priceEth   = 2000 * pip.One
	feeRateMax = 10_000_000 // 10% of quote quantity
	rebateCap  = 50_000_000 // 50% of the taker fee
)

type fixture struct {
	registry *market.Registry
	ledger   *account.Ledger
	funding  *funding.Store
	margin   *margin.Calculator
	fills    *trade.FillTracker
	s        *trade.Settlement
	buyer    *auth.Signer
	seller   *auth.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := market.NewRegistry()
	risk := market.RiskParameters{
		InitialMarginFraction:            5_000_000,
		MaintenanceMarginFraction:        3_000_000,
		IncrementalInitialMarginFraction: 1_000_000,
		BaselinePositionSize:             100 * pip.One,
		IncrementalPositionSize:          50 * pip.One,
		MaximumPositionSize:              1000 * pip.One,
		MinimumPositionSize:              pip.One / 100,
	}
	if err := r.Add("ETH", risk); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.SetIndexPrice("ETH", priceEth, nowMs-1); err != nil {
		t.Fatalf("SetIndexPrice: %v", err)
	}
	l := account.NewLedger()
	f := funding.NewStore()
	c := margin.NewCalculator(r, l, f)
	fills := trade.NewFillTracker()
	cfg := trade.Config{
		QuoteAsset:              "USD",
		FeeWallet:               feeWallet,
		InsuranceFund:           insuranceFund,
		ExitFund:                exitFund,
		MaxFeeRate:              feeRateMax,
		MakerRebateCap:          rebateCap,
		NoncePropagationDelayMs: delayMs,
	}
	buyer, err := auth.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	seller, err := auth.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	l.Adjust(buyer.Address(), 25_000*pip.One)
	l.Adjust(seller.Address(), 25_000*pip.One)
	return &fixture{
		registry: r, ledger: l, funding: f, margin: c, fills: fills,
		s:     trade.NewSettlement(cfg, r, l, c, f, fills),
		buyer: buyer, seller: seller,
	}
}

func (fx *fixture) order(signer *auth.Signer, side trade.Side, qty, limit int64) *trade.Order {
	return &trade.Order{
		SignatureHashVersion: auth.SignatureHashVersion,
		Nonce:                auth.NewNonceAt(nowMs - 1000),
		Wallet:               signer.Address(),
		Market:               "ETH",
		Side:                 side,
		Type:                 trade.Limit,
		TimeInForce:          trade.GTC,
		Quantity:             qty,
		LimitPrice:           limit,
	}
}

func (fx *fixture) sign(t *testing.T, signer *auth.Signer, o *trade.Order) []byte {
	t.Helper()
	sig, err := signer.Sign(o.Hash())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return sig
}

func (fx *fixture) args(t *testing.T, buy, sell *trade.Order, tr *trade.Trade) *trade.SettleArgs {
	t.Helper()
	return &trade.SettleArgs{
		BuyOrder:      buy,
		BuySignature:  fx.sign(t, fx.buyer, buy),
		SellOrder:     sell,
		SellSignature: fx.sign(t, fx.seller, sell),
		Trade:         tr,
		NowMs:         nowMs,
	}
}

func ethTrade(base, quote int64, makerSide trade.Side, makerFee, takerFee int64) *trade.Trade {
	return &trade.Trade{
		BaseAsset:     "ETH",
		BaseQuantity:  base,
		QuoteQuantity: quote,
		MakerFee:      makerFee,
		TakerFee:      takerFee,
		Price:         pip.Divide(quote, base, pip.RoundTowardZero),
		MakerSide:     makerSide,
	}
}

// The canonical fill: buyer takes 10 base at 2000 from a resting sell.
// Checks every balance delta and the conservation invariant.
func TestSettleTradeAppliesBalancesAndPositions(t *testing.T) {
	fx := newFixture(t)
	buy := fx.order(fx.buyer, trade.Buy, 10*pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, 10*pip.One, 2000*pip.One)
	tr := ethTrade(10*pip.One, 20_000*pip.One, trade.Sell, 20*pip.One, 40*pip.One)

	totalBefore := fx.ledger.TotalBalance()
	res, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr))
	if err != nil {
		t.Fatalf("SettleTrade: %v", err)
	}

	if got := fx.ledger.Balance(fx.buyer.Address()); got != 25_000*pip.One-(20_000+40)*pip.One {
		t.Errorf("buyer balance = %s, want 4960", pip.String(got))
	}
	if got := fx.ledger.Balance(fx.seller.Address()); got != 25_000*pip.One+(20_000-20)*pip.One {
		t.Errorf("seller balance = %s, want 44980", pip.String(got))
	}
	if got := fx.ledger.Balance(feeWallet); got != 60*pip.One {
		t.Errorf("fee wallet = %s, want 60", pip.String(got))
	}
	if fx.ledger.TotalBalance() != totalBefore {
		t.Error("settlement created or destroyed quote value")
	}

	bp := fx.ledger.Position(fx.buyer.Address(), "ETH")
	sp := fx.ledger.Position(fx.seller.Address(), "ETH")
	if bp == nil || bp.Quantity != 10*pip.One || bp.CostBasis != 20_000*pip.One {
		t.Errorf("buyer position = %+v", bp)
	}
	if sp == nil || sp.Quantity != -10*pip.One || sp.CostBasis != -20_000*pip.One {
		t.Errorf("seller position = %+v", sp)
	}
	if res.BuyerQuantity != 10*pip.One || res.SellerQuantity != -10*pip.One {
		t.Errorf("result quantities = %d, %d", res.BuyerQuantity, res.SellerQuantity)
	}
	if fx.fills.Filled(buy.Wallet, buy.Nonce) != 10*pip.One {
		t.Error("buy fill counter not recorded")
	}
}

func TestSettleTradeRejectsOverfill(t *testing.T) {
	fx := newFixture(t)
	buy := fx.order(fx.buyer, trade.Buy, 10*pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, 20*pip.One, 2000*pip.One)
	tr := ethTrade(10*pip.One, 20_000*pip.One, trade.Sell, 0, 0)

	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	// The identical settlement again would overfill the buy order.
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindConflict) {
		t.Errorf("expected conflict on double fill, got %v", err)
	}
	// Partial fills accumulate: a fresh buy for 15 can absorb the sell's
	// remaining 10 but not 11.
	buy2 := fx.order(fx.buyer, trade.Buy, 15*pip.One, 2000*pip.One)
	tr11 := ethTrade(11*pip.One, 22_000*pip.One, trade.Sell, 0, 0)
	if _, err := fx.s.SettleTrade(fx.args(t, buy2, sell, tr11)); !errs.IsKind(err, errs.KindConflict) {
		t.Errorf("expected conflict on sell overfill, got %v", err)
	}
}

func TestSettleTradeSignatureChecks(t *testing.T) {
	fx := newFixture(t)
	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)

	args := fx.args(t, buy, sell, tr)
	args.BuySignature = args.SellSignature // wrong signer
	if _, err := fx.s.SettleTrade(args); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for bad signature, got %v", err)
	}

	buy.SignatureHashVersion = 1
	args = fx.args(t, buy, sell, tr)
	if _, err := fx.s.SettleTrade(args); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for hash version, got %v", err)
	}
}

// Invalidation at T with delay D. An order dated before the
// cutoff settles until D elapses, then fails with the exact reason string.
func TestSettleTradeNonceInvalidationDelay(t *testing.T) {
	fx := newFixture(t)
	w := fx.ledger.Wallet(fx.buyer.Address())
	if err := w.Nonces.Schedule(nowMs-500, nowMs, delayMs); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One) // nonce at nowMs-1000
	sell := fx.order(fx.seller, trade.Sell, 2*pip.One, 2000*pip.One)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)

	// Before the delay elapses the order still settles.
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); err != nil {
		t.Fatalf("settlement before propagation: %v", err)
	}

	// After the delay, the same wallet's old nonce is dead.
	buy2 := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	args := fx.args(t, buy2, sell, tr)
	args.NowMs = nowMs + delayMs
	_, err := fx.s.SettleTrade(args)
	if !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err.Error() != "nonce timestamp invalidated" {
		t.Errorf("reason = %q, want %q", err.Error(), "nonce timestamp invalidated")
	}
}

func TestSettleTradeCounterpartyRules(t *testing.T) {
	fx := newFixture(t)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)

	// Self-trade.
	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	selfSell := fx.order(fx.buyer, trade.Sell, pip.One, 2000*pip.One)
	args := &trade.SettleArgs{
		BuyOrder: buy, BuySignature: fx.sign(t, fx.buyer, buy),
		SellOrder: selfSell, SellSignature: fx.sign(t, fx.buyer, selfSell),
		Trade: tr, NowMs: nowMs,
	}
	if _, err := fx.s.SettleTrade(args); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for self-trade, got %v", err)
	}

	// The exit fund never trades.
	exitSell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)
	exitSell.Wallet = exitFund
	args = fx.args(t, buy, exitSell, tr)
	if _, err := fx.s.SettleTrade(args); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for exit fund order, got %v", err)
	}
}

func TestInsuranceFundTradeRestrictions(t *testing.T) {
	fx := newFixture(t)

	// Give the insurance fund a long it wants to shed, plus collateral.
	fx.ledger.Adjust(insuranceFund, 100_000*pip.One)
	fx.ledger.ApplyPositionDelta(insuranceFund, "ETH", 5*pip.One, 10_000*pip.One, 0)

	// Delegated operations key for the fund.
	opsKey, err := auth.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	w := fx.ledger.Wallet(insuranceFund)
	w.DelegatedKeys = map[common.Address]*auth.DelegatedKey{
		opsKey.Address(): {
			Key:            opsKey.Address(),
			AuthorizedAtMs: nowMs - 10_000,
			ExpiresAtMs:    nowMs + 86_400_000,
			NonceTsMs:      nowMs - 10_000,
		},
	}

	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)

	// Not reduce-only: rejected.
	ifSell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)
	ifSell.Wallet = insuranceFund
	ifSell.DelegatedKey = opsKey.Address()
	sig, _ := opsKey.Sign(ifSell.Hash())
	args := &trade.SettleArgs{
		BuyOrder: buy, BuySignature: fx.sign(t, fx.buyer, buy),
		SellOrder: ifSell, SellSignature: sig,
		Trade: tr, NowMs: nowMs,
	}
	if _, err := fx.s.SettleTrade(args); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for non-reduce-only IF order, got %v", err)
	}

	// Reduce-only but wallet-signed (no delegated key): rejected.
	ifSell.ReduceOnly = true
	ifSell.DelegatedKey = common.Address{}
	args.SellSignature = fx.sign(t, fx.seller, ifSell)
	if _, err := fx.s.SettleTrade(args); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for wallet-signed IF order, got %v", err)
	}

	// Reduce-only under the delegated key: settles.
	ifSell.DelegatedKey = opsKey.Address()
	sig, _ = opsKey.Sign(ifSell.Hash())
	args.SellSignature = sig
	if _, err := fx.s.SettleTrade(args); err != nil {
		t.Errorf("reduce-only delegated IF order rejected: %v", err)
	}
	if got := fx.ledger.Position(insuranceFund, "ETH").Quantity; got != 4*pip.One {
		t.Errorf("IF position = %s, want 4", pip.String(got))
	}
}

func TestSettleTradePriceBounds(t *testing.T) {
	fx := newFixture(t)
	sell := fx.order(fx.seller, trade.Sell, 10*pip.One, 2000*pip.One)

	// Buy limit 1990 but execution at 2000: worse than the buyer's bound.
	buy := fx.order(fx.buyer, trade.Buy, 10*pip.One, 1990*pip.One)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for buy above limit, got %v", err)
	}

	// Sell limit 2010 but execution at 2000.
	buy = fx.order(fx.buyer, trade.Buy, 10*pip.One, 2000*pip.One)
	sellHigh := fx.order(fx.seller, trade.Sell, 10*pip.One, 2010*pip.One)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sellHigh, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for sell below limit, got %v", err)
	}

	// Market orders must carry a zero price field.
	mktBuy := fx.order(fx.buyer, trade.Buy, 10*pip.One, 2000*pip.One)
	mktBuy.Type = trade.Market
	if _, err := fx.s.SettleTrade(fx.args(t, mktBuy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for priced market order, got %v", err)
	}

	// Inconsistent price field.
	badTr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)
	badTr.Price = 1999 * pip.One
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, badTr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for inconsistent price, got %v", err)
	}
}

func TestSettleTradeTimeInForce(t *testing.T) {
	fx := newFixture(t)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0) // sell is maker

	// GTX buy taking liquidity: rejected.
	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	buy.TimeInForce = trade.GTX
	sell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for taking GTX, got %v", err)
	}

	// IOC sell resting as maker: rejected.
	buy.TimeInForce = trade.GTC
	sell.TimeInForce = trade.IOC
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for resting IOC, got %v", err)
	}

	// IOC taker and GTX maker is the canonical pairing.
	buy.TimeInForce = trade.IOC
	sell.TimeInForce = trade.GTX
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); err != nil {
		t.Errorf("IOC taker / GTX maker rejected: %v", err)
	}
}

func TestSettleTradeTriggerFieldRules(t *testing.T) {
	fx := newFixture(t)
	sell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)

	// Stop-loss without a trigger price.
	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	buy.Type = trade.StopLossLimit
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for missing trigger, got %v", err)
	}
	buy.TriggerPrice = 1900 * pip.One
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for missing trigger type, got %v", err)
	}
	buy.TriggerType = trade.TriggerIndex
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); err != nil {
		t.Errorf("valid stop-loss rejected: %v", err)
	}

	// Trailing stop callback rate bounds.
	tsBuy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	tsBuy.Type = trade.TrailingStop
	tsBuy.LimitPrice = 0
	tsBuy.CallbackRate = pip.One // 1.0 is out of range
	if _, err := fx.s.SettleTrade(fx.args(t, tsBuy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for callback rate, got %v", err)
	}
	// A plain limit order must not carry trigger fields.
	lim := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	lim.TriggerPrice = 1900 * pip.One
	if _, err := fx.s.SettleTrade(fx.args(t, lim, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for stray trigger price, got %v", err)
	}
}

func TestSettleTradeFeeRules(t *testing.T) {
	fx := newFixture(t)
	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)

	// Taker fee over 10% of quote.
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 201*pip.One)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for excessive taker fee, got %v", err)
	}

	// Maker rebate beyond the cap relative to the taker fee.
	tr = ethTrade(pip.One, 2000*pip.One, trade.Sell, -21*pip.One, 40*pip.One)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for excessive rebate, got %v", err)
	}

	// A rebate inside the cap settles, paid out of the fee wallet.
	tr = ethTrade(pip.One, 2000*pip.One, trade.Sell, -20*pip.One, 40*pip.One)
	totalBefore := fx.ledger.TotalBalance()
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); err != nil {
		t.Fatalf("SettleTrade: %v", err)
	}
	if got := fx.ledger.Balance(feeWallet); got != 20*pip.One {
		t.Errorf("fee wallet = %s, want 20", pip.String(got))
	}
	if got := fx.ledger.Balance(fx.seller.Address()); got != 25_000*pip.One+2020*pip.One {
		t.Errorf("seller (maker, rebated) balance = %s", pip.String(got))
	}
	if fx.ledger.TotalBalance() != totalBefore {
		t.Error("rebate broke conservation")
	}
}

func TestSettleTradeReduceOnly(t *testing.T) {
	fx := newFixture(t)
	sell := fx.order(fx.seller, trade.Sell, 10*pip.One, 2000*pip.One)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)

	// Reduce-only buy with no open position.
	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	buy.ReduceOnly = true
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindInsufficiency) {
		t.Errorf("expected insufficiency for reduce-only with no position, got %v", err)
	}

	// Reduce-only buy against an existing long would increase it.
	fx.ledger.ApplyPositionDelta(fx.buyer.Address(), "ETH", pip.One, 2000*pip.One, 0)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindInsufficiency) {
		t.Errorf("expected insufficiency for reduce-only increase, got %v", err)
	}

	// Reduce-only sell against the long works and |position| shrinks.
	roSell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)
	roSell.Wallet = fx.buyer.Address()
	roSell.ReduceOnly = true
	counterBuy := fx.order(fx.seller, trade.Buy, pip.One, 2000*pip.One)
	args := &trade.SettleArgs{
		BuyOrder: counterBuy, BuySignature: fx.sign(t, fx.seller, counterBuy),
		SellOrder: roSell, SellSignature: fx.sign(t, fx.buyer, roSell),
		Trade: tr, NowMs: nowMs,
	}
	if _, err := fx.s.SettleTrade(args); err != nil {
		t.Fatalf("reduce-only close rejected: %v", err)
	}
	if p := fx.ledger.Position(fx.buyer.Address(), "ETH"); p != nil {
		t.Errorf("position not closed: %+v", p)
	}
}

func TestSettleTradeInitialMarginCheck(t *testing.T) {
	fx := newFixture(t)
	// Drain the buyer so the new position cannot be margined.
	fx.ledger.Adjust(fx.buyer.Address(), -25_000*pip.One+500*pip.One)

	buy := fx.order(fx.buyer, trade.Buy, 10*pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, 10*pip.One, 2000*pip.One)
	// 20000 quote costs the buyer everything; IMR 1000 > value 500.
	tr := ethTrade(10*pip.One, 20_000*pip.One, trade.Sell, 0, 0)

	_, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr))
	if !errs.IsKind(err, errs.KindInsufficiency) {
		t.Fatalf("expected insufficiency, got %v", err)
	}
	if err.Error() != "initial margin requirement not met" {
		t.Errorf("reason = %q", err.Error())
	}
	// The failed settlement left no trace.
	if fx.ledger.Position(fx.buyer.Address(), "ETH") != nil {
		t.Error("position leaked from failed settlement")
	}
	if got := fx.ledger.Balance(fx.buyer.Address()); got != 500*pip.One {
		t.Errorf("buyer balance mutated: %s", pip.String(got))
	}
	if got := fx.ledger.Balance(feeWallet); got != 0 {
		t.Errorf("fee wallet mutated: %s", pip.String(got))
	}
	if fx.fills.Filled(buy.Wallet, buy.Nonce) != 0 {
		t.Error("fill recorded for failed settlement")
	}
}

func TestSettleTradeMaxPositionSize(t *testing.T) {
	fx := newFixture(t)
	fx.ledger.Adjust(fx.buyer.Address(), 100_000_000*pip.One)
	fx.ledger.Adjust(fx.seller.Address(), 100_000_000*pip.One)

	buy := fx.order(fx.buyer, trade.Buy, 1001*pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, 1001*pip.One, 2000*pip.One)
	tr := ethTrade(1001*pip.One, 2_002_000*pip.One, trade.Sell, 0, 0)

	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindInsufficiency) {
		t.Errorf("expected insufficiency for max position size, got %v", err)
	}
}

// A closing trade by an under-margined wallet must still settle: risk is
// shrinking, so the initial margin gate does not apply.
func TestClosingTradeAllowedUnderWater(t *testing.T) {
	fx := newFixture(t)
	// Long 10 @ 2000, then the price collapses.
	buy := fx.order(fx.buyer, trade.Buy, 10*pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, 10*pip.One, 2000*pip.One)
	tr := ethTrade(10*pip.One, 20_000*pip.One, trade.Sell, 0, 0)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); err != nil {
		t.Fatalf("SettleTrade: %v", err)
	}
	if err := fx.registry.SetIndexPrice("ETH", 500*pip.One, nowMs); err != nil {
		t.Fatalf("SetIndexPrice: %v", err)
	}

	// Buyer sells the whole long back at 500.
	closeSell := fx.order(fx.buyer, trade.Sell, 10*pip.One, 500*pip.One)
	closeBuy := fx.order(fx.seller, trade.Buy, 10*pip.One, 500*pip.One)
	closeTr := ethTrade(10*pip.One, 5_000*pip.One, trade.Sell, 0, 0)
	args := &trade.SettleArgs{
		BuyOrder: closeBuy, BuySignature: fx.sign(t, fx.seller, closeBuy),
		SellOrder: closeSell, SellSignature: fx.sign(t, fx.buyer, closeSell),
		Trade: closeTr, NowMs: nowMs,
	}
	if _, err := fx.s.SettleTrade(args); err != nil {
		t.Fatalf("closing trade rejected: %v", err)
	}
	if fx.ledger.Position(fx.buyer.Address(), "ETH") != nil {
		t.Error("buyer position not closed")
	}
}

func TestSettleTradeInactiveMarket(t *testing.T) {
	fx := newFixture(t)
	if err := fx.registry.Deactivate("ETH"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	buy := fx.order(fx.buyer, trade.Buy, pip.One, 2000*pip.One)
	sell := fx.order(fx.seller, trade.Sell, pip.One, 2000*pip.One)
	tr := ethTrade(pip.One, 2000*pip.One, trade.Sell, 0, 0)
	if _, err := fx.s.SettleTrade(fx.args(t, buy, sell, tr)); !errs.IsKind(err, errs.KindValidation) {
		t.Errorf("expected validation error for inactive market, got %v", err)
	}
}
