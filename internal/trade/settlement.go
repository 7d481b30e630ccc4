package trade

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/funding"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/margin"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// Config carries the settlement policy knobs and reserved wallet addresses.
type Config struct {
	QuoteAsset              string
	FeeWallet               common.Address
	InsuranceFund           common.Address
	ExitFund                common.Address
	MaxFeeRate              int64 // pip fraction of quote quantity
	MakerRebateCap          int64 // pip fraction of the taker fee
	NoncePropagationDelayMs int64
}

// Settlement validates and applies pre-matched fills against the ledger.
type Settlement struct {
	cfg      Config
	registry *market.Registry
	ledger   *account.Ledger
	margin   *margin.Calculator
	funding  *funding.Store
	fills    *FillTracker
}

func NewSettlement(cfg Config, registry *market.Registry, ledger *account.Ledger, calc *margin.Calculator, fundingStore *funding.Store, fills *FillTracker) *Settlement {
	return &Settlement{
		cfg:      cfg,
		registry: registry,
		ledger:   ledger,
		margin:   calc,
		funding:  fundingStore,
		fills:    fills,
	}
}

// SettleArgs is one settlement request: two signed orders and the fill the
// off-engine matcher proposes between them.
type SettleArgs struct {
	BuyOrder      *Order
	BuySignature  []byte
	SellOrder     *Order
	SellSignature []byte
	Trade         *Trade
	NowMs         int64
}

// Result reports the applied effects for event emission.
type Result struct {
	BuyerRealizedPnL  int64
	SellerRealizedPnL int64
	BuyerQuantity     int64 // buyer's post-trade position quantity
	SellerQuantity    int64
}

// SettleTrade runs the full validation sequence and, only if every check
// passes, applies the fill to both wallets, the fee wallet, and the fill
// counters. The first failing check aborts with no state change.
func (s *Settlement) SettleTrade(args *SettleArgs) (*Result, error) {
	buy, sell, t := args.BuyOrder, args.SellOrder, args.Trade

	if buy.Side != Buy {
		return nil, errs.Validation("buy order side must be buy")
	}
	if sell.Side != Sell {
		return nil, errs.Validation("sell order side must be sell")
	}

	// Signature, hash version, delegated key, and nonce checks for each order.
	if err := s.validateOrderAuthorization(buy, args.BuySignature, args.NowMs); err != nil {
		return nil, err
	}
	if err := s.validateOrderAuthorization(sell, args.SellSignature, args.NowMs); err != nil {
		return nil, err
	}

	if err := s.validateCounterparties(buy, sell); err != nil {
		return nil, err
	}

	if err := s.validateMarket(buy, sell, t); err != nil {
		return nil, err
	}

	if err := s.validateQuantitiesAndPrice(buy, sell, t); err != nil {
		return nil, err
	}
	if err := s.validateTimeInForce(buy, t); err != nil {
		return nil, err
	}
	if err := s.validateTimeInForce(sell, t); err != nil {
		return nil, err
	}
	if err := validateTriggerFields(buy); err != nil {
		return nil, err
	}
	if err := validateTriggerFields(sell); err != nil {
		return nil, err
	}
	if err := s.validateFees(t); err != nil {
		return nil, err
	}
	if err := s.fills.validateFill(buy, t.BaseQuantity); err != nil {
		return nil, err
	}
	if err := s.fills.validateFill(sell, t.BaseQuantity); err != nil {
		return nil, err
	}

	// Funding must be current before position and margin math; applying it
	// is always a valid state transition even if the trade later aborts.
	s.funding.Apply(s.ledger, buy.Wallet)
	s.funding.Apply(s.ledger, sell.Wallet)

	if err := s.validateReduceOnly(buy, t.BaseQuantity); err != nil {
		return nil, err
	}
	if err := s.validateReduceOnly(sell, t.BaseQuantity); err != nil {
		return nil, err
	}

	// Everything from here mutates; capture state so a late margin or size
	// failure unwinds completely.
	snap := s.snapshot(buy.Wallet, sell.Wallet, t.BaseAsset)

	marker := s.fundingMarker(t.BaseAsset, args.NowMs)
	buyerFee, sellerFee := s.feeSplit(t)

	buyerRealized := s.ledger.ApplyPositionDelta(buy.Wallet, t.BaseAsset, t.BaseQuantity, t.QuoteQuantity, marker)
	sellerRealized := s.ledger.ApplyPositionDelta(sell.Wallet, t.BaseAsset, -t.BaseQuantity, -t.QuoteQuantity, marker)

	s.ledger.Adjust(buy.Wallet, -pip.Add(t.QuoteQuantity, buyerFee))
	s.ledger.Adjust(sell.Wallet, pip.Sub(t.QuoteQuantity, sellerFee))
	s.ledger.Adjust(s.cfg.FeeWallet, pip.Add(buyerFee, sellerFee))

	if err := s.validatePostTrade(buy.Wallet, t.BaseAsset, snap); err != nil {
		s.restore(snap)
		return nil, err
	}
	if err := s.validatePostTrade(sell.Wallet, t.BaseAsset, snap); err != nil {
		s.restore(snap)
		return nil, err
	}

	s.fills.recordFill(buy, t.BaseQuantity)
	s.fills.recordFill(sell, t.BaseQuantity)

	res := &Result{
		BuyerRealizedPnL:  buyerRealized,
		SellerRealizedPnL: sellerRealized,
	}
	if p := s.ledger.Position(buy.Wallet, t.BaseAsset); p != nil {
		res.BuyerQuantity = p.Quantity
	}
	if p := s.ledger.Position(sell.Wallet, t.BaseAsset); p != nil {
		res.SellerQuantity = p.Quantity
	}
	return res, nil
}

// validateOrderAuthorization covers hash version, signature (wallet or
// delegated key), and nonce invalidation state.
func (s *Settlement) validateOrderAuthorization(o *Order, sig []byte, nowMs int64) error {
	if o.SignatureHashVersion != auth.SignatureHashVersion {
		return errs.Validation("signature hash version mismatch: got %d, want %d", o.SignatureHashVersion, auth.SignatureHashVersion)
	}
	nonceTs, err := auth.NonceTimestampMs(o.Nonce)
	if err != nil {
		return err
	}
	w := s.ledger.Wallet(o.Wallet)
	if err := w.Nonces.ValidateNonce(o.Nonce, nowMs, s.cfg.NoncePropagationDelayMs); err != nil {
		return err
	}

	if o.DelegatedKey == (common.Address{}) {
		if err := auth.VerifySignature(o.Hash(), sig, o.Wallet); err != nil {
			return errs.Validation("invalid order signature: %v", err)
		}
		return nil
	}

	grant, ok := w.DelegatedKeys[o.DelegatedKey]
	if !ok {
		return errs.Validation("delegated key not authorized for wallet")
	}
	if err := grant.ValidateDelegatedUse(nonceTs, nowMs, &w.Nonces, s.cfg.NoncePropagationDelayMs); err != nil {
		return err
	}
	if err := auth.VerifySignature(o.Hash(), sig, o.DelegatedKey); err != nil {
		return errs.Validation("invalid delegated order signature: %v", err)
	}
	return nil
}

func (s *Settlement) validateCounterparties(buy, sell *Order) error {
	if buy.Wallet == sell.Wallet {
		return errs.Validation("self-trade")
	}
	for _, o := range []*Order{buy, sell} {
		if o.Wallet == s.cfg.ExitFund {
			return errs.Validation("exit fund cannot trade")
		}
		if o.Wallet == s.cfg.InsuranceFund {
			// The insurance fund only sheds acquired risk, and only under a
			// delegated operations key.
			if !o.ReduceOnly {
				return errs.Validation("insurance fund orders must be reduce-only")
			}
			if o.DelegatedKey == (common.Address{}) {
				return errs.Validation("insurance fund orders must be signed by a delegated key")
			}
		}
		if s.ledger.Wallet(o.Wallet).Exited() && !o.ReduceOnly {
			return errs.Validation("exited wallet may not increase positions")
		}
	}
	return nil
}

func (s *Settlement) validateMarket(buy, sell *Order, t *Trade) error {
	if t.BaseAsset == s.cfg.QuoteAsset {
		return errs.Validation("trade base asset must differ from quote asset")
	}
	if buy.Market != t.BaseAsset || sell.Market != t.BaseAsset {
		return errs.Validation("order market does not match trade")
	}
	m, err := s.registry.Get(t.BaseAsset)
	if err != nil {
		return err
	}
	if !m.Active {
		return errs.Validation("market %s is inactive", t.BaseAsset)
	}
	if m.IndexPrice <= 0 {
		return errs.Validation("no index price for market %s", t.BaseAsset)
	}
	return nil
}

func (s *Settlement) validateQuantitiesAndPrice(buy, sell *Order, t *Trade) error {
	if t.BaseQuantity <= 0 {
		return errs.Validation("trade base quantity must be positive")
	}
	if t.QuoteQuantity <= 0 {
		return errs.Validation("trade quote quantity must be positive")
	}
	implied := pip.Divide(t.QuoteQuantity, t.BaseQuantity, pip.RoundTowardZero)
	if t.Price != implied {
		return errs.Validation("execution price inconsistent with quantities")
	}
	if t.MakerSide != Buy && t.MakerSide != Sell {
		return errs.Validation("trade maker side invalid")
	}
	for _, o := range []*Order{buy, sell} {
		if o.Type.hasLimitPrice() {
			if o.LimitPrice <= 0 {
				return errs.Validation("limit order requires a positive price")
			}
			if o.Side == Buy && implied > o.LimitPrice {
				return errs.Validation("execution price exceeds buy limit")
			}
			if o.Side == Sell && implied < o.LimitPrice {
				return errs.Validation("execution price below sell limit")
			}
		} else if o.LimitPrice != 0 {
			return errs.Validation("market order price must be zero")
		}
	}
	return nil
}

func (s *Settlement) validateTimeInForce(o *Order, t *Trade) error {
	isMaker := o.Side == t.MakerSide
	switch o.TimeInForce {
	case GTC:
		return nil
	case GTX:
		if !isMaker {
			return errs.Validation("gtx order would take")
		}
	case IOC, FOK:
		if isMaker {
			return errs.Validation("%s order must take", o.TimeInForce)
		}
	default:
		return errs.Validation("unknown time in force")
	}
	return nil
}

func validateTriggerFields(o *Order) error {
	if o.Type.requiresTrigger() {
		if o.TriggerPrice <= 0 {
			return errs.Validation("%s order requires a trigger price", o.Type)
		}
		if o.TriggerType != TriggerLast && o.TriggerType != TriggerIndex {
			return errs.Validation("%s order requires a trigger type", o.Type)
		}
	} else {
		if o.TriggerPrice != 0 {
			return errs.Validation("%s order must not carry a trigger price", o.Type)
		}
		if o.TriggerType != TriggerNone {
			return errs.Validation("%s order must not carry a trigger type", o.Type)
		}
	}
	if o.Type == TrailingStop {
		if o.CallbackRate <= 0 || o.CallbackRate >= pip.One {
			return errs.Validation("trailing stop callback rate must be in (0, 1)")
		}
	} else if o.CallbackRate != 0 {
		return errs.Validation("%s order must not carry a callback rate", o.Type)
	}
	return nil
}

func (s *Settlement) validateFees(t *Trade) error {
	maxFee := pip.Multiply(t.QuoteQuantity, s.cfg.MaxFeeRate)
	if t.TakerFee < 0 {
		return errs.Validation("taker fee must not be negative")
	}
	if t.TakerFee > maxFee {
		return errs.Validation("excessive taker fee")
	}
	if t.MakerFee > maxFee {
		return errs.Validation("excessive maker fee")
	}
	if t.MakerFee < 0 {
		rebateCap := pip.Multiply(t.TakerFee, s.cfg.MakerRebateCap)
		if -t.MakerFee > rebateCap {
			return errs.Validation("excessive maker rebate")
		}
	}
	return nil
}

// validateReduceOnly requires a flagged order to move the position strictly
// toward zero from a nonzero start.
func (s *Settlement) validateReduceOnly(o *Order, baseQuantity int64) error {
	if !o.ReduceOnly {
		return nil
	}
	p := s.ledger.Position(o.Wallet, o.Market)
	if p == nil {
		return errs.Insufficiency("reduce-only order requires an open position")
	}
	delta := baseQuantity
	if o.Side == Sell {
		delta = -baseQuantity
	}
	if pip.Sign(delta) == pip.Sign(p.Quantity) || pip.Abs(delta) > pip.Abs(p.Quantity) {
		return errs.Insufficiency("reduce-only order would increase position")
	}
	return nil
}

// feeSplit assigns the maker and taker fees to the buy and sell wallets.
func (s *Settlement) feeSplit(t *Trade) (buyerFee, sellerFee int64) {
	if t.MakerSide == Buy {
		return t.MakerFee, t.TakerFee
	}
	return t.TakerFee, t.MakerFee
}

// fundingMarker picks the funding period a position opened now starts at.
func (s *Settlement) fundingMarker(marketSymbol string, nowMs int64) int64 {
	if last, ok := s.funding.LatestPeriod(marketSymbol); ok {
		return last
	}
	return funding.PeriodOf(nowMs)
}

// validatePostTrade enforces position-size limits and, when the wallet's
// exposure grew, the initial margin requirement.
func (s *Settlement) validatePostTrade(wallet common.Address, marketSymbol string, snap *settleSnapshot) error {
	risk, err := s.registry.RiskFor(wallet, marketSymbol)
	if err != nil {
		return err
	}
	var preAbs, postAbs int64
	if pre := snap.position(wallet); pre != nil {
		preAbs = pip.Abs(pre.Quantity)
	}
	if post := s.ledger.Position(wallet, marketSymbol); post != nil {
		postAbs = pip.Abs(post.Quantity)
	}
	if postAbs <= preAbs {
		// Risk did not grow; closing trades stay valid even under water.
		return nil
	}
	if postAbs > risk.MaximumPositionSize {
		return errs.Insufficiency("maximum position size exceeded")
	}
	if preAbs != 0 && preAbs < risk.MinimumPositionSize {
		return errs.Insufficiency("position below minimum size must be closed by liquidation")
	}
	ok, err := s.margin.MeetsInitialMargin(wallet)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Insufficiency("initial margin requirement not met")
	}
	return nil
}

// settleSnapshot captures the minimal state a failed settlement must unwind:
// the two traded positions and the three touched balances.
type settleSnapshot struct {
	market    string
	positions map[common.Address]*account.Position // copies; nil entry = was flat
	balances  map[common.Address]int64
}

func (s *Settlement) snapshot(buyer, seller common.Address, marketSymbol string) *settleSnapshot {
	snap := &settleSnapshot{
		market:    marketSymbol,
		positions: make(map[common.Address]*account.Position, 2),
		balances: map[common.Address]int64{
			buyer:           s.ledger.Balance(buyer),
			seller:          s.ledger.Balance(seller),
			s.cfg.FeeWallet: s.ledger.Balance(s.cfg.FeeWallet),
		},
	}
	for _, w := range []common.Address{buyer, seller} {
		if p := s.ledger.Position(w, marketSymbol); p != nil {
			cp := *p
			snap.positions[w] = &cp
		} else {
			snap.positions[w] = nil
		}
	}
	return snap
}

func (snap *settleSnapshot) position(wallet common.Address) *account.Position {
	return snap.positions[wallet]
}

func (s *Settlement) restore(snap *settleSnapshot) {
	for w, bal := range snap.balances {
		s.ledger.Adjust(w, bal-s.ledger.Balance(w))
	}
	for w, pre := range snap.positions {
		cur := s.ledger.Position(w, snap.market)
		var curQty, curCost, marker int64
		if cur != nil {
			curQty, curCost = cur.Quantity, cur.CostBasis
		}
		if pre != nil {
			marker = pre.LastFundingPeriod
		}
		// Reverse whatever delta was applied, then reinstate the exact
		// pre-trade quantities.
		if curQty != 0 {
			s.ledger.ApplyPositionDelta(w, snap.market, -curQty, -curCost, marker)
		}
		if pre != nil {
			s.ledger.ApplyPositionDelta(w, snap.market, pre.Quantity, pre.CostBasis, pre.LastFundingPeriod)
		}
	}
}
