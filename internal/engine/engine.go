// Package engine is the serialized single-writer facade over the risk
// engine's state: every command takes the engine mutex, validates and applies
// against the in-memory components, and emits one hash-chained envelope per
// applied transition. Commands carry explicit timestamps; the engine never
// reads the wall clock inside a state transition.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/custody"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/event"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/funding"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/governance"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/liquidation"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/margin"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/market"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/observability"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/trade"
)

// Config carries the engine's policy knobs. Fee caps and fund wallets are
// governed and may change at runtime via FinalizeUpgrade.
type Config struct {
	QuoteAsset              string
	FeeWallet               common.Address
	InsuranceFund           common.Address
	ExitFund                common.Address
	MaxFeeRate              int64
	MakerRebateCap          int64
	MaxGasFeeFraction       int64
	DeactivationFeeRate     int64
	ExitDelayMs             int64
	NoncePropagationDelayMs int64
	GovernanceDelayMs       int64
	IdempotencyCapacity     int
}

// Output is one emitted event, sent to both downstream channels.
type Output struct {
	Envelope *event.Envelope
}

// Engine owns all risk-engine state behind a single mutex.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	sequence int64
	hasher   *StateHasher

	registry   *market.Registry
	ledger     *account.Ledger
	funding    *funding.Store
	margin     *margin.Calculator
	fills      *trade.FillTracker
	settlement *trade.Settlement
	liquidator *liquidation.Engine
	custodian  *custody.Custodian
	upgrades   *governance.Upgrader

	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	log         zerolog.Logger

	// persistChan uses a blocking send: the engine stalls rather than lose
	// an event. projectionChan is non-blocking: projections rebuild from the
	// log when they fall behind.
	persistChan    chan<- Output
	projectionChan chan<- Output
}

func New(cfg Config, persistChan, projectionChan chan<- Output, dbChecker DBIdempotencyChecker, metrics *observability.Metrics, log zerolog.Logger) *Engine {
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = 1_000_000
	}
	registry := market.NewRegistry()
	ledger := account.NewLedger()
	fundingStore := funding.NewStore()
	calc := margin.NewCalculator(registry, ledger, fundingStore)
	fills := trade.NewFillTracker()

	e := &Engine{
		cfg:            cfg,
		hasher:         NewStateHasher(),
		registry:       registry,
		ledger:         ledger,
		funding:        fundingStore,
		margin:         calc,
		fills:          fills,
		upgrades:       governance.NewUpgrader(cfg.GovernanceDelayMs),
		idempotency:    NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker),
		metrics:        metrics,
		log:            log,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
	e.custodian = custody.NewCustodian(custody.Config{
		FeeWallet:               cfg.FeeWallet,
		InsuranceFund:           cfg.InsuranceFund,
		ExitFund:                cfg.ExitFund,
		MaxGasFeeFraction:       cfg.MaxGasFeeFraction,
		ExitDelayMs:             cfg.ExitDelayMs,
		NoncePropagationDelayMs: cfg.NoncePropagationDelayMs,
	}, ledger, calc)
	e.rebuildPolicyComponents()
	return e
}

// rebuildPolicyComponents reconstructs the stateless components that embed
// governed policy values. Stateful components (ledger, fills, custodian) are
// never rebuilt.
func (e *Engine) rebuildPolicyComponents() {
	e.settlement = trade.NewSettlement(trade.Config{
		QuoteAsset:              e.cfg.QuoteAsset,
		FeeWallet:               e.cfg.FeeWallet,
		InsuranceFund:           e.cfg.InsuranceFund,
		ExitFund:                e.cfg.ExitFund,
		MaxFeeRate:              e.cfg.MaxFeeRate,
		MakerRebateCap:          e.cfg.MakerRebateCap,
		NoncePropagationDelayMs: e.cfg.NoncePropagationDelayMs,
	}, e.registry, e.ledger, e.margin, e.funding, e.fills)
	e.liquidator = liquidation.NewEngine(liquidation.Config{
		InsuranceFund:       e.cfg.InsuranceFund,
		ExitFund:            e.cfg.ExitFund,
		DeactivationFeeRate: e.cfg.DeactivationFeeRate,
		ExitDelayMs:         e.cfg.ExitDelayMs,
	}, e.registry, e.ledger, e.margin, e.funding)
}

// Sequence returns the next event sequence number.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// WarmIdempotency preloads composite dedup keys recovered from the event log.
func (e *Engine) WarmIdempotency(keys []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idempotency.Warm(keys)
}

// --- markets ---

// ListMarket registers a new market.
func (e *Engine) ListMarket(symbol string, risk market.RiskParameters, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("MarketListed", func() (event.Payload, error) {
		if err := e.registry.Add(symbol, risk); err != nil {
			return nil, err
		}
		return &event.MarketListed{BaseAsset: symbol, TimestampMs: nowMs}, nil
	}, nowMs)
}

// DeactivateMarket freezes a market at its current index price.
func (e *Engine) DeactivateMarket(symbol string, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("MarketStatusChanged", func() (event.Payload, error) {
		if err := e.registry.Deactivate(symbol); err != nil {
			return nil, err
		}
		m, err := e.registry.Get(symbol)
		if err != nil {
			return nil, err
		}
		return &event.MarketStatusChanged{
			BaseAsset:   symbol,
			Active:      false,
			FrozenPrice: m.IndexPriceAtDeactivation,
			TimestampMs: nowMs,
		}, nil
	}, nowMs)
}

// ReactivateMarket restores trading in a deactivated market.
func (e *Engine) ReactivateMarket(symbol string, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("MarketStatusChanged", func() (event.Payload, error) {
		if err := e.registry.Reactivate(symbol); err != nil {
			return nil, err
		}
		return &event.MarketStatusChanged{BaseAsset: symbol, Active: true, TimestampMs: nowMs}, nil
	}, nowMs)
}

// UpdateIndexPrice applies one oracle price report.
func (e *Engine) UpdateIndexPrice(symbol string, price, timestampMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("IndexPriceUpdated", func() (event.Payload, error) {
		if err := e.registry.SetIndexPrice(symbol, price, timestampMs); err != nil {
			return nil, err
		}
		return &event.IndexPriceUpdated{BaseAsset: symbol, Price: price, TimestampMs: timestampMs}, nil
	}, timestampMs)
}

// PublishFundingMultiplier appends one funding period's multiplier.
func (e *Engine) PublishFundingMultiplier(symbol string, period, multiplier, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.apply("FundingMultiplierPublished", func() (event.Payload, error) {
		if _, err := e.registry.Get(symbol); err != nil {
			return nil, err
		}
		if err := e.funding.Publish(symbol, period, multiplier); err != nil {
			return nil, err
		}
		return &event.FundingMultiplierPublished{
			BaseAsset:   symbol,
			Period:      period,
			Multiplier:  multiplier,
			TimestampMs: nowMs,
		}, nil
	}, nowMs)
	if err == nil && e.metrics != nil {
		e.metrics.FundingMultipliersPublished.WithLabelValues(symbol).Inc()
	}
	return err
}

// --- trading ---

// SettleTrade validates and applies one fill proposed by the off-engine
// matcher. fillID is the command's idempotency key.
func (e *Engine) SettleTrade(fillID uuid.UUID, args *trade.SettleArgs) (*trade.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const cmd = "TradeSettled"
	if dup, tier := e.idempotency.Lookup(cmd, fillID.String()); dup {
		e.rejectDuplicate(cmd, tier)
		return nil, errs.Conflict("duplicate command")
	}
	start := time.Now()

	res, err := e.settlement.SettleTrade(args)
	if err != nil {
		e.reject(cmd, reasonOf(err))
		return nil, err
	}

	t := args.Trade
	e.emit(&event.TradeSettled{
		FillID:            fillID,
		BaseAsset:         t.BaseAsset,
		BuyWallet:         args.BuyOrder.Wallet,
		SellWallet:        args.SellOrder.Wallet,
		BuyNonce:          args.BuyOrder.Nonce,
		SellNonce:         args.SellOrder.Nonce,
		BaseQuantity:      t.BaseQuantity,
		QuoteQuantity:     t.QuoteQuantity,
		Price:             t.Price,
		MakerFee:          t.MakerFee,
		TakerFee:          t.TakerFee,
		BuyerRealizedPnL:  res.BuyerRealizedPnL,
		SellerRealizedPnL: res.SellerRealizedPnL,
		BuyerQuantity:     res.BuyerQuantity,
		SellerQuantity:    res.SellerQuantity,
		TimestampMs:       args.NowMs,
	}, args.NowMs)
	e.idempotency.MarkProcessed(cmd, fillID.String())

	if e.metrics != nil {
		e.metrics.CommandsApplied.WithLabelValues(cmd).Inc()
		e.metrics.CommandDuration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
		e.metrics.TradesSettled.WithLabelValues(t.BaseAsset).Inc()
		e.metrics.TradeNotional.WithLabelValues(t.BaseAsset).Add(float64(t.QuoteQuantity))
		e.metrics.FeesCollected.WithLabelValues(t.BaseAsset).Add(float64(t.MakerFee + t.TakerFee))
		e.metrics.RealizedPnLTotal.WithLabelValues(t.BaseAsset).Add(float64(pip.Abs(res.BuyerRealizedPnL) + pip.Abs(res.SellerRealizedPnL)))
	}
	return res, nil
}

// --- liquidation ---

// Liquidate resolves one wallet through a liquidation path.
func (e *Engine) Liquidate(path liquidation.Path, args *liquidation.Args) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	counterparty := e.cfg.InsuranceFund
	if path == liquidation.InMaintenanceDuringSystemRecovery {
		counterparty = e.cfg.ExitFund
	}
	closes := make([]event.LiquidatedPosition, 0, len(args.Closes))
	err := e.apply("WalletLiquidated", func() (event.Payload, error) {
		// Capture pre-close quantities for the event.
		for _, c := range args.Closes {
			var qty int64
			if p := e.ledger.Position(args.Wallet, c.Market); p != nil {
				qty = p.Quantity
			}
			closes = append(closes, event.LiquidatedPosition{
				BaseAsset:     c.Market,
				BaseQuantity:  qty,
				QuoteQuantity: c.QuoteQuantity,
			})
		}
		if err := e.liquidator.ResolveInsolvency(path, args); err != nil {
			return nil, err
		}
		return &event.WalletLiquidated{
			Wallet:       args.Wallet,
			Path:         path.String(),
			Counterparty: counterparty,
			Closes:       closes,
			TimestampMs:  args.NowMs,
		}, nil
	}, args.NowMs)
	if err == nil && e.metrics != nil {
		e.metrics.LiquidationsResolved.WithLabelValues(path.String()).Inc()
		e.metrics.InsuranceFundBalance.Set(float64(e.ledger.Balance(e.cfg.InsuranceFund)))
		e.metrics.ExitFundBalance.Set(float64(e.ledger.Balance(e.cfg.ExitFund)))
	}
	return err
}

// Deleverage executes one forced-deleveraging slice.
func (e *Engine) Deleverage(kind liquidation.DeleverageKind, args *liquidation.DeleverageArgs) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.apply("PositionDeleveraged", func() (event.Payload, error) {
		if err := e.liquidator.Deleverage(kind, args); err != nil {
			return nil, err
		}
		return &event.PositionDeleveraged{
			Kind:          kind.String(),
			Wallet:        args.Wallet,
			Counterparty:  args.Counterparty,
			BaseAsset:     args.Market,
			BaseQuantity:  args.BaseQuantity,
			QuoteQuantity: args.QuoteQuantity,
			TimestampMs:   args.NowMs,
		}, nil
	}, args.NowMs)
	if err == nil && e.metrics != nil {
		e.metrics.DeleveragesExecuted.WithLabelValues(kind.String()).Inc()
	}
	return err
}

// --- custody ---

// Deposit credits a confirmed external deposit. depositID is the command's
// idempotency key.
func (e *Engine) Deposit(depositID uuid.UUID, wallet common.Address, quantity, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const cmd = "DepositReceived"
	if dup, tier := e.idempotency.Lookup(cmd, depositID.String()); dup {
		e.rejectDuplicate(cmd, tier)
		return errs.Conflict("duplicate command")
	}
	err := e.apply(cmd, func() (event.Payload, error) {
		if err := e.custodian.Deposit(wallet, quantity); err != nil {
			return nil, err
		}
		return &event.DepositReceived{
			DepositID:   depositID,
			Wallet:      wallet,
			Quantity:    quantity,
			TimestampMs: nowMs,
		}, nil
	}, nowMs)
	if err == nil {
		e.idempotency.MarkProcessed(cmd, depositID.String())
		if e.metrics != nil {
			e.metrics.DepositsReceived.Inc()
		}
	}
	return err
}

// Withdraw executes one signed withdrawal and returns the net quantity
// leaving toward external custody.
func (e *Engine) Withdraw(w *custody.Withdrawal, sig []byte, nowMs int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var net int64
	err := e.apply("WithdrawalExecuted", func() (event.Payload, error) {
		var err error
		net, err = e.custodian.Withdraw(w, sig, nowMs)
		if err != nil {
			return nil, err
		}
		return &event.WithdrawalExecuted{
			Nonce:         w.Nonce,
			Wallet:        w.Wallet,
			GrossQuantity: w.Quantity,
			NetQuantity:   net,
			GasFee:        w.GasFee,
			BridgeAdapter: w.BridgeAdapter,
			TimestampMs:   nowMs,
		}, nil
	}, nowMs)
	if err == nil && e.metrics != nil {
		e.metrics.WithdrawalsExecuted.Inc()
	}
	return net, err
}

// WithdrawExit pays out an exited wallet's full remaining balance.
func (e *Engine) WithdrawExit(wallet common.Address, nowMs int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var paid int64
	err := e.apply("WalletExitWithdrawn", func() (event.Payload, error) {
		var err error
		paid, err = e.custodian.WithdrawExit(wallet, nowMs)
		if err != nil {
			return nil, err
		}
		return &event.WalletExitWithdrawn{Wallet: wallet, Quantity: paid, TimestampMs: nowMs}, nil
	}, nowMs)
	if err == nil && e.metrics != nil {
		e.metrics.WithdrawalsExecuted.Inc()
	}
	return paid, err
}

// Transfer executes one signed internal transfer.
func (e *Engine) Transfer(t *custody.Transfer, sig []byte, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.apply("TransferExecuted", func() (event.Payload, error) {
		if err := e.custodian.Transfer(t, sig, nowMs); err != nil {
			return nil, err
		}
		return &event.TransferExecuted{
			Nonce:       t.Nonce,
			Source:      t.Source,
			Destination: t.Destination,
			Quantity:    t.Quantity,
			TimestampMs: nowMs,
		}, nil
	}, nowMs)
	if err == nil && e.metrics != nil {
		e.metrics.TransfersExecuted.Inc()
	}
	return err
}

// --- wallet lifecycle ---

// ExitWallet puts a wallet on the one-way exit path.
func (e *Engine) ExitWallet(wallet common.Address, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("WalletExited", func() (event.Payload, error) {
		if wallet == e.cfg.InsuranceFund || wallet == e.cfg.ExitFund {
			return nil, errs.Validation("fund wallets cannot exit")
		}
		if err := e.ledger.ExitWallet(wallet, nowMs); err != nil {
			return nil, err
		}
		return &event.WalletExited{Wallet: wallet, TimestampMs: nowMs}, nil
	}, nowMs)
}

// InvalidateNonces schedules a wallet's nonce invalidation cutoff.
func (e *Engine) InvalidateNonces(wallet common.Address, cutoffMs, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("NonceInvalidationScheduled", func() (event.Payload, error) {
		w := e.ledger.Wallet(wallet)
		if err := w.Nonces.Schedule(cutoffMs, nowMs, e.cfg.NoncePropagationDelayMs); err != nil {
			return nil, err
		}
		return &event.NonceInvalidationScheduled{
			Wallet:      wallet,
			CutoffMs:    cutoffMs,
			EffectiveMs: nowMs + e.cfg.NoncePropagationDelayMs,
			TimestampMs: nowMs,
		}, nil
	}, nowMs)
}

// AuthorizeDelegatedKey validates and stores a delegated-key grant.
func (e *Engine) AuthorizeDelegatedKey(a *auth.DelegatedKeyAuthorization, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("DelegatedKeyAuthorized", func() (event.Payload, error) {
		w := e.ledger.Wallet(a.Wallet)
		grant, err := auth.ValidateAuthorization(a, &w.Nonces, nowMs, e.cfg.NoncePropagationDelayMs)
		if err != nil {
			return nil, err
		}
		if w.DelegatedKeys == nil {
			w.DelegatedKeys = make(map[common.Address]*auth.DelegatedKey)
		}
		w.DelegatedKeys[grant.Key] = grant
		return &event.DelegatedKeyAuthorized{
			Nonce:        a.Nonce,
			Wallet:       a.Wallet,
			DelegatedKey: a.DelegatedKey,
			ExpiresAtMs:  a.ExpiresAtMs,
			TimestampMs:  nowMs,
		}, nil
	}, nowMs)
}

// --- governance ---

// InitiateUpgrade opens the delay window for one configuration upgrade.
func (e *Engine) InitiateUpgrade(payload governance.Payload, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("GovernanceUpgraded", func() (event.Payload, error) {
		if err := e.upgrades.Initiate(payload, nowMs); err != nil {
			return nil, err
		}
		return &event.GovernanceUpgraded{Kind: payload.UpgradeKind().String(), Phase: "initiated", TimestampMs: nowMs}, nil
	}, nowMs)
}

// CancelUpgrade discards a pending upgrade.
func (e *Engine) CancelUpgrade(kind governance.Kind, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("GovernanceUpgraded", func() (event.Payload, error) {
		if err := e.upgrades.Cancel(kind); err != nil {
			return nil, err
		}
		return &event.GovernanceUpgraded{Kind: kind.String(), Phase: "canceled", TimestampMs: nowMs}, nil
	}, nowMs)
}

// FinalizeUpgrade applies a pending upgrade once its delay has elapsed.
func (e *Engine) FinalizeUpgrade(kind governance.Kind, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("GovernanceUpgraded", func() (event.Payload, error) {
		payload, err := e.upgrades.Finalize(kind, nowMs)
		if err != nil {
			return nil, err
		}
		if err := e.applyUpgrade(payload); err != nil {
			return nil, err
		}
		return &event.GovernanceUpgraded{Kind: kind.String(), Phase: "finalized", TimestampMs: nowMs}, nil
	}, nowMs)
}

func (e *Engine) applyUpgrade(payload governance.Payload) error {
	switch p := payload.(type) {
	case *governance.MarketRiskParametersPayload:
		return e.registry.SetRiskParameters(p.Market, p.Risk)

	case *governance.WalletRiskOverridesPayload:
		if p.Clear {
			for _, symbol := range e.registry.Symbols() {
				e.registry.ClearWalletOverrides(p.Wallet, symbol)
			}
			return nil
		}
		symbols := make([]string, 0, len(p.Overrides))
		for symbol := range p.Overrides {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			if err := e.registry.SetWalletOverrides(p.Wallet, symbol, p.Overrides[symbol]); err != nil {
				return err
			}
		}
		return nil

	case *governance.FeeRatesPayload:
		e.cfg.MaxFeeRate = p.MaxFeeRate
		e.cfg.MakerRebateCap = p.MakerRebateCap
		e.cfg.MaxGasFeeFraction = p.MaxGasFeeFraction
		e.custodian.SetMaxGasFeeFraction(p.MaxGasFeeFraction)
		e.rebuildPolicyComponents()
		return nil

	case *governance.BridgeAllowListPayload:
		e.custodian.SetBridgeAllowList(p.Adapters)
		return nil

	case *governance.FundWalletsPayload:
		e.cfg.InsuranceFund = p.InsuranceFund
		e.cfg.ExitFund = p.ExitFund
		e.cfg.FeeWallet = p.FeeWallet
		e.custodian.SetFundWallets(p.FeeWallet, p.InsuranceFund, p.ExitFund)
		e.rebuildPolicyComponents()
		return nil

	default:
		return errs.Validation("unknown upgrade payload %T", payload)
	}
}

// --- plumbing ---

// apply runs one command body, emits its event on success, and records
// metrics. The body must either mutate and return a payload, or leave state
// untouched and return an error.
func (e *Engine) apply(cmd string, body func() (event.Payload, error), tsMs int64) error {
	start := time.Now()
	payload, err := body()
	if err != nil {
		e.reject(cmd, reasonOf(err))
		return err
	}
	e.emit(payload, tsMs)
	if e.metrics != nil {
		e.metrics.CommandsApplied.WithLabelValues(cmd).Inc()
		e.metrics.CommandDuration.WithLabelValues(cmd).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (e *Engine) emit(p event.Payload, tsMs int64) {
	digest, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal %s payload: %v", p.EventType(), err))
	}
	prev := e.hasher.PrevHash()
	hash := e.hasher.ComputeHash(e.sequence, digest)

	env := &event.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: p.IdempotencyKey(),
		Type:           p.EventType(),
		Market:         p.Market(),
		TimestampMs:    tsMs,
		StateHash:      hash,
		PrevHash:       prev,
		Payload:        p,
	}
	e.sequence++

	out := Output{Envelope: env}
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			// Full channel; block until the persistence worker catches up.
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			// Dropped; the projection rebuilds from the event log.
			if e.metrics != nil {
				e.metrics.ProjectionDrops.Inc()
			}
		}
	}
	if e.metrics != nil {
		e.metrics.EngineSequence.Set(float64(e.sequence))
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.Size()))
	}
	e.log.Debug().
		Int64("sequence", env.Sequence).
		Str("type", env.Type.String()).
		Str("market", env.Market).
		Msg("event applied")
}

func (e *Engine) reject(cmd, reason string) {
	if e.metrics != nil {
		e.metrics.CommandsRejected.WithLabelValues(cmd, reason).Inc()
	}
}

func (e *Engine) rejectDuplicate(cmd, tier string) {
	if e.metrics != nil {
		e.metrics.CommandsRejected.WithLabelValues(cmd, "duplicate").Inc()
		e.metrics.IdempotencyDuplicates.WithLabelValues(cmd, tier).Inc()
	}
}

func reasonOf(err error) string {
	if kind, ok := errs.KindOf(err); ok {
		return kind.String()
	}
	return "error"
}
