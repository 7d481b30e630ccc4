package liquidation

import (
	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/margin"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"

	"github.com/ethereum/go-ethereum/common"
)

// DeleverageArgs proposes closing a slice of two opposing positions: the
// offloaded wallet's and a counterparty's, both moving toward zero.
type DeleverageArgs struct {
	Wallet        common.Address // position being offloaded or wound down
	Counterparty  common.Address
	Market        string
	BaseQuantity  int64 // positive slice magnitude
	QuoteQuantity int64 // proposed signed quote paid to Wallet
	NowMs         int64
}

// Deleverage validates and executes one forced-deleveraging action. The
// counterparty must hold an opposite, currently profitable position and must
// remain at or above its maintenance margin afterward, or the candidate is
// rejected with no state change.
func (e *Engine) Deleverage(kind DeleverageKind, args *DeleverageArgs) error {
	if err := e.validateDeleverageParties(kind, args); err != nil {
		return err
	}

	e.funding.Apply(e.ledger, args.Wallet)
	e.funding.Apply(e.ledger, args.Counterparty)

	wp := e.ledger.Position(args.Wallet, args.Market)
	if wp == nil {
		return errs.Validation("no open position in %s", args.Market)
	}
	cp := e.ledger.Position(args.Counterparty, args.Market)
	if cp == nil || pip.Sign(cp.Quantity) == pip.Sign(wp.Quantity) {
		return errs.Validation("counterparty position must oppose the offloaded position")
	}
	if args.BaseQuantity <= 0 {
		return errs.Validation("deleverage quantity must be positive")
	}
	if args.BaseQuantity > pip.Abs(wp.Quantity) || args.BaseQuantity > pip.Abs(cp.Quantity) {
		return errs.Validation("deleverage quantity exceeds open position")
	}

	m, err := e.registry.Get(args.Market)
	if err != nil {
		return err
	}
	price := e.effectivePrice(m)

	// Only a counterparty in profit can be forced to give up its position.
	if pip.Sub(pip.Multiply(cp.Quantity, price), cp.CostBasis) < 0 {
		return errs.Validation("counterparty position is not profitable")
	}

	expected, err := e.expectedDeleverageQuote(kind, args, wp, price)
	if err != nil {
		return err
	}
	if args.QuoteQuantity != expected {
		return errs.Validation("invalid deleverage quote quantity for %s", args.Market)
	}

	slice := args.BaseQuantity * pip.Sign(wp.Quantity) // signed in the wallet's direction

	snap := e.snapshot(args.Wallet, args.Counterparty, []PositionClose{{Market: args.Market}})
	e.ledger.ApplyPositionDelta(args.Wallet, args.Market, -slice, -expected, wp.LastFundingPeriod)
	e.ledger.ApplyPositionDelta(args.Counterparty, args.Market, slice, expected, cp.LastFundingPeriod)
	e.ledger.Adjust(args.Wallet, expected)
	e.ledger.Adjust(args.Counterparty, -expected)

	ok, err := e.margin.MeetsMaintenanceMargin(args.Counterparty)
	if err != nil {
		e.restore(snap)
		return err
	}
	if !ok {
		e.restore(snap)
		return errs.Insufficiency("counterparty maintenance margin not met")
	}
	return nil
}

func (e *Engine) validateDeleverageParties(kind DeleverageKind, args *DeleverageArgs) error {
	if args.Wallet == args.Counterparty {
		return errs.Validation("deleverage requires distinct wallets")
	}
	if args.Counterparty == e.cfg.InsuranceFund || args.Counterparty == e.cfg.ExitFund {
		return errs.Validation("fund wallets cannot be deleverage counterparties")
	}
	switch kind {
	case InsuranceFundClosure:
		if args.Wallet != e.cfg.InsuranceFund {
			return errs.Validation("insurance fund closure must offload the insurance fund")
		}
	case ExitFundClosure:
		if args.Wallet != e.cfg.ExitFund {
			return errs.Validation("exit fund closure must offload the exit fund")
		}
	case WalletInMaintenanceAcquisition, WalletExitedAcquisition:
		if args.Wallet == e.cfg.InsuranceFund || args.Wallet == e.cfg.ExitFund {
			return errs.Validation("fund wallets cannot be liquidated")
		}
	default:
		return errs.Validation("unknown deleverage kind")
	}
	return nil
}

// expectedDeleverageQuote prices the slice: acquisitions of an
// in-maintenance wallet use its bankruptcy price, everything else the index
// price.
func (e *Engine) expectedDeleverageQuote(kind DeleverageKind, args *DeleverageArgs, wp *account.Position, price int64) (int64, error) {
	slice := args.BaseQuantity * pip.Sign(wp.Quantity)

	switch kind {
	case WalletInMaintenanceAcquisition:
		health, err := e.margin.HealthOf(args.Wallet)
		if err != nil {
			return 0, err
		}
		if health != margin.Liquidatable {
			return 0, errs.Validation("wallet meets maintenance margin")
		}
		value, err := e.margin.AccountValue(args.Wallet)
		if err != nil {
			return 0, err
		}
		totalMMR, err := e.margin.MaintenanceMarginRequirement(args.Wallet)
		if err != nil {
			return 0, err
		}
		mmr, err := e.margin.PositionMaintenanceRequirement(wp)
		if err != nil {
			return 0, err
		}
		full := pip.Sub(
			pip.Multiply(wp.Quantity, price),
			pip.MultiplyFraction(value, mmr, totalMMR, pip.RoundTowardZero),
		)
		return pip.MultiplyFraction(full, args.BaseQuantity, pip.Abs(wp.Quantity), pip.RoundTowardZero), nil

	case WalletExitedAcquisition:
		w := e.ledger.Wallet(args.Wallet)
		if !w.Exited() {
			return 0, errs.Validation("wallet has not exited")
		}
		if args.NowMs < w.ExitedAtMs+e.cfg.ExitDelayMs {
			return 0, errs.Validation("exit delay has not elapsed")
		}
		return pip.Multiply(slice, price), nil

	case InsuranceFundClosure, ExitFundClosure:
		return pip.Multiply(slice, price), nil

	default:
		return 0, errs.Validation("unknown deleverage kind")
	}
}
