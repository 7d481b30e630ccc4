package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/engine"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/observability"
)

// Dispatcher consumes raw messages, parses them, and applies each command to
// the engine. Deterministic rejections (validation, insufficiency, conflict,
// duplicates) are terminal and acked: redelivery can never change the
// outcome. Only infrastructure failures are nacked for redelivery.
type Dispatcher struct {
	engine  *engine.Engine
	msgChan <-chan RawMessage
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewDispatcher(e *engine.Engine, msgChan <-chan RawMessage, metrics *observability.Metrics, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{engine: e, msgChan: msgChan, metrics: metrics, log: log}
}

// Run processes messages until the context is canceled or the channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-d.msgChan:
			if !ok {
				return nil
			}
			d.handle(msg)
		}
	}
}

func (d *Dispatcher) handle(msg RawMessage) {
	if d.metrics != nil {
		d.metrics.IngestMessages.WithLabelValues(msg.CommandType).Inc()
	}

	cmd, err := ParseCommand(msg.Data, msg.CommandType)
	if err != nil {
		// Malformed payloads never become valid; ack so they stop redelivering.
		d.log.Warn().Err(err).Str("subject", msg.Subject).Msg("unparseable message")
		if d.metrics != nil {
			d.metrics.IngestErrors.WithLabelValues(msg.CommandType, "parse").Inc()
		}
		msg.Ack()
		return
	}

	if err := d.apply(cmd); err != nil {
		if _, kinded := errs.KindOf(err); kinded {
			// Deterministic rejection: the engine will reject it identically
			// on every redelivery.
			d.log.Debug().Err(err).Str("command", cmd.CommandType()).Msg("command rejected")
			if d.metrics != nil {
				d.metrics.IngestErrors.WithLabelValues(msg.CommandType, "rejected").Inc()
			}
			msg.Ack()
			return
		}
		d.log.Error().Err(err).Str("command", cmd.CommandType()).Msg("command failed")
		if d.metrics != nil {
			d.metrics.IngestErrors.WithLabelValues(msg.CommandType, "error").Inc()
		}
		msg.Nak()
		return
	}
	msg.Ack()
}

func (d *Dispatcher) apply(cmd Command) error {
	switch c := cmd.(type) {
	case *IndexPriceCommand:
		return d.engine.UpdateIndexPrice(c.Market, c.Price, c.TimestampMs)
	case *FundingMultiplierCommand:
		return d.engine.PublishFundingMultiplier(c.Market, c.Period, c.Multiplier, c.TimestampMs)
	case *TradeCommand:
		_, err := d.engine.SettleTrade(c.FillID, c.Args)
		return err
	case *LiquidationCommand:
		return d.engine.Liquidate(c.Path, c.Args)
	case *DeleverageCommand:
		return d.engine.Deleverage(c.Kind, c.Args)
	case *DepositCommand:
		return d.engine.Deposit(c.DepositID, c.Wallet, c.Quantity, c.TimestampMs)
	case *WithdrawalCommand:
		_, err := d.engine.Withdraw(c.Withdrawal, c.Signature, c.TimestampMs)
		return err
	case *ExitWithdrawalCommand:
		_, err := d.engine.WithdrawExit(c.Wallet, c.TimestampMs)
		return err
	case *TransferCommand:
		return d.engine.Transfer(c.Transfer, c.Signature, c.TimestampMs)
	case *WalletExitCommand:
		return d.engine.ExitWallet(c.Wallet, c.TimestampMs)
	case *NonceInvalidationCommand:
		return d.engine.InvalidateNonces(c.Wallet, c.CutoffMs, c.TimestampMs)
	case *DelegationCommand:
		return d.engine.AuthorizeDelegatedKey(c.Authorization, c.TimestampMs)
	default:
		return fmt.Errorf("no handler for command %T", cmd)
	}
}
