package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/custody"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/liquidation"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/trade"
)

// Command type tags carried by the subject configuration.
const (
	CommandIndexPrice        = "IndexPriceUpdate"
	CommandFundingMultiplier = "FundingMultiplier"
	CommandTrade             = "TradeFill"
	CommandLiquidation       = "Liquidation"
	CommandDeleverage        = "Deleverage"
	CommandDeposit           = "Deposit"
	CommandWithdrawal        = "Withdrawal"
	CommandExitWithdrawal    = "ExitWithdrawal"
	CommandTransfer          = "Transfer"
	CommandWalletExit        = "WalletExit"
	CommandNonceInvalidation = "NonceInvalidation"
	CommandDelegation        = "DelegatedKeyAuthorization"
)

// Command is one parsed, typed engine command.
type Command interface {
	CommandType() string
}

// ParseCommand converts raw JSON bytes into the typed command the subject
// promises. Parsing is pure validation; nothing here touches engine state.
func ParseCommand(data []byte, commandType string) (Command, error) {
	switch commandType {
	case CommandIndexPrice:
		return parseIndexPrice(data)
	case CommandFundingMultiplier:
		return parseFundingMultiplier(data)
	case CommandTrade:
		return parseTrade(data)
	case CommandLiquidation:
		return parseLiquidation(data)
	case CommandDeleverage:
		return parseDeleverage(data)
	case CommandDeposit:
		return parseDeposit(data)
	case CommandWithdrawal:
		return parseWithdrawal(data)
	case CommandExitWithdrawal:
		return parseExitWithdrawal(data)
	case CommandTransfer:
		return parseTransfer(data)
	case CommandWalletExit:
		return parseWalletExit(data)
	case CommandNonceInvalidation:
		return parseNonceInvalidation(data)
	case CommandDelegation:
		return parseDelegation(data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- typed commands ---

type IndexPriceCommand struct {
	Market      string
	Price       int64
	TimestampMs int64
}

func (c *IndexPriceCommand) CommandType() string { return CommandIndexPrice }

type FundingMultiplierCommand struct {
	Market      string
	Period      int64
	Multiplier  int64
	TimestampMs int64
}

func (c *FundingMultiplierCommand) CommandType() string { return CommandFundingMultiplier }

type TradeCommand struct {
	FillID uuid.UUID
	Args   *trade.SettleArgs
}

func (c *TradeCommand) CommandType() string { return CommandTrade }

type LiquidationCommand struct {
	Path liquidation.Path
	Args *liquidation.Args
}

func (c *LiquidationCommand) CommandType() string { return CommandLiquidation }

type DeleverageCommand struct {
	Kind liquidation.DeleverageKind
	Args *liquidation.DeleverageArgs
}

func (c *DeleverageCommand) CommandType() string { return CommandDeleverage }

type DepositCommand struct {
	DepositID   uuid.UUID
	Wallet      common.Address
	Quantity    int64
	TimestampMs int64
}

func (c *DepositCommand) CommandType() string { return CommandDeposit }

type WithdrawalCommand struct {
	Withdrawal  *custody.Withdrawal
	Signature   []byte
	TimestampMs int64
}

func (c *WithdrawalCommand) CommandType() string { return CommandWithdrawal }

type ExitWithdrawalCommand struct {
	Wallet      common.Address
	TimestampMs int64
}

func (c *ExitWithdrawalCommand) CommandType() string { return CommandExitWithdrawal }

type TransferCommand struct {
	Transfer    *custody.Transfer
	Signature   []byte
	TimestampMs int64
}

func (c *TransferCommand) CommandType() string { return CommandTransfer }

type WalletExitCommand struct {
	Wallet      common.Address
	TimestampMs int64
}

func (c *WalletExitCommand) CommandType() string { return CommandWalletExit }

type NonceInvalidationCommand struct {
	Wallet      common.Address
	CutoffMs    int64
	TimestampMs int64
}

func (c *NonceInvalidationCommand) CommandType() string { return CommandNonceInvalidation }

type DelegationCommand struct {
	Authorization *auth.DelegatedKeyAuthorization
	TimestampMs   int64
}

func (c *DelegationCommand) CommandType() string { return CommandDelegation }

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Addresses are
// 0x-prefixed hex, signatures 0x-prefixed 65-byte hex, UUIDs canonical form.

type indexPriceJSON struct {
	Market      string `json:"market"`
	Price       int64  `json:"price"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseIndexPrice(data []byte) (*IndexPriceCommand, error) {
	var j indexPriceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse IndexPriceUpdate: %w", err)
	}
	return &IndexPriceCommand{Market: j.Market, Price: j.Price, TimestampMs: j.TimestampMs}, nil
}

type fundingMultiplierJSON struct {
	Market      string `json:"market"`
	Period      int64  `json:"period"`
	Multiplier  int64  `json:"multiplier"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseFundingMultiplier(data []byte) (*FundingMultiplierCommand, error) {
	var j fundingMultiplierJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundingMultiplier: %w", err)
	}
	return &FundingMultiplierCommand{
		Market:      j.Market,
		Period:      j.Period,
		Multiplier:  j.Multiplier,
		TimestampMs: j.TimestampMs,
	}, nil
}

type orderJSON struct {
	SignatureHashVersion uint8  `json:"signature_hash_version"`
	Nonce                string `json:"nonce"`
	Wallet               string `json:"wallet"`
	Market               string `json:"market"`
	Side                 string `json:"side"`
	Type                 string `json:"type"`
	TimeInForce          string `json:"time_in_force"`
	Quantity             int64  `json:"quantity"`
	LimitPrice           int64  `json:"limit_price"`
	TriggerPrice         int64  `json:"trigger_price"`
	TriggerType          string `json:"trigger_type"`
	CallbackRate         int64  `json:"callback_rate"`
	ReduceOnly           bool   `json:"reduce_only"`
	DelegatedKey         string `json:"delegated_key,omitempty"`
}

type tradeFillJSON struct {
	FillID        string    `json:"fill_id"`
	BuyOrder      orderJSON `json:"buy_order"`
	BuySignature  string    `json:"buy_signature"`
	SellOrder     orderJSON `json:"sell_order"`
	SellSignature string    `json:"sell_signature"`
	BaseAsset     string    `json:"base_asset"`
	BaseQuantity  int64     `json:"base_quantity"`
	QuoteQuantity int64     `json:"quote_quantity"`
	MakerFee      int64     `json:"maker_fee"`
	TakerFee      int64     `json:"taker_fee"`
	Price         int64     `json:"price"`
	MakerSide     string    `json:"maker_side"`
	TimestampMs   int64     `json:"timestamp_ms"`
}

func parseTrade(data []byte) (*TradeCommand, error) {
	var j tradeFillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TradeFill: %w", err)
	}
	fillID, err := uuid.Parse(j.FillID)
	if err != nil {
		return nil, fmt.Errorf("parse fill_id: %w", err)
	}
	buy, err := parseOrder(&j.BuyOrder)
	if err != nil {
		return nil, fmt.Errorf("parse buy_order: %w", err)
	}
	sell, err := parseOrder(&j.SellOrder)
	if err != nil {
		return nil, fmt.Errorf("parse sell_order: %w", err)
	}
	buySig, err := parseSignature(j.BuySignature)
	if err != nil {
		return nil, fmt.Errorf("parse buy_signature: %w", err)
	}
	sellSig, err := parseSignature(j.SellSignature)
	if err != nil {
		return nil, fmt.Errorf("parse sell_signature: %w", err)
	}
	makerSide, err := parseSide(j.MakerSide)
	if err != nil {
		return nil, fmt.Errorf("parse maker_side: %w", err)
	}
	return &TradeCommand{
		FillID: fillID,
		Args: &trade.SettleArgs{
			BuyOrder:      buy,
			BuySignature:  buySig,
			SellOrder:     sell,
			SellSignature: sellSig,
			Trade: &trade.Trade{
				BaseAsset:     j.BaseAsset,
				BaseQuantity:  j.BaseQuantity,
				QuoteQuantity: j.QuoteQuantity,
				MakerFee:      j.MakerFee,
				TakerFee:      j.TakerFee,
				Price:         j.Price,
				MakerSide:     makerSide,
			},
			NowMs: j.TimestampMs,
		},
	}, nil
}

type liquidationJSON struct {
	Path   string `json:"path"`
	Wallet string `json:"wallet"`
	Closes []struct {
		Market        string `json:"market"`
		QuoteQuantity int64  `json:"quote_quantity"`
	} `json:"closes"`
	TimestampMs int64 `json:"timestamp_ms"`
}

func parseLiquidation(data []byte) (*LiquidationCommand, error) {
	var j liquidationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Liquidation: %w", err)
	}
	path, err := parsePath(j.Path)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	closes := make([]liquidation.PositionClose, 0, len(j.Closes))
	for _, c := range j.Closes {
		closes = append(closes, liquidation.PositionClose{
			Market:        c.Market,
			QuoteQuantity: c.QuoteQuantity,
		})
	}
	return &LiquidationCommand{
		Path: path,
		Args: &liquidation.Args{Wallet: wallet, Closes: closes, NowMs: j.TimestampMs},
	}, nil
}

type deleverageJSON struct {
	Kind          string `json:"kind"`
	Wallet        string `json:"wallet"`
	Counterparty  string `json:"counterparty"`
	Market        string `json:"market"`
	BaseQuantity  int64  `json:"base_quantity"`
	QuoteQuantity int64  `json:"quote_quantity"`
	TimestampMs   int64  `json:"timestamp_ms"`
}

func parseDeleverage(data []byte) (*DeleverageCommand, error) {
	var j deleverageJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deleverage: %w", err)
	}
	kind, err := parseDeleverageKind(j.Kind)
	if err != nil {
		return nil, err
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	counterparty, err := parseAddress(j.Counterparty, "counterparty")
	if err != nil {
		return nil, err
	}
	return &DeleverageCommand{
		Kind: kind,
		Args: &liquidation.DeleverageArgs{
			Wallet:        wallet,
			Counterparty:  counterparty,
			Market:        j.Market,
			BaseQuantity:  j.BaseQuantity,
			QuoteQuantity: j.QuoteQuantity,
			NowMs:         j.TimestampMs,
		},
	}, nil
}

type depositJSON struct {
	DepositID   string `json:"deposit_id"`
	Wallet      string `json:"wallet"`
	Quantity    int64  `json:"quantity"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseDeposit(data []byte) (*DepositCommand, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	return &DepositCommand{
		DepositID:   depositID,
		Wallet:      wallet,
		Quantity:    j.Quantity,
		TimestampMs: j.TimestampMs,
	}, nil
}

type withdrawalJSON struct {
	SignatureHashVersion uint8  `json:"signature_hash_version"`
	Nonce                string `json:"nonce"`
	Wallet               string `json:"wallet"`
	Quantity             int64  `json:"quantity"`
	GasFee               int64  `json:"gas_fee"`
	BridgeAdapter        string `json:"bridge_adapter,omitempty"`
	Signature            string `json:"signature"`
	TimestampMs          int64  `json:"timestamp_ms"`
}

func parseWithdrawal(data []byte) (*WithdrawalCommand, error) {
	var j withdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	nonce, err := uuid.Parse(j.Nonce)
	if err != nil {
		return nil, fmt.Errorf("parse nonce: %w", err)
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	var bridge common.Address
	if j.BridgeAdapter != "" {
		bridge, err = parseAddress(j.BridgeAdapter, "bridge_adapter")
		if err != nil {
			return nil, err
		}
	}
	sig, err := parseSignature(j.Signature)
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	return &WithdrawalCommand{
		Withdrawal: &custody.Withdrawal{
			SignatureHashVersion: j.SignatureHashVersion,
			Nonce:                nonce,
			Wallet:               wallet,
			Quantity:             j.Quantity,
			GasFee:               j.GasFee,
			BridgeAdapter:        bridge,
		},
		Signature:   sig,
		TimestampMs: j.TimestampMs,
	}, nil
}

type exitWithdrawalJSON struct {
	Wallet      string `json:"wallet"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseExitWithdrawal(data []byte) (*ExitWithdrawalCommand, error) {
	var j exitWithdrawalJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExitWithdrawal: %w", err)
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	return &ExitWithdrawalCommand{Wallet: wallet, TimestampMs: j.TimestampMs}, nil
}

type transferJSON struct {
	SignatureHashVersion uint8  `json:"signature_hash_version"`
	Nonce                string `json:"nonce"`
	Source               string `json:"source"`
	Destination          string `json:"destination"`
	Quantity             int64  `json:"quantity"`
	Signature            string `json:"signature"`
	TimestampMs          int64  `json:"timestamp_ms"`
}

func parseTransfer(data []byte) (*TransferCommand, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Transfer: %w", err)
	}
	nonce, err := uuid.Parse(j.Nonce)
	if err != nil {
		return nil, fmt.Errorf("parse nonce: %w", err)
	}
	source, err := parseAddress(j.Source, "source")
	if err != nil {
		return nil, err
	}
	destination, err := parseAddress(j.Destination, "destination")
	if err != nil {
		return nil, err
	}
	sig, err := parseSignature(j.Signature)
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	return &TransferCommand{
		Transfer: &custody.Transfer{
			SignatureHashVersion: j.SignatureHashVersion,
			Nonce:                nonce,
			Source:               source,
			Destination:          destination,
			Quantity:             j.Quantity,
		},
		Signature:   sig,
		TimestampMs: j.TimestampMs,
	}, nil
}

type walletExitJSON struct {
	Wallet      string `json:"wallet"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseWalletExit(data []byte) (*WalletExitCommand, error) {
	var j walletExitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WalletExit: %w", err)
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	return &WalletExitCommand{Wallet: wallet, TimestampMs: j.TimestampMs}, nil
}

type nonceInvalidationJSON struct {
	Wallet      string `json:"wallet"`
	CutoffMs    int64  `json:"cutoff_ms"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func parseNonceInvalidation(data []byte) (*NonceInvalidationCommand, error) {
	var j nonceInvalidationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse NonceInvalidation: %w", err)
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	return &NonceInvalidationCommand{
		Wallet:      wallet,
		CutoffMs:    j.CutoffMs,
		TimestampMs: j.TimestampMs,
	}, nil
}

type delegationJSON struct {
	SignatureHashVersion uint8  `json:"signature_hash_version"`
	Nonce                string `json:"nonce"`
	Wallet               string `json:"wallet"`
	DelegatedKey         string `json:"delegated_key"`
	ExpiresAtMs          int64  `json:"expires_at_ms"`
	Signature            string `json:"signature"`
	TimestampMs          int64  `json:"timestamp_ms"`
}

func parseDelegation(data []byte) (*DelegationCommand, error) {
	var j delegationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DelegatedKeyAuthorization: %w", err)
	}
	nonce, err := uuid.Parse(j.Nonce)
	if err != nil {
		return nil, fmt.Errorf("parse nonce: %w", err)
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	key, err := parseAddress(j.DelegatedKey, "delegated_key")
	if err != nil {
		return nil, err
	}
	sig, err := parseSignature(j.Signature)
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	return &DelegationCommand{
		Authorization: &auth.DelegatedKeyAuthorization{
			SignatureHashVersion: j.SignatureHashVersion,
			Nonce:                nonce,
			Wallet:               wallet,
			DelegatedKey:         key,
			ExpiresAtMs:          j.ExpiresAtMs,
			Signature:            sig,
		},
		TimestampMs: j.TimestampMs,
	}, nil
}

// --- field parsers ---

func parseAddress(s, field string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("parse %s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	return sig, nil
}

func parseSide(s string) (trade.Side, error) {
	switch s {
	case "buy":
		return trade.Buy, nil
	case "sell":
		return trade.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseOrderType(s string) (trade.OrderType, error) {
	switch s {
	case "limit":
		return trade.Limit, nil
	case "market":
		return trade.Market, nil
	case "stopLossLimit":
		return trade.StopLossLimit, nil
	case "stopLossMarket":
		return trade.StopLossMarket, nil
	case "takeProfitLimit":
		return trade.TakeProfitLimit, nil
	case "takeProfitMarket":
		return trade.TakeProfitMarket, nil
	case "trailingStop":
		return trade.TrailingStop, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func parseTimeInForce(s string) (trade.TimeInForce, error) {
	switch s {
	case "gtc", "":
		return trade.GTC, nil
	case "gtx":
		return trade.GTX, nil
	case "ioc":
		return trade.IOC, nil
	case "fok":
		return trade.FOK, nil
	default:
		return 0, fmt.Errorf("unknown time in force %q", s)
	}
}

func parseTriggerType(s string) (trade.TriggerType, error) {
	switch s {
	case "", "none":
		return trade.TriggerNone, nil
	case "last":
		return trade.TriggerLast, nil
	case "index":
		return trade.TriggerIndex, nil
	default:
		return 0, fmt.Errorf("unknown trigger type %q", s)
	}
}

func parseOrder(j *orderJSON) (*trade.Order, error) {
	nonce, err := uuid.Parse(j.Nonce)
	if err != nil {
		return nil, fmt.Errorf("parse nonce: %w", err)
	}
	wallet, err := parseAddress(j.Wallet, "wallet")
	if err != nil {
		return nil, err
	}
	side, err := parseSide(j.Side)
	if err != nil {
		return nil, err
	}
	orderType, err := parseOrderType(j.Type)
	if err != nil {
		return nil, err
	}
	tif, err := parseTimeInForce(j.TimeInForce)
	if err != nil {
		return nil, err
	}
	trigger, err := parseTriggerType(j.TriggerType)
	if err != nil {
		return nil, err
	}
	var delegated common.Address
	if j.DelegatedKey != "" {
		delegated, err = parseAddress(j.DelegatedKey, "delegated_key")
		if err != nil {
			return nil, err
		}
	}
	return &trade.Order{
		SignatureHashVersion: j.SignatureHashVersion,
		Nonce:                nonce,
		Wallet:               wallet,
		Market:               j.Market,
		Side:                 side,
		Type:                 orderType,
		TimeInForce:          tif,
		Quantity:             j.Quantity,
		LimitPrice:           j.LimitPrice,
		TriggerPrice:         j.TriggerPrice,
		TriggerType:          trigger,
		CallbackRate:         j.CallbackRate,
		ReduceOnly:           j.ReduceOnly,
		DelegatedKey:         delegated,
	}, nil
}

// parsePath maps the wire path name onto the liquidation path enum.
func parsePath(s string) (liquidation.Path, error) {
	switch s {
	case "belowMinimum":
		return liquidation.BelowMinimum, nil
	case "deactivatedMarket":
		return liquidation.DeactivatedMarket, nil
	case "inMaintenance":
		return liquidation.InMaintenance, nil
	case "exited":
		return liquidation.Exited, nil
	case "inMaintenanceDuringSystemRecovery":
		return liquidation.InMaintenanceDuringSystemRecovery, nil
	default:
		return 0, fmt.Errorf("unknown liquidation path %q", s)
	}
}

func parseDeleverageKind(s string) (liquidation.DeleverageKind, error) {
	switch s {
	case "walletInMaintenanceAcquisition":
		return liquidation.WalletInMaintenanceAcquisition, nil
	case "walletExitedAcquisition":
		return liquidation.WalletExitedAcquisition, nil
	case "insuranceFundClosure":
		return liquidation.InsuranceFundClosure, nil
	case "exitFundClosure":
		return liquidation.ExitFundClosure, nil
	default:
		return 0, fmt.Errorf("unknown deleverage kind %q", s)
	}
}
