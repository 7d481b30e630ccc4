// Package trade implements signed-order trade settlement: the validation
// sequence for a pre-matched maker/taker fill and the atomic application of
// its balance, position, and fee effects.
package trade

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
)

// Side is the order direction.
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType enumerates the order flavors the venue matches off-engine. The
// engine re-validates their structural requirements at settlement time.
type OrderType uint8

const (
	Limit OrderType = iota + 1
	Market
	StopLossLimit
	StopLossMarket
	TakeProfitLimit
	TakeProfitMarket
	TrailingStop
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case StopLossLimit:
		return "stopLossLimit"
	case StopLossMarket:
		return "stopLossMarket"
	case TakeProfitLimit:
		return "takeProfitLimit"
	case TakeProfitMarket:
		return "takeProfitMarket"
	case TrailingStop:
		return "trailingStop"
	default:
		return "unknown"
	}
}

// hasLimitPrice reports whether the type carries a limit price bound.
func (t OrderType) hasLimitPrice() bool {
	switch t {
	case Limit, StopLossLimit, TakeProfitLimit:
		return true
	default:
		return false
	}
}

// requiresTrigger reports whether the type must carry trigger fields.
func (t OrderType) requiresTrigger() bool {
	switch t {
	case StopLossLimit, StopLossMarket, TakeProfitLimit, TakeProfitMarket:
		return true
	default:
		return false
	}
}

// TimeInForce enumerates order lifetime semantics.
type TimeInForce uint8

const (
	GTC TimeInForce = iota + 1 // good til canceled
	GTX                        // post-only: good til crossing
	IOC                        // immediate or cancel
	FOK                        // fill or kill
)

func (t TimeInForce) String() string {
	switch t {
	case GTC:
		return "gtc"
	case GTX:
		return "gtx"
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	default:
		return "unknown"
	}
}

// TriggerType selects the price series a stop or take-profit triggers on.
type TriggerType uint8

const (
	TriggerNone TriggerType = iota
	TriggerLast
	TriggerIndex
)

// Order is a signed, immutable trading intent. Validity is re-derived at
// settlement time from current wallet and market state, never cached.
type Order struct {
	SignatureHashVersion uint8          `json:"signatureHashVersion"`
	Nonce                uuid.UUID      `json:"nonce"`
	Wallet               common.Address `json:"wallet"`
	Market               string         `json:"market"`
	Side                 Side           `json:"side"`
	Type                 OrderType      `json:"type"`
	TimeInForce          TimeInForce    `json:"timeInForce"`
	Quantity             int64          `json:"quantity"`     // base pips
	LimitPrice           int64          `json:"limitPrice"`   // quote pips per base; zero for market types
	TriggerPrice         int64          `json:"triggerPrice"` // zero unless a trigger type
	TriggerType          TriggerType    `json:"triggerType"`
	CallbackRate         int64          `json:"callbackRate"` // pip fraction, trailing stops only
	ReduceOnly           bool           `json:"reduceOnly"`
	DelegatedKey         common.Address `json:"delegatedKey"` // zero when wallet-signed
}

// Hash returns the canonical signing digest. Field order is fixed; changing
// it is a signature-breaking protocol revision.
func (o *Order) Hash() [32]byte {
	return auth.NewHasher("Order").
		Uint8(o.SignatureHashVersion).
		UUID(o.Nonce).
		Address(o.Wallet).
		String(o.Market).
		Uint8(uint8(o.Side)).
		Uint8(uint8(o.Type)).
		Uint8(uint8(o.TimeInForce)).
		Int64(o.Quantity).
		Int64(o.LimitPrice).
		Int64(o.TriggerPrice).
		Uint8(uint8(o.TriggerType)).
		Int64(o.CallbackRate).
		Bool(o.ReduceOnly).
		Address(o.DelegatedKey).
		Sum()
}

// Trade is a proposed fill between two signed orders. Ephemeral: consumed by
// settlement, never stored beyond its effects.
type Trade struct {
	BaseAsset     string `json:"baseAsset"`
	BaseQuantity  int64  `json:"baseQuantity"`  // base pips, always positive
	QuoteQuantity int64  `json:"quoteQuantity"` // quote pips, always positive
	MakerFee      int64  `json:"makerFee"`      // signed; negative is a rebate
	TakerFee      int64  `json:"takerFee"`      // non-negative
	Price         int64  `json:"price"`         // execution price, quote per base
	MakerSide     Side   `json:"makerSide"`
}
