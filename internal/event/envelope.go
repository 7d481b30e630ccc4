// Package event defines the outbound event log: one envelope per applied
// state transition, hash-chained for integrity, with a typed payload per
// transition kind.
package event

// Type discriminates event payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeTradeSettled
	TypeWalletLiquidated
	TypePositionDeleveraged
	TypeFundingMultiplierPublished
	TypeIndexPriceUpdated
	TypeDepositReceived
	TypeWithdrawalExecuted
	TypeWalletExitWithdrawn
	TypeTransferExecuted
	TypeWalletExited
	TypeNonceInvalidationScheduled
	TypeGovernanceUpgraded
	TypeDelegatedKeyAuthorized
	TypeMarketListed
	TypeMarketStatusChanged
)

func (t Type) String() string {
	switch t {
	case TypeTradeSettled:
		return "TradeSettled"
	case TypeWalletLiquidated:
		return "WalletLiquidated"
	case TypePositionDeleveraged:
		return "PositionDeleveraged"
	case TypeFundingMultiplierPublished:
		return "FundingMultiplierPublished"
	case TypeIndexPriceUpdated:
		return "IndexPriceUpdated"
	case TypeDepositReceived:
		return "DepositReceived"
	case TypeWithdrawalExecuted:
		return "WithdrawalExecuted"
	case TypeWalletExitWithdrawn:
		return "WalletExitWithdrawn"
	case TypeTransferExecuted:
		return "TransferExecuted"
	case TypeWalletExited:
		return "WalletExited"
	case TypeNonceInvalidationScheduled:
		return "NonceInvalidationScheduled"
	case TypeGovernanceUpgraded:
		return "GovernanceUpgraded"
	case TypeDelegatedKeyAuthorized:
		return "DelegatedKeyAuthorized"
	case TypeMarketListed:
		return "MarketListed"
	case TypeMarketStatusChanged:
		return "MarketStatusChanged"
	default:
		return "Unknown"
	}
}

// Payload is implemented by every event body.
type Payload interface {
	// IdempotencyKey returns the stable dedup key for this transition.
	IdempotencyKey() string

	// EventType returns the discriminator.
	EventType() Type

	// Market returns the market context, or "" for global events.
	Market() string
}

// Envelope wraps every record in the event log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine.
	Sequence int64 `json:"sequence"`

	// Stable idempotency key from the payload.
	IdempotencyKey string `json:"idempotencyKey"`

	// Payload discriminator.
	Type Type `json:"type"`

	// Market context; "" for global events.
	Market string `json:"market,omitempty"`

	// Versioned input timestamp in ms (not wall clock).
	TimestampMs int64 `json:"timestampMs"`

	// SHA-256 of the engine state after applying this event.
	StateHash [32]byte `json:"stateHash"`

	// Previous event's state hash (chain integrity).
	PrevHash [32]byte `json:"prevHash"`

	// Event body; JSON-encoded by the persistence layer.
	Payload Payload `json:"payload"`
}
