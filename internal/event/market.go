package event

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// MarketListed records a new market entering the registry.
type MarketListed struct {
	BaseAsset   string `json:"baseAsset"`
	TimestampMs int64  `json:"timestampMs"`
}

func (m *MarketListed) IdempotencyKey() string { return "market:" + m.BaseAsset }

func (m *MarketListed) EventType() Type { return TypeMarketListed }

func (m *MarketListed) Market() string { return m.BaseAsset }

// MarketStatusChanged records a market deactivation or reactivation.
type MarketStatusChanged struct {
	BaseAsset   string `json:"baseAsset"`
	Active      bool   `json:"active"`
	FrozenPrice int64  `json:"frozenPrice,omitempty"`
	TimestampMs int64  `json:"timestampMs"`
}

func (m *MarketStatusChanged) IdempotencyKey() string {
	return fmt.Sprintf("marketStatus:%s:%t:%d", m.BaseAsset, m.Active, m.TimestampMs)
}

func (m *MarketStatusChanged) EventType() Type { return TypeMarketStatusChanged }

func (m *MarketStatusChanged) Market() string { return m.BaseAsset }

// DelegatedKeyAuthorized records a validated delegated-key grant.
type DelegatedKeyAuthorized struct {
	Nonce        uuid.UUID      `json:"nonce"`
	Wallet       common.Address `json:"wallet"`
	DelegatedKey common.Address `json:"delegatedKey"`
	ExpiresAtMs  int64          `json:"expiresAtMs"`
	TimestampMs  int64          `json:"timestampMs"`
}

func (d *DelegatedKeyAuthorized) IdempotencyKey() string {
	return "delegation:" + d.Wallet.Hex() + ":" + d.Nonce.String()
}

func (d *DelegatedKeyAuthorized) EventType() Type { return TypeDelegatedKeyAuthorized }

func (d *DelegatedKeyAuthorized) Market() string { return "" }
