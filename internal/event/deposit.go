package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// DepositReceived records one credited deposit. Idempotency key: the deposit
// ID minted by the custody bridge.
type DepositReceived struct {
	DepositID   uuid.UUID      `json:"depositId"`
	Wallet      common.Address `json:"wallet"`
	Quantity    int64          `json:"quantity"`
	TimestampMs int64          `json:"timestampMs"`
}

func (d *DepositReceived) IdempotencyKey() string { return d.DepositID.String() }

func (d *DepositReceived) EventType() Type { return TypeDepositReceived }

func (d *DepositReceived) Market() string { return "" }
