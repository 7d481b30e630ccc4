package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// WithdrawalExecuted records one debited withdrawal. Idempotency key: the
// single-use withdrawal nonce.
type WithdrawalExecuted struct {
	Nonce         uuid.UUID      `json:"nonce"`
	Wallet        common.Address `json:"wallet"`
	GrossQuantity int64          `json:"grossQuantity"`
	NetQuantity   int64          `json:"netQuantity"`
	GasFee        int64          `json:"gasFee"`
	BridgeAdapter common.Address `json:"bridgeAdapter,omitempty"`
	TimestampMs   int64          `json:"timestampMs"`
}

func (w *WithdrawalExecuted) IdempotencyKey() string {
	return "withdrawal:" + w.Wallet.Hex() + ":" + w.Nonce.String()
}

func (w *WithdrawalExecuted) EventType() Type { return TypeWithdrawalExecuted }

func (w *WithdrawalExecuted) Market() string { return "" }

// WalletExitWithdrawn records the final balance payout of an exited wallet.
type WalletExitWithdrawn struct {
	Wallet      common.Address `json:"wallet"`
	Quantity    int64          `json:"quantity"`
	TimestampMs int64          `json:"timestampMs"`
}

func (w *WalletExitWithdrawn) IdempotencyKey() string {
	return "exitWithdrawal:" + w.Wallet.Hex()
}

func (w *WalletExitWithdrawn) EventType() Type { return TypeWalletExitWithdrawn }

func (w *WalletExitWithdrawn) Market() string { return "" }

// TransferExecuted records one internal quote transfer. Idempotency key: the
// single-use transfer nonce.
type TransferExecuted struct {
	Nonce       uuid.UUID      `json:"nonce"`
	Source      common.Address `json:"source"`
	Destination common.Address `json:"destination"`
	Quantity    int64          `json:"quantity"`
	TimestampMs int64          `json:"timestampMs"`
}

func (t *TransferExecuted) IdempotencyKey() string {
	return "transfer:" + t.Source.Hex() + ":" + t.Nonce.String()
}

func (t *TransferExecuted) EventType() Type { return TypeTransferExecuted }

func (t *TransferExecuted) Market() string { return "" }
