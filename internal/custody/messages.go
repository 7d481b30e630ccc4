// Package custody implements the quote-asset boundary: deposits credited from
// external custody, signed withdrawals and transfers, exit withdrawals, and
// the bridge-adapter allow-list.
package custody

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
)

// Withdrawal is a wallet-signed request to debit quote collateral. A zero
// BridgeAdapter targets native custody; anything else must be allow-listed.
// GasFee is signed by the wallet and compensates the dispatcher out of the
// gross quantity.
type Withdrawal struct {
	SignatureHashVersion uint8
	Nonce                uuid.UUID
	Wallet               common.Address
	Quantity             int64 // gross quote pips
	GasFee               int64
	BridgeAdapter        common.Address
}

// Hash returns the canonical signing digest. Field order is fixed.
func (w *Withdrawal) Hash() [32]byte {
	return auth.NewHasher("withdrawal").
		Uint8(w.SignatureHashVersion).
		UUID(w.Nonce).
		Address(w.Wallet).
		Int64(w.Quantity).
		Int64(w.GasFee).
		Address(w.BridgeAdapter).
		Sum()
}

// Transfer is a wallet-signed request to move quote collateral to another
// wallet inside the engine.
type Transfer struct {
	SignatureHashVersion uint8
	Nonce                uuid.UUID
	Source               common.Address
	Destination          common.Address
	Quantity             int64
}

// Hash returns the canonical signing digest. Field order is fixed.
func (t *Transfer) Hash() [32]byte {
	return auth.NewHasher("transfer").
		Uint8(t.SignatureHashVersion).
		UUID(t.Nonce).
		Address(t.Source).
		Address(t.Destination).
		Int64(t.Quantity).
		Sum()
}
