package trade

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

type fillKey struct {
	wallet common.Address
	nonce  uuid.UUID
}

// FillTracker accumulates filled base quantity per (wallet, nonce) so an
// order can never settle past its signed quantity, across any number of
// partial fills.
type FillTracker struct {
	filled map[fillKey]int64
}

func NewFillTracker() *FillTracker {
	return &FillTracker{filled: make(map[fillKey]int64)}
}

// Filled returns the cumulative filled base quantity for an order nonce.
func (t *FillTracker) Filled(wallet common.Address, nonce uuid.UUID) int64 {
	return t.filled[fillKey{wallet, nonce}]
}

// validateFill checks that adding quantity would not overfill the order.
func (t *FillTracker) validateFill(o *Order, quantity int64) error {
	already := t.filled[fillKey{o.Wallet, o.Nonce}]
	if pip.Add(already, quantity) > o.Quantity {
		return errs.Conflict("order overfilled")
	}
	return nil
}

// recordFill adds quantity to the order's counter.
func (t *FillTracker) recordFill(o *Order, quantity int64) {
	k := fillKey{o.Wallet, o.Nonce}
	t.filled[k] = pip.Add(t.filled[k], quantity)
}
