// Package account is the in-memory ledger: quote balances, open positions
// with their cost basis, and per-wallet authorization state. All state is
// owned by the single-writer engine; nothing here is thread-safe.
package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// PositionKey identifies one wallet's position in one market.
type PositionKey struct {
	Wallet common.Address
	Market string
}

// Position is an open perpetual position. Quantity is signed base-asset pips
// (long positive). CostBasis is the signed quote cost of the open quantity:
// for a long of q at average entry price p it is q*p (positive), for a short
// it is negative. Unrealized PnL at price P is therefore q*P - CostBasis.
//
// Invariant: Quantity == 0 never occurs; flat positions are deleted, and
// deletion implies CostBasis reached zero with them.
type Position struct {
	Wallet            common.Address `json:"wallet"`
	Market            string         `json:"market"`
	Quantity          int64          `json:"quantity"`
	CostBasis         int64          `json:"costBasis"`
	LastFundingPeriod int64          `json:"lastFundingPeriod"`
}

// EntryValue returns |CostBasis|, the quote value paid to open the position.
func (p *Position) EntryValue() int64 {
	return pip.Abs(p.CostBasis)
}

// applyDelta folds a signed quantity change with its signed quote cost into
// the position and returns the realized PnL, classifying the change the same
// way a clearinghouse does: increase, reduce, close, or flip.
//
// signedQuote carries the sign of qtyDelta: buying b base for Q quote is
// (+b, +Q), selling is (-b, -Q).
func (p *Position) applyDelta(qtyDelta, signedQuote int64) (realized int64) {
	if qtyDelta == 0 {
		panic(fmt.Sprintf("FATAL: zero quantity delta for %s in %s", p.Wallet.Hex(), p.Market))
	}
	q := p.Quantity
	switch {
	case q == 0:
		// Open.
		p.Quantity = qtyDelta
		p.CostBasis = signedQuote
		return 0

	case pip.Sign(q) == pip.Sign(qtyDelta):
		// Increase: cost basis accumulates, average entry moves.
		p.Quantity = pip.Add(q, qtyDelta)
		p.CostBasis = pip.Add(p.CostBasis, signedQuote)
		return 0

	case pip.Abs(qtyDelta) < pip.Abs(q):
		// Reduce: release a proportional share of the cost basis; the gap
		// between proceeds and the released share is realized.
		released := pip.MultiplyFraction(p.CostBasis, pip.Abs(qtyDelta), pip.Abs(q), pip.RoundTowardZero)
		p.Quantity = pip.Add(q, qtyDelta)
		p.CostBasis = pip.Sub(p.CostBasis, released)
		return -pip.Add(signedQuote, released)

	case pip.Abs(qtyDelta) == pip.Abs(q):
		// Close.
		realized = -pip.Add(signedQuote, p.CostBasis)
		p.Quantity = 0
		p.CostBasis = 0
		return realized

	default:
		// Flip: close the full position, open the remainder on the other
		// side at the same execution price.
		closeQuote := pip.MultiplyFraction(signedQuote, pip.Abs(q), pip.Abs(qtyDelta), pip.RoundTowardZero)
		openQuote := pip.Sub(signedQuote, closeQuote)
		realized = -pip.Add(closeQuote, p.CostBasis)
		p.Quantity = pip.Add(q, qtyDelta)
		p.CostBasis = openQuote
		return realized
	}
}
