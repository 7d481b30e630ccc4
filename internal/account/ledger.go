package account

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/auth"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// WalletState carries a wallet's authorization and lifecycle state. Wallets
// are created implicitly on first touch and never deleted.
type WalletState struct {
	ExitedAtMs    int64                                 `json:"exitedAtMs"`
	Nonces        auth.NonceState                       `json:"nonces"`
	DelegatedKeys map[common.Address]*auth.DelegatedKey `json:"delegatedKeys,omitempty"`
}

// Exited reports whether the wallet has taken the one-way exit path.
func (w *WalletState) Exited() bool {
	return w.ExitedAtMs != 0
}

// Ledger holds every balance and position. Quote balances are signed: a
// negative balance is a deficit the liquidation paths resolve.
type Ledger struct {
	balances  map[common.Address]int64
	positions map[PositionKey]*Position
	wallets   map[common.Address]*WalletState
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:  make(map[common.Address]int64),
		positions: make(map[PositionKey]*Position),
		wallets:   make(map[common.Address]*WalletState),
	}
}

// Balance returns the wallet's quote balance in pips.
func (l *Ledger) Balance(wallet common.Address) int64 {
	return l.balances[wallet]
}

// Adjust applies a signed delta to the wallet's quote balance. Overflow
// panics; negative balances are representable and resolved by liquidation.
func (l *Ledger) Adjust(wallet common.Address, delta int64) {
	if delta == 0 {
		return
	}
	l.balances[wallet] = pip.Add(l.balances[wallet], delta)
}

// TotalBalance sums every quote balance. Trades, transfers, funding, and
// liquidations conserve this sum; only deposits and withdrawals move it.
func (l *Ledger) TotalBalance() int64 {
	var total int64
	for _, b := range l.balances {
		total = pip.Add(total, b)
	}
	return total
}

// Wallet returns the wallet's state, creating it on first touch.
func (l *Ledger) Wallet(wallet common.Address) *WalletState {
	w, ok := l.wallets[wallet]
	if !ok {
		w = &WalletState{}
		l.wallets[wallet] = w
	}
	return w
}

// ExitWallet marks the wallet exited. Exiting is terminal.
func (l *Ledger) ExitWallet(wallet common.Address, nowMs int64) error {
	w := l.Wallet(wallet)
	if w.Exited() {
		return errs.Conflict("wallet already exited")
	}
	w.ExitedAtMs = nowMs
	return nil
}

// Position returns the open position, or nil when flat.
func (l *Ledger) Position(wallet common.Address, marketSymbol string) *Position {
	return l.positions[PositionKey{wallet, marketSymbol}]
}

// PositionsOf returns the wallet's open positions sorted by market symbol.
func (l *Ledger) PositionsOf(wallet common.Address) []*Position {
	var out []*Position
	for k, p := range l.positions {
		if k.Wallet == wallet {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}

// PositionsIn returns every open position in a market, sorted by wallet for
// deterministic iteration.
func (l *Ledger) PositionsIn(marketSymbol string) []*Position {
	var out []*Position
	for k, p := range l.positions {
		if k.Market == marketSymbol {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Wallet.Cmp(out[j].Wallet) < 0
	})
	return out
}

// OpenPositionCount returns the number of open positions across all wallets.
func (l *Ledger) OpenPositionCount() int {
	return len(l.positions)
}

// ApplyPositionDelta mutates the wallet's position in a market by a signed
// base quantity at a signed quote cost and returns the realized PnL. A
// position opened by this delta starts at fundingPeriod so it accrues no
// funding published before it existed. Flat positions are removed.
func (l *Ledger) ApplyPositionDelta(wallet common.Address, marketSymbol string, qtyDelta, signedQuote, fundingPeriod int64) (realized int64) {
	key := PositionKey{wallet, marketSymbol}
	p, ok := l.positions[key]
	if !ok {
		p = &Position{
			Wallet:            wallet,
			Market:            marketSymbol,
			LastFundingPeriod: fundingPeriod,
		}
		l.positions[key] = p
	}
	realized = p.applyDelta(qtyDelta, signedQuote)
	if p.Quantity == 0 {
		delete(l.positions, key)
	}
	return realized
}
