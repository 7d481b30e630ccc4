// Package funding records per-market funding multipliers and lazily applies
// them to wallet positions.
//
// A multiplier is published once per eight-hour period as a signed quote-pip
// amount per base pip held long (the funding rate already scaled by the index
// price at publication). Nothing is paid at publication time: each wallet
// catches up on its own unapplied periods the next time it is touched, so
// publication stays O(1) regardless of open interest.
package funding

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/account"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/errs"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/pip"
)

// PeriodLengthMs is the funding period length: eight hours.
const PeriodLengthMs int64 = 8 * 60 * 60 * 1000

// PeriodOf maps a millisecond timestamp onto its funding period index.
func PeriodOf(timestampMs int64) int64 {
	return timestampMs / PeriodLengthMs
}

// series is a dense multiplier history: Multipliers[i] covers period
// firstPeriod+i. Density is what makes catch-up a simple slice walk.
type series struct {
	firstPeriod int64
	multipliers []int64
}

// Store holds every market's multiplier series.
type Store struct {
	byMarket map[string]*series
}

func NewStore() *Store {
	return &Store{byMarket: make(map[string]*series)}
}

// Publish appends the multiplier for one period. Periods must arrive in
// order with no gaps; re-publishing a period is a conflict.
func (s *Store) Publish(marketSymbol string, period, multiplier int64) error {
	ser, ok := s.byMarket[marketSymbol]
	if !ok {
		s.byMarket[marketSymbol] = &series{
			firstPeriod: period,
			multipliers: []int64{multiplier},
		}
		return nil
	}
	expected := ser.firstPeriod + int64(len(ser.multipliers))
	if period < expected {
		return errs.Conflict("funding multiplier for period %d already published", period)
	}
	if period > expected {
		return errs.Validation("funding period gap: expected %d, got %d", expected, period)
	}
	ser.multipliers = append(ser.multipliers, multiplier)
	return nil
}

// LatestPeriod returns the most recently published period for a market.
func (s *Store) LatestPeriod(marketSymbol string) (int64, bool) {
	ser, ok := s.byMarket[marketSymbol]
	if !ok {
		return 0, false
	}
	return ser.firstPeriod + int64(len(ser.multipliers)) - 1, true
}

// Multiplier returns the published multiplier for one period.
func (s *Store) Multiplier(marketSymbol string, period int64) (int64, bool) {
	ser, ok := s.byMarket[marketSymbol]
	if !ok {
		return 0, false
	}
	i := period - ser.firstPeriod
	if i < 0 || i >= int64(len(ser.multipliers)) {
		return 0, false
	}
	return ser.multipliers[i], true
}

// Outstanding computes the unapplied funding credit for one position: the
// sum over every period published after the position's marker of
// quantity*multiplier, each term rounded toward negative infinity so a
// wallet never gains a sub-pip.
func (s *Store) Outstanding(p *account.Position) int64 {
	ser, ok := s.byMarket[p.Market]
	if !ok {
		return 0
	}
	start := p.LastFundingPeriod + 1
	if start < ser.firstPeriod {
		start = ser.firstPeriod
	}
	last := ser.firstPeriod + int64(len(ser.multipliers)) - 1
	var total int64
	for period := start; period <= last; period++ {
		m := ser.multipliers[period-ser.firstPeriod]
		total = pip.Add(total, pip.MultiplyRounded(p.Quantity, m, pip.RoundDown))
	}
	return total
}

// Apply credits all outstanding funding across the wallet's positions into
// its quote balance and advances each position's marker. Idempotent between
// publications; returns the total credit (possibly negative).
func (s *Store) Apply(ledger *account.Ledger, wallet common.Address) int64 {
	var total int64
	for _, p := range ledger.PositionsOf(wallet) {
		credit := s.Outstanding(p)
		if last, ok := s.LatestPeriod(p.Market); ok && last > p.LastFundingPeriod {
			p.LastFundingPeriod = last
		}
		total = pip.Add(total, credit)
	}
	ledger.Adjust(wallet, total)
	return total
}
