package funding

import "sort"

// SeriesSnapshot is one market's multiplier history in a snapshot.
type SeriesSnapshot struct {
	Market      string  `json:"market"`
	FirstPeriod int64   `json:"firstPeriod"`
	Multipliers []int64 `json:"multipliers"`
}

// StoreSnapshot is the store's full serializable state.
type StoreSnapshot struct {
	Series []SeriesSnapshot `json:"series"`
}

// Snapshot copies the store, markets sorted by symbol.
func (s *Store) Snapshot() *StoreSnapshot {
	snap := &StoreSnapshot{Series: make([]SeriesSnapshot, 0, len(s.byMarket))}
	for symbol, ser := range s.byMarket {
		ms := make([]int64, len(ser.multipliers))
		copy(ms, ser.multipliers)
		snap.Series = append(snap.Series, SeriesSnapshot{
			Market:      symbol,
			FirstPeriod: ser.firstPeriod,
			Multipliers: ms,
		})
	}
	sort.Slice(snap.Series, func(i, j int) bool { return snap.Series[i].Market < snap.Series[j].Market })
	return snap
}

// Restore replaces the store's state with the snapshot's.
func (s *Store) Restore(snap *StoreSnapshot) {
	s.byMarket = make(map[string]*series, len(snap.Series))
	for _, e := range snap.Series {
		ms := make([]int64, len(e.Multipliers))
		copy(ms, e.Multipliers)
		s.byMarket[e.Market] = &series{firstPeriod: e.FirstPeriod, multipliers: ms}
	}
}
