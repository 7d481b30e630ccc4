// Package query is the read side: live margin views served from engine
// state, and event history served from the Postgres log.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/engine"
	"github.com/idexio/idex-contracts-ikon-sub000/internal/observability"
)

// Service answers read requests. Account and market views come straight from
// the engine under its mutex, so they are exact at the reported sequence;
// history comes from risk.events and may trail the engine by the persist
// channel's depth.
type Service struct {
	engine  *engine.Engine
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(e *engine.Engine, db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{engine: e, db: db, metrics: metrics}
}

// Account reports a wallet's balance, margin requirements, and health.
func (s *Service) Account(wallet common.Address) (*engine.AccountView, error) {
	defer s.observe("account", time.Now())
	view, err := s.engine.QueryAccount(wallet)
	s.count("account", err)
	return view, err
}

// Positions reports a wallet's open positions.
func (s *Service) Positions(wallet common.Address) []engine.PositionView {
	defer s.observe("positions", time.Now())
	views := s.engine.QueryPositions(wallet)
	s.count("positions", nil)
	return views
}

// Markets lists every market.
func (s *Service) Markets() []engine.MarketView {
	defer s.observe("markets", time.Now())
	views := s.engine.QueryMarkets()
	s.count("markets", nil)
	return views
}

// Market reports a single market.
func (s *Service) Market(symbol string) (*engine.MarketView, error) {
	defer s.observe("market", time.Now())
	view, err := s.engine.QueryMarket(symbol)
	s.count("market", err)
	return view, err
}

// EventHistory pages the event log backward from a sequence cursor. Market
// and event type filters are optional.
func (s *Service) EventHistory(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	defer s.observe("events", time.Now())

	query := `
		SELECT sequence, event_type, market, payload, timestamp_ms
		FROM risk.events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Market != nil {
		query += fmt.Sprintf(" AND market = $%d", argIdx)
		args = append(args, *filter.Market)
		argIdx++
	}
	if filter.EventType != nil {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, *filter.EventType)
		argIdx++
	}
	if filter.BeforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *filter.BeforeSequence)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.count("events", err)
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(&r.Sequence, &r.EventType, &r.Market, &r.Payload, &r.TimestampMs); err != nil {
			s.count("events", err)
			return nil, err
		}
		records = append(records, r)
	}
	err = rows.Err()
	s.count("events", err)
	return records, err
}

const maxHistoryLimit = 1000

// VerifyIntegrity checks hash chain continuity across the persisted log.
// Each event's prev_hash must equal the previous event's state_hash.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer s.observe("integrity", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM risk.events e1
		JOIN risk.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		s.count("integrity", err)
		return nil, err
	}
	defer rows.Close()

	report := &IntegrityReport{}
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			s.count("integrity", err)
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		s.count("integrity", err)
		return nil, err
	}

	var persisted sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM risk.events`).Scan(&persisted); err != nil {
		s.count("integrity", err)
		return nil, err
	}

	report.EngineSequence = s.engine.Sequence()
	if persisted.Valid {
		report.PersistedSequence = persisted.Int64 + 1
	}
	report.Healthy = len(report.HashChainBreaks) == 0
	s.count("integrity", nil)
	return report, nil
}

func (s *Service) observe(endpoint string, start time.Time) {
	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func (s *Service) count(endpoint string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
}
