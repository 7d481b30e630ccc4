package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/engine"
)

// SnapshotStore persists engine state snapshots and serves the event ranges
// needed to replay forward from one.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save writes one snapshot. Snapshots start unverified; the restorer marks
// them verified after a successful replay check.
func (s *SnapshotStore) Save(ctx context.Context, state *engine.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk.snapshots
			(snapshot_id, sequence, data, chain_tip, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, chain_tip = $4, size_bytes = $5
	`, uuid.New(), state.Sequence, data, state.ChainTip[:], len(data), time.Now().UTC())
	return err
}

// LoadLatest returns the most recent verified snapshot, or nil for a cold
// start with no snapshot.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (*engine.State, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM risk.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var state engine.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &state, nil
}

// MarkVerified records that a snapshot survived its replay check.
func (s *SnapshotStore) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE risk.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom pages the event log forward from a sequence, for replay.
func (s *SnapshotStore) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, market, payload,
		       state_hash, prev_hash, timestamp_ms
		FROM risk.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Market,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.TimestampMs,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LatestSequence returns the highest persisted sequence, or 0 for an empty
// log.
func (s *SnapshotStore) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM risk.events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// LoadRecentIdempotencyKeys returns composite dedup keys for the most recent
// events, used to warm the engine's LRU on restart.
func (s *SnapshotStore) LoadRecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type || ':' || idempotency_key
		FROM risk.events
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
