// Package persistence is the durable tail of the engine: an append-only
// event log and periodic state snapshots in Postgres. The log is the source
// of truth for recovery; everything else can be rebuilt from it.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/event"
)

// EventRow is one row of risk.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Market         *string
	Payload        []byte
	StateHash      []byte
	PrevHash       []byte
	TimestampMs    int64
}

// RowFromEnvelope flattens an envelope into its log row.
func RowFromEnvelope(env *event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload: %w", err)
	}
	row := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.Type.String(),
		IdempotencyKey: env.IdempotencyKey,
		Payload:        payload,
		StateHash:      append([]byte(nil), env.StateHash[:]...),
		PrevHash:       append([]byte(nil), env.PrevHash[:]...),
		TimestampMs:    env.TimestampMs,
	}
	if env.Market != "" {
		m := env.Market
		row.Market = &m
	}
	return row, nil
}

// EventLogWriter batch-writes envelopes to risk.events with multi-row
// INSERT. ON CONFLICT DO NOTHING makes re-flushing a batch after a partial
// failure idempotent.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch inserts a batch of rows in one statement.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO risk.events
		(sequence, event_type, idempotency_key, market, payload, state_hash, prev_hash, timestamp_ms)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*8)
	for i, e := range events {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Market,
			e.Payload, e.StateHash, e.PrevHash, e.TimestampMs,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}
