package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresIdempotencyChecker answers duplicate checks against the event log.
// It backs the engine's in-memory LRU for keys that fell out of the window.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{db: db}
}

// IsDuplicate reports whether an event with this type and key was already
// written. The short timeout keeps a slow database from stalling the engine
// mutex; on error the caller treats the key as new and relies on the unique
// index to reject the eventual insert.
func (c *PostgresIdempotencyChecker) IsDuplicate(eventType, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := c.db.QueryRowContext(ctx, `
		SELECT 1 FROM risk.events
		WHERE event_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, eventType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
