package query

import "encoding/json"

// EventFilter narrows an event history page. Nil fields match everything;
// BeforeSequence is the backward pagination cursor.
type EventFilter struct {
	Market         *string
	EventType      *string
	BeforeSequence *int64
	Limit          int
}

// EventRecord is one row of the persisted event log.
type EventRecord struct {
	Sequence    int64           `json:"sequence"`
	EventType   string          `json:"eventType"`
	Market      *string         `json:"market,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	TimestampMs int64           `json:"timestampMs"`
}

// IntegrityReport is the result of a hash chain verification pass.
// PersistedSequence is the next sequence the log expects, so the gap to
// EngineSequence is the persist channel's current lag.
type IntegrityReport struct {
	Healthy           bool    `json:"healthy"`
	HashChainBreaks   []int64 `json:"hashChainBreaks,omitempty"`
	EngineSequence    int64   `json:"engineSequence"`
	PersistedSequence int64   `json:"persistedSequence"`
}
