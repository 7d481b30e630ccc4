package engine

import "container/list"

// DBIdempotencyChecker is the cold-path dedup lookup, backed by the event
// log's idempotency-key index in Postgres.
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

// IdempotencyChecker deduplicates commands in two tiers: an in-memory LRU for
// the hot path and Postgres for keys that have aged out of it. A DB error
// conservatively reports not-duplicate so a store outage cannot stall the
// engine; the event log's unique index still rejects the re-insert.
type IdempotencyChecker struct {
	lru       *idempotencyLRU
	dbChecker DBIdempotencyChecker
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       newIdempotencyLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate reports whether the command has already been applied.
func (ic *IdempotencyChecker) IsDuplicate(eventType, idempotencyKey string) bool {
	dup, _ := ic.Lookup(eventType, idempotencyKey)
	return dup
}

// Lookup reports duplication and the tier that answered, "lru" or "postgres".
func (ic *IdempotencyChecker) Lookup(eventType, idempotencyKey string) (bool, string) {
	key := eventType + ":" + idempotencyKey
	if ic.lru.contains(key) {
		return true, "lru"
	}
	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(eventType, idempotencyKey)
		if err == nil && isDup {
			ic.lru.add(key)
			return true, "postgres"
		}
	}
	return false, ""
}

// MarkProcessed records a successfully applied command.
func (ic *IdempotencyChecker) MarkProcessed(eventType, idempotencyKey string) {
	ic.lru.add(eventType + ":" + idempotencyKey)
}

// Warm preloads composite keys recovered from the event log so a warm restart
// does not pay the cold path for recently applied commands.
func (ic *IdempotencyChecker) Warm(keys []string) {
	for _, key := range keys {
		ic.lru.add(key)
	}
}

// Size returns the current LRU occupancy.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.entries.Len()
}

// idempotencyLRU is a plain LRU over composite keys. Not thread-safe; only
// touched under the engine mutex.
type idempotencyLRU struct {
	capacity int
	index    map[string]*list.Element
	entries  *list.List
}

func newIdempotencyLRU(capacity int) *idempotencyLRU {
	return &idempotencyLRU{
		capacity: capacity,
		index:    make(map[string]*list.Element, capacity),
		entries:  list.New(),
	}
}

func (lru *idempotencyLRU) contains(key string) bool {
	elem, ok := lru.index[key]
	if ok {
		lru.entries.MoveToFront(elem)
	}
	return ok
}

func (lru *idempotencyLRU) add(key string) {
	if elem, ok := lru.index[key]; ok {
		lru.entries.MoveToFront(elem)
		return
	}
	lru.index[key] = lru.entries.PushFront(key)
	if lru.entries.Len() > lru.capacity {
		oldest := lru.entries.Back()
		lru.entries.Remove(oldest)
		delete(lru.index, oldest.Value.(string))
	}
}
