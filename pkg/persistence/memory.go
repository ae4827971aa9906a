package persistence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// IndexSpec declares one index a collection is expected to maintain.
// MemoryStore does not build real indexes (a linear scan suffices at this
// scale); it records specs so startup validation and diagnostics can
// confirm the schema documented in §6.2 is in force, the way the source
// system's setup_mongodb() registers indexes up front.
type IndexSpec struct {
	Fields []string
	Unique bool
	TTL    time.Duration // zero means no expiry
}

var schema = map[string][]IndexSpec{
	CollectionOHLCHistory: {
		{Fields: []string{"instrument", "timestamp"}, TTL: 30 * 24 * time.Hour},
		{Fields: []string{"instrument", "timeframe", "timestamp"}},
	},
	CollectionTradesExecuted: {
		{Fields: []string{"trade_id"}, Unique: true},
		{Fields: []string{"entry_timestamp"}},
		{Fields: []string{"status"}},
	},
	CollectionAgentDecisions: {
		{Fields: []string{"timestamp"}},
		{Fields: []string{"agent_name", "timestamp"}},
		{Fields: []string{"trade_id"}},
	},
	CollectionMarketEvents: {
		{Fields: []string{"event_timestamp"}},
		{Fields: []string{"event_type"}},
		{Fields: []string{"source"}},
	},
	CollectionStrategyParams: {
		{Fields: []string{"strategy_name"}, Unique: true},
	},
	CollectionAlerts: {
		{Fields: []string{"triggered_at"}},
		{Fields: []string{"severity"}},
	},
	CollectionBacktestResults: {
		{Fields: []string{"backtest_id", "timestamp"}},
		{Fields: []string{"strategy_name"}},
	},
}

type record struct {
	doc       map[string]any
	insertedAt time.Time
}

// MemoryStore is the in-memory Persistence Layer driver. It is the only
// driver this repository ships; a production deployment wires in a real
// document database behind the same Store interface (Config.Persistence.Driver
// names which).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]record
}

// NewMemoryStore creates an empty store with the schema validators from
// §6.2 applied (additive — see ValidateSchema).
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]record)}
}

// ValidateSchema confirms every collection this store has been asked to
// use has a registered IndexSpec; unknown collections are rejected at
// startup the way the source's setup_mongodb() enumerates a fixed set.
func (m *MemoryStore) ValidateSchema(collections ...string) error {
	for _, c := range collections {
		if _, ok := schema[c]; !ok {
			return &unknownCollectionError{c}
		}
	}
	return nil
}

type unknownCollectionError struct{ name string }

func (e *unknownCollectionError) Error() string { return "persistence: unknown collection " + e.name }

func toDoc(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Insert implements Store.
func (m *MemoryStore) Insert(_ context.Context, collection string, doc any) error {
	d, err := toDoc(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked(collection)
	m.data[collection] = append(m.data[collection], record{doc: d, insertedAt: time.Now()})
	return nil
}

// expireLocked drops records past their collection's TTL. Caller holds m.mu.
func (m *MemoryStore) expireLocked(collection string) {
	ttl := ttlFor(collection)
	if ttl == 0 {
		return
	}
	now := time.Now()
	recs := m.data[collection]
	kept := recs[:0]
	for _, r := range recs {
		if now.Sub(r.insertedAt) <= ttl {
			kept = append(kept, r)
		}
	}
	m.data[collection] = kept
}

func ttlFor(collection string) time.Duration {
	for _, spec := range schema[collection] {
		if spec.TTL > 0 {
			return spec.TTL
		}
	}
	return 0
}

func matches(doc map[string]any, q Query) bool {
	for k, v := range q {
		if doc[k] != v {
			return false
		}
	}
	return true
}

func sortDocs(docs []map[string]any, s *Sort) {
	if s == nil {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		less := lessAny(docs[i][s.Field], docs[j][s.Field])
		if s.Desc {
			return !less
		}
		return less
	})
}

func lessAny(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}

// FindOne implements Store.
func (m *MemoryStore) FindOne(_ context.Context, collection string, q Query, s *Sort) (map[string]any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []map[string]any
	for _, r := range m.data[collection] {
		if matches(r.doc, q) {
			matched = append(matched, r.doc)
		}
	}
	sortDocs(matched, s)
	if len(matched) == 0 {
		return nil, false, nil
	}
	return matched[0], true, nil
}

// FindMany implements Store.
func (m *MemoryStore) FindMany(_ context.Context, collection string, q Query, s *Sort, limit int) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []map[string]any
	for _, r := range m.data[collection] {
		if matches(r.doc, q) {
			matched = append(matched, r.doc)
		}
	}
	sortDocs(matched, s)
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// UpdateOne implements Store: merges update into the first matching
// document.
func (m *MemoryStore) UpdateOne(_ context.Context, collection string, q Query, update map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.data[collection] {
		if matches(r.doc, q) {
			for k, v := range update {
				m.data[collection][i].doc[k] = v
			}
			return nil
		}
	}
	return nil
}
