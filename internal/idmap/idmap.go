// Package idmap tracks the identifiers minted for converted rows during a
// single migration run, so foreign keys can be rewritten to match. The map
// lives in memory only; a new run starts empty.
package idmap

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// namespace salts deterministic IDs so they cannot collide with v5 UUIDs
// derived elsewhere from the same table/key text.
var namespace = uuid.MustParse("8d4c1b5e-9a37-4f2e-b0c6-2f81d3a75c10")

// Map records new identifiers per table keyed by the old integer key.
// One instance serves one run. Not safe for concurrent use; callers
// share it only within the sequential run loop.
type Map struct {
	ids           map[string]map[int64]uuid.UUID
	deterministic bool
}

// New returns a Map that mints random identifiers.
func New() *Map {
	return &Map{ids: make(map[string]map[int64]uuid.UUID)}
}

// NewDeterministic returns a Map whose identifiers derive from the table
// name and old key, so re-running the same migration mints the same IDs.
func NewDeterministic() *Map {
	return &Map{ids: make(map[string]map[int64]uuid.UUID), deterministic: true}
}

// Record mints an identifier for (table, oldKey), stores it, and returns
// it. Recording the same pair again returns the existing identifier.
func (m *Map) Record(table string, oldKey int64) uuid.UUID {
	if existing, ok := m.Lookup(table, oldKey); ok {
		return existing
	}
	if m.ids[table] == nil {
		m.ids[table] = make(map[int64]uuid.UUID)
	}
	var id uuid.UUID
	if m.deterministic {
		id = uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s:%d", table, oldKey)))
	} else {
		id = uuid.New()
	}
	m.ids[table][oldKey] = id
	return id
}

// Lookup returns the identifier minted for (table, oldKey), if any.
func (m *Map) Lookup(table string, oldKey int64) (uuid.UUID, bool) {
	keys, ok := m.ids[table]
	if !ok {
		return uuid.UUID{}, false
	}
	id, ok := keys[oldKey]
	return id, ok
}

// Count returns how many identifiers were minted for a table.
func (m *Map) Count(table string) int {
	return len(m.ids[table])
}

// Tables returns the tables with minted identifiers, sorted.
func (m *Map) Tables() []string {
	names := make([]string, 0, len(m.ids))
	for name := range m.ids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AsInt64 widens the integer types PostgreSQL key columns scan into.
// Conversion-marked tables must have integer keys, so anything else is
// reported to the caller.
func AsInt64(v any) (int64, error) {
	switch k := v.(type) {
	case int64:
		return k, nil
	case int32:
		return int64(k), nil
	case int16:
		return int64(k), nil
	case int:
		return int64(k), nil
	default:
		return 0, fmt.Errorf("key value %v (%T) is not an integer", v, v)
	}
}
