// Package transform holds the per-table hooks a caller can attach to a
// migration run. Hooks are registered explicitly on a Registry; nothing is
// discovered by naming convention.
package transform

import (
	"context"
	"fmt"
	"sort"
)

// Row is one table row keyed by column name.
type Row map[string]any

// SplitFunc fans one source row out into rows for one or more target
// tables. A table with a split hook bypasses the whole default pipeline:
// no column maps, no key conversion, no count verification. Returning an
// empty map drops the row.
type SplitFunc func(row Row) (map[string][]Row, error)

// PostInsertFunc runs after each batch insert with that batch's rows,
// on the migration transaction. Anything it writes commits or rolls back
// with the run.
type PostInsertFunc func(ctx context.Context, db Execer, rows []Row) error

// Execer is the slice of the migration transaction hooks may use.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) error
}

// Registry maps table names to their hooks. Registering a hook twice for
// the same table replaces the earlier one.
type Registry struct {
	split      map[string]SplitFunc
	postInsert map[string]PostInsertFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		split:      make(map[string]SplitFunc),
		postInsert: make(map[string]PostInsertFunc),
	}
}

// OnSplit registers a split hook for a table.
func (r *Registry) OnSplit(table string, fn SplitFunc) {
	r.split[table] = fn
}

// OnPostInsert registers a post-insert hook for a table.
func (r *Registry) OnPostInsert(table string, fn PostInsertFunc) {
	r.postInsert[table] = fn
}

// Split returns the split hook for a table, if registered.
func (r *Registry) Split(table string) (SplitFunc, bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.split[table]
	return fn, ok
}

// PostInsert returns the post-insert hook for a table, if registered.
func (r *Registry) PostInsert(table string) (PostInsertFunc, bool) {
	if r == nil {
		return nil, false
	}
	fn, ok := r.postInsert[table]
	return fn, ok
}

// Tables returns every table with at least one hook, sorted.
func (r *Registry) Tables() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]bool, len(r.split)+len(r.postInsert))
	for t := range r.split {
		seen[t] = true
	}
	for t := range r.postInsert {
		seen[t] = true
	}
	names := make([]string, 0, len(seen))
	for t := range seen {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// HookError wraps an error returned by a hook. Hook failures are fatal
// for the run; the transaction rolls back.
type HookError struct {
	Table string
	Kind  string // "split" or "post-insert"
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook for table %s: %v", e.Kind, e.Table, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
