// Package migration implements the copy engine. One Executor performs one
// run: tables stream from the source reader into a single target transaction
// in foreign-key dependency order, with optional key conversion and column
// renaming on the way through.
package migration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/idmap"
	"github.com/pgrekey/pgrekey/internal/mapping"
	"github.com/pgrekey/pgrekey/internal/schema"
	"github.com/pgrekey/pgrekey/internal/source"
	"github.com/pgrekey/pgrekey/internal/target"
	"github.com/pgrekey/pgrekey/internal/transform"
)

// State tracks the lifecycle of one Executor.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProgressFunc receives per-table progress. It fires after each batch
// insert, so a consumer acting on a report can rely on the reported rows
// being written to the run transaction. Tables that produce no batches
// emit a single (0, total) report.
type ProgressFunc func(table string, done, total int64)

// Options configure an Executor. Nil Hooks and nil Progress are valid.
// A nil IDs gets a fresh map honoring Settings.DeterministicIDs. A nil
// Logger discards.
type Options struct {
	Settings   config.MigrationConfig
	ColumnMaps mapping.TableMaps
	Hooks      *transform.Registry
	IDs        *idmap.Map
	Logger     *slog.Logger
	Progress   ProgressFunc
}

// Executor copies every table present on both sides from source to target
// inside one target transaction. Single-shot: construct, Run once, inspect
// the Result. Not safe for concurrent use; callers wanting a responsive
// frontend run Run in a background goroutine and consume Progress.
type Executor struct {
	src    source.Reader
	tgt    target.Writer
	opts   Options
	state  State
	marked map[string]bool // tables whose integer keys convert to uuids
	log    *slog.Logger
}

// New creates an Executor over a connected reader and writer.
func New(src source.Reader, tgt target.Writer, opts Options) *Executor {
	if opts.Settings.BatchSize <= 0 {
		opts.Settings.BatchSize = 1000
	}
	if opts.IDs == nil {
		if opts.Settings.DeterministicIDs {
			opts.IDs = idmap.NewDeterministic()
		} else {
			opts.IDs = idmap.New()
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	marked := make(map[string]bool, len(opts.Settings.UUIDTables))
	for _, t := range opts.Settings.UUIDTables {
		marked[t] = true
	}

	return &Executor{
		src:    src,
		tgt:    tgt,
		opts:   opts,
		state:  StateCreated,
		marked: marked,
		log:    log,
	}
}

// State returns the executor's lifecycle state.
func (e *Executor) State() State {
	return e.state
}

// IDs returns the run's identifier map.
func (e *Executor) IDs() *idmap.Map {
	return e.opts.IDs
}

// TableResult records one table's copy outcome.
type TableResult struct {
	Table     string        `json:"table"`
	Rows      int64         `json:"rows"`     // rows read from the source
	Inserted  int64         `json:"inserted"` // rows written to the target
	Converted bool          `json:"converted,omitempty"`
	Split     bool          `json:"split,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Result summarizes a run. It is returned alongside any error so callers
// can report how far a rolled-back run got.
type Result struct {
	State     State          `json:"state"`
	Tables    []TableResult  `json:"tables"`
	Skipped   []string       `json:"skipped,omitempty"`   // source-only tables
	Converted map[string]int `json:"converted,omitempty"` // identifiers minted per table
	Duration  time.Duration  `json:"duration"`
}

// KeyShapeError reports a conversion-marked table whose key cannot be
// converted: absent, composite, or non-integer on either side, or a
// non-integer key value met mid-copy.
type KeyShapeError struct {
	Table  string
	Reason string
}

func (e *KeyShapeError) Error() string {
	return fmt.Sprintf("uuid conversion failed: %s", e.Reason)
}

// CountMismatchError reports a post-copy verification failure.
type CountMismatchError struct {
	Table  string
	Source int64
	Target int64
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("row count mismatch on %s: source has %d rows, target has %d", e.Table, e.Source, e.Target)
}

// Run copies all tables. The run either commits every table or rolls back
// entirely; the target never observes a partial migration. The source
// reader and target writer must be connected before calling Run.
func (e *Executor) Run(ctx context.Context, srcSchema, tgtSchema *schema.Schema) (*Result, error) {
	if e.state != StateCreated {
		return nil, fmt.Errorf("executor already ran (state %s)", e.state)
	}
	if srcSchema == nil || tgtSchema == nil {
		return nil, fmt.Errorf("source and target schemas are required")
	}
	e.state = StateRunning
	start := time.Now()
	result := &Result{Converted: make(map[string]int)}

	fail := func(err error) (*Result, error) {
		e.state = StateRolledBack
		result.State = e.state
		result.Duration = time.Since(start)
		return result, err
	}

	// Only tables present on both sides copy. Source-only tables have no
	// destination and are skipped, not errors.
	var common []schema.Table
	for _, t := range srcSchema.Tables {
		if tgtSchema.Table(t.Name) == nil {
			result.Skipped = append(result.Skipped, t.Name)
			continue
		}
		common = append(common, t)
	}
	sort.Strings(result.Skipped)

	order, err := mapping.NewFKGraph(common).TableOrder()
	if err != nil {
		return fail(err)
	}
	e.log.Info("migration starting",
		"tables", len(order), "skipped", len(result.Skipped),
		"batch_size", e.opts.Settings.BatchSize, "verify", e.opts.Settings.Verify)

	tx, err := e.tgt.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("beginning target transaction: %w", err))
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			e.rollback(ctx, tx)
			return fail(err)
		}

		tr, err := e.copyTable(ctx, tx, srcSchema.Table(name), tgtSchema.Table(name))
		result.Tables = append(result.Tables, tr)
		if err != nil {
			e.log.Error("table copy failed", "table", name, "error", err)
			e.rollback(ctx, tx)
			return fail(err)
		}
		if tr.Converted {
			result.Converted[name] = e.opts.IDs.Count(name)
		}
		e.log.Info("table copied", "table", name,
			"rows", tr.Rows, "inserted", tr.Inserted,
			"converted", tr.Converted, "duration", tr.Duration)
	}

	if err := tx.Commit(ctx); err != nil {
		e.rollback(ctx, tx)
		return fail(fmt.Errorf("committing migration: %w", err))
	}

	e.state = StateCommitted
	result.State = e.state
	result.Duration = time.Since(start)
	e.log.Info("migration committed", "tables", len(result.Tables), "duration", result.Duration)
	return result, nil
}

func (e *Executor) rollback(ctx context.Context, tx target.Tx) {
	// Roll back even when the run context is already canceled.
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		e.log.Error("rollback failed", "error", err)
	}
}

func (e *Executor) copyTable(ctx context.Context, tx target.Tx, src, tgt *schema.Table) (TableResult, error) {
	if fn, ok := e.opts.Hooks.Split(src.Name); ok {
		return e.copySplit(ctx, tx, src, fn)
	}
	return e.copyDefault(ctx, tx, src, tgt)
}

// copyPlan is the per-table shape worked out once before rows move.
type copyPlan struct {
	table   string
	cols    []string          // target columns the insert supplies
	srcFor  map[string]string // target column -> source column
	remap   map[string]string // target FK column -> referenced (converted) table
	convert bool
	srcPK   string // source key column; empty means single full-scan page
	tgtPK   string // target key column receiving minted uuids
}

// planTable resolves the column map against the real column sets. A target
// column whose source column does not exist is left out of the insert so
// the target default applies; extra source columns are dropped.
func (e *Executor) planTable(src, tgt *schema.Table) (*copyPlan, error) {
	p := &copyPlan{
		table:   src.Name,
		srcFor:  make(map[string]string),
		remap:   make(map[string]string),
		convert: e.marked[src.Name],
	}

	if p.convert {
		col, err := src.SerialPK()
		if err != nil {
			return nil, &KeyShapeError{Table: src.Name, Reason: err.Error()}
		}
		p.srcPK = col.Name
		tgtPK, err := tgt.PKColumn()
		if err != nil {
			return nil, &KeyShapeError{Table: src.Name, Reason: "target " + err.Error()}
		}
		p.tgtPK = tgtPK
	} else if name, err := src.PKColumn(); err == nil {
		p.srcPK = name
	}

	for _, col := range tgt.Columns {
		if p.convert && col.Name == p.tgtPK {
			// Filled by minting, never copied from the source.
			p.cols = append(p.cols, col.Name)
			continue
		}
		srcCol := e.opts.ColumnMaps.SourceColumn(src.Name, col.Name)
		if src.Column(srcCol) == nil {
			continue
		}
		p.cols = append(p.cols, col.Name)
		p.srcFor[col.Name] = srcCol
	}

	for _, fk := range tgt.ForeignKeys {
		if !e.marked[fk.ReferencedTable] {
			continue
		}
		for _, c := range fk.Columns {
			p.remap[c] = fk.ReferencedTable
		}
	}

	return p, nil
}

// buildValues turns one source row into insert values in plan column order.
func (e *Executor) buildValues(p *copyPlan, row map[string]any) ([]any, error) {
	vals := make([]any, len(p.cols))
	for i, col := range p.cols {
		if p.convert && col == p.tgtPK {
			key, err := idmap.AsInt64(row[p.srcPK])
			if err != nil {
				return nil, &KeyShapeError{Table: p.table, Reason: fmt.Sprintf("table %s column %s: %v", p.table, p.srcPK, err)}
			}
			vals[i] = e.opts.IDs.Record(p.table, key).String()
			continue
		}

		v := row[p.srcFor[col]]
		if refTable, ok := p.remap[col]; ok && v != nil {
			// NULL keys and keys never seen pass through unchanged.
			if key, err := idmap.AsInt64(v); err == nil {
				if id, found := e.opts.IDs.Lookup(refTable, key); found {
					v = id.String()
				}
			}
		}
		vals[i] = v
	}
	return vals, nil
}

func (e *Executor) copyDefault(ctx context.Context, tx target.Tx, src, tgt *schema.Table) (TableResult, error) {
	started := time.Now()
	res := TableResult{Table: src.Name}
	name := src.Name

	total, err := e.src.RowCount(ctx, name)
	if err != nil {
		return res, fmt.Errorf("counting rows in %s: %w", name, err)
	}

	plan, err := e.planTable(src, tgt)
	if err != nil {
		return res, err
	}
	res.Converted = plan.convert

	hook, hasHook := e.opts.Hooks.PostInsert(name)
	batch := e.opts.Settings.BatchSize
	var after any

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var rows []map[string]any
		if plan.srcPK == "" {
			// No single key column to page on, so one full-scan page.
			rows, err = e.src.ScanTable(ctx, name)
		} else {
			rows, err = e.src.FetchPage(ctx, name, plan.srcPK, after, batch)
		}
		if err != nil {
			return res, fmt.Errorf("reading %s: %w", name, err)
		}
		if len(rows) == 0 {
			break
		}

		vals := make([][]any, len(rows))
		for i, row := range rows {
			v, err := e.buildValues(plan, row)
			if err != nil {
				return res, err
			}
			vals[i] = v
		}

		if err := tx.InsertRows(ctx, name, plan.cols, vals); err != nil {
			return res, fmt.Errorf("inserting into %s: %w", name, err)
		}
		res.Rows += int64(len(rows))
		res.Inserted += int64(len(rows))

		if hasHook {
			if err := hook(ctx, tx, targetRows(plan.cols, vals)); err != nil {
				return res, &transform.HookError{Table: name, Kind: "post-insert", Err: err}
			}
		}

		e.progress(name, res.Rows, total)

		if plan.srcPK == "" || len(rows) < batch {
			break
		}
		after = rows[len(rows)-1][plan.srcPK]
	}

	if res.Rows == 0 {
		e.progress(name, 0, total)
	}

	if e.opts.Settings.Verify {
		got, err := tx.RowCount(ctx, name)
		if err != nil {
			return res, fmt.Errorf("verifying %s: %w", name, err)
		}
		if got != total {
			return res, &CountMismatchError{Table: name, Source: total, Target: got}
		}
	}

	res.Duration = time.Since(started)
	return res, nil
}

// copySplit hands every source row to the table's split hook and inserts
// whatever comes back, row by row. Column maps, key conversion, and count
// verification do not apply on this path.
func (e *Executor) copySplit(ctx context.Context, tx target.Tx, src *schema.Table, fn transform.SplitFunc) (TableResult, error) {
	started := time.Now()
	res := TableResult{Table: src.Name, Split: true}
	name := src.Name

	rows, err := e.src.ScanTable(ctx, name)
	if err != nil {
		return res, fmt.Errorf("reading %s: %w", name, err)
	}
	total := int64(len(rows))
	batch := int64(e.opts.Settings.BatchSize)
	var reported int64

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		produced, err := fn(transform.Row(row))
		if err != nil {
			return res, &transform.HookError{Table: name, Kind: "split", Err: err}
		}

		dests := make([]string, 0, len(produced))
		for dest := range produced {
			dests = append(dests, dest)
		}
		sort.Strings(dests)

		for _, dest := range dests {
			for _, out := range produced[dest] {
				cols := make([]string, 0, len(out))
				for c := range out {
					cols = append(cols, c)
				}
				sort.Strings(cols)
				vals := make([]any, len(cols))
				for i, c := range cols {
					vals[i] = out[c]
				}
				if err := tx.InsertRows(ctx, dest, cols, [][]any{vals}); err != nil {
					return res, fmt.Errorf("inserting split row into %s: %w", dest, err)
				}
				res.Inserted++
			}
		}

		res.Rows++
		if res.Rows%batch == 0 {
			e.progress(name, res.Rows, total)
			reported = res.Rows
		}
	}

	if reported != res.Rows || res.Rows == 0 {
		e.progress(name, res.Rows, total)
	}

	res.Duration = time.Since(started)
	return res, nil
}

// targetRows rebuilds column-keyed rows from insert values for hook calls.
func targetRows(cols []string, vals [][]any) []transform.Row {
	rows := make([]transform.Row, len(vals))
	for i, v := range vals {
		r := make(transform.Row, len(cols))
		for j, c := range cols {
			r[c] = v[j]
		}
		rows[i] = r
	}
	return rows
}

func (e *Executor) progress(table string, done, total int64) {
	if e.opts.Progress != nil {
		e.opts.Progress(table, done, total)
	}
}
