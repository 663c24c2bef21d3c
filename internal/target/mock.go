package target

import (
	"context"
	"fmt"
)

// InsertCall records one InsertRows invocation.
type InsertCall struct {
	Table   string
	Columns []string
	Rows    [][]any
}

// MockWriter is a test double for the Writer interface.
type MockWriter struct {
	ConnectErr error
	BeginErr   error
	Tx         *MockTx

	Connected bool
	Closed    bool
	Begun     bool
}

func (m *MockWriter) Connect(_ context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.Connected = true
	return nil
}

func (m *MockWriter) Begin(_ context.Context) (Tx, error) {
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	if m.Tx == nil {
		m.Tx = &MockTx{}
	}
	m.Begun = true
	return m.Tx, nil
}

func (m *MockWriter) Close() error {
	m.Closed = true
	return nil
}

// MockTx records inserted rows and mimics transaction-local visibility:
// RowCount reports what was inserted unless an override is set.
type MockTx struct {
	InsertErr        error
	InsertErrOnTable string
	ExecErr          error
	CountErr         error
	CommitErr        error
	CountOverride    map[string]int64

	Inserts    []InsertCall
	Execs      []string
	Committed  bool
	RolledBack bool
}

func (t *MockTx) InsertRows(_ context.Context, table string, columns []string, rows [][]any) error {
	if t.InsertErr != nil && (t.InsertErrOnTable == "" || t.InsertErrOnTable == table) {
		return t.InsertErr
	}
	copied := make([][]any, len(rows))
	for i, r := range rows {
		copied[i] = append([]any(nil), r...)
	}
	t.Inserts = append(t.Inserts, InsertCall{Table: table, Columns: append([]string(nil), columns...), Rows: copied})
	return nil
}

func (t *MockTx) RowCount(_ context.Context, table string) (int64, error) {
	if t.CountErr != nil {
		return 0, t.CountErr
	}
	if t.CountOverride != nil {
		if c, ok := t.CountOverride[table]; ok {
			return c, nil
		}
	}
	var n int64
	for _, call := range t.Inserts {
		if call.Table == table {
			n += int64(len(call.Rows))
		}
	}
	return n, nil
}

func (t *MockTx) Exec(_ context.Context, sql string, args ...any) error {
	if t.ExecErr != nil {
		return t.ExecErr
	}
	t.Execs = append(t.Execs, fmt.Sprintf("%s %v", sql, args))
	return nil
}

func (t *MockTx) Commit(_ context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

func (t *MockTx) Rollback(_ context.Context) error {
	t.RolledBack = true
	return nil
}

// RowsFor flattens every inserted row for a table into column-keyed maps,
// in insertion order.
func (t *MockTx) RowsFor(table string) []map[string]any {
	var out []map[string]any
	for _, call := range t.Inserts {
		if call.Table != table {
			continue
		}
		for _, row := range call.Rows {
			m := make(map[string]any, len(call.Columns))
			for i, col := range call.Columns {
				m[col] = row[i]
			}
			out = append(out, m)
		}
	}
	return out
}
