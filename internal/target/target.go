package target

import "context"

// Writer opens transactions on the target database. The migration runs
// inside exactly one transaction, so the writer hands out a Tx and the
// executor owns its lifetime.
type Writer interface {
	Connect(ctx context.Context) error
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one target transaction. Counts run through the transaction so
// they see rows inserted but not yet committed.
type Tx interface {
	// InsertRows bulk-inserts rows (one slice of values per row, aligned
	// with columns) into a table.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error
	// RowCount counts a table's rows as visible to this transaction.
	RowCount(ctx context.Context, table string) (int64, error)
	// Exec runs one statement on the transaction.
	Exec(ctx context.Context, sql string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
