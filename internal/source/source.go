package source

import "context"

// Reader provides read-only access to one side of a migration. The
// executor streams table pages through it; validation reuses it for
// counts and checksum queries against either database.
type Reader interface {
	Connect(ctx context.Context) error
	// RowCount returns the exact row count of a table.
	RowCount(ctx context.Context, table string) (int64, error)
	// FetchPage returns up to limit rows in ascending pkCol order,
	// starting after the given key. A nil after fetches the first page.
	FetchPage(ctx context.Context, table, pkCol string, after any, limit int) ([]map[string]any, error)
	// ScanTable returns every row of a table in natural scan order.
	// Reserved for tables that lack a single key column to page on.
	ScanTable(ctx context.Context, table string) ([]map[string]any, error)
	// QueryRows runs an arbitrary query and maps each row by column name.
	QueryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	Close() error
}
