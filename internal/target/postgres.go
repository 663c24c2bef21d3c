package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxParams is the PostgreSQL extended-protocol bind parameter ceiling.
// InsertRows chunks below it so any batch size stays executable.
const maxParams = 65535

// PostgresWriter implements Writer for PostgreSQL using pgx.
type PostgresWriter struct {
	connStr string
	schema  string
	pool    *pgxpool.Pool
}

// NewPostgresWriter creates a new PostgreSQL writer.
func NewPostgresWriter(connStr, schema string) *PostgresWriter {
	if schema == "" {
		schema = "public"
	}
	return &PostgresWriter{connStr: connStr, schema: schema}
}

func (w *PostgresWriter) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(w.connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 1 // one transaction owns the writer
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	w.pool = pool
	return nil
}

func (w *PostgresWriter) Begin(ctx context.Context) (Tx, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &postgresTx{tx: tx, schema: w.schema}, nil
}

func (w *PostgresWriter) Close() error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}

type postgresTx struct {
	tx     pgx.Tx
	schema string
}

func (t *postgresTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	maxRows := maxParams / len(columns)
	if maxRows < 1 {
		return fmt.Errorf("table %s has too many columns for a bound insert", table)
	}

	for start := 0; start < len(rows); start += maxRows {
		end := start + maxRows
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		sql := buildInsertSQL(t.schema, table, columns, len(chunk))
		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			args = append(args, row...)
		}
		if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

func (t *postgresTx) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdent(t.schema), quoteIdent(table))
	if err := t.tx.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return count, nil
}

func (t *postgresTx) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// buildInsertSQL renders one multi-row INSERT so each batch is a single
// round trip and its rows are visible to later statements in the
// transaction.
func buildInsertSQL(schema, table string, columns []string, rowCount int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s.%s (%s) VALUES ",
		quoteIdent(schema), quoteIdent(table), strings.Join(quoted, ", "))

	arg := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
