package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresReader implements Reader for PostgreSQL using pgx.
type PostgresReader struct {
	connStr string
	schema  string
	pool    *pgxpool.Pool
}

// NewPostgresReader creates a new PostgreSQL reader.
func NewPostgresReader(connStr, schema string) *PostgresReader {
	if schema == "" {
		schema = "public"
	}
	return &PostgresReader{connStr: connStr, schema: schema}
}

func (r *PostgresReader) Connect(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(r.connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 1 // sequential reads only
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	r.pool = pool
	return nil
}

func (r *PostgresReader) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdentPg(r.schema), quoteIdentPg(table))
	err := r.pool.QueryRow(ctx, sql).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", table, err)
	}
	return count, nil
}

func (r *PostgresReader) FetchPage(ctx context.Context, table, pkCol string, after any, limit int) ([]map[string]any, error) {
	sql := buildPageSQL(r.schema, table, pkCol, after != nil, limit)
	if after != nil {
		return r.QueryRows(ctx, sql, after)
	}
	return r.QueryRows(ctx, sql)
}

func (r *PostgresReader) ScanTable(ctx context.Context, table string) ([]map[string]any, error) {
	sql := fmt.Sprintf("SELECT * FROM %s.%s", quoteIdentPg(r.schema), quoteIdentPg(table))
	return r.QueryRows(ctx, sql)
}

func (r *PostgresReader) QueryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	var results []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(descs))
		for i, d := range descs {
			row[d.Name] = vals[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

func (r *PostgresReader) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// buildPageSQL renders one keyset page query. Keyset beats OFFSET here:
// the planner walks the key index from the last seen value instead of
// re-scanning skipped rows.
func buildPageSQL(schema, table, pkCol string, hasAfter bool, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s.%s", quoteIdentPg(schema), quoteIdentPg(table))
	if hasAfter {
		fmt.Fprintf(&b, " WHERE %s > $1", quoteIdentPg(pkCol))
	}
	fmt.Fprintf(&b, " ORDER BY %s LIMIT %d", quoteIdentPg(pkCol), limit)
	return b.String()
}

func quoteIdentPg(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
