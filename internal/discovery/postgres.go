package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/schema"
)

// Postgres implements Discoverer for PostgreSQL databases.
type Postgres struct {
	ep     *config.Endpoint
	pool   *pgxpool.Pool
	schema string // pg schema to discover
}

// NewPostgres creates a PostgreSQL discoverer for the public schema.
func NewPostgres(ep *config.Endpoint) *Postgres {
	return &Postgres{ep: ep, schema: "public"}
}

func (p *Postgres) Connect(ctx context.Context) error {
	poolCfg, err := pgxpool.ParseConfig(p.ep.DSN())
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	// Catalog queries run sequentially on one connection.
	poolCfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}

	p.pool = pool
	return nil
}

func (p *Postgres) Discover(ctx context.Context) (*schema.Schema, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("not connected; call Connect first")
	}

	tables, err := p.discoverTables(ctx)
	if err != nil {
		return nil, &IntrospectError{Stage: "tables", Err: err}
	}

	tableMap := make(map[string]*schema.Table, len(tables))
	for i := range tables {
		tableMap[tables[i].Name] = &tables[i]
	}

	if err := p.discoverColumns(ctx, tableMap); err != nil {
		return nil, &IntrospectError{Stage: "columns", Err: err}
	}

	if err := p.discoverPrimaryKeys(ctx, tableMap); err != nil {
		return nil, &IntrospectError{Stage: "primary keys", Err: err}
	}

	if err := p.discoverForeignKeys(ctx, tableMap); err != nil {
		return nil, &IntrospectError{Stage: "foreign keys", Err: err}
	}

	if err := p.discoverIndexes(ctx, tableMap); err != nil {
		return nil, &IntrospectError{Stage: "indexes", Err: err}
	}

	return &schema.Schema{
		Host:         p.ep.Host,
		Database:     p.ep.Database,
		SchemaName:   p.schema,
		DiscoveredAt: time.Now().UTC(),
		Tables:       tables,
	}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// discoverTables lists all user tables with row count estimates and on-disk sizes.
func (p *Postgres) discoverTables(ctx context.Context) ([]schema.Table, error) {
	query := `
		SELECT
			c.relname AS table_name,
			c.reltuples::bigint AS row_estimate,
			pg_total_relation_size(c.oid) AS size_bytes
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := p.pool.Query(ctx, query, p.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name, &t.RowEstimate, &t.SizeBytes); err != nil {
			return nil, err
		}
		// reltuples can be -1 for never-analyzed tables
		if t.RowEstimate < 0 {
			t.RowEstimate = 0
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// discoverColumns fetches all columns for all tables, marking sequence-backed
// columns (serial defaults and identity columns) along the way.
func (p *Postgres) discoverColumns(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			table_name,
			column_name,
			data_type,
			is_nullable,
			column_default,
			is_identity
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, colName, dataType, nullable, identity string
			defaultVal                                       *string
		)
		if err := rows.Scan(&tableName, &colName, &dataType, &nullable, &defaultVal, &identity); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		col := schema.Column{
			Name:         colName,
			DataType:     dataType,
			Nullable:     nullable == "YES",
			DefaultValue: defaultVal,
			IsSequence:   identity == "YES" || (defaultVal != nil && strings.HasPrefix(*defaultVal, "nextval(")),
		}
		t.Columns = append(t.Columns, col)
	}
	return rows.Err()
}

// discoverPrimaryKeys fetches primary key constraints.
func (p *Postgres) discoverPrimaryKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, kcu.ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, constraintName, colName string
		if err := rows.Scan(&tableName, &constraintName, &colName); err != nil {
			return err
		}

		t, ok := tableMap[tableName]
		if !ok {
			continue
		}

		if t.PrimaryKey == nil {
			t.PrimaryKey = &schema.PrimaryKey{Name: constraintName}
		}
		t.PrimaryKey.Columns = append(t.PrimaryKey.Columns, colName)
	}
	return rows.Err()
}

// discoverForeignKeys fetches foreign key relationships. Referencing and
// referenced columns are matched by position so composite keys come out in
// constraint order.
func (p *Postgres) discoverForeignKeys(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		  AND kcu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
		  ON rc.constraint_name = tc.constraint_name
		  AND rc.constraint_schema = tc.table_schema
		JOIN information_schema.key_column_usage ccu
		  ON ccu.constraint_name = rc.unique_constraint_name
		  AND ccu.table_schema = rc.unique_constraint_schema
		  AND ccu.ordinal_position = kcu.position_in_unique_constraint
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = ANY($2)
		ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	// Group columns by constraint name since composite FKs have multiple rows
	type fkKey struct{ table, constraint string }
	grouped := make(map[fkKey]*schema.ForeignKey)
	var order []fkKey

	for rows.Next() {
		var tableName, constraintName, column, refTable, refColumn string
		if err := rows.Scan(&tableName, &constraintName, &column, &refTable, &refColumn); err != nil {
			return err
		}

		k := fkKey{tableName, constraintName}
		fk, exists := grouped[k]
		if !exists {
			fk = &schema.ForeignKey{
				Name:            constraintName,
				ReferencedTable: refTable,
			}
			grouped[k] = fk
			order = append(order, k)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		if t, ok := tableMap[k.table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, *grouped[k])
		}
	}

	return nil
}

// discoverIndexes fetches all indexes except the ones backing primary keys.
func (p *Postgres) discoverIndexes(ctx context.Context, tableMap map[string]*schema.Table) error {
	query := `
		SELECT
			t.relname AS table_name,
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			am.amname AS index_type,
			a.attname AS column_name
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1
		  AND t.relname = ANY($2)
		  AND NOT ix.indisprimary
		ORDER BY t.relname, i.relname, array_position(ix.indkey, a.attnum)`

	names := tableNames(tableMap)
	rows, err := p.pool.Query(ctx, query, p.schema, names)
	if err != nil {
		return err
	}
	defer rows.Close()

	type idxKey struct{ table, index string }
	grouped := make(map[idxKey]*schema.Index)
	var order []idxKey

	for rows.Next() {
		var tableName, indexName, indexType, colName string
		var isUnique bool
		if err := rows.Scan(&tableName, &indexName, &isUnique, &indexType, &colName); err != nil {
			return err
		}

		k := idxKey{tableName, indexName}
		idx, exists := grouped[k]
		if !exists {
			idx = &schema.Index{
				Name:   indexName,
				Unique: isUnique,
				Type:   indexType,
			}
			grouped[k] = idx
			order = append(order, k)
		}
		idx.Columns = append(idx.Columns, colName)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, k := range order {
		if t, ok := tableMap[k.table]; ok {
			t.Indexes = append(t.Indexes, *grouped[k])
		}
	}

	return nil
}

func tableNames(tableMap map[string]*schema.Table) []string {
	names := make([]string, 0, len(tableMap))
	for name := range tableMap {
		names = append(names, name)
	}
	return names
}

// compile-time interface check
var _ Discoverer = (*Postgres)(nil)
