package migration_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/mapping"
	"github.com/pgrekey/pgrekey/internal/migration"
	"github.com/pgrekey/pgrekey/internal/schema"
	"github.com/pgrekey/pgrekey/internal/source"
	"github.com/pgrekey/pgrekey/internal/target"
	"github.com/pgrekey/pgrekey/internal/transform"
)

// sourceSchema returns users/addresses with serial integer keys.
func sourceSchema() *schema.Schema {
	return &schema.Schema{
		Database: "src",
		Tables: []schema.Table{
			{
				Name: "users",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer", IsSequence: true},
					{Name: "full_name", DataType: "text"},
				},
				PrimaryKey: &schema.PrimaryKey{Name: "users_pkey", Columns: []string{"id"}},
			},
			{
				Name: "addresses",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer", IsSequence: true},
					{Name: "user_id", DataType: "integer", Nullable: true},
					{Name: "email", DataType: "text"},
				},
				PrimaryKey: &schema.PrimaryKey{Name: "addresses_pkey", Columns: []string{"id"}},
				ForeignKeys: []schema.ForeignKey{
					{
						Name:              "addresses_user_id_fkey",
						Columns:           []string{"user_id"},
						ReferencedTable:   "users",
						ReferencedColumns: []string{"id"},
					},
				},
			},
		},
	}
}

// targetSchema mirrors sourceSchema with users re-keyed on uuid.
func targetSchema() *schema.Schema {
	s := sourceSchema()
	s.Database = "tgt"
	s.Table("users").Column("id").DataType = "uuid"
	s.Table("users").Column("id").IsSequence = false
	s.Table("addresses").Column("user_id").DataType = "uuid"
	return s
}

func sampleReader() *source.MockReader {
	return &source.MockReader{
		Rows: map[string][]map[string]any{
			"users": {
				{"id": int64(1), "full_name": "Alice"},
			},
			"addresses": {
				{"id": int64(1), "user_id": int64(1), "email": "alice@example.com"},
			},
		},
	}
}

func insertIndex(calls []target.InsertCall, table string) int {
	for i, c := range calls {
		if c.Table == table {
			return i
		}
	}
	return -1
}

func TestRun_ConvertsKeysAndRemapsReferences(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{UUIDTables: []string{"users"}},
	})

	res, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != migration.StateCommitted {
		t.Errorf("expected state committed, got %s", res.State)
	}
	if exec.State() != migration.StateCommitted {
		t.Errorf("expected executor state committed, got %s", exec.State())
	}
	if !w.Tx.Committed {
		t.Error("expected transaction commit")
	}
	if w.Tx.RolledBack {
		t.Error("did not expect rollback")
	}

	users := w.Tx.RowsFor("users")
	if len(users) != 1 {
		t.Fatalf("expected 1 users row, got %d", len(users))
	}
	id, ok := users[0]["id"].(string)
	if !ok {
		t.Fatalf("expected converted id to be a string, got %T", users[0]["id"])
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("converted id %q is not a valid uuid: %v", id, err)
	}
	if users[0]["full_name"] != "Alice" {
		t.Errorf("expected full_name Alice, got %v", users[0]["full_name"])
	}

	addrs := w.Tx.RowsFor("addresses")
	if len(addrs) != 1 {
		t.Fatalf("expected 1 addresses row, got %d", len(addrs))
	}
	if addrs[0]["user_id"] != id {
		t.Errorf("expected user_id %q, got %v", id, addrs[0]["user_id"])
	}
	if addrs[0]["id"] != int64(1) {
		t.Errorf("expected unconverted addresses id 1, got %v", addrs[0]["id"])
	}

	if res.Converted["users"] != 1 {
		t.Errorf("expected 1 conversion recorded for users, got %d", res.Converted["users"])
	}
	if len(res.Tables) != 2 {
		t.Errorf("expected 2 table results, got %d", len(res.Tables))
	}
}

func TestRun_ParentsCopyBeforeChildren(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{UUIDTables: []string{"users"}},
	})

	if _, err := exec.Run(context.Background(), sourceSchema(), targetSchema()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ui := insertIndex(w.Tx.Inserts, "users")
	ai := insertIndex(w.Tx.Inserts, "addresses")
	if ui == -1 || ai == -1 {
		t.Fatalf("missing inserts: users=%d addresses=%d", ui, ai)
	}
	if ui > ai {
		t.Errorf("expected users to insert before addresses (users=%d addresses=%d)", ui, ai)
	}
}

func TestRun_ColumnMapRename(t *testing.T) {
	src := &schema.Schema{Tables: []schema.Table{{
		Name: "customers",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "full_name", DataType: "text"},
		},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}
	tgt := &schema.Schema{Tables: []schema.Table{{
		Name: "customers",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "name", DataType: "text"},
		},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	r := &source.MockReader{Rows: map[string][]map[string]any{
		"customers": {{"id": int64(1), "full_name": "Alice"}},
	}}
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{
		ColumnMaps: mapping.TableMaps{"customers": {"name": "full_name"}},
	})

	if _, err := exec.Run(context.Background(), src, tgt); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := w.Tx.RowsFor("customers")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["name"] != "Alice" {
		t.Errorf("expected mapped name Alice, got %v", rows[0]["name"])
	}
	if _, present := rows[0]["full_name"]; present {
		t.Error("source column name leaked into the target insert")
	}
}

func TestRun_TargetOnlyColumnOmitted(t *testing.T) {
	src := &schema.Schema{Tables: []schema.Table{{
		Name:       "items",
		Columns:    []schema.Column{{Name: "id", DataType: "integer"}},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}
	tgt := &schema.Schema{Tables: []schema.Table{{
		Name: "items",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "created_at", DataType: "timestamp with time zone"},
		},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	r := &source.MockReader{Rows: map[string][]map[string]any{
		"items": {{"id": int64(1)}},
	}}
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{})

	if _, err := exec.Run(context.Background(), src, tgt); err != nil {
		t.Fatalf("Run: %v", err)
	}

	call := w.Tx.Inserts[insertIndex(w.Tx.Inserts, "items")]
	if len(call.Columns) != 1 || call.Columns[0] != "id" {
		t.Errorf("expected insert columns [id], got %v", call.Columns)
	}
}

func TestRun_SourceOnlyTableSkipped(t *testing.T) {
	src := sourceSchema()
	src.Tables = append(src.Tables, schema.Table{
		Name:       "legacy_audit",
		Columns:    []schema.Column{{Name: "id", DataType: "integer"}},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	})
	r := sampleReader()
	r.Rows["legacy_audit"] = []map[string]any{{"id": int64(1)}}

	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{})

	res, err := exec.Run(context.Background(), src, targetSchema())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Skipped) != 1 || res.Skipped[0] != "legacy_audit" {
		t.Errorf("expected skipped [legacy_audit], got %v", res.Skipped)
	}
	if insertIndex(w.Tx.Inserts, "legacy_audit") != -1 {
		t.Error("skipped table must not be inserted")
	}
	if res.State != migration.StateCommitted {
		t.Errorf("expected commit despite skip, got %s", res.State)
	}
}

func TestRun_KeysetPagination(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i + 1), "full_name": "n"}
	}
	r := &source.MockReader{Rows: map[string][]map[string]any{"users": rows}}
	w := &target.MockWriter{}

	src := &schema.Schema{Tables: []schema.Table{{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "full_name", DataType: "text"},
		},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{BatchSize: 2},
	})
	if _, err := exec.Run(context.Background(), src, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []source.PageRequest{
		{Table: "users", After: nil, Limit: 2},
		{Table: "users", After: int64(2), Limit: 2},
		{Table: "users", After: int64(4), Limit: 2},
	}
	if len(r.PageRequests) != len(want) {
		t.Fatalf("expected %d page requests, got %d: %+v", len(want), len(r.PageRequests), r.PageRequests)
	}
	for i, pr := range r.PageRequests {
		if pr != want[i] {
			t.Errorf("page %d: expected %+v, got %+v", i, want[i], pr)
		}
	}

	if got := len(w.Tx.RowsFor("users")); got != 5 {
		t.Errorf("expected 5 rows inserted, got %d", got)
	}
}

func TestRun_ProgressAfterEveryBatch(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i + 1)}
	}
	r := &source.MockReader{Rows: map[string][]map[string]any{"users": rows}}
	w := &target.MockWriter{}

	src := &schema.Schema{Tables: []schema.Table{{
		Name:       "users",
		Columns:    []schema.Column{{Name: "id", DataType: "integer"}},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	type tick struct {
		table       string
		done, total int64
	}
	var ticks []tick
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{BatchSize: 2},
		Progress: func(table string, done, total int64) {
			ticks = append(ticks, tick{table, done, total})
		},
	})

	if _, err := exec.Run(context.Background(), src, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []tick{
		{"users", 2, 5},
		{"users", 4, 5},
		{"users", 5, 5},
	}
	if len(ticks) != len(want) {
		t.Fatalf("expected %d progress reports, got %d: %+v", len(want), len(ticks), ticks)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("report %d: expected %+v, got %+v", i, want[i], ticks[i])
		}
	}
}

func TestRun_EmptyTableReportsOnce(t *testing.T) {
	r := &source.MockReader{Rows: map[string][]map[string]any{"users": {}}}
	w := &target.MockWriter{}
	src := &schema.Schema{Tables: []schema.Table{{
		Name:       "users",
		Columns:    []schema.Column{{Name: "id", DataType: "integer"}},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	var reports int
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{Verify: true},
		Progress: func(table string, done, total int64) {
			reports++
			if done != 0 || total != 0 {
				t.Errorf("expected (0, 0) for an empty table, got (%d, %d)", done, total)
			}
		},
	})

	res, err := exec.Run(context.Background(), src, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reports != 1 {
		t.Errorf("expected exactly one progress report, got %d", reports)
	}
	if res.State != migration.StateCommitted {
		t.Errorf("expected commit, got %s", res.State)
	}
}

func TestRun_RollbackOnInsertFailure(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{Tx: &target.MockTx{
		InsertErr:        errors.New("disk full"),
		InsertErrOnTable: "addresses",
	}}
	exec := migration.New(r, w, migration.Options{})

	res, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "inserting into addresses") {
		t.Errorf("unexpected error: %v", err)
	}
	if res == nil || res.State != migration.StateRolledBack {
		t.Fatalf("expected rolled_back result, got %+v", res)
	}
	if !w.Tx.RolledBack {
		t.Error("expected rollback")
	}
	if w.Tx.Committed {
		t.Error("must not commit after a failure")
	}
}

func TestRun_VerifyDetectsCountMismatch(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{Tx: &target.MockTx{
		CountOverride: map[string]int64{"users": 2},
	}}
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{Verify: true},
	})

	_, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	var cme *migration.CountMismatchError
	if !errors.As(err, &cme) {
		t.Fatalf("expected CountMismatchError, got %v", err)
	}
	if cme.Table != "users" || cme.Source != 1 || cme.Target != 2 {
		t.Errorf("unexpected mismatch details: %+v", cme)
	}
	if !w.Tx.RolledBack {
		t.Error("expected rollback on mismatch")
	}
}

func TestRun_VerifyPassesOnMatchingCounts(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{Verify: true},
	})

	res, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != migration.StateCommitted {
		t.Errorf("expected commit, got %s", res.State)
	}
}

func TestRun_KeyShapeViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(src, tgt *schema.Schema)
	}{
		{"composite source pk", func(src, _ *schema.Schema) {
			src.Table("users").PrimaryKey.Columns = []string{"id", "tenant_id"}
		}},
		{"missing source pk", func(src, _ *schema.Schema) {
			src.Table("users").PrimaryKey = nil
		}},
		{"text source pk", func(src, _ *schema.Schema) {
			src.Table("users").Column("id").DataType = "text"
		}},
		{"missing target pk", func(_, tgt *schema.Schema) {
			tgt.Table("users").PrimaryKey = nil
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, tgt := sourceSchema(), targetSchema()
			tc.mutate(src, tgt)

			r := sampleReader()
			w := &target.MockWriter{}
			exec := migration.New(r, w, migration.Options{
				Settings: config.MigrationConfig{UUIDTables: []string{"users"}},
			})

			res, err := exec.Run(context.Background(), src, tgt)
			var kse *migration.KeyShapeError
			if !errors.As(err, &kse) {
				t.Fatalf("expected KeyShapeError, got %v", err)
			}
			if kse.Table != "users" {
				t.Errorf("expected table users, got %s", kse.Table)
			}
			if res.State != migration.StateRolledBack {
				t.Errorf("expected rolled_back, got %s", res.State)
			}
			if len(w.Tx.Inserts) != 0 {
				t.Errorf("no rows may move on a key shape violation, got %d inserts", len(w.Tx.Inserts))
			}
		})
	}
}

func TestRun_NonIntegerKeyValueFails(t *testing.T) {
	// Catalog says integer but the row value is not. The run must fail
	// rather than mint from a mangled key.
	r := &source.MockReader{Rows: map[string][]map[string]any{
		"users": {{"id": "abc", "full_name": "Mallory"}},
	}}
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{UUIDTables: []string{"users"}},
	})

	_, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	var kse *migration.KeyShapeError
	if !errors.As(err, &kse) {
		t.Fatalf("expected KeyShapeError, got %v", err)
	}
	if !w.Tx.RolledBack {
		t.Error("expected rollback")
	}
}

func TestRun_ForeignKeyMissPassesThrough(t *testing.T) {
	r := &source.MockReader{
		Rows: map[string][]map[string]any{
			"users": {{"id": int64(1), "full_name": "Alice"}},
			"addresses": {
				{"id": int64(1), "user_id": int64(1), "email": "a@example.com"},
				{"id": int64(2), "user_id": int64(99), "email": "b@example.com"},
				{"id": int64(3), "user_id": nil, "email": "c@example.com"},
			},
		},
	}
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{UUIDTables: []string{"users"}},
	})

	if _, err := exec.Run(context.Background(), sourceSchema(), targetSchema()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	addrs := w.Tx.RowsFor("addresses")
	if len(addrs) != 3 {
		t.Fatalf("expected 3 addresses rows, got %d", len(addrs))
	}
	if _, ok := addrs[0]["user_id"].(string); !ok {
		t.Errorf("recorded key should remap to uuid, got %v", addrs[0]["user_id"])
	}
	if addrs[1]["user_id"] != int64(99) {
		t.Errorf("unseen key must pass through, got %v", addrs[1]["user_id"])
	}
	if addrs[2]["user_id"] != nil {
		t.Errorf("NULL key must pass through, got %v", addrs[2]["user_id"])
	}
}

func TestRun_TableWithoutPKCopiesByScan(t *testing.T) {
	r := &source.MockReader{Rows: map[string][]map[string]any{
		"notes": {
			{"body": "first"},
			{"body": "second"},
		},
	}}
	w := &target.MockWriter{}
	src := &schema.Schema{Tables: []schema.Table{{
		Name:    "notes",
		Columns: []schema.Column{{Name: "body", DataType: "text"}},
	}}}

	exec := migration.New(r, w, migration.Options{})
	if _, err := exec.Run(context.Background(), src, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(r.PageRequests) != 0 {
		t.Errorf("keyless table must not page, got %+v", r.PageRequests)
	}
	if got := len(w.Tx.RowsFor("notes")); got != 2 {
		t.Errorf("expected 2 rows, got %d", got)
	}
}

func TestRun_SplitHookFansOut(t *testing.T) {
	hooks := transform.NewRegistry()
	hooks.OnSplit("users", func(row transform.Row) (map[string][]transform.Row, error) {
		return map[string][]transform.Row{
			"people":   {{"id": row["id"], "name": row["full_name"]}},
			"accounts": {{"person_id": row["id"]}},
		}, nil
	})

	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{
		// Marked for conversion, but the split path must bypass it.
		Settings: config.MigrationConfig{UUIDTables: []string{"users"}},
		Hooks:    hooks,
	})

	res, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	people := w.Tx.RowsFor("people")
	if len(people) != 1 || people[0]["name"] != "Alice" {
		t.Errorf("expected split row in people, got %+v", people)
	}
	accounts := w.Tx.RowsFor("accounts")
	if len(accounts) != 1 || accounts[0]["person_id"] != int64(1) {
		t.Errorf("expected raw key in accounts, got %+v", accounts)
	}
	if len(w.Tx.RowsFor("users")) != 0 {
		t.Error("split table must not insert into its own name by default")
	}

	ur := res.Tables[insertResultIndex(res.Tables, "users")]
	if !ur.Split {
		t.Error("expected Split flag on the table result")
	}
	if ur.Converted {
		t.Error("split path must not convert keys")
	}
	if len(res.Converted) != 0 {
		t.Errorf("no conversions expected, got %v", res.Converted)
	}
}

func insertResultIndex(results []migration.TableResult, table string) int {
	for i, tr := range results {
		if tr.Table == table {
			return i
		}
	}
	return -1
}

func TestRun_SplitHookErrorRollsBack(t *testing.T) {
	hooks := transform.NewRegistry()
	hooks.OnSplit("users", func(transform.Row) (map[string][]transform.Row, error) {
		return nil, errors.New("bad row")
	})

	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{Hooks: hooks})

	_, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	var he *transform.HookError
	if !errors.As(err, &he) {
		t.Fatalf("expected HookError, got %v", err)
	}
	if he.Kind != "split" || he.Table != "users" {
		t.Errorf("unexpected hook error details: %+v", he)
	}
	if !w.Tx.RolledBack {
		t.Error("expected rollback")
	}
}

func TestRun_PostInsertHookPerBatch(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i + 1)}
	}
	r := &source.MockReader{Rows: map[string][]map[string]any{"users": rows}}
	w := &target.MockWriter{}
	src := &schema.Schema{Tables: []schema.Table{{
		Name:       "users",
		Columns:    []schema.Column{{Name: "id", DataType: "integer"}},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	var sizes []int
	hooks := transform.NewRegistry()
	hooks.OnPostInsert("users", func(ctx context.Context, db transform.Execer, batch []transform.Row) error {
		sizes = append(sizes, len(batch))
		return db.Exec(ctx, "INSERT INTO audit (n) VALUES ($1)", len(batch))
	})

	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{BatchSize: 2},
		Hooks:    hooks,
	})
	if _, err := exec.Run(context.Background(), src, src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("expected batch sizes [2 2 1], got %v", sizes)
	}
	if len(w.Tx.Execs) != 3 {
		t.Errorf("expected 3 hook statements on the run transaction, got %d", len(w.Tx.Execs))
	}
}

func TestRun_PostInsertHookSeesTargetShape(t *testing.T) {
	src := &schema.Schema{Tables: []schema.Table{{
		Name: "customers",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "full_name", DataType: "text"},
		},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}
	tgt := &schema.Schema{Tables: []schema.Table{{
		Name: "customers",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer"},
			{Name: "name", DataType: "text"},
		},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	r := &source.MockReader{Rows: map[string][]map[string]any{
		"customers": {{"id": int64(1), "full_name": "Alice"}},
	}}
	w := &target.MockWriter{}

	var seen []transform.Row
	hooks := transform.NewRegistry()
	hooks.OnPostInsert("customers", func(_ context.Context, _ transform.Execer, batch []transform.Row) error {
		seen = append(seen, batch...)
		return nil
	})

	exec := migration.New(r, w, migration.Options{
		ColumnMaps: mapping.TableMaps{"customers": {"name": "full_name"}},
		Hooks:      hooks,
	})
	if _, err := exec.Run(context.Background(), src, tgt); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("expected 1 hook row, got %d", len(seen))
	}
	if seen[0]["name"] != "Alice" {
		t.Errorf("hook should see target column names, got %+v", seen[0])
	}
}

func TestRun_PostInsertHookErrorRollsBack(t *testing.T) {
	hooks := transform.NewRegistry()
	hooks.OnPostInsert("users", func(context.Context, transform.Execer, []transform.Row) error {
		return errors.New("audit write failed")
	})

	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{Hooks: hooks})

	_, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	var he *transform.HookError
	if !errors.As(err, &he) {
		t.Fatalf("expected HookError, got %v", err)
	}
	if he.Kind != "post-insert" || he.Table != "users" {
		t.Errorf("unexpected hook error details: %+v", he)
	}
	if !w.Tx.RolledBack {
		t.Error("expected rollback")
	}
}

func TestRun_CycleFailsBeforeAnyWrite(t *testing.T) {
	cyclic := &schema.Schema{Tables: []schema.Table{
		{
			Name:       "a",
			Columns:    []schema.Column{{Name: "id", DataType: "integer"}, {Name: "b_id", DataType: "integer"}},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
			ForeignKeys: []schema.ForeignKey{
				{Columns: []string{"b_id"}, ReferencedTable: "b", ReferencedColumns: []string{"id"}},
			},
		},
		{
			Name:       "b",
			Columns:    []schema.Column{{Name: "id", DataType: "integer"}, {Name: "a_id", DataType: "integer"}},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
			ForeignKeys: []schema.ForeignKey{
				{Columns: []string{"a_id"}, ReferencedTable: "a", ReferencedColumns: []string{"id"}},
			},
		},
	}}

	r := &source.MockReader{Rows: map[string][]map[string]any{"a": {}, "b": {}}}
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{})

	res, err := exec.Run(context.Background(), cyclic, cyclic)
	var ce *mapping.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if w.Begun {
		t.Error("no transaction may open when the order cannot be resolved")
	}
	if res.State != migration.StateRolledBack {
		t.Errorf("expected rolled_back, got %s", res.State)
	}
}

func TestRun_SingleShot(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{})

	if _, err := exec.Run(context.Background(), sourceSchema(), targetSchema()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := exec.Run(context.Background(), sourceSchema(), targetSchema()); err == nil {
		t.Fatal("second Run must fail")
	}
}

func TestRun_CanceledContextRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := sampleReader()
	w := &target.MockWriter{}
	exec := migration.New(r, w, migration.Options{})

	res, err := exec.Run(ctx, sourceSchema(), targetSchema())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.State != migration.StateRolledBack {
		t.Errorf("expected rolled_back, got %s", res.State)
	}
	if !w.Tx.RolledBack {
		t.Error("expected rollback")
	}
}

func TestRun_BeginFailure(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{BeginErr: errors.New("too many connections")}
	exec := migration.New(r, w, migration.Options{})

	res, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	if err == nil || !strings.Contains(err.Error(), "beginning target transaction") {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != migration.StateRolledBack {
		t.Errorf("expected rolled_back, got %s", res.State)
	}
}

func TestRun_CommitFailure(t *testing.T) {
	r := sampleReader()
	w := &target.MockWriter{Tx: &target.MockTx{CommitErr: errors.New("deadlock detected")}}
	exec := migration.New(r, w, migration.Options{})

	res, err := exec.Run(context.Background(), sourceSchema(), targetSchema())
	if err == nil || !strings.Contains(err.Error(), "committing migration") {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != migration.StateRolledBack {
		t.Errorf("expected rolled_back, got %s", res.State)
	}
}

func TestRun_DeterministicIDsStableAcrossRuns(t *testing.T) {
	runOnce := func() string {
		r := sampleReader()
		w := &target.MockWriter{}
		exec := migration.New(r, w, migration.Options{
			Settings: config.MigrationConfig{
				UUIDTables:       []string{"users"},
				DeterministicIDs: true,
			},
		})
		if _, err := exec.Run(context.Background(), sourceSchema(), targetSchema()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return w.Tx.RowsFor("users")[0]["id"].(string)
	}

	first := runOnce()
	second := runOnce()
	if first != second {
		t.Errorf("deterministic runs minted different ids: %s vs %s", first, second)
	}
}

func TestRun_UniqueIDsAcrossManyRows(t *testing.T) {
	const n = 5000
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i + 1)}
	}
	r := &source.MockReader{Rows: map[string][]map[string]any{"users": rows}}
	w := &target.MockWriter{}
	src := &schema.Schema{Tables: []schema.Table{{
		Name:       "users",
		Columns:    []schema.Column{{Name: "id", DataType: "integer"}},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}
	tgt := &schema.Schema{Tables: []schema.Table{{
		Name:       "users",
		Columns:    []schema.Column{{Name: "id", DataType: "uuid"}},
		PrimaryKey: &schema.PrimaryKey{Columns: []string{"id"}},
	}}}

	exec := migration.New(r, w, migration.Options{
		Settings: config.MigrationConfig{UUIDTables: []string{"users"}, BatchSize: 500},
	})
	if _, err := exec.Run(context.Background(), src, tgt); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := make(map[string]bool, n)
	for _, row := range w.Tx.RowsFor("users") {
		id := row["id"].(string)
		if seen[id] {
			t.Fatalf("duplicate id minted: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d unique ids, got %d", n, len(seen))
	}
}

func TestStateString(t *testing.T) {
	cases := map[migration.State]string{
		migration.StateCreated:    "created",
		migration.StateRunning:    "running",
		migration.StateCommitted:  "committed",
		migration.StateRolledBack: "rolled_back",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
