package transform

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type execRecorder struct {
	calls []string
	err   error
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...any) error {
	e.calls = append(e.calls, fmt.Sprintf("%s %v", sql, args))
	return e.err
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Split("users"); ok {
		t.Error("empty registry should have no split hook")
	}

	r.OnSplit("users", func(row Row) (map[string][]Row, error) {
		return map[string][]Row{"users": {row}}, nil
	})
	r.OnPostInsert("orders", func(_ context.Context, _ Execer, _ []Row) error {
		return nil
	})

	if _, ok := r.Split("users"); !ok {
		t.Error("registered split hook not found")
	}
	if _, ok := r.Split("orders"); ok {
		t.Error("split lookup matched the wrong table")
	}
	if _, ok := r.PostInsert("orders"); !ok {
		t.Error("registered post-insert hook not found")
	}

	tables := r.Tables()
	if len(tables) != 2 || tables[0] != "orders" || tables[1] != "users" {
		t.Errorf("Tables = %v, want sorted [orders users]", tables)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	r.OnSplit("users", func(Row) (map[string][]Row, error) {
		return nil, errors.New("first")
	})
	r.OnSplit("users", func(Row) (map[string][]Row, error) {
		return nil, errors.New("second")
	})

	fn, _ := r.Split("users")
	_, err := fn(Row{})
	if err == nil || err.Error() != "second" {
		t.Errorf("expected the replacement hook to win, got %v", err)
	}
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	if _, ok := r.Split("users"); ok {
		t.Error("nil registry should have no hooks")
	}
	if _, ok := r.PostInsert("users"); ok {
		t.Error("nil registry should have no hooks")
	}
	if tables := r.Tables(); tables != nil {
		t.Errorf("nil registry Tables = %v, want nil", tables)
	}
}

func TestSplitFanOut(t *testing.T) {
	r := NewRegistry()
	r.OnSplit("people", func(row Row) (map[string][]Row, error) {
		return map[string][]Row{
			"names":  {{"name": row["name"]}},
			"emails": {{"email": row["email"]}, {"email": "backup@example.com"}},
		}, nil
	})

	fn, _ := r.Split("people")
	out, err := fn(Row{"name": "ada", "email": "ada@example.com"})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(out["names"]) != 1 || len(out["emails"]) != 2 {
		t.Errorf("fan-out shape wrong: %v", out)
	}
}

func TestPostInsertUsesExecer(t *testing.T) {
	rec := &execRecorder{}
	r := NewRegistry()
	r.OnPostInsert("audit", func(ctx context.Context, db Execer, rows []Row) error {
		return db.Exec(ctx, "INSERT INTO audit_log (n) VALUES ($1)", len(rows))
	})

	fn, _ := r.PostInsert("audit")
	if err := fn(context.Background(), rec, []Row{{}, {}}); err != nil {
		t.Fatalf("post-insert: %v", err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("expected 1 exec call, got %d", len(rec.calls))
	}
}

func TestHookError(t *testing.T) {
	cause := errors.New("boom")
	err := &HookError{Table: "users", Kind: "split", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("HookError should unwrap to its cause")
	}
	msg := err.Error()
	if msg != "split hook for table users: boom" {
		t.Errorf("unexpected message: %s", msg)
	}
}
