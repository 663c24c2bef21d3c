package mapping

import (
	"testing"

	"github.com/pgrekey/pgrekey/internal/schema"
)

func suggestSchemas() (*schema.Schema, *schema.Schema) {
	src := &schema.Schema{
		Database: "legacy",
		Tables: []schema.Table{
			{
				Name: "customers",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer"},
					{Name: "full_name", DataType: "text"},
					{Name: "email", DataType: "text"},
				},
			},
		},
	}
	tgt := &schema.Schema{
		Database: "modern",
		Tables: []schema.Table{
			{
				Name: "customers",
				Columns: []schema.Column{
					{Name: "id", DataType: "uuid"},
					{Name: "fullname", DataType: "text"},
					{Name: "email", DataType: "text"},
				},
			},
		},
	}
	return src, tgt
}

func TestSuggest_NormalizedNameMatch(t *testing.T) {
	src, tgt := suggestSchemas()
	m := Suggest(src, tgt)
	if got := m.SourceColumn("customers", "fullname"); got != "full_name" {
		t.Errorf("fullname mapped to %q, want full_name", got)
	}
	// Same-named columns need no mapping.
	if cols := m["customers"]; len(cols) != 1 {
		t.Errorf("expected exactly 1 suggested mapping, got %v", cols)
	}
}

func TestSuggest_UniqueTypeFallback(t *testing.T) {
	src := &schema.Schema{
		Tables: []schema.Table{
			{
				Name: "orders",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer"},
					{Name: "ordered_on", DataType: "timestamp"},
				},
			},
		},
	}
	tgt := &schema.Schema{
		Tables: []schema.Table{
			{
				Name: "orders",
				Columns: []schema.Column{
					{Name: "id", DataType: "integer"},
					{Name: "placed_at", DataType: "timestamp"},
				},
			},
		},
	}
	m := Suggest(src, tgt)
	if got := m.SourceColumn("orders", "placed_at"); got != "ordered_on" {
		t.Errorf("placed_at mapped to %q, want ordered_on", got)
	}
}

func TestSuggest_AmbiguousLeftAlone(t *testing.T) {
	src := &schema.Schema{
		Tables: []schema.Table{
			{
				Name: "notes",
				Columns: []schema.Column{
					{Name: "body_a", DataType: "text"},
					{Name: "body_b", DataType: "text"},
				},
			},
		},
	}
	tgt := &schema.Schema{
		Tables: []schema.Table{
			{
				Name: "notes",
				Columns: []schema.Column{
					{Name: "content", DataType: "text"},
				},
			},
		},
	}
	m := Suggest(src, tgt)
	if len(m) != 0 {
		t.Errorf("two equally plausible sources should suggest nothing, got %v", m)
	}
}

func TestSuggest_TableOnlyInTarget(t *testing.T) {
	src := &schema.Schema{Tables: []schema.Table{}}
	tgt := &schema.Schema{
		Tables: []schema.Table{
			{Name: "brand_new", Columns: []schema.Column{{Name: "x", DataType: "text"}}},
		},
	}
	if m := Suggest(src, tgt); len(m) != 0 {
		t.Errorf("target-only table should suggest nothing, got %v", m)
	}
}

func TestSuggest_ClaimedOnce(t *testing.T) {
	src := &schema.Schema{
		Tables: []schema.Table{
			{
				Name: "events",
				Columns: []schema.Column{
					{Name: "happened_at", DataType: "timestamp"},
				},
			},
		},
	}
	tgt := &schema.Schema{
		Tables: []schema.Table{
			{
				Name: "events",
				Columns: []schema.Column{
					{Name: "happenedat", DataType: "timestamp"},
					{Name: "recorded_at", DataType: "timestamp"},
				},
			},
		},
	}
	m := Suggest(src, tgt)
	if got := m.SourceColumn("events", "happenedat"); got != "happened_at" {
		t.Errorf("happenedat mapped to %q, want happened_at", got)
	}
	// The single source column is spoken for; recorded_at stays unmapped.
	if _, ok := m["events"]["recorded_at"]; ok {
		t.Error("recorded_at should not claim an already-used source column")
	}
}
