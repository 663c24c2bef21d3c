package report

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pgrekey/pgrekey/internal/migration"
	"github.com/pgrekey/pgrekey/internal/schema"
	"github.com/pgrekey/pgrekey/internal/validation"
)

func sampleInputs() (*schema.Schema, *schema.Schema, *migration.Result) {
	src := &schema.Schema{
		Host:     "src.example.com",
		Database: "appdb",
		Tables:   []schema.Table{{Name: "users"}, {Name: "addresses"}, {Name: "legacy_audit"}},
	}
	tgt := &schema.Schema{
		Host:     "tgt.example.com",
		Database: "appdb_v2",
		Tables:   []schema.Table{{Name: "users"}, {Name: "addresses"}},
	}
	res := &migration.Result{
		State: migration.StateCommitted,
		Tables: []migration.TableResult{
			{Table: "users", Rows: 100, Inserted: 100, Converted: true},
			{Table: "addresses", Rows: 250, Inserted: 250},
		},
		Skipped:   []string{"legacy_audit"},
		Converted: map[string]int{"users": 100},
		Duration:  3 * time.Second,
	}
	return src, tgt, res
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run", "report.json")

	src, tgt, res := sampleInputs()
	r := New(src, tgt, res, &validation.Result{Status: "PASS"})
	r.Notes = append(r.Notes, "uuid keys minted deterministically")

	if err := r.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if loaded.Version != "1" {
		t.Errorf("version = %s, want 1", loaded.Version)
	}
	if loaded.Source.Host != "src.example.com" || loaded.Source.Tables != 3 {
		t.Errorf("source summary wrong: %+v", loaded.Source)
	}
	if loaded.Target.Database != "appdb_v2" || loaded.Target.Tables != 2 {
		t.Errorf("target summary wrong: %+v", loaded.Target)
	}
	if loaded.Migration.State != "committed" {
		t.Errorf("state = %s, want committed", loaded.Migration.State)
	}
	if loaded.Migration.RowsCopied != 350 {
		t.Errorf("rows copied = %d, want 350", loaded.Migration.RowsCopied)
	}
	if loaded.Migration.TablesConverted["users"] != 100 {
		t.Errorf("converted count wrong: %+v", loaded.Migration.TablesConverted)
	}
	if len(loaded.Migration.Skipped) != 1 || loaded.Migration.Skipped[0] != "legacy_audit" {
		t.Errorf("skipped wrong: %v", loaded.Migration.Skipped)
	}
	if loaded.Migration.Duration != "3s" {
		t.Errorf("duration = %s, want 3s", loaded.Migration.Duration)
	}
	if loaded.Validation == nil || loaded.Validation.Status != "PASS" {
		t.Errorf("validation missing or wrong: %+v", loaded.Validation)
	}
	if len(loaded.Notes) != 1 {
		t.Errorf("notes = %v", loaded.Notes)
	}
}

func TestWriteIndentsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	src, tgt, res := sampleInputs()
	if err := New(src, tgt, res, nil).Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if loaded.Validation != nil {
		t.Error("validation should be omitted when nil")
	}
}

func TestFormatText(t *testing.T) {
	src, tgt, res := sampleInputs()
	r := New(src, tgt, res, &validation.Result{
		Status: "PARTIAL",
		Tables: []validation.TableCheck{
			{Table: "users", Status: "PASS"},
			{Table: "addresses", Status: "FAIL"},
		},
	})

	text := r.FormatText()
	for _, want := range []string{
		"pgrekey Migration Report",
		"src.example.com",
		"State:    committed",
		"Rows:     350",
		"users: 100 keys",
		"Skipped:  legacy_audit",
		"Validation: PARTIAL",
		"addresses: FAIL",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestFormatTextRolledBack(t *testing.T) {
	src, tgt, _ := sampleInputs()
	res := &migration.Result{State: migration.StateRolledBack, Duration: time.Second}

	text := New(src, tgt, res, nil).FormatText()
	if !strings.Contains(text, "State:    rolled_back") {
		t.Errorf("text missing rolled back state:\n%s", text)
	}
	if strings.Contains(text, "Validation:") {
		t.Error("no validation section expected")
	}
}

func TestWriteText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")

	src, tgt, res := sampleInputs()
	if err := New(src, tgt, res, nil).WriteText(path); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
}
