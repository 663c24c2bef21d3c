// Package report renders the outcome of a migration run as a JSON
// document and as human-readable text.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pgrekey/pgrekey/internal/migration"
	"github.com/pgrekey/pgrekey/internal/schema"
	"github.com/pgrekey/pgrekey/internal/validation"
)

// RunReport is the final report of one migration run.
type RunReport struct {
	Version     string             `json:"version"`
	GeneratedAt time.Time          `json:"generated_at"`
	Source      SideSummary        `json:"source"`
	Target      SideSummary        `json:"target"`
	Migration   MigrationSummary   `json:"migration"`
	Validation  *validation.Result `json:"validation,omitempty"`
	Notes       []string           `json:"notes,omitempty"`
}

// SideSummary describes one side of the migration.
type SideSummary struct {
	Host     string `json:"host"`
	Database string `json:"database"`
	Tables   int    `json:"tables"`
}

// MigrationSummary describes the migration execution.
type MigrationSummary struct {
	State           string         `json:"state"`
	TablesMigrated  int            `json:"tables_migrated"`
	RowsCopied      int64          `json:"rows_copied"`
	TablesConverted map[string]int `json:"tables_converted,omitempty"`
	Skipped         []string       `json:"skipped,omitempty"`
	Duration        string         `json:"duration"`
}

// New builds a RunReport from the run's inputs and outcome. The
// validation result may be nil when verification was not requested.
func New(src, tgt *schema.Schema, res *migration.Result, vres *validation.Result) *RunReport {
	r := &RunReport{
		Version:     "1",
		GeneratedAt: time.Now(),
		Validation:  vres,
	}
	if src != nil {
		r.Source = SideSummary{Host: src.Host, Database: src.Database, Tables: len(src.Tables)}
	}
	if tgt != nil {
		r.Target = SideSummary{Host: tgt.Host, Database: tgt.Database, Tables: len(tgt.Tables)}
	}
	if res != nil {
		var rows int64
		for _, t := range res.Tables {
			rows += t.Inserted
		}
		r.Migration = MigrationSummary{
			State:           res.State.String(),
			TablesMigrated:  len(res.Tables),
			RowsCopied:      rows,
			TablesConverted: res.Converted,
			Skipped:         res.Skipped,
			Duration:        res.Duration.String(),
		}
	}
	return r
}

// Write writes the report to path as indented JSON, creating parent
// directories as needed.
func (r *RunReport) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a report from a JSON file.
func Read(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// FormatText renders the report as human-readable text.
func (r *RunReport) FormatText() string {
	var b strings.Builder

	b.WriteString("=== pgrekey Migration Report ===\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	b.WriteString("Source:\n")
	b.WriteString(fmt.Sprintf("  Host:     %s\n", r.Source.Host))
	b.WriteString(fmt.Sprintf("  Database: %s\n", r.Source.Database))
	b.WriteString(fmt.Sprintf("  Tables:   %d\n\n", r.Source.Tables))

	b.WriteString("Target:\n")
	b.WriteString(fmt.Sprintf("  Host:     %s\n", r.Target.Host))
	b.WriteString(fmt.Sprintf("  Database: %s\n", r.Target.Database))
	b.WriteString(fmt.Sprintf("  Tables:   %d\n\n", r.Target.Tables))

	b.WriteString("Migration:\n")
	b.WriteString(fmt.Sprintf("  State:    %s\n", r.Migration.State))
	b.WriteString(fmt.Sprintf("  Tables:   %d\n", r.Migration.TablesMigrated))
	b.WriteString(fmt.Sprintf("  Rows:     %d\n", r.Migration.RowsCopied))
	b.WriteString(fmt.Sprintf("  Duration: %s\n", r.Migration.Duration))
	if len(r.Migration.TablesConverted) > 0 {
		b.WriteString("  Converted to uuid keys:\n")
		for _, name := range sortedTableNames(r.Migration.TablesConverted) {
			b.WriteString(fmt.Sprintf("    %s: %d keys\n", name, r.Migration.TablesConverted[name]))
		}
	}
	if len(r.Migration.Skipped) > 0 {
		b.WriteString(fmt.Sprintf("  Skipped:  %s\n", strings.Join(r.Migration.Skipped, ", ")))
	}
	b.WriteString("\n")

	if r.Validation != nil {
		b.WriteString(fmt.Sprintf("Validation: %s\n", r.Validation.Status))
		for _, tc := range r.Validation.Tables {
			b.WriteString(fmt.Sprintf("  %s: %s\n", tc.Table, tc.Status))
		}
		b.WriteString("\n")
	}

	if len(r.Notes) > 0 {
		b.WriteString("Notes:\n")
		for i, n := range r.Notes {
			b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, n))
		}
	}

	return b.String()
}

// WriteText writes the report as human-readable text.
func (r *RunReport) WriteText(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(r.FormatText()), 0o644)
}

func sortedTableNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
