package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/discovery"
	"github.com/pgrekey/pgrekey/internal/lock"
	"github.com/pgrekey/pgrekey/internal/mapping"
	"github.com/pgrekey/pgrekey/internal/migration"
	"github.com/pgrekey/pgrekey/internal/report"
	"github.com/pgrekey/pgrekey/internal/schema"
	"github.com/pgrekey/pgrekey/internal/source"
	"github.com/pgrekey/pgrekey/internal/target"
	"github.com/pgrekey/pgrekey/internal/tui"
)

var (
	migratePlain         bool
	migrateVerify        bool
	migrateBatchSize     int
	migrateUUIDTables    []string
	migrateDeterministic bool
	migrateReport        string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the migration",
	Long: `Copy every table present on both sides from the source database into
the target, converting the configured tables to uuid primary keys and
rewriting foreign keys that reference them. The whole run is one
target transaction: any failure rolls everything back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		settings := cfg.Migration
		if cmd.Flags().Changed("verify") {
			settings.Verify = migrateVerify
		}
		if cmd.Flags().Changed("deterministic-ids") {
			settings.DeterministicIDs = migrateDeterministic
		}
		if migrateBatchSize > 0 {
			settings.BatchSize = migrateBatchSize
		}
		if len(migrateUUIDTables) > 0 {
			settings.UUIDTables = migrateUUIDTables
		}
		if migrateReport != "" {
			settings.ReportPath = migrateReport
		}

		logger, err := setupLogging(cfg, !migratePlain)
		if err != nil {
			return err
		}

		if err := lock.Acquire(""); err != nil {
			return err
		}
		defer lock.Release("")

		ctx := cmd.Context()

		srcSchema, err := discoverSide(ctx, &cfg.Source, "source")
		if err != nil {
			return err
		}
		tgtSchema, err := discoverSide(ctx, &cfg.Target, "target")
		if err != nil {
			return err
		}

		order, err := mapping.NewFKGraph(commonTables(srcSchema, tgtSchema)).TableOrder()
		if err != nil {
			return fmt.Errorf("resolving table order: %w", err)
		}

		src := source.NewPostgresReader(cfg.Source.DSN(), "")
		if err := src.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to source: %w", err)
		}
		defer src.Close()

		tgt := target.NewPostgresWriter(cfg.Target.DSN(), "")
		if err := tgt.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to target: %w", err)
		}
		defer tgt.Close()

		maps := mapping.NewStore("").Get(cfg.Pair().Key())

		opts := migration.Options{
			Settings:   settings,
			ColumnMaps: maps,
			Logger:     logger,
		}

		logger.Info("migration prepared",
			"tables", len(order),
			"uuid_tables", settings.UUIDTables,
			"batch_size", settings.BatchSize,
			"verify", settings.Verify)

		var res *migration.Result
		var runErr error

		if migratePlain {
			opts.Progress = func(table string, done, total int64) {
				fmt.Printf("\r%-32s %d/%d", table, done, total)
				if done >= total {
					fmt.Println()
				}
			}
			exec := migration.New(src, tgt, opts)
			res, runErr = exec.Run(ctx, srcSchema, tgtSchema)
		} else {
			res, runErr = runWithTUI(ctx, src, tgt, opts, order, srcSchema, tgtSchema)
		}

		if settings.ReportPath != "" && res != nil {
			rep := report.New(srcSchema, tgtSchema, res, nil)
			if runErr != nil {
				rep.Notes = append(rep.Notes, runErr.Error())
			}
			path := config.ExpandHome(settings.ReportPath)
			if err := rep.Write(path); err != nil {
				logger.Warn("writing report failed", "path", path, "error", err)
			} else {
				fmt.Printf("Report written to %s\n", path)
			}
		}

		if runErr != nil {
			return fmt.Errorf("migration rolled back: %w", runErr)
		}

		var rows int64
		for _, t := range res.Tables {
			rows += t.Inserted
		}
		fmt.Printf("Migration committed: %d tables, %d rows in %s\n",
			len(res.Tables), rows, res.Duration.Round(time.Millisecond))
		if len(res.Skipped) > 0 {
			fmt.Printf("Skipped (not present on target): %v\n", res.Skipped)
		}
		for _, name := range sortedConverted(res.Converted) {
			fmt.Printf("Converted %s: %d keys now uuid\n", name, res.Converted[name])
		}
		return nil
	},
}

// runWithTUI drives the executor from a goroutine while bubbletea owns
// the terminal. Quitting the TUI cancels the run context, which rolls
// the transaction back.
func runWithTUI(ctx context.Context, src source.Reader, tgt target.Writer, opts migration.Options, order []string, srcSchema, tgtSchema *schema.Schema) (*migration.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(tui.NewProgressModel(order, cancel))

	opts.Progress = func(table string, done, total int64) {
		prog.Send(tui.ProgressMsg{Table: table, Done: done, Total: total})
		if done >= total {
			prog.Send(tui.TableDoneMsg{Table: table})
		}
	}
	exec := migration.New(src, tgt, opts)

	var res *migration.Result
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = exec.Run(runCtx, srcSchema, tgtSchema)
		prog.Send(tui.RunDoneMsg{Err: runErr})
	}()

	_, uiErr := prog.Run()
	// A dead display must not leave the run dangling: cancel and wait for
	// the rollback to complete before reporting.
	cancel()
	<-done
	if uiErr != nil {
		return res, fmt.Errorf("progress display: %w", uiErr)
	}
	return res, runErr
}

// discoverSide introspects one endpoint and labels errors with the side.
func discoverSide(ctx context.Context, ep *config.Endpoint, side string) (*schema.Schema, error) {
	d := discovery.New(ep)
	defer d.Close()

	if err := d.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", side, err)
	}
	s, err := d.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering %s schema: %w", side, err)
	}
	return s, nil
}

// commonTables returns the source tables that also exist on the target.
func commonTables(src, tgt *schema.Schema) []schema.Table {
	var tables []schema.Table
	for _, t := range src.Tables {
		if tgt.Table(t.Name) != nil {
			tables = append(tables, t)
		}
	}
	return tables
}

func sortedConverted(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePlain, "plain", false, "line progress instead of the terminal UI")
	migrateCmd.Flags().BoolVar(&migrateVerify, "verify", false, "re-count each table in the target transaction after copying")
	migrateCmd.Flags().IntVar(&migrateBatchSize, "batch-size", 0, "rows per copy batch (default from config)")
	migrateCmd.Flags().StringSliceVar(&migrateUUIDTables, "uuid-tables", nil, "tables whose integer keys become uuid (default from config)")
	migrateCmd.Flags().BoolVar(&migrateDeterministic, "deterministic-ids", false, "derive uuids from the old keys so re-runs mint the same identifiers")
	migrateCmd.Flags().StringVar(&migrateReport, "report", "", "write a JSON run report to this path")
	rootCmd.AddCommand(migrateCmd)
}
