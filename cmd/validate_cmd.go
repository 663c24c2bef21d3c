package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/report"
	"github.com/pgrekey/pgrekey/internal/source"
	"github.com/pgrekey/pgrekey/internal/validation"
)

var (
	validateTables        []string
	validateSkipChecksums bool
	validateBatchSize     int
	validateReport        string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a finished migration",
	Long: `Compare source and target to verify migration correctness: constraint
parity per table, then column-by-column content checksums. Exits
non-zero when any check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err := setupLogging(cfg, false)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		srcSchema, err := discoverSide(ctx, &cfg.Source, "source")
		if err != nil {
			return err
		}
		tgtSchema, err := discoverSide(ctx, &cfg.Target, "target")
		if err != nil {
			return err
		}

		src := source.NewPostgresReader(cfg.Source.DSN(), "")
		if err := src.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to source: %w", err)
		}
		defer src.Close()

		tgt := source.NewPostgresReader(cfg.Target.DSN(), "")
		if err := tgt.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to target: %w", err)
		}
		defer tgt.Close()

		batch := cfg.Migration.BatchSize
		if validateBatchSize > 0 {
			batch = validateBatchSize
		}

		v := &validation.Validator{
			Source:    src,
			Target:    tgt,
			BatchSize: batch,
			Logger:    logger,
			Callback: func(table, check string, passed bool) {
				status := "PASS"
				if !passed {
					status = "FAIL"
				}
				fmt.Printf("  [%s] %s: %s\n", status, table, check)
			},
		}

		fmt.Println("Running validation...")
		result, err := v.Run(ctx, srcSchema, tgtSchema, validation.Options{
			Tables:        validateTables,
			SkipChecksums: validateSkipChecksums,
		})
		if err != nil {
			return fmt.Errorf("validation: %w", err)
		}

		for _, tc := range result.Tables {
			for _, issue := range tc.ConstraintIssues {
				fmt.Printf("  %s: %s\n", tc.Table, issue)
			}
			for _, m := range tc.ChecksumMismatches {
				fmt.Printf("  %s: %s\n", tc.Table, m)
			}
			if tc.ChecksumsSkipped != "" {
				fmt.Printf("  %s: checksums skipped (%s)\n", tc.Table, tc.ChecksumsSkipped)
			}
		}

		fmt.Printf("\nOverall: %s\n", result.Status)

		if validateReport != "" {
			path := config.ExpandHome(validateReport)
			rep, readErr := report.Read(path)
			if readErr != nil {
				// No prior migrate report at that path; start a fresh one.
				rep = report.New(srcSchema, tgtSchema, nil, nil)
			}
			rep.Validation = result
			if err := rep.Write(path); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Printf("Validation attached to %s\n", path)
		}

		if result.Status == "FAIL" {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringSliceVar(&validateTables, "table", nil, "validate only these tables (repeatable)")
	validateCmd.Flags().BoolVar(&validateSkipChecksums, "skip-checksums", false, "constraint checks only, no content checksums")
	validateCmd.Flags().IntVar(&validateBatchSize, "batch-size", 0, "rows per checksum page (default from config)")
	validateCmd.Flags().StringVar(&validateReport, "report", "", "attach results to the run report at this path")
	rootCmd.AddCommand(validateCmd)
}
