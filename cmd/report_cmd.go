package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [path]",
	Short: "Show a saved run report",
	Long: `Print the JSON run report written by migrate as readable text. With no
argument the configured report_path is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			path = cfg.Migration.ReportPath
		}
		if path == "" {
			return fmt.Errorf("no report path: pass one or set migration.report_path")
		}

		r, err := report.Read(config.ExpandHome(path))
		if err != nil {
			return err
		}
		fmt.Print(r.FormatText())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
