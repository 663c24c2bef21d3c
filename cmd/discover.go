package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/discovery"
)

var (
	discoverTarget bool
	discoverOutput string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover a database schema",
	Long:  `Connect to the source database (or the target with --target) and extract tables, columns, primary keys, foreign keys, indexes, and sizes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ep := &cfg.Source
		side := "source"
		if discoverTarget {
			ep = &cfg.Target
			side = "target"
		}

		d := discovery.New(ep)
		defer d.Close()

		ctx := cmd.Context()

		fmt.Printf("Connecting to %s at %s:%d/%s...\n", side, ep.Host, ep.Port, ep.Database)
		if err := d.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to %s: %w", side, err)
		}

		fmt.Println("Discovering schema...")
		s, err := d.Discover(ctx)
		if err != nil {
			return fmt.Errorf("discovering schema: %w", err)
		}

		fmt.Println(s.Summary())

		if discoverOutput == "" {
			data, err := s.ToYAML()
			if err != nil {
				return fmt.Errorf("rendering schema: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		if err := s.WriteYAML(discoverOutput); err != nil {
			return fmt.Errorf("writing schema: %w", err)
		}
		fmt.Printf("\nSchema written to %s\n", discoverOutput)
		return nil
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverTarget, "target", false, "discover the target database instead of the source")
	discoverCmd.Flags().StringVarP(&discoverOutput, "output", "o", "", "write the schema snapshot YAML here instead of printing it")
	rootCmd.AddCommand(discoverCmd)
}
