package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/mapping"
)

var mappingsSuggestSave bool

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Inspect and edit column maps for the configured pair",
	Long: `Column maps tell the migration which source column feeds a renamed
target column. They are stored per database pair; migrate and validate
pick them up automatically.`,
}

var mappingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored column maps",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		key := cfg.Pair().Key()
		maps := mapping.NewStore("").Get(key)
		if len(maps) == 0 {
			fmt.Printf("No column maps stored for %s\n", key)
			return nil
		}

		fmt.Printf("Column maps for %s:\n", key)
		printTableMaps(maps)
		return nil
	},
}

var mappingsSetCmd = &cobra.Command{
	Use:   "set <table> <target>=<source> ...",
	Short: "Record column renames for a table",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		table := args[0]
		store := mapping.NewStore("")
		key := cfg.Pair().Key()
		maps := store.Get(key)

		for _, pair := range args[1:] {
			tgt, src, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("bad mapping %q: want <target>=<source>", pair)
			}
			maps.Set(table, tgt, src)
		}

		if err := store.Set(key, maps); err != nil {
			return fmt.Errorf("saving column maps: %w", err)
		}
		fmt.Printf("Saved %d column map(s) for %s\n", len(args)-1, table)
		return nil
	},
}

var mappingsSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Propose column maps by comparing live schemas",
	Long: `Introspects both databases and pairs renamed columns by normalized
name, falling back to an unambiguous type match. Prints the proposals;
--save merges them into the store without overriding entries set by
hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
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

		proposed := mapping.Suggest(srcSchema, tgtSchema)
		if len(proposed) == 0 {
			fmt.Println("No renames detected; column names already line up.")
			return nil
		}

		fmt.Println("Proposed column maps:")
		printTableMaps(proposed)

		if !mappingsSuggestSave {
			fmt.Println("\nRun again with --save to store them, or adjust with 'pgrekey mappings set'.")
			return nil
		}

		store := mapping.NewStore("")
		key := cfg.Pair().Key()
		maps := store.Get(key)
		added := 0
		for table, cols := range proposed {
			for tgt, src := range cols {
				if _, exists := maps[table][tgt]; exists {
					continue
				}
				maps.Set(table, tgt, src)
				added++
			}
		}
		if err := store.Set(key, maps); err != nil {
			return fmt.Errorf("saving column maps: %w", err)
		}
		fmt.Printf("\nSaved %d new column map(s) for %s\n", added, key)
		return nil
	},
}

func printTableMaps(maps mapping.TableMaps) {
	for _, table := range maps.Tables() {
		fmt.Printf("  %s:\n", table)
		cols := maps[table]
		targets := make([]string, 0, len(cols))
		for tgt := range cols {
			targets = append(targets, tgt)
		}
		sort.Strings(targets)
		for _, tgt := range targets {
			fmt.Printf("    %s <- %s\n", tgt, cols[tgt])
		}
	}
}

func init() {
	mappingsSuggestCmd.Flags().BoolVar(&mappingsSuggestSave, "save", false, "merge the proposals into the stored maps")
	mappingsCmd.AddCommand(mappingsShowCmd)
	mappingsCmd.AddCommand(mappingsSetCmd)
	mappingsCmd.AddCommand(mappingsSuggestCmd)
	rootCmd.AddCommand(mappingsCmd)
}
