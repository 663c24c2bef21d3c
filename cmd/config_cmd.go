package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		printEndpoint := func(name string, ep config.Endpoint) {
			fmt.Printf("  %s:\n", name)
			fmt.Printf("    Host:      %s\n", ep.Host)
			fmt.Printf("    Port:      %d\n", ep.Port)
			fmt.Printf("    Database:  %s\n", ep.Database)
			fmt.Printf("    Username:  %s\n", ep.Username)
			fmt.Printf("    Password:  %s\n", maskSecret(ep.Password))
			fmt.Printf("    SSL mode:  %s\n", ep.SSLMode)
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		printEndpoint("Source", cfg.Source)
		fmt.Println()
		printEndpoint("Target", cfg.Target)
		fmt.Println()
		fmt.Printf("  Migration:\n")
		fmt.Printf("    UUID tables:        %s\n", strings.Join(cfg.Migration.UUIDTables, ", "))
		fmt.Printf("    Batch size:         %d\n", cfg.Migration.BatchSize)
		fmt.Printf("    Verify counts:      %t\n", cfg.Migration.Verify)
		fmt.Printf("    Deterministic ids:  %t\n", cfg.Migration.DeterministicIDs)
		if cfg.Migration.ReportPath != "" {
			fmt.Printf("    Report path:        %s\n", cfg.Migration.ReportPath)
		}

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		var problems []string
		if err := cfg.Source.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("source: %v", err))
		}
		if err := cfg.Target.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("target: %v", err))
		}
		if cfg.Source.Host == cfg.Target.Host && cfg.Source.Port == cfg.Target.Port &&
			cfg.Source.Database == cfg.Target.Database {
			problems = append(problems, "source and target point at the same database")
		}

		if len(problems) > 0 {
			fmt.Println("Validation errors:")
			for _, p := range problems {
				fmt.Printf("  - %s\n", p)
			}
			return fmt.Errorf("%d validation error(s)", len(problems))
		}

		fmt.Println("Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
