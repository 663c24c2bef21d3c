package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
)

var initForce bool

const starterConfig = `version: 1

source:
  host: localhost
  port: 5432
  database: appdb
  username: app
  # Passwords may reference environment variables: ${ENV:PGREKEY_SOURCE_PASSWORD}
  password: ""
  ssl_mode: disable

target:
  host: localhost
  port: 5432
  database: appdb_v2
  username: app
  password: ""
  ssl_mode: disable

migration:
  # Tables whose serial integer primary keys become uuid on the target.
  uuid_tables: []
  batch_size: 1000
  # Re-count each table inside the target transaction after copying.
  verify: false
  # Mint uuidv5 identifiers derived from the old keys instead of random
  # uuidv4, so re-runs produce the same identifiers.
  deterministic_ids: false
  # Write a JSON run report here after each migration. Empty disables it.
  report_path: ""

logging:
  level: info
  directory: ~/.pgrekey/logs/
  retention_days: 30
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long:  `Write a commented starter configuration to ~/.pgrekey/pgrekey.yaml (or the --config path) for editing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists; use --force to overwrite", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Config written to %s\n", path)
		fmt.Println()
		fmt.Println("Edit the connection details, then:")
		fmt.Println("  pgrekey discover    inspect the source schema")
		fmt.Println("  pgrekey migrate     run the migration")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
