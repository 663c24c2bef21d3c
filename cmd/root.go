package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgrekey/pgrekey/internal/config"
	"github.com/pgrekey/pgrekey/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	logDir   string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pgrekey",
	Short: "PostgreSQL to PostgreSQL migration with uuid key conversion",
	Long: `pgrekey copies one PostgreSQL database into another, converting serial
integer primary keys to uuid and rewriting every foreign key that
references them. All writes go through a single target transaction:
the run commits whole or not at all.`,
}

// Execute runs the root command under a signal-aware context, so an
// interrupt cancels the active run and triggers rollback.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.pgrekey/pgrekey.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "log directory (default from config)")
}

// setupLogging builds the run logger, letting the persistent flags
// override the config file. fileOnly keeps stdout free for the TUI.
func setupLogging(cfg *config.Config, fileOnly bool) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	dir := cfg.Logging.Directory
	if logDir != "" {
		dir = logDir
	}

	_ = logging.RemoveOld(dir, cfg.Logging.RetentionDays)

	if fileOnly {
		return logging.SetupFile(level, dir)
	}
	return logging.Setup(level, dir)
}
