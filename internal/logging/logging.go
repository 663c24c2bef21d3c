package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgrekey/pgrekey/internal/config"
)

// Setup initializes the logger with file and stdout output.
func Setup(level, directory string) (*slog.Logger, error) {
	file, err := openLogFile(directory)
	if err != nil {
		return nil, err
	}

	writer := io.MultiWriter(os.Stdout, file)

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return slog.New(handler), nil
}

// SetupFile initializes a logger that writes only to the dated log
// file. Used while a terminal UI owns stdout.
func SetupFile(level, directory string) (*slog.Logger, error) {
	file, err := openLogFile(directory)
	if err != nil {
		return nil, err
	}

	handler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return slog.New(handler), nil
}

func openLogFile(directory string) (*os.File, error) {
	if directory == "" {
		directory = config.ExpandHome("~/.pgrekey/logs/")
	} else {
		directory = config.ExpandHome(directory)
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	filename := fmt.Sprintf("pgrekey-%s.log", time.Now().Format("2006-01-02"))
	logPath := filepath.Join(directory, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return file, nil
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RemoveOld deletes dated log files older than retentionDays.
func RemoveOld(directory string, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	if directory == "" {
		directory = "~/.pgrekey/logs/"
	}
	directory = config.ExpandHome(directory)

	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading log directory: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "pgrekey-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, "pgrekey-"), ".log")
		day, err := time.Parse("2006-01-02", stamp)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := os.Remove(filepath.Join(directory, name)); err != nil {
				return fmt.Errorf("removing old log %s: %w", name, err)
			}
		}
	}
	return nil
}
