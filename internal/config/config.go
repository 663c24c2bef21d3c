package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.pgrekey/pgrekey.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Source    Endpoint        `yaml:"source"`
	Target    Endpoint        `yaml:"target"`
	Migration MigrationConfig `yaml:"migration,omitempty"`
	Logging   LogConfig       `yaml:"logging,omitempty"`
}

// Endpoint defines one PostgreSQL connection.
type Endpoint struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode,omitempty"` // disable, require, verify-full
}

// MigrationConfig holds the engine settings for a run.
type MigrationConfig struct {
	UUIDTables       []string `yaml:"uuid_tables,omitempty"`
	BatchSize        int      `yaml:"batch_size,omitempty"` // default 1000
	Verify           bool     `yaml:"verify,omitempty"`
	DeterministicIDs bool     `yaml:"deterministic_ids,omitempty"`
	ReportPath       string   `yaml:"report_path,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.pgrekey/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Pair couples the source and target endpoints of one migration.
type Pair struct {
	Source Endpoint
	Target Endpoint
}

// Validate checks that the endpoint has the fields a connection needs.
func (e *Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("host must not be empty")
	}
	if strings.TrimSpace(e.Database) == "" {
		return fmt.Errorf("database must not be empty")
	}
	return nil
}

// DSN renders the endpoint as a keyword/value connection string.
func (e *Endpoint) DSN() string {
	port := e.Port
	if port == 0 {
		port = 5432
	}
	sslMode := e.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		e.Host, port, e.Database, e.Username, e.Password, sslMode)
}

// Key identifies the pair for persisted column maps.
func (p Pair) Key() string {
	return p.Source.Database + "->" + p.Target.Database
}

// Pair returns the configured source/target pair.
func (c *Config) Pair() Pair {
	return Pair{Source: c.Source, Target: c.Target}
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Source.Port == 0 {
		c.Source.Port = 5432
	}
	if c.Target.Port == 0 {
		c.Target.Port = 5432
	}
	if c.Migration.BatchSize == 0 {
		c.Migration.BatchSize = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.pgrekey/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Source.Password, err = ResolveValue(c.Source.Password)
	if err != nil {
		return fmt.Errorf("source password: %w", err)
	}
	c.Target.Password, err = ResolveValue(c.Target.Password)
	if err != nil {
		return fmt.Errorf("target password: %w", err)
	}
	return nil
}

// ResolveValue resolves ${ENV:NAME} references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	ref := matches[2]
	v := os.Getenv(ref)
	if v == "" {
		return "", fmt.Errorf("environment variable %s not set", ref)
	}
	return v, nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
