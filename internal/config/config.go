// Package config provides configuration management for tpm.
//
// Values come from, lowest precedence first: built-in defaults, a YAML
// config file, and TPM_* environment variables. Command-line flags are
// applied on top by the CLI.
package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/randalmurphal/tpm/internal/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g. TPM_DB_PATH.
const EnvPrefix = "TPM"

// Config keys.
const (
	KeyDBPath       = "db_path"
	KeyDialect      = "dialect"
	KeyDSN          = "dsn"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyMaxOpenTasks = "roadmap.max_open_tasks"
)

// Dialects and log settings accepted by Validate.
var (
	Dialects   = []string{"sqlite", "postgres"}
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json"}
)

// Config is the resolved configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	// Dialect selects the storage backend.
	Dialect string `mapstructure:"dialect" yaml:"dialect"`
	// DSN is the Postgres connection string, required for that dialect.
	DSN       string        `mapstructure:"dsn" yaml:"dsn,omitempty"`
	LogLevel  string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string        `mapstructure:"log_format" yaml:"log_format"`
	Roadmap   RoadmapConfig `mapstructure:"roadmap" yaml:"roadmap"`

	// file is the config file that was read, if any.
	file string
}

// RoadmapConfig holds roadmap rendering defaults.
type RoadmapConfig struct {
	MaxOpenTasks int `mapstructure:"max_open_tasks" yaml:"max_open_tasks"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:    DefaultDBPath(),
		Dialect:   "sqlite",
		LogLevel:  "info",
		LogFormat: "text",
		Roadmap:   RoadmapConfig{MaxOpenTasks: 3},
	}
}

// DefaultDBPath is $XDG_DATA_HOME/tpm/tpm.db, falling back to
// ~/.local/share/tpm/tpm.db.
func DefaultDBPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tpm", "tpm.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".tpm", "tpm.db")
	}
	return filepath.Join(home, ".local", "share", "tpm", "tpm.db")
}

// Load resolves configuration. When path is empty, .tpm/config.yaml and
// $HOME/.config/tpm/config.yaml are searched and may be absent; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault(KeyDBPath, def.DBPath)
	v.SetDefault(KeyDialect, def.Dialect)
	v.SetDefault(KeyDSN, def.DSN)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyLogFormat, def.LogFormat)
	v.SetDefault(KeyMaxOpenTasks, def.Roadmap.MaxOpenTasks)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".tpm")
		v.AddConfigPath(filepath.Join("$HOME", ".config", "tpm"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.ConfigInvalid("config file", err.Error()).WithCause(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigInvalid("config file", err.Error()).WithCause(err)
	}
	cfg.file = v.ConfigFileUsed()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Dialect = strings.ToLower(strings.TrimSpace(c.Dialect))
	switch c.Dialect {
	case "sqlite3":
		c.Dialect = "sqlite"
	case "postgresql", "pg":
		c.Dialect = "postgres"
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if strings.HasPrefix(c.DBPath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			c.DBPath = filepath.Join(home, c.DBPath[2:])
		}
	}
}

// Validate checks enumerated settings and required combinations.
func (c *Config) Validate() error {
	if !contains(Dialects, c.Dialect) {
		return errors.ConfigInvalid(KeyDialect, "must be one of "+strings.Join(Dialects, ", ")+", got "+quote(c.Dialect))
	}
	if c.Dialect == "postgres" && c.DSN == "" {
		return errors.ConfigInvalid(KeyDSN, "the postgres dialect needs a DSN")
	}
	if c.Dialect == "sqlite" && c.DBPath == "" {
		return errors.ConfigInvalid(KeyDBPath, "the sqlite dialect needs a database path")
	}
	if !contains(LogLevels, c.LogLevel) {
		return errors.ConfigInvalid(KeyLogLevel, "must be one of "+strings.Join(LogLevels, ", ")+", got "+quote(c.LogLevel))
	}
	if !contains(LogFormats, c.LogFormat) {
		return errors.ConfigInvalid(KeyLogFormat, "must be one of "+strings.Join(LogFormats, ", ")+", got "+quote(c.LogFormat))
	}
	if c.Roadmap.MaxOpenTasks < 0 {
		return errors.ConfigInvalid(KeyMaxOpenTasks, "must not be negative")
	}
	return nil
}

// File returns the config file that was read, or "" if none was found.
func (c *Config) File() string {
	return c.file
}

// DataSource is what the storage driver opens: the DSN for postgres, the
// database path for sqlite.
func (c *Config) DataSource() string {
	if c.Dialect == "postgres" {
		return c.DSN
	}
	return c.DBPath
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func quote(s string) string {
	return `"` + s + `"`
}
