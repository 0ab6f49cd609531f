package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the configuration file looked up from the working directory
const FileName = "changeplane.toml"

// EnvironmentConfig describes a single named environment from changeplane.toml.
type EnvironmentConfig struct {
	DatabaseURL string `toml:"database_url"`
	// Dialect overrides the dialect detected from the URL
	Dialect string `toml:"dialect"`
	// Driver picks the SQL driver for PostgreSQL URLs: "postgres" (lib/pq) or "pgx"
	Driver   string   `toml:"driver"`
	Contexts []string `toml:"contexts"`
	Labels   string   `toml:"labels"`
}

// LockConfig selects and tunes the lock backend. Durations use Go syntax ("5m", "250ms").
type LockConfig struct {
	Backend         string `toml:"backend"`
	RedisURL        string `toml:"redis_url"`
	RedisKey        string `toml:"redis_key"`
	WaitTimeout     string `toml:"wait_timeout"`
	PollInterval    string `toml:"poll_interval"`
	MaxPollInterval string `toml:"max_poll_interval"`
}

// TablesConfig names the tables the engine keeps its own state in
type TablesConfig struct {
	Ledger string `toml:"ledger"`
	Lock   string `toml:"lock"`
}

// Config is the parsed changeplane.toml
type Config struct {
	DefaultEnvironment string                       `toml:"default_environment"`
	Changelog          string                       `toml:"changelog"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	Lock               LockConfig                   `toml:"lock"`
	Tables             TablesConfig                 `toml:"tables"`
	ConfigFilePath     string                       `toml:"-"`

	configDir string
}

// ConfigDir returns the directory holding the config file, or "" when no
// file was found
func (c *Config) ConfigDir() string {
	if c == nil {
		return ""
	}
	if c.configDir != "" {
		return c.configDir
	}
	if c.ConfigFilePath != "" {
		return filepath.Dir(c.ConfigFilePath)
	}
	return ""
}

// LoadConfig finds changeplane.toml from the working directory upwards
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom walks up from startDir until it finds changeplane.toml or
// reaches a project root. No file yields an empty config.
func LoadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	for {
		// Check if changeplane.toml exists in current directory
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return ReadFile(configPath)
		}

		// Check if we've reached a project boundary
		if isProjectRoot(dir) {
			break
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return &Config{}, nil
}

// ReadFile parses the config file at path
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	config.ConfigFilePath = path
	config.configDir = filepath.Dir(path)
	return &config, nil
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", "go.mod"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
