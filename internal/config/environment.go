package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lockplane/changeplane/internal/ledger"
	"github.com/lockplane/changeplane/internal/lock"
)

const (
	defaultEnvironmentName = "local"
	defaultChangelog       = "db/changelog.yaml"
)

// Lock backends
const (
	LockBackendTable = "table"
	LockBackendRedis = "redis"
)

// ResolvedEnvironment represents a fully-resolved environment with concrete values.
type ResolvedEnvironment struct {
	Name        string
	DatabaseURL string
	Dialect     string
	Driver      string
	// Changelog is the changelog path relative to BaseDir. Changeset
	// identities carry this path, so it must not depend on where the
	// project is checked out.
	Changelog string
	BaseDir   string
	Contexts  []string
	Labels    string

	LockBackend     string
	RedisURL        string
	RedisKey        string
	LockTimeout     time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration

	LedgerTable string
	LockTable   string

	DotenvPath string
	FromConfig bool
	FromDotenv bool
}

// Polling returns the lock polling settings
func (r *ResolvedEnvironment) Polling() lock.Polling {
	return lock.Polling{Interval: r.PollInterval, MaxInterval: r.MaxPollInterval}
}

// ResolveEnvironment resolves a named environment into concrete settings.
// Values come from, in increasing precedence: defaults, changeplane.toml,
// the .env.<name> file next to it, then the process environment.
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}
	if config == nil {
		config = &Config{}
	}

	envConfig, envExists := config.Environments[envName]
	resolved := &ResolvedEnvironment{
		Name:        envName,
		DatabaseURL: envConfig.DatabaseURL,
		Dialect:     envConfig.Dialect,
		Driver:      envConfig.Driver,
		Changelog:   config.Changelog,
		Contexts:    envConfig.Contexts,
		Labels:      envConfig.Labels,
		LockBackend: config.Lock.Backend,
		RedisURL:    config.Lock.RedisURL,
		RedisKey:    config.Lock.RedisKey,
		LedgerTable: config.Tables.Ledger,
		LockTable:   config.Tables.Lock,
		FromConfig:  envExists,
	}

	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"wait_timeout", config.Lock.WaitTimeout, &resolved.LockTimeout},
		{"poll_interval", config.Lock.PollInterval, &resolved.PollInterval},
		{"max_poll_interval", config.Lock.MaxPollInterval, &resolved.MaxPollInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("lock.%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	baseDir := config.ConfigDir()
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	resolved.BaseDir = baseDir
	resolved.DotenvPath = filepath.Join(baseDir, ".env."+envName)

	values := map[string]string{}
	if info, err := os.Stat(resolved.DotenvPath); err == nil && !info.IsDir() {
		values, err = godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to access %s: %w", resolved.DotenvPath, err)
	}
	for _, key := range envKeys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			values[key] = value
		}
	}
	if err := resolved.overlay(values); err != nil {
		return nil, err
	}

	if len(config.Environments) > 0 && !envExists && !resolved.FromDotenv {
		return nil, fmt.Errorf("environment %q not defined in %s and %s not found", envName, FileName, resolved.DotenvPath)
	}

	resolved.applyDefaults()
	if resolved.LockBackend != LockBackendTable && resolved.LockBackend != LockBackendRedis {
		return nil, fmt.Errorf("unknown lock backend %q (expected %q or %q)", resolved.LockBackend, LockBackendTable, LockBackendRedis)
	}
	if resolved.LockBackend == LockBackendRedis && resolved.RedisURL == "" {
		return nil, fmt.Errorf("lock backend %q needs a redis_url or REDIS_URL", LockBackendRedis)
	}
	return resolved, nil
}

// envKeys are read from the dotenv file and the process environment
var envKeys = []string{
	"DATABASE_URL",
	"POSTGRES_URL",
	"SQLITE_DB_PATH",
	"LIBSQL_URL",
	"LIBSQL_AUTH_TOKEN",
	"REDIS_URL",
	"CHANGEPLANE_CHANGELOG",
	"CHANGEPLANE_LOCK_TIMEOUT",
}

func (r *ResolvedEnvironment) overlay(values map[string]string) error {
	// DATABASE_URL wins over the database-specific variables
	switch {
	case values["DATABASE_URL"] != "":
		r.DatabaseURL = values["DATABASE_URL"]
	case values["POSTGRES_URL"] != "":
		r.DatabaseURL = values["POSTGRES_URL"]
	case values["SQLITE_DB_PATH"] != "":
		r.DatabaseURL = values["SQLITE_DB_PATH"]
	case values["LIBSQL_URL"] != "":
		r.DatabaseURL = values["LIBSQL_URL"]
		if token := values["LIBSQL_AUTH_TOKEN"]; token != "" {
			r.DatabaseURL = fmt.Sprintf("%s?authToken=%s", r.DatabaseURL, token)
		}
	}
	if value := values["REDIS_URL"]; value != "" {
		r.RedisURL = value
		if r.LockBackend == "" {
			r.LockBackend = LockBackendRedis
		}
	}
	if value := values["CHANGEPLANE_CHANGELOG"]; value != "" {
		r.Changelog = value
	}
	if value := values["CHANGEPLANE_LOCK_TIMEOUT"]; value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("CHANGEPLANE_LOCK_TIMEOUT: %w", err)
		}
		r.LockTimeout = d
	}
	return nil
}

func (r *ResolvedEnvironment) applyDefaults() {
	if r.Changelog == "" {
		r.Changelog = defaultChangelog
	}
	if r.LockBackend == "" {
		r.LockBackend = LockBackendTable
	}
	if r.LockTimeout == 0 {
		r.LockTimeout = lock.DefaultWaitTimeout
	}
	if r.PollInterval == 0 {
		r.PollInterval = lock.DefaultPollInterval
	}
	if r.MaxPollInterval == 0 {
		r.MaxPollInterval = lock.DefaultMaxPollInterval
	}
	if r.LedgerTable == "" {
		r.LedgerTable = ledger.DefaultTable
	}
	if r.LockTable == "" {
		r.LockTable = lock.DefaultTable
	}
	if r.RedisKey == "" {
		r.RedisKey = lock.DefaultRedisKey
	}
}
