package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/catalog"
	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/config"
	"github.com/lockplane/changeplane/internal/connection"
	"github.com/lockplane/changeplane/internal/executor"
	"github.com/lockplane/changeplane/internal/ledger"
	"github.com/lockplane/changeplane/internal/lock"
	"github.com/lockplane/changeplane/internal/migrator"
)

// resolveEnvironment loads changeplane.toml and applies the global flags
func resolveEnvironment() (*config.ResolvedEnvironment, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	env, err := config.ResolveEnvironment(cfg, flagEnv)
	if err != nil {
		return nil, err
	}
	if flagChangelog != "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		env.Changelog, env.BaseDir = flagChangelog, wd
	}
	if len(flagContexts) > 0 {
		env.Contexts = flagContexts
	}
	if flagLabels != "" {
		env.Labels = flagLabels
	}
	if flagLockTimeout > 0 {
		env.LockTimeout = flagLockTimeout
	}
	return env, nil
}

// loadChangeLog reads the changelog with paths relative to the project, so
// recorded identities stay stable across checkouts
func loadChangeLog(env *config.ResolvedEnvironment) (*changelog.ChangeLog, error) {
	path := env.Changelog
	if filepath.IsAbs(path) && env.BaseDir != "" {
		if rel, err := filepath.Rel(env.BaseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = filepath.ToSlash(rel)
		}
	}
	loader := &changelog.Loader{ReadFile: func(name string) ([]byte, error) {
		if !filepath.IsAbs(name) && env.BaseDir != "" {
			name = filepath.Join(env.BaseDir, name)
		}
		return os.ReadFile(name)
	}}
	log, err := loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load changelog %s: %w", env.Changelog, err)
	}
	return log, nil
}

// session holds the open connections one command works with
type session struct {
	env      *config.ResolvedEnvironment
	db       *sql.DB
	redis    *redis.Client
	dialect  database.Dialect
	locker   lock.Locker
	migrator *migrator.Migrator
	config   migrator.Config
}

func openSession(ctx context.Context) (*session, error) {
	env, err := resolveEnvironment()
	if err != nil {
		return nil, err
	}
	slog.Debug("opening connection", "env", env.Name, "url", connection.Redact(env.DatabaseURL))
	db, dialect, err := connection.Open(ctx, env.DatabaseURL, env.Dialect, env.Driver)
	if err != nil {
		return nil, err
	}
	s := &session{env: env, db: db, dialect: dialect}

	if err := s.openLock(ctx); err != nil {
		s.Close()
		return nil, err
	}

	store, err := ledger.NewSQLStore(db, dialect, env.LedgerTable)
	if err != nil {
		s.Close()
		return nil, err
	}
	dispatcher, err := catalog.NewDispatcher()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.config = migrator.Config{
		Dialect:        dialect,
		Dispatcher:     dispatcher,
		Store:          store,
		Locker:         s.locker,
		Executor:       executor.NewSQLExecutor(db, slog.Default()),
		DB:             db,
		LockTimeout:    env.LockTimeout,
		ProductVersion: getVersion(),
		Logger:         slog.Default(),
	}
	s.migrator, err = migrator.New(s.config)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) openLock(ctx context.Context) error {
	switch s.env.LockBackend {
	case config.LockBackendRedis:
		client, err := connection.OpenRedis(ctx, s.env.RedisURL)
		if err != nil {
			return err
		}
		s.redis = client
		s.locker = lock.NewRedisLock(client, s.env.RedisKey, s.env.Polling())
		return nil
	default:
		tableLock, err := lock.NewTableLock(s.db, s.dialect, s.env.LockTable, s.env.Polling())
		if err != nil {
			return err
		}
		if err := tableLock.Init(ctx); err != nil {
			return err
		}
		s.locker = tableLock
		return nil
	}
}

func (s *session) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// withSession opens a session for the duration of fn
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	err = fn(ctx, s)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted: %w", err)
	}
	return err
}

// strictMigrator returns a migrator whose previews fail on statements that
// depend on the live schema
func (s *session) strictMigrator() (*migrator.Migrator, error) {
	cfg := s.config
	cfg.StrictPreview = true
	cfg.Owner = s.migrator.Owner()
	return migrator.New(cfg)
}

func (s *session) request() migrator.Request {
	return migrator.Request{Contexts: s.env.Contexts, Labels: s.env.Labels}
}
