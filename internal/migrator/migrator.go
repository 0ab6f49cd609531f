// Package migrator is the execution controller: it plans which changesets
// of a changelog run, dispatches their statements into actions, hands the
// actions to an executor and records the outcome in the ledger, all while
// holding the distributed lock.
package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/executor"
	"github.com/lockplane/changeplane/internal/ledger"
	"github.com/lockplane/changeplane/internal/lock"
	"github.com/lockplane/changeplane/internal/logic"
)

// Config wires a Migrator to its collaborators
type Config struct {
	Dialect    database.Dialect
	Dispatcher *logic.Dispatcher
	Store      ledger.Store
	Locker     lock.Locker
	Executor   executor.Executor

	// DB is the live connection handed to volatile logic. Leave nil to
	// generate offline.
	DB *sql.DB

	// Owner identifies this process to the lock; empty uses lock.NewOwner()
	Owner       string
	LockTimeout time.Duration

	// StrictPreview makes Preview fail on statements whose actions depend
	// on live database state instead of warning about them
	StrictPreview bool

	ProductVersion string
	Logger         *slog.Logger
}

// Migrator runs changelogs against one database
type Migrator struct {
	cfg    Config
	owner  string
	logger *slog.Logger
}

// New validates cfg and creates a Migrator
func New(cfg Config) (*Migrator, error) {
	switch {
	case cfg.Dialect == nil:
		return nil, errors.New("migrator requires a dialect")
	case cfg.Dispatcher == nil:
		return nil, errors.New("migrator requires a dispatcher")
	case cfg.Store == nil:
		return nil, errors.New("migrator requires a ledger store")
	case cfg.Locker == nil:
		return nil, errors.New("migrator requires a lock")
	case cfg.Executor == nil:
		return nil, errors.New("migrator requires an executor")
	}
	owner := cfg.Owner
	if owner == "" {
		owner = lock.NewOwner()
	}
	if cfg.LockTimeout < 0 {
		cfg.LockTimeout = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{cfg: cfg, owner: owner, logger: logger}, nil
}

// Owner returns the identity this migrator locks with
func (m *Migrator) Owner() string { return m.owner }

// withLock runs fn while holding the lock and releases it on every exit
// path. A *RunError returned by fn learns whether the release succeeded.
func (m *Migrator) withLock(ctx context.Context, fn func() error) (err error) {
	release, err := lock.Acquire(ctx, m.cfg.Locker, m.owner, m.cfg.LockTimeout)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	m.logger.Info("acquired lock", "owner", m.owner)

	defer func() {
		relErr := release()
		var runErr *RunError
		if errors.As(err, &runErr) {
			runErr.LockReleased = relErr == nil
		}
		if relErr != nil {
			m.logger.Error("failed to release lock", "owner", m.owner, "error", relErr)
			err = errors.Join(err, fmt.Errorf("release lock: %w", relErr))
			return
		}
		m.logger.Info("released lock", "owner", m.owner)
	}()

	return fn()
}

// loadHistory initializes the ledger and reads it. Callers hold the lock.
func (m *Migrator) loadHistory(ctx context.Context) (*ledger.History, error) {
	if err := m.cfg.Store.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialize ledger: %w", err)
	}
	rows, err := m.cfg.Store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return ledger.NewHistory(rows), nil
}

// checkDrift fails when a changeset that ran was edited afterwards and is
// not allowed to change
func checkDrift(log *changelog.ChangeLog, history *ledger.History) error {
	var drifts []Drift
	for _, cs := range log.ChangeSets() {
		if cs.Ignored() || cs.AlwaysRun || cs.RunOnChange {
			continue
		}
		ran, ok := history.Find(cs.Identity())
		if !ok {
			continue
		}
		matches, err := cs.ChecksumMatches(ran.Checksum)
		if err != nil {
			return err
		}
		if !matches {
			current, _ := cs.Checksum()
			drifts = append(drifts, Drift{ChangeSet: cs.String(), Recorded: ran.Checksum, Current: current})
		}
	}
	if len(drifts) > 0 {
		return &ChecksumDriftError{Drifts: drifts}
	}
	return nil
}

func (m *Migrator) environment(cs *changelog.ChangeSet, db *sql.DB, rollback bool) *logic.Environment {
	return &logic.Environment{Dialect: m.cfg.Dialect, DB: db, ChangeSet: cs, Rollback: rollback}
}
