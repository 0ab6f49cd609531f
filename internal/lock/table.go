package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/ledger"
)

// DefaultTable is the lock table name used when none is configured
const DefaultTable = "changeplane_lock"

const lockRowID = 1

// TableLock keeps the lock in a single row of a table in the target
// database. Acquisition is a conditional update of that row.
type TableLock struct {
	db      *sql.DB
	dialect database.Dialect
	table   string
	polling Polling
}

var _ Locker = (*TableLock)(nil)

// NewTableLock creates a lock over table ("" selects DefaultTable)
func NewTableLock(db *sql.DB, dialect database.Dialect, table string, polling Polling) (*TableLock, error) {
	if table == "" {
		table = DefaultTable
	}
	if !ledger.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid lock table name %q", table)
	}
	return &TableLock{db: db, dialect: dialect, table: table, polling: polling}, nil
}

// Init creates the lock table and its row if needed
func (l *TableLock) Init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER NOT NULL PRIMARY KEY,
			locked BOOLEAN NOT NULL,
			lockgranted TIMESTAMP,
			lockedby VARCHAR(255)
		)`, l.table))
	if err != nil {
		return &StateError{Op: "init", Err: fmt.Errorf("create lock table %s: %w", l.table, err)}
	}
	_, err = l.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, locked) VALUES (%d, FALSE) ON CONFLICT (id) DO NOTHING`, l.table, lockRowID))
	if err != nil {
		return &StateError{Op: "init", Err: fmt.Errorf("initialize lock row: %w", err)}
	}
	return nil
}

func (l *TableLock) TryAcquire(ctx context.Context, owner string, timeout time.Duration) (bool, error) {
	return poll(ctx, l, owner, timeout, l.polling)
}

func (l *TableLock) attempt(ctx context.Context, owner string) (bool, error) {
	res, err := l.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET locked = TRUE, lockgranted = %s, lockedby = %s WHERE id = %d AND locked = FALSE`,
		l.table, l.dialect.Placeholder(1), l.dialect.Placeholder(2), lockRowID),
		time.Now().UTC(), owner)
	if err != nil {
		return false, fmt.Errorf("update lock row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *TableLock) Release(ctx context.Context, owner string) error {
	res, err := l.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET locked = FALSE, lockgranted = NULL, lockedby = NULL WHERE id = %d AND locked = TRUE AND lockedby = %s`,
		l.table, lockRowID, l.dialect.Placeholder(1)), owner)
	if err != nil {
		return &StateError{Op: "release", Owner: owner, Err: err}
	}
	if n, err := res.RowsAffected(); err != nil {
		return &StateError{Op: "release", Owner: owner, Err: err}
	} else if n == 1 {
		return nil
	}

	holder, err := l.current(ctx)
	if err != nil {
		return &StateError{Op: "release", Owner: owner, Err: err}
	}
	return &StateError{Op: "release", Owner: owner, Holder: holder.LockedBy}
}

func (l *TableLock) ForceRelease(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET locked = FALSE, lockgranted = NULL, lockedby = NULL WHERE id = %d`, l.table, lockRowID))
	if err != nil {
		return &StateError{Op: "force release", Err: err}
	}
	return nil
}

func (l *TableLock) ListHolders(ctx context.Context) ([]Info, error) {
	info, err := l.current(ctx)
	if err != nil {
		return nil, &StateError{Op: "list", Err: err}
	}
	if !info.Locked {
		return nil, nil
	}
	return []Info{info}, nil
}

func (l *TableLock) current(ctx context.Context) (Info, error) {
	var info Info
	var granted any
	var lockedBy sql.NullString
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, locked, lockgranted, lockedby FROM %s WHERE id = %d`, l.table, lockRowID)).
		Scan(&info.ID, &info.Locked, &granted, &lockedBy)
	if err == sql.ErrNoRows {
		return Info{ID: lockRowID}, nil
	}
	if err != nil {
		return Info{}, fmt.Errorf("read lock row: %w", err)
	}
	info.LockedBy = lockedBy.String
	if granted != nil {
		if info.Granted, err = database.ParseTimestamp(granted); err != nil {
			return Info{}, fmt.Errorf("read lock row: %w", err)
		}
	}
	return info, nil
}
