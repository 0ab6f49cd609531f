// Package executor delivers generated actions to a database, or records
// them for a preview script.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/lockplane/changeplane/internal/change"
)

// CodeExecutionFailed is the error code of ExecutionError
const CodeExecutionFailed = "EXECUTION_FAILED"

// Result is the outcome of one action
type Result struct {
	RowsAffected int64 `json:"rows_affected"`
}

// Executor performs actions
type Executor interface {
	Execute(ctx context.Context, action change.Action) (Result, error)

	// Transaction runs fn with an executor bound to one transaction,
	// committing when fn returns nil and rolling back otherwise
	Transaction(ctx context.Context, fn func(Executor) error) error
}

// ExecutionError wraps the database error of a single action
type ExecutionError struct {
	Action   change.Action
	SQLState string
	Err      error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("failed to execute %q", e.Action.SQL)
	if e.SQLState != "" {
		msg += fmt.Sprintf(" (SQLSTATE %s)", e.SQLState)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Code returns the stable error code
func (e *ExecutionError) Code() string { return CodeExecutionFailed }

// SQLState extracts the SQLSTATE from lib/pq and pgx errors
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func wrap(action change.Action, err error) error {
	return &ExecutionError{Action: action, SQLState: SQLState(err), Err: err}
}

// queryer is what *sql.DB and *sql.Tx have in common
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLExecutor runs actions over database/sql
type SQLExecutor struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Executor = (*SQLExecutor)(nil)

// NewSQLExecutor creates an executor on db. A nil logger uses slog.Default().
func NewSQLExecutor(db *sql.DB, logger *slog.Logger) *SQLExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLExecutor{db: db, logger: logger}
}

func (e *SQLExecutor) Execute(ctx context.Context, action change.Action) (Result, error) {
	return execute(ctx, e.db, e.logger, action)
}

func (e *SQLExecutor) Transaction(ctx context.Context, fn func(Executor) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&txExecutor{tx: tx, logger: e.logger}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txExecutor struct {
	tx     *sql.Tx
	logger *slog.Logger
}

func (e *txExecutor) Execute(ctx context.Context, action change.Action) (Result, error) {
	if action.NonTransactional {
		return Result{}, wrap(action, fmt.Errorf("action cannot run inside a transaction"))
	}
	return execute(ctx, e.tx, e.logger, action)
}

// Transaction on a transaction-bound executor joins the open transaction
func (e *txExecutor) Transaction(_ context.Context, fn func(Executor) error) error {
	return fn(e)
}

func execute(ctx context.Context, q queryer, logger *slog.Logger, action change.Action) (Result, error) {
	logger.Debug("executing action", "sql", action.SQL, "kind", action.Kind)

	if action.Kind == change.ActionQuery {
		rows, err := q.QueryContext(ctx, action.SQL, action.Args...)
		if err != nil {
			return Result{}, wrap(action, err)
		}
		defer func() { _ = rows.Close() }()
		var n int64
		for rows.Next() {
			n++
		}
		if err := rows.Err(); err != nil {
			return Result{}, wrap(action, err)
		}
		return Result{RowsAffected: n}, nil
	}

	res, err := q.ExecContext(ctx, action.SQL, action.Args...)
	if err != nil {
		return Result{}, wrap(action, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// some drivers do not report counts for DDL
		n = 0
	}
	return Result{RowsAffected: n}, nil
}
