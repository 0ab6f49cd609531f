package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/executor"
)

// DefaultTable is the ledger table name used when none is configured
const DefaultTable = "changeplane_ledger"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate as a table name
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// SQLStore keeps the ledger in a table of the target database
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
	table   string
	direct  executor.Executor
}

var _ TxStore = (*SQLStore)(nil)

// NewSQLStore creates a store over table ("" selects DefaultTable)
func NewSQLStore(db *sql.DB, dialect database.Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid ledger table name %q", table)
	}
	return &SQLStore{db: db, dialect: dialect, table: table, direct: executor.NewSQLExecutor(db, nil)}, nil
}

// Table returns the ledger table name
func (s *SQLStore) Table() string { return s.table }

// placeholders renders n dialect placeholders starting at position from
func (s *SQLStore) placeholders(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.dialect.Placeholder(from + i)
	}
	return out
}

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(255) NOT NULL,
			author VARCHAR(255) NOT NULL,
			filename VARCHAR(255) NOT NULL,
			checksum VARCHAR(64),
			dateexecuted TIMESTAMP NOT NULL,
			orderexecuted INTEGER NOT NULL,
			exectype VARCHAR(10) NOT NULL,
			tag VARCHAR(255),
			contexts VARCHAR(255),
			labels VARCHAR(255),
			description VARCHAR(255),
			comments VARCHAR(255),
			product_version VARCHAR(20),
			deployment_id VARCHAR(36)
		)`, s.table))
	if err != nil {
		return fmt.Errorf("create ledger table %s: %w", s.table, err)
	}
	return nil
}

const columns = "id, author, filename, checksum, dateexecuted, orderexecuted, exectype, tag, contexts, labels, description, comments, product_version, deployment_id"

func (s *SQLStore) LoadAll(ctx context.Context) ([]RanChangeSet, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY orderexecuted`, columns, s.table))
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RanChangeSet
	for rows.Next() {
		var r RanChangeSet
		var executed any
		var checksum, execType, tag, contexts, labels, description, comments, version, deployment sql.NullString
		if err := rows.Scan(&r.ID, &r.Author, &r.FilePath, &checksum, &executed, &r.OrderExecuted,
			&execType, &tag, &contexts, &labels, &description, &comments, &version, &deployment); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		if r.DateExecuted, err = database.ParseTimestamp(executed); err != nil {
			return nil, fmt.Errorf("ledger row %s::%s: %w", r.ID, r.Author, err)
		}
		r.Checksum = checksum.String
		r.ExecType = ExecType(execType.String)
		r.Tag = tag.String
		r.Contexts = contexts.String
		r.Labels = labels.String
		r.Description = description.String
		r.Comments = comments.String
		r.ProductVersion = version.String
		r.DeploymentID = deployment.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewHistory(out).Rows(), nil
}

func (s *SQLStore) Upsert(ctx context.Context, row RanChangeSet) error {
	return s.UpsertWith(ctx, s.direct, row)
}

// UpsertWith writes the row through exec, so it commits with exec's
// transaction when exec is bound to one
func (s *SQLStore) UpsertWith(ctx context.Context, exec executor.Executor, row RanChangeSet) error {
	row.FilePath = changelog.NormalizePath(row.FilePath)
	if row.DateExecuted.IsZero() {
		row.DateExecuted = time.Now()
	}
	values := []any{
		nullable(row.Checksum), row.DateExecuted.UTC(), row.OrderExecuted, string(row.ExecType),
		nullable(row.Tag), nullable(row.Contexts), nullable(row.Labels), nullable(truncate(row.Description, 255)),
		nullable(truncate(row.Comments, 255)), nullable(truncate(row.ProductVersion, 20)), nullable(row.DeploymentID),
	}

	ph := s.placeholders(1, len(values)+3)
	update := fmt.Sprintf(`UPDATE %s SET checksum = %s, dateexecuted = %s, orderexecuted = %s, exectype = %s,
		tag = %s, contexts = %s, labels = %s, description = %s, comments = %s, product_version = %s, deployment_id = %s
		WHERE LOWER(id) = LOWER(%s) AND LOWER(author) = LOWER(%s) AND filename = %s`,
		s.table, ph[0], ph[1], ph[2], ph[3], ph[4], ph[5], ph[6], ph[7], ph[8], ph[9], ph[10], ph[11], ph[12], ph[13])
	res, err := exec.Execute(ctx, s.action(update, append(values, row.ID, row.Author, row.FilePath)...))
	if err != nil {
		return fmt.Errorf("update ledger row %s: %w", row.Identity(), err)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	insert := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, s.table, columns, strings.Join(s.placeholders(1, 14), ", "))
	args := append([]any{row.ID, row.Author, row.FilePath}, values...)
	if _, err := exec.Execute(ctx, s.action(insert, args...)); err != nil {
		return fmt.Errorf("insert ledger row %s: %w", row.Identity(), err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, id changelog.Identity) error {
	return s.RemoveWith(ctx, s.direct, id)
}

// RemoveWith deletes the row through exec
func (s *SQLStore) RemoveWith(ctx context.Context, exec executor.Executor, id changelog.Identity) error {
	ph := s.placeholders(1, 3)
	_, err := exec.Execute(ctx, s.action(fmt.Sprintf(
		`DELETE FROM %s WHERE LOWER(id) = LOWER(%s) AND LOWER(author) = LOWER(%s) AND filename = %s`,
		s.table, ph[0], ph[1], ph[2]), id.ID, id.Author, id.Path))
	if err != nil {
		return fmt.Errorf("remove ledger row %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) action(sql string, args ...any) change.Action {
	return change.Action{Kind: change.ActionUpdate, SQL: sql, Args: args, Description: "ledger " + s.table}
}

func (s *SQLStore) Tag(ctx context.Context, tag string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET tag = %s WHERE orderexecuted = (SELECT MAX(orderexecuted) FROM %s)`,
		s.table, s.dialect.Placeholder(1), s.table), tag)
	if err != nil {
		return fmt.Errorf("tag ledger: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("cannot tag an empty ledger")
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
