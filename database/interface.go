package database

import (
	"context"
	"database/sql"
	"strings"
)

// Table represents a database table
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	Indexes     []Index      `json:"indexes,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Column represents a table column
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key,omitempty"`
}

// Index represents a table index
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
	OnDelete          *string  `json:"on_delete,omitempty"`
	OnUpdate          *string  `json:"on_update,omitempty"`
}

// FindColumn returns the column with the given name (case-insensitive)
func (t Table) FindColumn(name string) (Column, bool) {
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return Column{}, false
}

// Querier runs read queries. *sql.DB, *sql.Tx and *sql.Conn satisfy it, so
// introspection can see the uncommitted state of a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Introspector reads live schema state from a connected database.
// Logic that depends on an Introspector is volatile: its output is only
// valid for the database state at the moment it runs.
type Introspector interface {
	// GetTable returns the columns, indexes and foreign keys of one table,
	// or ok=false if the table does not exist
	GetTable(ctx context.Context, q Querier, tableName string) (table Table, ok bool, err error)
}

// Dialect describes a target database product.
type Dialect interface {
	// Name returns the canonical lowercase dialect name (e.g., "postgresql", "sqlite")
	Name() string

	// SupportsFeature checks if the database supports a specific feature
	SupportsFeature(feature string) bool

	// Placeholder returns the bind parameter placeholder for this database
	// PostgreSQL: $1, $2, etc.
	// SQLite: ?, ?, etc.
	Placeholder(position int) string

	// Introspector returns the live-schema reader for this dialect
	Introspector() Introspector
}

// Feature names understood by Dialect.SupportsFeature
const (
	FeatureCascade             = "CASCADE"
	FeatureAlterColumnType     = "ALTER_COLUMN_TYPE"
	FeatureAlterColumnNullable = "ALTER_COLUMN_NULLABLE"
	FeatureAlterColumnDefault  = "ALTER_COLUMN_DEFAULT"
	FeatureAlterAddForeignKey  = "ALTER_ADD_FOREIGN_KEY"
	FeatureForeignKeys         = "FOREIGN_KEYS"
	FeatureDropColumn          = "DROP_COLUMN"
	FeatureTransactionalDDL    = "TRANSACTIONAL_DDL"
)

// Canonical dialect names
const (
	DialectPostgres = "postgresql"
	DialectSQLite   = "sqlite"
	DialectLibSQL   = "libsql"
)

// NormalizeDialectName maps common spellings onto the canonical dialect names
func NormalizeDialectName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "libsql", "turso":
		return DialectLibSQL
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// IsSQLiteFamily reports whether the dialect speaks SQLite's SQL
func IsSQLiteFamily(d Dialect) bool {
	if d == nil {
		return false
	}
	return d.Name() == DialectSQLite || d.Name() == DialectLibSQL
}
