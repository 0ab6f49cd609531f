// Package change defines the dialect-neutral schema edits (statements) and
// the dialect-ready units of work (actions) they are turned into.
package change

import (
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/database"
)

// StatementType is the explicit type tag a statement carries and a Logic
// declares support for. Dispatch never inspects Go types.
type StatementType string

const (
	// AnyStatement is declared by cross-cutting logic that applies to every statement.
	AnyStatement StatementType = "*"

	CreateTableType    StatementType = "create_table"
	DropTableType      StatementType = "drop_table"
	AddColumnType      StatementType = "add_column"
	DropColumnType     StatementType = "drop_column"
	ModifyColumnType   StatementType = "modify_column"
	CreateIndexType    StatementType = "create_index"
	DropIndexType      StatementType = "drop_index"
	AddForeignKeyType  StatementType = "add_foreign_key"
	DropForeignKeyType StatementType = "drop_foreign_key"
	RawSQLType         StatementType = "raw_sql"
	TagDatabaseType    StatementType = "tag_database"
)

// AssignableFrom reports whether logic declaring t can handle a statement of type other.
func (t StatementType) AssignableFrom(other StatementType) bool {
	return t == AnyStatement || t == other
}

// Statement is an immutable description of one schema edit.
type Statement interface {
	// Type returns the statement's type tag
	Type() StatementType

	// ContinueOnError reports whether an execution failure of this statement
	// should be logged and skipped instead of aborting the changeset
	ContinueOnError() bool

	// Describe returns a short human-readable summary
	Describe() string
}

// Options carries per-statement run policy. It is embedded in every statement.
type Options struct {
	IgnoreFailure bool `json:"continue_on_error,omitempty"`
}

// ContinueOnError implements Statement
func (o Options) ContinueOnError() bool { return o.IgnoreFailure }

// CreateTable creates a new table
type CreateTable struct {
	Options
	Table database.Table `json:"table"`
}

func (CreateTable) Type() StatementType { return CreateTableType }
func (s CreateTable) Describe() string  { return fmt.Sprintf("Create table %s", s.Table.Name) }

// DropTable drops a table
type DropTable struct {
	Options
	TableName string `json:"table_name"`
	Cascade   bool   `json:"cascade,omitempty"`
}

func (DropTable) Type() StatementType { return DropTableType }
func (s DropTable) Describe() string  { return fmt.Sprintf("Drop table %s", s.TableName) }

// AddColumn adds a column to an existing table
type AddColumn struct {
	Options
	TableName string          `json:"table_name"`
	Column    database.Column `json:"column"`
}

func (AddColumn) Type() StatementType { return AddColumnType }
func (s AddColumn) Describe() string {
	return fmt.Sprintf("Add column %s to table %s", s.Column.Name, s.TableName)
}

// DropColumn drops a column from a table
type DropColumn struct {
	Options
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
}

func (DropColumn) Type() StatementType { return DropColumnType }
func (s DropColumn) Describe() string {
	return fmt.Sprintf("Drop column %s from table %s", s.ColumnName, s.TableName)
}

// ModifyColumn changes a column's type, nullability or default
type ModifyColumn struct {
	Options
	TableName string          `json:"table_name"`
	Old       database.Column `json:"old"`
	New       database.Column `json:"new"`
}

func (ModifyColumn) Type() StatementType { return ModifyColumnType }
func (s ModifyColumn) Describe() string {
	return fmt.Sprintf("Modify column %s.%s", s.TableName, s.New.Name)
}

// Changes returns which aspects of the column differ: "type", "nullable", "default"
func (s ModifyColumn) Changes() []string {
	var changes []string
	if !strings.EqualFold(s.Old.Type, s.New.Type) {
		changes = append(changes, "type")
	}
	if s.Old.Nullable != s.New.Nullable {
		changes = append(changes, "nullable")
	}
	if !sameDefault(s.Old.Default, s.New.Default) {
		changes = append(changes, "default")
	}
	return changes
}

func sameDefault(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CreateIndex creates an index on a table
type CreateIndex struct {
	Options
	TableName    string         `json:"table_name"`
	Index        database.Index `json:"index"`
	Concurrently bool           `json:"concurrently,omitempty"`
}

func (CreateIndex) Type() StatementType { return CreateIndexType }
func (s CreateIndex) Describe() string {
	return fmt.Sprintf("Create index %s on table %s", s.Index.Name, s.TableName)
}

// DropIndex drops an index
type DropIndex struct {
	Options
	TableName string `json:"table_name"`
	IndexName string `json:"index_name"`
}

func (DropIndex) Type() StatementType { return DropIndexType }
func (s DropIndex) Describe() string {
	return fmt.Sprintf("Drop index %s from table %s", s.IndexName, s.TableName)
}

// AddForeignKey adds a foreign key constraint to an existing table
type AddForeignKey struct {
	Options
	TableName  string              `json:"table_name"`
	ForeignKey database.ForeignKey `json:"foreign_key"`
}

func (AddForeignKey) Type() StatementType { return AddForeignKeyType }
func (s AddForeignKey) Describe() string {
	return fmt.Sprintf("Add foreign key %s to table %s", s.ForeignKey.Name, s.TableName)
}

// DropForeignKey drops a foreign key constraint
type DropForeignKey struct {
	Options
	TableName      string `json:"table_name"`
	ConstraintName string `json:"constraint_name"`
}

func (DropForeignKey) Type() StatementType { return DropForeignKeyType }
func (s DropForeignKey) Describe() string {
	return fmt.Sprintf("Drop foreign key %s from table %s", s.ConstraintName, s.TableName)
}

// RawSQL runs hand-written SQL. When Split is set, SQL is split on
// EndDelimiter (default ";") into separate actions.
type RawSQL struct {
	Options
	SQL          string `json:"sql"`
	Split        bool   `json:"split,omitempty"`
	EndDelimiter string `json:"end_delimiter,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

func (RawSQL) Type() StatementType { return RawSQLType }
func (s RawSQL) Describe() string {
	if s.Comment != "" {
		return s.Comment
	}
	return "Custom SQL"
}

// CanonicalForm collapses whitespace so formatting-only edits keep the checksum
func (s RawSQL) CanonicalForm() string {
	return fmt.Sprintf("%s|%t|%s", strings.Join(strings.Fields(s.SQL), " "), s.Split, s.EndDelimiter)
}

// Parts returns the individual SQL statements to execute
func (s RawSQL) Parts() []string {
	if !s.Split {
		if strings.TrimSpace(s.SQL) == "" {
			return nil
		}
		return []string{strings.TrimSpace(s.SQL)}
	}
	delim := s.EndDelimiter
	if delim == "" {
		delim = ";"
	}
	var parts []string
	for _, part := range strings.Split(s.SQL, delim) {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// TagDatabase marks the point in history where it runs with a tag. It
// produces no actions; the ledger row of its changeset carries the tag.
type TagDatabase struct {
	Options
	Tag string `json:"tag"`
}

func (TagDatabase) Type() StatementType { return TagDatabaseType }
func (s TagDatabase) Describe() string  { return fmt.Sprintf("Tag database as %s", s.Tag) }

// Canonicalizer is implemented by statements whose checksum input differs
// from their JSON encoding.
type Canonicalizer interface {
	CanonicalForm() string
}
