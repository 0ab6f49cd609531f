// Package generic holds the lowest-priority logic: ANSI SQL generation for
// every structural statement, raw SQL passthrough, and the cross-cutting
// identifier validator. Dialect packages override pieces of it.
package generic

import (
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/database"
)

// ColumnFormatter renders a column definition for CREATE/ALTER statements
type ColumnFormatter func(col database.Column) string

// FormatColumnDefinition renders "name type [NOT NULL] [DEFAULT x] [PRIMARY KEY]"
func FormatColumnDefinition(col database.Column) string {
	parts := []string{col.Name, col.Type}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT", *col.Default)
	}
	if col.IsPrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	return strings.Join(parts, " ")
}

// FormatForeignKeyConstraint renders a named table constraint
func FormatForeignKeyConstraint(fk database.ForeignKey) string {
	clause := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		fk.Name, strings.Join(fk.Columns, ", "),
		fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
	if fk.OnDelete != nil {
		clause += " ON DELETE " + *fk.OnDelete
	}
	if fk.OnUpdate != nil {
		clause += " ON UPDATE " + *fk.OnUpdate
	}
	return clause
}

// CreateTableSQL renders CREATE TABLE, one column or constraint per line,
// with foreign keys inline
func CreateTableSQL(table database.Table, format ColumnFormatter) string {
	lines := make([]string, 0, len(table.Columns)+len(table.ForeignKeys))
	for _, col := range table.Columns {
		lines = append(lines, "  "+format(col))
	}
	for _, fk := range table.ForeignKeys {
		lines = append(lines, "  "+FormatForeignKeyConstraint(fk))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", table.Name, strings.Join(lines, ",\n"))
}

// CreateIndexSQL renders CREATE [UNIQUE] INDEX
func CreateIndexSQL(tableName string, idx database.Index) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, idx.Name, tableName, strings.Join(idx.Columns, ", "))
}

// AddForeignKeySQL renders ALTER TABLE ... ADD CONSTRAINT
func AddForeignKeySQL(tableName string, fk database.ForeignKey) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", tableName, FormatForeignKeyConstraint(fk))
}
