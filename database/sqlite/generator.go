package sqlite

import (
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/database/generic"
	"github.com/lockplane/changeplane/internal/change"
)

// FormatColumnDefinition formats a column definition for CREATE/ALTER statements
func FormatColumnDefinition(col database.Column) string {
	var sb strings.Builder

	// Column name and type
	sb.WriteString(fmt.Sprintf("%s %s", col.Name, col.Type))

	// Primary key (must come before NOT NULL in SQLite)
	if col.IsPrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}

	// Nullability
	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}

	// Default value
	if col.Default != nil {
		sb.WriteString(fmt.Sprintf(" DEFAULT %s", *col.Default))
	}

	return sb.String()
}

// RecreateTable rebuilds a table with a new definition, the standard SQLite
// pattern for changes ALTER TABLE cannot make: create a replacement, copy
// the rows of the columns both definitions share, drop the original,
// rename, then recreate the original's indexes.
func RecreateTable(current, target database.Table, description string) []change.Action {
	tmpTableName := fmt.Sprintf("%s_new", current.Name)
	affects := change.Table(current.Name)

	replacement := target
	replacement.Name = tmpTableName
	replacement.Indexes = nil

	var shared []string
	for _, col := range target.Columns {
		if _, ok := current.FindColumn(col.Name); ok {
			shared = append(shared, col.Name)
		}
	}
	columnsStr := strings.Join(shared, ", ")

	actions := []change.Action{
		change.Exec(generic.CreateTableSQL(replacement, FormatColumnDefinition), description+" (create replacement)", affects),
		change.Exec(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmpTableName, columnsStr, columnsStr, current.Name), description+" (copy rows)", affects),
		change.Exec(fmt.Sprintf("DROP TABLE %s", current.Name), description+" (drop original)", affects),
		change.Exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmpTableName, current.Name), description+" (rename replacement)", affects),
	}
	for _, idx := range target.Indexes {
		actions = append(actions, change.Exec(
			generic.CreateIndexSQL(current.Name, idx),
			fmt.Sprintf("Recreate index %s on table %s", idx.Name, current.Name),
			change.Index(current.Name, idx.Name),
		))
	}
	return actions
}

// withColumn returns table with the named column replaced by col
func withColumn(table database.Table, name string, col database.Column) (database.Table, bool) {
	out := table
	out.Columns = make([]database.Column, len(table.Columns))
	found := false
	for i, existing := range table.Columns {
		if strings.EqualFold(existing.Name, name) {
			out.Columns[i] = col
			found = true
			continue
		}
		out.Columns[i] = existing
	}
	return out, found
}

// withForeignKey returns table with fk appended
func withForeignKey(table database.Table, fk database.ForeignKey) database.Table {
	out := table
	out.ForeignKeys = append(append([]database.ForeignKey(nil), table.ForeignKeys...), fk)
	return out
}

// withoutForeignKey returns table without the named foreign key
func withoutForeignKey(table database.Table, fkName string) (database.Table, bool) {
	out := table
	out.ForeignKeys = nil
	found := false
	for _, existing := range table.ForeignKeys {
		if strings.EqualFold(existing.Name, fkName) {
			found = true
			continue
		}
		out.ForeignKeys = append(out.ForeignKeys, existing)
	}
	return out, found
}
