package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lockplane/changeplane/database"
)

// Introspector reads table definitions through the pragma table-valued
// functions, which take the table name as a bound parameter
type Introspector struct{}

func NewIntrospector() *Introspector {
	return &Introspector{}
}

var _ database.Introspector = (*Introspector)(nil)

// GetTable looks the table up case-insensitively, as SQLite resolves names,
// and reports it under its stored name
func (i *Introspector) GetTable(ctx context.Context, q database.Querier, tableName string) (database.Table, bool, error) {
	var name string
	var ddl sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`,
		tableName).Scan(&name, &ddl)
	if err == sql.ErrNoRows {
		return database.Table{}, false, nil
	}
	if err != nil {
		return database.Table{}, false, fmt.Errorf("failed to look up table %s: %w", tableName, err)
	}

	table := database.Table{Name: name}
	if table.Columns, err = columns(ctx, q, name); err != nil {
		return database.Table{}, false, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	if table.Indexes, err = indexes(ctx, q, name); err != nil {
		return database.Table{}, false, fmt.Errorf("failed to read indexes of %s: %w", name, err)
	}
	if table.ForeignKeys, err = foreignKeys(ctx, q, name, ddl.String); err != nil {
		return database.Table{}, false, fmt.Errorf("failed to read foreign keys of %s: %w", name, err)
	}
	return table, true, nil
}

func columns(ctx context.Context, q database.Querier, table string) ([]database.Column, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []database.Column
	for rows.Next() {
		var col database.Column
		var notNull, pk int
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		col.IsPrimaryKey = pk > 0
		col.Nullable = notNull == 0 && !col.IsPrimaryKey
		if def.Valid {
			col.Default = &def.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// indexes reports the indexes created with CREATE INDEX. Autoindexes behind
// PRIMARY KEY and UNIQUE constraints are skipped.
func indexes(ctx context.Context, q database.Querier, table string) ([]database.Index, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT il.name, il."unique", ii.name
		FROM pragma_index_list(?) AS il
		JOIN pragma_index_info(il.name) AS ii
		WHERE il.origin = 'c'
		ORDER BY il.name, ii.seqno
	`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.Index
	for rows.Next() {
		var name string
		var unique int
		var column sql.NullString
		if err := rows.Scan(&name, &unique, &column); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].Name != name {
			out = append(out, database.Index{Name: name, Unique: unique == 1, Columns: []string{}})
		}
		// expression columns have no name
		if column.Valid {
			idx := &out[len(out)-1]
			idx.Columns = append(idx.Columns, column.String)
		}
	}
	return out, rows.Err()
}

var constraintPattern = regexp.MustCompile(`(?is)CONSTRAINT\s+["\x60]?(\w+)["\x60]?\s+FOREIGN\s+KEY\s*\(([^)]*)\)`)

// declaredNames maps a foreign key's column list to the constraint name in
// the table DDL. pragma_foreign_key_list does not report names.
func declaredNames(ddl string) map[string]string {
	names := make(map[string]string)
	for _, m := range constraintPattern.FindAllStringSubmatch(ddl, -1) {
		names[columnKey(strings.Split(m[2], ","))] = m[1]
	}
	return names
}

func columnKey(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = strings.ToLower(strings.Trim(strings.TrimSpace(c), "\"`"))
	}
	return strings.Join(parts, ",")
}

func foreignKeys(ctx context.Context, q database.Querier, table, ddl string) ([]database.ForeignKey, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.ForeignKey
	var ids []int
	for rows.Next() {
		var id int
		var refTable, from, onUpdate, onDelete string
		var to sql.NullString
		if err := rows.Scan(&id, &refTable, &from, &to, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		if n := len(ids); n == 0 || ids[n-1] != id {
			ids = append(ids, id)
			out = append(out, database.ForeignKey{
				ReferencedTable: refTable,
				OnUpdate:        action(onUpdate),
				OnDelete:        action(onDelete),
			})
		}
		fk := &out[len(out)-1]
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	declared := declaredNames(ddl)
	for n := range out {
		if name, ok := declared[columnKey(out[n].Columns)]; ok {
			out[n].Name = name
		} else {
			out[n].Name = fmt.Sprintf("fk_%s_%d", table, ids[n])
		}
	}
	return out, nil
}

// action reports NO ACTION, the default, as nil
func action(rule string) *string {
	if strings.EqualFold(rule, "NO ACTION") || rule == "" {
		return nil
	}
	return &rule
}
