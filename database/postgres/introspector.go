package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/database"
)

// Introspector reads table definitions from pg_catalog. Table names may be
// schema-qualified ("audit.events"); unqualified names resolve against
// current_schema().
type Introspector struct{}

func NewIntrospector() *Introspector {
	return &Introspector{}
}

var _ database.Introspector = (*Introspector)(nil)

// splitQualified splits "schema.table" into its parts. The schema is empty
// for an unqualified name.
func splitQualified(name string) (schema, table string) {
	if before, after, ok := strings.Cut(name, "."); ok {
		return before, after
	}
	return "", name
}

func (i *Introspector) GetTable(ctx context.Context, q database.Querier, tableName string) (database.Table, bool, error) {
	schema, name := splitQualified(tableName)

	var oid int64
	err := q.QueryRowContext(ctx, `
		SELECT c.oid
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p')
		  AND n.nspname = COALESCE(NULLIF($1, ''), current_schema())
		  AND c.relname = $2
	`, schema, name).Scan(&oid)
	if err == sql.ErrNoRows {
		return database.Table{}, false, nil
	}
	if err != nil {
		return database.Table{}, false, fmt.Errorf("failed to look up table %s: %w", tableName, err)
	}

	table := database.Table{Name: tableName}
	if table.Columns, err = columns(ctx, q, oid); err != nil {
		return database.Table{}, false, fmt.Errorf("failed to read columns of %s: %w", tableName, err)
	}
	if table.Indexes, err = indexes(ctx, q, oid); err != nil {
		return database.Table{}, false, fmt.Errorf("failed to read indexes of %s: %w", tableName, err)
	}
	if table.ForeignKeys, err = foreignKeys(ctx, q, oid); err != nil {
		return database.Table{}, false, fmt.Errorf("failed to read foreign keys of %s: %w", tableName, err)
	}
	return table, true, nil
}

func columns(ctx context.Context, q database.Querier, oid int64) ([]database.Column, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			a.attname,
			format_type(a.atttypid, a.atttypmod),
			NOT a.attnotnull,
			pg_get_expr(d.adbin, d.adrelid),
			EXISTS (
				SELECT 1 FROM pg_index i
				WHERE i.indrelid = a.attrelid AND i.indisprimary AND a.attnum = ANY (i.indkey)
			)
		FROM pg_attribute a
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum
	`, oid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []database.Column
	for rows.Next() {
		var col database.Column
		var def sql.NullString
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &def, &col.IsPrimaryKey); err != nil {
			return nil, err
		}
		if serial, ok := serialType(col.Type, def); ok {
			// the sequence default is implied by the pseudo-type
			col.Type = serial
		} else if def.Valid {
			normalized := normalizeDefault(def.String)
			col.Default = &normalized
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// indexes skips the indexes that back PRIMARY KEY and UNIQUE constraints
func indexes(ctx context.Context, q database.Querier, oid int64) ([]database.Index, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ic.relname, pg_get_indexdef(i.indexrelid), i.indisunique
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		WHERE i.indrelid = $1
		  AND NOT i.indisprimary
		  AND NOT EXISTS (
			SELECT 1 FROM pg_constraint con
			WHERE con.conindid = i.indexrelid AND con.contype IN ('p', 'u')
		  )
		ORDER BY ic.relname
	`, oid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.Index
	for rows.Next() {
		var idx database.Index
		var def string
		if err := rows.Scan(&idx.Name, &def, &idx.Unique); err != nil {
			return nil, err
		}
		if idx.Columns, err = IndexColumns(def); err != nil {
			return nil, fmt.Errorf("index %s: %w", idx.Name, err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

func foreignKeys(ctx context.Context, q database.Querier, oid int64) ([]database.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT con.conname, a.attname, ref.relname, ra.attname, con.confupdtype, con.confdeltype
		FROM pg_constraint con
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		JOIN pg_class ref ON ref.oid = con.confrelid
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refnum
		WHERE con.conrelid = $1 AND con.contype = 'f'
		ORDER BY con.conname, k.ord
	`, oid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.ForeignKey
	for rows.Next() {
		var name, column, refTable, refColumn, onUpdate, onDelete string
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onUpdate, &onDelete); err != nil {
			return nil, err
		}
		// rows of one constraint are adjacent
		if n := len(out); n == 0 || out[n-1].Name != name {
			out = append(out, database.ForeignKey{
				Name:            name,
				ReferencedTable: refTable,
				OnUpdate:        referentialAction(onUpdate),
				OnDelete:        referentialAction(onDelete),
			})
		}
		fk := &out[len(out)-1]
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	return out, rows.Err()
}

// referentialAction maps a pg_constraint action code to its SQL keyword.
// NO ACTION is the default and reported as nil.
func referentialAction(code string) *string {
	var action string
	switch code {
	case "r":
		action = "RESTRICT"
	case "c":
		action = "CASCADE"
	case "n":
		action = "SET NULL"
	case "d":
		action = "SET DEFAULT"
	default:
		return nil
	}
	return &action
}

// serialType reports the SERIAL pseudo-type of an integer column whose
// default draws from a sequence
func serialType(typ string, def sql.NullString) (string, bool) {
	if !def.Valid || !strings.HasPrefix(def.String, "nextval(") || !strings.Contains(def.String, "_seq") {
		return "", false
	}
	switch strings.ToLower(typ) {
	case "integer":
		return "serial", true
	case "bigint":
		return "bigserial", true
	case "smallint":
		return "smallserial", true
	}
	return "", false
}

// normalizeDefault drops a trailing cast ('{}'::jsonb -> '{}') so defaults
// compare equal to how they are written in a changelog
func normalizeDefault(def string) string {
	if idx := strings.LastIndex(def, "::"); idx > 0 {
		before := def[:idx]
		if strings.Count(before, "'")%2 == 0 {
			return before
		}
	}
	return def
}
