// Package postgres holds the PostgreSQL dialect: its descriptor, its
// introspector, and the logic that refines generic SQL generation with
// PostgreSQL-specific syntax, parsing and lock analysis.
package postgres

import (
	"context"
	"fmt"
	"slices"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

// Canonical logic names
const (
	ModifyColumnName = "postgres.modify_column"
	CreateIndexName  = "postgres.create_index"
	RawSQLName       = "postgres.raw_sql"
	LockImpactName   = "postgres.lock_impact"
)

// Logics returns the PostgreSQL logic catalog
func Logics() []logic.Logic {
	return []logic.Logic{
		ModifyColumn{base(ModifyColumnName, change.ModifyColumnType, logic.PriorityDialect)},
		CreateIndex{base(CreateIndexName, change.CreateIndexType, logic.PriorityDialect)},
		RawSQL{base(RawSQLName, change.RawSQLType, logic.PriorityDialect)},
		LockImpactWarner{base(LockImpactName, change.AnyStatement, logic.PriorityCrossCutting)},
	}
}

func base(name string, t change.StatementType, priority int) dialectBase {
	return dialectBase{logic.Base{LogicName: name, Handles: t, Rank: priority}}
}

type dialectBase struct{ logic.Base }

func (dialectBase) Supports(_ change.Statement, env *logic.Environment) bool {
	return env.DialectName() == database.DialectPostgres
}

// ModifyColumn emits the type change with an explicit USING cast, then
// delegates the remaining changes to the generic logic.
type ModifyColumn struct{ dialectBase }

func (l ModifyColumn) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.ModifyColumn](stmt)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(s.Changes(), "type") {
		return next.GenerateActions(ctx, stmt, env)
	}

	actions := typeChange(s)

	rest := s
	rest.New.Type = s.Old.Type
	more, err := next.GenerateActions(ctx, rest, env)
	if err != nil {
		return nil, err
	}
	return append(actions, more...), nil
}

func typeChange(s change.ModifyColumn) []change.Action {
	col := s.New.Name
	sql := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s",
		s.TableName, col, s.New.Type, UsingCast(col, s.New.Type))
	return []change.Action{change.Exec(sql,
		fmt.Sprintf("Change type of %s.%s from %s to %s", s.TableName, col, s.Old.Type, s.New.Type),
		change.Column(s.TableName, col))}
}

// CreateIndex adds CONCURRENTLY support. Concurrent builds run outside any
// transaction.
type CreateIndex struct{ dialectBase }

func (l CreateIndex) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.CreateIndex](stmt)
	if err != nil {
		return logic.ValidationErrors{err.Error()}
	}
	s.Concurrently = false
	return next.Validate(s, env)
}

func (l CreateIndex) Warn(stmt change.Statement, env *logic.Environment, next logic.Next) logic.Warnings {
	var warnings logic.Warnings
	if s, err := logic.Expect[change.CreateIndex](stmt); err == nil && s.Concurrently {
		warnings = warnings.Add("index %s is built concurrently outside a transaction; a failed build leaves an INVALID index to drop manually", s.Index.Name)
	}
	return append(warnings, next.Warn(stmt, env)...)
}

func (l CreateIndex) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.CreateIndex](stmt)
	if err != nil {
		return nil, err
	}
	if !s.Concurrently {
		return next.GenerateActions(ctx, stmt, env)
	}
	action := change.Exec(CreateIndexSQL(s.TableName, s.Index, true), s.Describe(), change.Index(s.TableName, s.Index.Name))
	action.NonTransactional = true
	return []change.Action{action}, nil
}

// RawSQL checks hand-written SQL parses as PostgreSQL and flags
// statements that destroy data
type RawSQL struct{ dialectBase }

func (l RawSQL) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.RawSQL](stmt)
	if err != nil {
		return logic.ValidationErrors{err.Error()}
	}
	var errs logic.ValidationErrors
	for _, part := range s.Parts() {
		if _, err := pg_query.Parse(part); err != nil {
			errs = errs.Add("invalid SQL %q: %s", abbreviate(part), describeSyntaxError(part, err))
		}
	}
	return append(errs, next.Validate(stmt, env)...)
}

func (l RawSQL) Warn(stmt change.Statement, env *logic.Environment, next logic.Next) logic.Warnings {
	var warnings logic.Warnings
	if s, err := logic.Expect[change.RawSQL](stmt); err == nil {
		for _, part := range s.Parts() {
			warnings = append(warnings, DataLossWarnings(part)...)
		}
	}
	return append(warnings, next.Warn(stmt, env)...)
}

// DataLossWarnings describes operations in sql that irreversibly delete data
func DataLossWarnings(sql string) []string {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		// syntax problems are reported by validation
		return nil
	}

	var warnings []string
	for _, stmt := range tree.Stmts {
		if stmt.Stmt == nil {
			continue
		}

		switch node := stmt.Stmt.Node.(type) {
		case *pg_query.Node_DropStmt:
			if node.DropStmt.RemoveType == pg_query.ObjectType_OBJECT_TABLE {
				msg := fmt.Sprintf("DROP TABLE %s permanently deletes all data in the table", extractObjectName(node.DropStmt.Objects))
				if node.DropStmt.Behavior == pg_query.DropBehavior_DROP_CASCADE {
					msg += " and every object that depends on it"
				}
				warnings = append(warnings, msg)
			}

		case *pg_query.Node_TruncateStmt:
			for _, rel := range node.TruncateStmt.Relations {
				if rv, ok := rel.Node.(*pg_query.Node_RangeVar); ok {
					warnings = append(warnings, fmt.Sprintf("TRUNCATE %s deletes all rows", extractRangeVarName(rv.RangeVar)))
				}
			}

		case *pg_query.Node_DeleteStmt:
			if node.DeleteStmt.WhereClause == nil {
				warnings = append(warnings, fmt.Sprintf("DELETE FROM %s has no WHERE clause and deletes all rows", extractRangeVarName(node.DeleteStmt.Relation)))
			}

		case *pg_query.Node_AlterTableStmt:
			tableName := extractRangeVarName(node.AlterTableStmt.Relation)
			for _, cmd := range node.AlterTableStmt.Cmds {
				if alterCmd, ok := cmd.Node.(*pg_query.Node_AlterTableCmd); ok &&
					alterCmd.AlterTableCmd.Subtype == pg_query.AlterTableType_AT_DropColumn {
					warnings = append(warnings, fmt.Sprintf("DROP COLUMN %s.%s permanently deletes the column's data", tableName, alterCmd.AlterTableCmd.Name))
				}
			}
		}
	}
	return warnings
}

func extractObjectName(objects []*pg_query.Node) string {
	if len(objects) == 0 {
		return "unknown"
	}
	// Objects is a list of lists (for qualified names like schema.table)
	listNode, ok := objects[0].Node.(*pg_query.Node_List)
	if !ok {
		return "unknown"
	}
	name := ""
	for _, item := range listNode.List.Items {
		if strNode, ok := item.Node.(*pg_query.Node_String_); ok {
			if name != "" {
				name += "."
			}
			name += strNode.String_.Sval
		}
	}
	return name
}

func extractRangeVarName(rangeVar *pg_query.RangeVar) string {
	if rangeVar == nil {
		return "unknown"
	}
	if rangeVar.Schemaname != "" {
		return rangeVar.Schemaname + "." + rangeVar.Relname
	}
	return rangeVar.Relname
}

func abbreviate(sql string) string {
	const limit = 60
	if len(sql) <= limit {
		return sql
	}
	return sql[:limit] + "..."
}
