// Package sqlite holds the SQLite (and libSQL) dialect: its descriptor, its
// introspector, and the logic that overrides generic SQL generation where
// SQLite differs.
package sqlite

import (
	"context"
	"fmt"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/database/generic"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

// Canonical logic names
const (
	CreateTableName    = "sqlite.create_table"
	DropTableName      = "sqlite.drop_table"
	ModifyColumnName   = "sqlite.modify_column"
	AddForeignKeyName  = "sqlite.add_foreign_key"
	DropForeignKeyName = "sqlite.drop_foreign_key"
)

// Logics returns the SQLite logic catalog
func Logics() []logic.Logic {
	return []logic.Logic{
		CreateTable{base(CreateTableName, change.CreateTableType)},
		DropTable{base(DropTableName, change.DropTableType)},
		ModifyColumn{recreation{base(ModifyColumnName, change.ModifyColumnType)}},
		AddForeignKey{recreation{base(AddForeignKeyName, change.AddForeignKeyType)}},
		DropForeignKey{recreation{base(DropForeignKeyName, change.DropForeignKeyType)}},
	}
}

func base(name string, t change.StatementType) dialectBase {
	return dialectBase{logic.Base{LogicName: name, Handles: t, Rank: logic.PriorityDialect}}
}

// dialectBase restricts a logic to the SQLite family
type dialectBase struct{ logic.Base }

func (dialectBase) Supports(_ change.Statement, env *logic.Environment) bool {
	return env != nil && database.IsSQLiteFamily(env.Dialect)
}

// CreateTable renders columns in SQLite's preferred order and does not
// delegate to the generic renderer
type CreateTable struct{ dialectBase }

func (l CreateTable) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.CreateTable](stmt)
	if err != nil {
		return nil, err
	}
	return generic.CreateTableActions(s, FormatColumnDefinition), nil
}

// DropTable replaces the generic drop: SQLite has no CASCADE. It blocks
// the generic logic in every phase and lets the rest of the chain run.
type DropTable struct{ dialectBase }

func (l DropTable) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	next.Block(generic.DropTableName)
	return next.Validate(stmt, env)
}

func (l DropTable) Warn(stmt change.Statement, env *logic.Environment, next logic.Next) logic.Warnings {
	next.Block(generic.DropTableName)
	var warnings logic.Warnings
	if s, err := logic.Expect[change.DropTable](stmt); err == nil && s.Cascade {
		warnings = warnings.Add("%s does not support CASCADE; dependent objects of %s are not dropped", env.DialectName(), s.TableName)
	}
	return append(warnings, next.Warn(stmt, env)...)
}

func (l DropTable) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	next.Block(generic.DropTableName)
	s, err := logic.Expect[change.DropTable](stmt)
	if err != nil {
		return nil, err
	}
	actions := []change.Action{change.Exec(fmt.Sprintf("DROP TABLE %s", s.TableName), s.Describe(), change.Table(s.TableName))}
	rest, err := next.GenerateActions(ctx, stmt, env)
	if err != nil {
		return nil, err
	}
	return append(actions, rest...), nil
}

// recreation is shared by the logic that rebuilds a table from its live
// definition. Its output depends on the database state when it runs.
type recreation struct{ dialectBase }

func (recreation) IsVolatile(*logic.Environment) bool { return true }

func (recreation) liveTable(ctx context.Context, env *logic.Environment, name string) (database.Table, error) {
	insp, ok := env.Introspector()
	if !ok {
		return database.Table{}, fmt.Errorf("rebuilding table %s requires a live connection", name)
	}
	table, exists, err := insp.GetTable(ctx, env.DB, name)
	if err != nil {
		return database.Table{}, err
	}
	if !exists {
		return database.Table{}, fmt.Errorf("table %s does not exist", name)
	}
	return table, nil
}

// ModifyColumn rebuilds the table with the new column definition
type ModifyColumn struct{ recreation }

func (l ModifyColumn) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.ModifyColumn](stmt)
	if err != nil {
		return logic.ValidationErrors{err.Error()}
	}
	var errs logic.ValidationErrors
	if len(s.Changes()) == 0 {
		errs = errs.Add("column %s.%s has no changes", s.TableName, s.New.Name)
	}
	errs = errs.Required("new column type", s.New.Type)
	return append(errs, next.Validate(stmt, env)...)
}

func (l ModifyColumn) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.ModifyColumn](stmt)
	if err != nil {
		return nil, err
	}
	current, err := l.liveTable(ctx, env, s.TableName)
	if err != nil {
		return nil, err
	}
	name := s.Old.Name
	if name == "" {
		name = s.New.Name
	}
	target, found := withColumn(current, name, s.New)
	if !found {
		return nil, fmt.Errorf("column %s.%s does not exist", s.TableName, name)
	}
	return RecreateTable(current, target, s.Describe()), nil
}

// AddForeignKey rebuilds the table with the constraint added
type AddForeignKey struct{ recreation }

func (l AddForeignKey) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.AddForeignKey](stmt)
	if err != nil {
		return logic.ValidationErrors{err.Error()}
	}
	return append(generic.ValidateForeignKey(s.ForeignKey), next.Validate(stmt, env)...)
}

func (l AddForeignKey) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.AddForeignKey](stmt)
	if err != nil {
		return nil, err
	}
	current, err := l.liveTable(ctx, env, s.TableName)
	if err != nil {
		return nil, err
	}
	return RecreateTable(current, withForeignKey(current, s.ForeignKey), s.Describe()), nil
}

// DropForeignKey rebuilds the table without the constraint
type DropForeignKey struct{ recreation }

func (l DropForeignKey) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.DropForeignKey](stmt)
	if err != nil {
		return nil, err
	}
	current, err := l.liveTable(ctx, env, s.TableName)
	if err != nil {
		return nil, err
	}
	target, found := withoutForeignKey(current, s.ConstraintName)
	if !found {
		return nil, fmt.Errorf("foreign key %s does not exist on %s", s.ConstraintName, s.TableName)
	}
	return RecreateTable(current, target, s.Describe()), nil
}
