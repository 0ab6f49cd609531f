package generic

import (
	"context"
	"fmt"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

// Canonical logic names
const (
	CreateTableName    = "generic.create_table"
	DropTableName      = "generic.drop_table"
	AddColumnName      = "generic.add_column"
	DropColumnName     = "generic.drop_column"
	ModifyColumnName   = "generic.modify_column"
	CreateIndexName    = "generic.create_index"
	DropIndexName      = "generic.drop_index"
	AddForeignKeyName  = "generic.add_foreign_key"
	DropForeignKeyName = "generic.drop_foreign_key"
	RawSQLName         = "generic.raw_sql"
	TagDatabaseName    = "generic.tag_database"
)

// Logics returns the generic logic catalog
func Logics() []logic.Logic {
	return []logic.Logic{
		NewNameValidator(),
		CreateTable{base(CreateTableName, change.CreateTableType)},
		DropTable{base(DropTableName, change.DropTableType)},
		AddColumn{base(AddColumnName, change.AddColumnType)},
		DropColumn{base(DropColumnName, change.DropColumnType)},
		ModifyColumn{base(ModifyColumnName, change.ModifyColumnType)},
		CreateIndex{base(CreateIndexName, change.CreateIndexType)},
		DropIndex{base(DropIndexName, change.DropIndexType)},
		AddForeignKey{base(AddForeignKeyName, change.AddForeignKeyType)},
		DropForeignKey{base(DropForeignKeyName, change.DropForeignKeyType)},
		RawSQL{base(RawSQLName, change.RawSQLType)},
		TagDatabase{base(TagDatabaseName, change.TagDatabaseType)},
	}
}

func base(name string, t change.StatementType) logic.Base {
	return logic.Base{LogicName: name, Handles: t, Rank: logic.PriorityDefault}
}

func mismatch(err error) logic.ValidationErrors {
	return logic.ValidationErrors{err.Error()}
}

// CreateTable emits CREATE TABLE followed by CREATE INDEX for declared indexes
type CreateTable struct{ logic.Base }

func (l CreateTable) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.CreateTable](stmt)
	if err != nil {
		return mismatch(err)
	}
	var errs logic.ValidationErrors
	if len(s.Table.Columns) == 0 {
		errs = errs.Add("table %s must have at least one column", s.Table.Name)
	}
	for _, col := range s.Table.Columns {
		errs = errs.Required(fmt.Sprintf("type of column %s", col.Name), col.Type)
	}
	errs = errs.Disallowed("foreign keys", len(s.Table.ForeignKeys) > 0 && !env.SupportsFeature(database.FeatureForeignKeys), env.DialectName())
	return append(errs, next.Validate(stmt, env)...)
}

func (l CreateTable) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.CreateTable](stmt)
	if err != nil {
		return nil, err
	}
	return CreateTableActions(s, FormatColumnDefinition), nil
}

// CreateTableActions renders a create_table statement with the given column formatter
func CreateTableActions(s change.CreateTable, format ColumnFormatter) []change.Action {
	actions := []change.Action{
		change.Exec(CreateTableSQL(s.Table, format), s.Describe(), change.Table(s.Table.Name)),
	}
	for _, idx := range s.Table.Indexes {
		actions = append(actions, change.Exec(
			CreateIndexSQL(s.Table.Name, idx),
			fmt.Sprintf("Create index %s on table %s", idx.Name, s.Table.Name),
			change.Index(s.Table.Name, idx.Name),
		))
	}
	return actions
}

// DropTable emits DROP TABLE, with CASCADE when requested and supported
type DropTable struct{ logic.Base }

func (l DropTable) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.DropTable](stmt)
	if err != nil {
		return mismatch(err)
	}
	errs := logic.ValidationErrors(nil).Disallowed("cascade", s.Cascade && !env.SupportsFeature(database.FeatureCascade), env.DialectName())
	return append(errs, next.Validate(stmt, env)...)
}

func (l DropTable) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.DropTable](stmt)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("DROP TABLE %s", s.TableName)
	if s.Cascade {
		sql += " CASCADE"
	}
	return []change.Action{change.Exec(sql, s.Describe(), change.Table(s.TableName))}, nil
}

// AddColumn emits ALTER TABLE ... ADD COLUMN
type AddColumn struct{ logic.Base }

func (l AddColumn) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.AddColumn](stmt)
	if err != nil {
		return mismatch(err)
	}
	errs := logic.ValidationErrors(nil).Required("column type", s.Column.Type)
	return append(errs, next.Validate(stmt, env)...)
}

func (l AddColumn) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.AddColumn](stmt)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", s.TableName, FormatColumnDefinition(s.Column))
	return []change.Action{change.Exec(sql, s.Describe(), change.Column(s.TableName, s.Column.Name))}, nil
}

// DropColumn emits ALTER TABLE ... DROP COLUMN where the dialect allows it
type DropColumn struct{ logic.Base }

func (l DropColumn) Supports(stmt change.Statement, env *logic.Environment) bool {
	return env.SupportsFeature(database.FeatureDropColumn)
}

func (l DropColumn) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.DropColumn](stmt)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", s.TableName, s.ColumnName)
	return []change.Action{change.Exec(sql, s.Describe(), change.Column(s.TableName, s.ColumnName))}, nil
}

// ModifyColumn emits ALTER COLUMN clauses for each changed aspect. It
// applies only where the dialect can alter every changed aspect in place.
type ModifyColumn struct{ logic.Base }

var modifyFeatures = map[string]string{
	"type":     database.FeatureAlterColumnType,
	"nullable": database.FeatureAlterColumnNullable,
	"default":  database.FeatureAlterColumnDefault,
}

func (l ModifyColumn) Supports(stmt change.Statement, env *logic.Environment) bool {
	s, err := logic.Expect[change.ModifyColumn](stmt)
	if err != nil {
		return false
	}
	for _, c := range s.Changes() {
		if !env.SupportsFeature(modifyFeatures[c]) {
			return false
		}
	}
	return true
}

func (l ModifyColumn) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.ModifyColumn](stmt)
	if err != nil {
		return mismatch(err)
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
	return ModifyColumnActions(s, ""), nil
}

// ModifyColumnActions renders one ALTER COLUMN action per changed aspect.
// using is appended to a type change when non-empty.
func ModifyColumnActions(s change.ModifyColumn, using string) []change.Action {
	var actions []change.Action
	col := s.New.Name
	affects := change.Column(s.TableName, col)
	for _, c := range s.Changes() {
		switch c {
		case "type":
			sql := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", s.TableName, col, s.New.Type)
			if using != "" {
				sql += " USING " + using
			}
			actions = append(actions, change.Exec(sql,
				fmt.Sprintf("Change type of %s.%s from %s to %s", s.TableName, col, s.Old.Type, s.New.Type), affects))
		case "nullable":
			sql := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", s.TableName, col)
			if s.New.Nullable {
				sql = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", s.TableName, col)
			}
			actions = append(actions, change.Exec(sql,
				fmt.Sprintf("Change nullability of %s.%s to %t", s.TableName, col, s.New.Nullable), affects))
		case "default":
			sql := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", s.TableName, col)
			if s.New.Default != nil {
				sql = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", s.TableName, col, *s.New.Default)
			}
			actions = append(actions, change.Exec(sql,
				fmt.Sprintf("Change default of %s.%s", s.TableName, col), affects))
		}
	}
	return actions
}

// CreateIndex emits CREATE [UNIQUE] INDEX
type CreateIndex struct{ logic.Base }

func (l CreateIndex) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.CreateIndex](stmt)
	if err != nil {
		return mismatch(err)
	}
	var errs logic.ValidationErrors
	if len(s.Index.Columns) == 0 {
		errs = errs.Add("index %s must have at least one column", s.Index.Name)
	}
	errs = errs.Disallowed("concurrently", s.Concurrently, env.DialectName())
	return append(errs, next.Validate(stmt, env)...)
}

func (l CreateIndex) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.CreateIndex](stmt)
	if err != nil {
		return nil, err
	}
	return []change.Action{change.Exec(CreateIndexSQL(s.TableName, s.Index), s.Describe(), change.Index(s.TableName, s.Index.Name))}, nil
}

// DropIndex emits DROP INDEX
type DropIndex struct{ logic.Base }

func (l DropIndex) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.DropIndex](stmt)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("DROP INDEX %s", s.IndexName)
	return []change.Action{change.Exec(sql, s.Describe(), change.Index(s.TableName, s.IndexName))}, nil
}

// AddForeignKey emits ALTER TABLE ... ADD CONSTRAINT where the dialect allows it
type AddForeignKey struct{ logic.Base }

func (l AddForeignKey) Supports(stmt change.Statement, env *logic.Environment) bool {
	return env.SupportsFeature(database.FeatureAlterAddForeignKey)
}

func (l AddForeignKey) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.AddForeignKey](stmt)
	if err != nil {
		return mismatch(err)
	}
	errs := ValidateForeignKey(s.ForeignKey)
	return append(errs, next.Validate(stmt, env)...)
}

// ValidateForeignKey checks column lists are present and aligned
func ValidateForeignKey(fk database.ForeignKey) logic.ValidationErrors {
	var errs logic.ValidationErrors
	if len(fk.Columns) == 0 {
		errs = errs.Add("foreign key %s must have at least one column", fk.Name)
	}
	if len(fk.Columns) != len(fk.ReferencedColumns) {
		errs = errs.Add("foreign key %s has %d columns but references %d", fk.Name, len(fk.Columns), len(fk.ReferencedColumns))
	}
	return errs
}

func (l AddForeignKey) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.AddForeignKey](stmt)
	if err != nil {
		return nil, err
	}
	return []change.Action{change.Exec(AddForeignKeySQL(s.TableName, s.ForeignKey), s.Describe(),
		change.ForeignKey(s.TableName, s.ForeignKey.Name))}, nil
}

// DropForeignKey emits ALTER TABLE ... DROP CONSTRAINT where the dialect allows it
type DropForeignKey struct{ logic.Base }

func (l DropForeignKey) Supports(stmt change.Statement, env *logic.Environment) bool {
	return env.SupportsFeature(database.FeatureAlterAddForeignKey)
}

func (l DropForeignKey) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.DropForeignKey](stmt)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", s.TableName, s.ConstraintName)
	return []change.Action{change.Exec(sql, s.Describe(), change.ForeignKey(s.TableName, s.ConstraintName))}, nil
}

// RawSQL passes hand-written SQL through, one action per part
type RawSQL struct{ logic.Base }

func (l RawSQL) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.RawSQL](stmt)
	if err != nil {
		return mismatch(err)
	}
	var errs logic.ValidationErrors
	if len(s.Parts()) == 0 {
		errs = errs.Add("sql is required")
	}
	return append(errs, next.Validate(stmt, env)...)
}

func (l RawSQL) GenerateActions(ctx context.Context, stmt change.Statement, env *logic.Environment, next logic.Next) ([]change.Action, error) {
	s, err := logic.Expect[change.RawSQL](stmt)
	if err != nil {
		return nil, err
	}
	var actions []change.Action
	for _, part := range s.Parts() {
		actions = append(actions, change.Exec(part, s.Describe()))
	}
	return actions, nil
}

// TagDatabase produces no actions; the ledger row records the tag
type TagDatabase struct{ logic.Base }

func (l TagDatabase) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	s, err := logic.Expect[change.TagDatabase](stmt)
	if err != nil {
		return mismatch(err)
	}
	errs := logic.ValidationErrors(nil).Required("tag", s.Tag)
	return append(errs, next.Validate(stmt, env)...)
}

func (l TagDatabase) GenerateActions(context.Context, change.Statement, *logic.Environment, logic.Next) ([]change.Action, error) {
	return nil, nil
}
