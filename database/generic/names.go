package generic

import (
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

// NameValidatorName is the canonical name of the identifier validator
const NameValidatorName = "generic.identifier_names"

// maxIdentifierLength is the shortest limit among supported dialects
// (PostgreSQL's NAMEDATALEN - 1)
const maxIdentifierLength = 63

// NameValidator rejects empty or over-long identifiers on every statement,
// then delegates to the rest of the chain.
type NameValidator struct{ logic.Base }

// NewNameValidator creates the cross-cutting identifier validator
func NewNameValidator() NameValidator {
	return NameValidator{logic.Base{LogicName: NameValidatorName, Handles: change.AnyStatement, Rank: logic.PriorityCrossCutting}}
}

func (l NameValidator) Validate(stmt change.Statement, env *logic.Environment, next logic.Next) logic.ValidationErrors {
	var errs logic.ValidationErrors
	for _, id := range Identifiers(stmt) {
		name := strings.TrimSpace(id.Value)
		switch {
		case name == "":
			errs = errs.Add("%s is required", id.Field)
		case len(name) > maxIdentifierLength:
			errs = errs.Add("%s %q is longer than %d characters", id.Field, name, maxIdentifierLength)
		case strings.ContainsAny(name, " \t\n\"'`;"):
			errs = errs.Add("%s %q contains characters that require quoting", id.Field, name)
		}
	}
	return append(errs, next.Validate(stmt, env)...)
}

// Identifier is one named schema object referenced by a statement
type Identifier struct {
	Field string
	Value string
}

// Identifiers lists the identifiers a statement references
func Identifiers(stmt change.Statement) []Identifier {
	switch s := stmt.(type) {
	case change.CreateTable:
		ids := []Identifier{{"table name", s.Table.Name}}
		for i, col := range s.Table.Columns {
			ids = append(ids, Identifier{fmt.Sprintf("name of column %d", i+1), col.Name})
		}
		for i, idx := range s.Table.Indexes {
			ids = append(ids, Identifier{fmt.Sprintf("name of index %d", i+1), idx.Name})
		}
		for i, fk := range s.Table.ForeignKeys {
			ids = append(ids, Identifier{fmt.Sprintf("name of foreign key %d", i+1), fk.Name})
			ids = append(ids, Identifier{fmt.Sprintf("referenced table of foreign key %d", i+1), fk.ReferencedTable})
		}
		return ids
	case change.DropTable:
		return []Identifier{{"table name", s.TableName}}
	case change.AddColumn:
		return []Identifier{{"table name", s.TableName}, {"column name", s.Column.Name}}
	case change.DropColumn:
		return []Identifier{{"table name", s.TableName}, {"column name", s.ColumnName}}
	case change.ModifyColumn:
		return []Identifier{{"table name", s.TableName}, {"column name", s.New.Name}}
	case change.CreateIndex:
		return []Identifier{{"table name", s.TableName}, {"index name", s.Index.Name}}
	case change.DropIndex:
		return []Identifier{{"table name", s.TableName}, {"index name", s.IndexName}}
	case change.AddForeignKey:
		return []Identifier{
			{"table name", s.TableName},
			{"foreign key name", s.ForeignKey.Name},
			{"referenced table", s.ForeignKey.ReferencedTable},
		}
	case change.DropForeignKey:
		return []Identifier{{"table name", s.TableName}, {"foreign key name", s.ConstraintName}}
	default:
		return nil
	}
}
