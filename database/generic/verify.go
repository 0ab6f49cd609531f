package generic

import (
	"context"
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

func lookupTable(ctx context.Context, env *logic.Environment, name string, status *change.ActionStatus) (database.Table, bool) {
	insp, ok := env.Introspector()
	if !ok {
		status.Add(change.CannotVerify, "no live connection to introspect")
		return database.Table{}, false
	}
	table, exists, err := insp.GetTable(ctx, env.DB, name)
	if err != nil {
		status.Add(change.Unknown, fmt.Sprintf("failed to read table %s: %v", name, err))
		return database.Table{}, false
	}
	status.AssertApplied(exists, fmt.Sprintf("table %s does not exist", name))
	return table, exists
}

func checkColumn(table database.Table, want database.Column, status *change.ActionStatus) {
	got, found := table.FindColumn(want.Name)
	status.AssertApplied(found, fmt.Sprintf("column %s.%s does not exist", table.Name, want.Name))
	if found && !want.IsPrimaryKey {
		status.AssertCorrect(got.Nullable == want.Nullable,
			fmt.Sprintf("column %s.%s nullable is %t, expected %t", table.Name, want.Name, got.Nullable, want.Nullable))
	}
}

// CheckStatus verifies the table and its columns exist
func (l CreateTable) CheckStatus(ctx context.Context, stmt change.Statement, env *logic.Environment) *change.ActionStatus {
	status := change.NewActionStatus()
	s, err := logic.Expect[change.CreateTable](stmt)
	if err != nil {
		return status.Add(change.Unknown, err.Error())
	}
	table, ok := lookupTable(ctx, env, s.Table.Name, status)
	if !ok {
		return status
	}
	for _, col := range s.Table.Columns {
		checkColumn(table, col, status)
	}
	return status
}

// CheckStatus verifies the column exists with the declared nullability
func (l AddColumn) CheckStatus(ctx context.Context, stmt change.Statement, env *logic.Environment) *change.ActionStatus {
	status := change.NewActionStatus()
	s, err := logic.Expect[change.AddColumn](stmt)
	if err != nil {
		return status.Add(change.Unknown, err.Error())
	}
	if table, ok := lookupTable(ctx, env, s.TableName, status); ok {
		checkColumn(table, s.Column, status)
	}
	return status
}

// CheckStatus verifies an index with the declared name exists on the table
func (l CreateIndex) CheckStatus(ctx context.Context, stmt change.Statement, env *logic.Environment) *change.ActionStatus {
	status := change.NewActionStatus()
	s, err := logic.Expect[change.CreateIndex](stmt)
	if err != nil {
		return status.Add(change.Unknown, err.Error())
	}
	table, ok := lookupTable(ctx, env, s.TableName, status)
	if !ok {
		return status
	}
	for _, idx := range table.Indexes {
		if strings.EqualFold(idx.Name, s.Index.Name) {
			status.AssertCorrect(idx.Unique == s.Index.Unique,
				fmt.Sprintf("index %s unique is %t, expected %t", idx.Name, idx.Unique, s.Index.Unique))
			return status
		}
	}
	return status.Add(change.NotApplied, fmt.Sprintf("index %s does not exist on %s", s.Index.Name, s.TableName))
}
