package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/database/generic"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

func newDispatcher(t *testing.T) *logic.Dispatcher {
	t.Helper()
	registry := logic.NewRegistry()
	require.NoError(t, registry.RegisterAll(generic.Logics()...))
	require.NoError(t, registry.RegisterAll(Logics()...))
	return logic.NewDispatcher(registry)
}

func sqlOf(actions []change.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.SQL
	}
	return out
}

func TestModifyColumn_TypeChangeUsesCastThenDelegates(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewDialect()}
	stmt := change.ModifyColumn{
		TableName: "users",
		Old:       database.Column{Name: "age", Type: "text", Nullable: true},
		New:       database.Column{Name: "age", Type: "integer"},
	}

	actions, err := d.GenerateActions(context.Background(), stmt, env)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"ALTER TABLE users ALTER COLUMN age TYPE integer USING age::integer",
		"ALTER TABLE users ALTER COLUMN age SET NOT NULL",
	}, sqlOf(actions))
}

func TestModifyColumn_WithoutTypeChangeIsGeneric(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewDialect()}
	stmt := change.ModifyColumn{
		TableName: "users",
		Old:       database.Column{Name: "age", Type: "integer"},
		New:       database.Column{Name: "age", Type: "integer", Nullable: true},
	}

	actions, err := d.GenerateActions(context.Background(), stmt, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALTER TABLE users ALTER COLUMN age DROP NOT NULL"}, sqlOf(actions))
}

func TestCreateIndex_Concurrently(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewDialect()}
	stmt := change.CreateIndex{
		TableName:    "users",
		Index:        database.Index{Name: "idx_users_email", Columns: []string{"email"}},
		Concurrently: true,
	}

	errs, err := d.Validate(stmt, env)
	require.NoError(t, err)
	assert.Empty(t, errs, "concurrently is accepted on postgres")

	actions, err := d.GenerateActions(context.Background(), stmt, env)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "CREATE INDEX CONCURRENTLY idx_users_email ON users (email)", actions[0].SQL)
	assert.True(t, actions[0].NonTransactional)

	warnings, err := d.Warn(stmt, env)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestCreateIndex_ConcurrentlyRejectedElsewhere(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: otherDialect{}}
	stmt := change.CreateIndex{
		TableName:    "users",
		Index:        database.Index{Name: "idx_users_email", Columns: []string{"email"}},
		Concurrently: true,
	}

	errs, err := d.Validate(stmt, env)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "concurrently")
}

func TestRawSQL_ValidatesSyntax(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewDialect()}

	errs, err := d.Validate(change.RawSQL{SQL: "CREATE TABLE t (id integer); SELEC 1", Split: true}, env)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "SELEC 1")

	warnings, err := d.Warn(change.RawSQL{SQL: "TRUNCATE audit_log"}, env)
	require.NoError(t, err)
	assert.Contains(t, warnings, "TRUNCATE audit_log deletes all rows")
}

func TestLockImpactWarner(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewDialect()}

	warnings, err := d.Warn(change.AddColumn{TableName: "users", Column: database.Column{Name: "bio", Type: "text", Nullable: true}}, env)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ACCESS EXCLUSIVE")

	warnings, err = d.Warn(change.CreateTable{Table: database.Table{Name: "t", Columns: []database.Column{{Name: "id", Type: "integer"}}}}, env)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// not part of the chain on other dialects
	warnings, err = d.Warn(change.DropTable{TableName: "users"}, &logic.Environment{Dialect: otherDialect{}})
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

type otherDialect struct{}

func (otherDialect) Name() string                        { return "h2" }
func (otherDialect) SupportsFeature(string) bool         { return true }
func (otherDialect) Placeholder(int) string              { return "?" }
func (otherDialect) Introspector() database.Introspector { return nil }
