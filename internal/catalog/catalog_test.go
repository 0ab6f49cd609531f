package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/database/postgres"
	"github.com/lockplane/changeplane/database/sqlite"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

func TestEveryStatementTypeIsSupported(t *testing.T) {
	d, err := NewDispatcher()
	require.NoError(t, err)

	stmts := []change.Statement{
		change.CreateTable{Table: database.Table{Name: "t", Columns: []database.Column{{Name: "id", Type: "integer"}}}},
		change.DropTable{TableName: "t"},
		change.AddColumn{TableName: "t", Column: database.Column{Name: "c", Type: "text"}},
		change.DropColumn{TableName: "t", ColumnName: "c"},
		change.CreateIndex{TableName: "t", Index: database.Index{Name: "i", Columns: []string{"c"}}},
		change.DropIndex{TableName: "t", IndexName: "i"},
		change.RawSQL{SQL: "SELECT 1"},
		change.TagDatabase{Tag: "v1"},
	}
	dialects := []database.Dialect{postgres.NewDialect(), sqlite.NewDialect(), sqlite.NewLibSQLDialect()}

	for _, dialect := range dialects {
		env := &logic.Environment{Dialect: dialect}
		for _, stmt := range stmts {
			assert.True(t, d.Supports(stmt, env), "%s on %s", stmt.Type(), dialect.Name())
		}
	}
}

func TestDispatchOrderIsStable(t *testing.T) {
	first, err := NewDispatcher()
	require.NoError(t, err)
	second, err := NewDispatcher()
	require.NoError(t, err)

	env := &logic.Environment{Dialect: postgres.NewDialect()}
	stmt := change.CreateIndex{TableName: "t", Index: database.Index{Name: "i", Columns: []string{"c"}}}

	a, err := first.Chain(stmt, env)
	require.NoError(t, err)
	b, err := second.Chain(stmt, env)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"generic.identifier_names", "postgres.lock_impact", "postgres.create_index", "generic.create_index"}, a)
}

func TestModifyColumnGenerationIsVolatileOnlyOnSQLite(t *testing.T) {
	d, err := NewDispatcher()
	require.NoError(t, err)
	stmt := change.ModifyColumn{
		TableName: "t",
		Old:       database.Column{Name: "c", Type: "text", Nullable: true},
		New:       database.Column{Name: "c", Type: "text"},
	}

	volatile, err := d.IsVolatile(stmt, &logic.Environment{Dialect: sqlite.NewDialect()})
	require.NoError(t, err)
	assert.True(t, volatile)

	volatile, err = d.IsVolatile(stmt, &logic.Environment{Dialect: postgres.NewDialect()})
	require.NoError(t, err)
	assert.False(t, volatile)

	actions, err := d.GenerateActions(context.Background(), stmt, &logic.Environment{Dialect: postgres.NewDialect()})
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}
