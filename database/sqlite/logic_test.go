package sqlite

import (
	"context"
	"database/sql"
	"strings"
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

func apply(t *testing.T, db *sql.DB, actions []change.Action) {
	t.Helper()
	for _, a := range actions {
		_, err := db.Exec(a.SQL)
		require.NoError(t, err, a.SQL)
	}
}

func TestLogics_RecreationIsVolatile(t *testing.T) {
	env := &logic.Environment{Dialect: NewDialect()}
	volatile := map[string]bool{}
	for _, l := range Logics() {
		volatile[l.Name()] = l.IsVolatile(env)
	}
	assert.Equal(t, map[string]bool{
		CreateTableName:    false,
		DropTableName:      false,
		ModifyColumnName:   true,
		AddForeignKeyName:  true,
		DropForeignKeyName: true,
	}, volatile)
}

func TestDropTable_BlocksGenericCascade(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewDialect()}
	stmt := change.DropTable{TableName: "posts", Cascade: true}

	chain, err := d.Chain(stmt, env)
	require.NoError(t, err)
	assert.Equal(t, []string{generic.NameValidatorName, DropTableName, generic.DropTableName}, chain)

	errs, err := d.Validate(stmt, env)
	require.NoError(t, err)
	assert.Empty(t, errs, "generic cascade check must be blocked")

	warnings, err := d.Warn(stmt, env)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "CASCADE")

	actions, err := d.GenerateActions(context.Background(), stmt, env)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "DROP TABLE posts", actions[0].SQL)
}

func TestDropTable_GenericOnOtherDialects(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: fakePostgres{}}

	actions, err := d.GenerateActions(context.Background(), change.DropTable{TableName: "posts", Cascade: true}, env)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "DROP TABLE posts CASCADE", actions[0].SQL)
}

func TestCreateTable_PrimaryKeyOrder(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewLibSQLDialect()}
	stmt := change.CreateTable{Table: database.Table{
		Name:    "users",
		Columns: []database.Column{{Name: "id", Type: "integer", IsPrimaryKey: true}},
	}}

	actions, err := d.GenerateActions(context.Background(), stmt, env)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].SQL, "id integer PRIMARY KEY NOT NULL")
}

func TestModifyColumn_RecreatesTable(t *testing.T) {
	db := getTestDB(t)
	d := newDispatcher(t)
	ctx := context.Background()
	env := &logic.Environment{Dialect: NewDialect(), DB: db}

	mustExec(t, db,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT)`,
		`CREATE INDEX idx_users_email ON users (email)`,
		`INSERT INTO users (id, email) VALUES (1, 'a@example.com'), (2, 'b@example.com')`,
	)

	stmt := change.ModifyColumn{
		TableName: "users",
		Old:       database.Column{Name: "email", Type: "TEXT", Nullable: true},
		New:       database.Column{Name: "email", Type: "TEXT"},
	}

	volatile, err := d.IsVolatile(stmt, env)
	require.NoError(t, err)
	assert.True(t, volatile)

	errs, err := d.Validate(stmt, env)
	require.NoError(t, err)
	require.Empty(t, errs)

	actions, err := d.GenerateActions(ctx, stmt, env)
	require.NoError(t, err)
	apply(t, db, actions)

	table, ok, err := NewIntrospector().GetTable(ctx, db, "users")
	require.NoError(t, err)
	require.True(t, ok)
	email, found := table.FindColumn("email")
	require.True(t, found)
	assert.False(t, email.Nullable)
	require.Len(t, table.Indexes, 1)
	assert.Equal(t, "idx_users_email", table.Indexes[0].Name)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestModifyColumn_RequiresConnection(t *testing.T) {
	d := newDispatcher(t)
	env := &logic.Environment{Dialect: NewDialect()}
	stmt := change.ModifyColumn{
		TableName: "users",
		Old:       database.Column{Name: "email", Type: "TEXT", Nullable: true},
		New:       database.Column{Name: "email", Type: "TEXT"},
	}

	_, err := d.GenerateActions(context.Background(), stmt, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live connection")
}

func TestForeignKeys_RecreateTable(t *testing.T) {
	db := getTestDB(t)
	d := newDispatcher(t)
	ctx := context.Background()
	env := &logic.Environment{Dialect: NewDialect(), DB: db}

	mustExec(t, db,
		`CREATE TABLE users (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER)`,
		`INSERT INTO users (id) VALUES (1)`,
		`INSERT INTO posts (id, user_id) VALUES (10, 1)`,
	)

	add := change.AddForeignKey{TableName: "posts", ForeignKey: database.ForeignKey{
		Name:              "fk_posts_user",
		Columns:           []string{"user_id"},
		ReferencedTable:   "users",
		ReferencedColumns: []string{"id"},
	}}
	actions, err := d.GenerateActions(ctx, add, env)
	require.NoError(t, err)
	apply(t, db, actions)

	posts, ok, err := NewIntrospector().GetTable(ctx, db, "posts")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, posts.ForeignKeys, 1)
	assert.Equal(t, "fk_posts_user", posts.ForeignKeys[0].Name)

	actions, err = d.GenerateActions(ctx, change.DropForeignKey{TableName: "posts", ConstraintName: "fk_posts_user"}, env)
	require.NoError(t, err)
	apply(t, db, actions)

	posts, _, err = NewIntrospector().GetTable(ctx, db, "posts")
	require.NoError(t, err)
	assert.Empty(t, posts.ForeignKeys)

	_, err = d.GenerateActions(ctx, change.DropForeignKey{TableName: "posts", ConstraintName: "fk_missing"}, env)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "fk_missing"))
}

type fakePostgres struct{}

func (fakePostgres) Name() string                        { return database.DialectPostgres }
func (fakePostgres) SupportsFeature(string) bool         { return true }
func (fakePostgres) Placeholder(int) string              { return "$1" }
func (fakePostgres) Introspector() database.Introspector { return nil }
