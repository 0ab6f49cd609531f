package changelog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
)

func TestIdentityNormalization(t *testing.T) {
	a := NewIdentity("Create-Users", "Alice", "classpath:db/changelog.yaml")
	b := NewIdentity("create-users", "ALICE", "./db/changelog.yaml")
	c := NewIdentity("create-users", "alice", "db\\changelog.yaml")
	d := NewIdentity("create-users", "alice", "/db/changelog.yaml")

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.True(t, a.Equal(d))
	assert.False(t, a.Equal(NewIdentity("create-users", "bob", "db/changelog.yaml")))
	assert.Equal(t, "db/changelog.yaml::Create-Users::Alice", a.String())
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"changelog.yaml":            "changelog.yaml",
		"CLASSPATH:a/b.yaml":        "a/b.yaml",
		"././a/../b/c.json":         "b/c.json",
		`C:\repo\db\changelog.yml`: "C:/repo/db/changelog.yml",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), "NormalizePath(%q)", in)
	}
}

func sampleChangeSet() *ChangeSet {
	return &ChangeSet{
		ID:       "1",
		Author:   "alice",
		FilePath: "changelog.yaml",
		Statements: []change.Statement{
			change.CreateTable{Table: database.Table{Name: "users", Columns: []database.Column{{Name: "id", Type: "integer", IsPrimaryKey: true}}}},
			change.RawSQL{SQL: "INSERT INTO users (id) VALUES (1)"},
		},
	}
}

func TestChecksumIsStable(t *testing.T) {
	cs := sampleChangeSet()
	first, err := cs.Checksum()
	require.NoError(t, err)
	second, err := cs.Checksum()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Regexp(t, `^x1:[0-9a-f]{16}$`, first)
}

func TestChecksumChangesWithContent(t *testing.T) {
	base, err := sampleChangeSet().Checksum()
	require.NoError(t, err)

	edited := sampleChangeSet()
	edited.Statements[0] = change.CreateTable{Table: database.Table{Name: "users", Columns: []database.Column{{Name: "id", Type: "bigint", IsPrimaryKey: true}}}}
	sum, err := edited.Checksum()
	require.NoError(t, err)
	assert.NotEqual(t, base, sum)

	flagged := sampleChangeSet()
	flagged.Statements[1] = change.RawSQL{Options: change.Options{IgnoreFailure: true}, SQL: "INSERT INTO users (id) VALUES (1)"}
	sum, err = flagged.Checksum()
	require.NoError(t, err)
	assert.NotEqual(t, base, sum)
}

func TestChecksumIgnoresIdentityAndFormatting(t *testing.T) {
	base, err := sampleChangeSet().Checksum()
	require.NoError(t, err)

	moved := sampleChangeSet()
	moved.ID = "other"
	moved.Contexts = "prod"
	moved.Statements[1] = change.RawSQL{SQL: "INSERT INTO users (id)\n    VALUES (1)"}
	sum, err := moved.Checksum()
	require.NoError(t, err)
	assert.Equal(t, base, sum)
}

func TestChecksumMatches(t *testing.T) {
	cs := sampleChangeSet()
	current, err := cs.Checksum()
	require.NoError(t, err)

	ok, err := cs.ChecksumMatches(current)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = cs.ChecksumMatches("x1:0000000000000000")
	assert.False(t, ok)

	cs.ValidCheckSums = []string{"x1:0000000000000000"}
	ok, _ = cs.ChecksumMatches("x1:0000000000000000")
	assert.True(t, ok)

	cs.ValidCheckSums = []string{"any"}
	ok, _ = cs.ChecksumMatches("x1:ffffffffffffffff")
	assert.True(t, ok)
}

func TestMatchesDbms(t *testing.T) {
	assert.True(t, MatchesDbms("", "sqlite"))
	assert.True(t, MatchesDbms("postgres, sqlite3", "sqlite"))
	assert.False(t, MatchesDbms("postgresql", "sqlite"))
	assert.True(t, MatchesDbms("all", "sqlite"))
	assert.False(t, MatchesDbms("none", "sqlite"))
	assert.False(t, MatchesDbms("!sqlite", "sqlite"))
	assert.True(t, MatchesDbms("!sqlite", "postgresql"))
	assert.False(t, MatchesDbms("all, !pg", "postgresql"))
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cl := New("changelog.yaml")
	cl.Add(&ChangeSet{ID: "1", Author: "alice"})
	cl.Add(&ChangeSet{ID: "1", Author: "ALICE", FilePath: "./changelog.yaml"})

	err := cl.Validate()
	var dup *DuplicateChangeSetError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, CodeDuplicateChangeSet, dup.Code())
}

func TestIncludeInheritsIgnoreAndOrder(t *testing.T) {
	root := New("root.yaml")
	root.Add(&ChangeSet{ID: "1", Author: "a"})
	child := New("child.yaml")
	child.Ignore = true
	child.Contexts = "prod"
	child.Add(&ChangeSet{ID: "2", Author: "a"})
	require.NoError(t, root.Include(child))
	root.Add(&ChangeSet{ID: "3", Author: "a"})

	sets := root.ChangeSets()
	require.Len(t, sets, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{sets[0].ID, sets[1].ID, sets[2].ID})
	assert.False(t, sets[0].Ignored())
	assert.True(t, sets[1].Ignored())
	assert.Equal(t, []string{"prod"}, sets[1].InheritedContexts())
	assert.Equal(t, "child.yaml", sets[1].FilePath)

	assert.Error(t, child.Include(root), "include cycle")
}

func TestRollbackStatements(t *testing.T) {
	cs := sampleChangeSet()
	stmts, missing := cs.RollbackStatements()
	assert.Equal(t, []string{"Custom SQL"}, missing)
	assert.Equal(t, []change.Statement{change.DropTable{TableName: "users"}}, stmts)

	cs.Rollback = []change.Statement{change.RawSQL{SQL: "DROP TABLE users"}}
	stmts, missing = cs.RollbackStatements()
	assert.Empty(t, missing)
	assert.Len(t, stmts, 1)
}

func TestApplyVisitors(t *testing.T) {
	actions := []change.Action{change.Exec("CREATE TABLE users (id integer)", "")}
	visitors := []SQLVisitor{
		{Kind: VisitorReplace, Replace: "integer", With: "bigint"},
		{Kind: VisitorAppend, Value: " STRICT"},
		{Kind: VisitorRegexp, Replace: `^CREATE`, With: "create", ApplyToRollback: true},
	}
	out, err := ApplyVisitors(actions, visitors, false)
	require.NoError(t, err)
	assert.Equal(t, "create TABLE users (id bigint) STRICT", out[0].SQL)
	assert.Equal(t, "CREATE TABLE users (id integer)", actions[0].SQL, "input is not mutated")

	out, err = ApplyVisitors(actions, visitors, true)
	require.NoError(t, err)
	assert.Equal(t, "create TABLE users (id integer)", out[0].SQL)
}

func TestLoadYAMLWithInclude(t *testing.T) {
	dir := t.TempDir()
	root := `
changelog:
  - changeset:
      id: 1
      author: alice
      contexts: prod
      changes:
        - create_table:
            table:
              name: users
              columns:
                - {name: id, type: integer, is_primary_key: true}
      rollback:
        - drop_table: {table_name: users}
  - include:
      file: more/extra.json
      ignore: true
`
	extra := `{"changelog": [{"changeset": {"id": "2", "author": "bob", "run_on_change": true,
  "changes": [{"raw_sql": {"sql": "SELECT 1", "continue_on_error": true}}],
  "sql_visitors": [{"kind": "append", "value": " -- x", "dbms": "sqlite"}]}}]}`
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "more"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "changelog.yaml"), []byte(root), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "more", "extra.json"), []byte(extra), 0o644))

	cl, err := Load(filepath.Join(dir, "changelog.yaml"))
	require.NoError(t, err)
	sets := cl.ChangeSets()
	require.Len(t, sets, 2)

	assert.Equal(t, "1", sets[0].ID)
	assert.Equal(t, "prod", sets[0].Contexts)
	require.Len(t, sets[0].Statements, 1)
	assert.Equal(t, change.CreateTableType, sets[0].Statements[0].Type())
	require.Len(t, sets[0].Rollback, 1)

	assert.Equal(t, "bob", sets[1].Author)
	assert.True(t, sets[1].RunOnChange)
	assert.True(t, sets[1].Ignored())
	assert.True(t, sets[1].Statements[0].ContinueOnError())
	require.Len(t, sets[1].Visitors, 1)
	assert.Equal(t, "sqlite", sets[1].Visitors[0].Dbms)
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	files := map[string]string{
		"bad.yaml": "changelog:\n  - changeset: {id: 1, changes: []}\n",
	}
	ld := &Loader{ReadFile: func(name string) ([]byte, error) {
		data, ok := files[filepath.ToSlash(name)]
		if !ok {
			return nil, fmt.Errorf("no such file %s", name)
		}
		return []byte(data), nil
	}}
	_, err := ld.Load("bad.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "author")

	_, err = ld.Load("missing.xml")
	assert.Error(t, err)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	files := map[string]string{
		"a.yaml": "changelog:\n  - include: {file: b.yaml}\n",
		"b.yaml": "changelog:\n  - include: {file: a.yaml}\n",
	}
	ld := &Loader{ReadFile: func(name string) ([]byte, error) { return []byte(files[filepath.ToSlash(name)]), nil }}
	_, err := ld.Load("a.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "includes itself")
}
