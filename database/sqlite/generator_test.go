package sqlite

import (
	"strings"
	"testing"

	"github.com/lockplane/changeplane/database"
)

func TestFormatColumnDefinition(t *testing.T) {
	defaultZero := "0"

	tests := []struct {
		name string
		col  database.Column
		want string
	}{
		{
			name: "primary key before not null",
			col:  database.Column{Name: "id", Type: "integer", IsPrimaryKey: true},
			want: "id integer PRIMARY KEY NOT NULL",
		},
		{
			name: "nullable",
			col:  database.Column{Name: "bio", Type: "text", Nullable: true},
			want: "bio text",
		},
		{
			name: "default",
			col:  database.Column{Name: "score", Type: "integer", Default: &defaultZero},
			want: "score integer NOT NULL DEFAULT 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatColumnDefinition(tt.col); got != tt.want {
				t.Errorf("FormatColumnDefinition() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecreateTable(t *testing.T) {
	current := database.Table{
		Name: "users",
		Columns: []database.Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "email", Type: "text", Nullable: true},
			{Name: "legacy", Type: "text", Nullable: true},
		},
		Indexes: []database.Index{{Name: "idx_users_email", Columns: []string{"email"}}},
	}
	target := current
	target.Columns = []database.Column{
		{Name: "id", Type: "integer", IsPrimaryKey: true},
		{Name: "email", Type: "text"},
	}

	actions := RecreateTable(current, target, "Modify column users.email")
	if len(actions) != 5 {
		t.Fatalf("Expected 5 actions, got %d", len(actions))
	}

	steps := []string{
		"CREATE TABLE users_new",
		"INSERT INTO users_new (id, email) SELECT id, email FROM users",
		"DROP TABLE users",
		"ALTER TABLE users_new RENAME TO users",
		"CREATE INDEX idx_users_email ON users",
	}
	for i, want := range steps {
		if !strings.Contains(actions[i].SQL, want) {
			t.Errorf("Action %d: expected SQL to contain %q, got %q", i, want, actions[i].SQL)
		}
	}
	if strings.Contains(actions[0].SQL, "legacy") {
		t.Errorf("Expected dropped column to be absent from replacement, got %q", actions[0].SQL)
	}
}

func TestWithoutForeignKey(t *testing.T) {
	table := database.Table{
		Name: "posts",
		ForeignKeys: []database.ForeignKey{
			{Name: "fk_a"}, {Name: "fk_b"},
		},
	}

	out, found := withoutForeignKey(table, "FK_A")
	if !found {
		t.Fatal("Expected case-insensitive match")
	}
	if len(out.ForeignKeys) != 1 || out.ForeignKeys[0].Name != "fk_b" {
		t.Errorf("Unexpected foreign keys: %+v", out.ForeignKeys)
	}
	if len(table.ForeignKeys) != 2 {
		t.Error("Expected input table to be left untouched")
	}

	if _, found := withoutForeignKey(table, "fk_missing"); found {
		t.Error("Expected missing constraint to report not found")
	}
}
