package generic

import (
	"testing"

	"github.com/lockplane/changeplane/database"
)

func TestFormatColumnDefinition(t *testing.T) {
	now := "now()"
	tests := []struct {
		col  database.Column
		want string
	}{
		{database.Column{Name: "id", Type: "integer", IsPrimaryKey: true}, "id integer NOT NULL PRIMARY KEY"},
		{database.Column{Name: "bio", Type: "text", Nullable: true}, "bio text"},
		{database.Column{Name: "created_at", Type: "timestamp", Default: &now}, "created_at timestamp NOT NULL DEFAULT now()"},
	}
	for _, tt := range tests {
		if got := FormatColumnDefinition(tt.col); got != tt.want {
			t.Errorf("FormatColumnDefinition(%s) = %q, want %q", tt.col.Name, got, tt.want)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	cascade := "CASCADE"
	table := database.Table{
		Name: "posts",
		Columns: []database.Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "user_id", Type: "integer"},
		},
		ForeignKeys: []database.ForeignKey{{
			Name:              "fk_posts_user",
			Columns:           []string{"user_id"},
			ReferencedTable:   "users",
			ReferencedColumns: []string{"id"},
			OnDelete:          &cascade,
		}},
	}

	want := "CREATE TABLE posts (\n" +
		"  id integer NOT NULL PRIMARY KEY,\n" +
		"  user_id integer NOT NULL,\n" +
		"  CONSTRAINT fk_posts_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE\n" +
		")"
	if got := CreateTableSQL(table, FormatColumnDefinition); got != want {
		t.Errorf("CreateTableSQL() =\n%s\nwant\n%s", got, want)
	}
}

func TestCreateIndexSQL(t *testing.T) {
	idx := database.Index{Name: "idx_users_email", Columns: []string{"email", "tenant"}, Unique: true}
	want := "CREATE UNIQUE INDEX idx_users_email ON users (email, tenant)"
	if got := CreateIndexSQL("users", idx); got != want {
		t.Errorf("CreateIndexSQL() = %q, want %q", got, want)
	}

	idx.Unique = false
	want = "CREATE INDEX idx_users_email ON users (email, tenant)"
	if got := CreateIndexSQL("users", idx); got != want {
		t.Errorf("CreateIndexSQL() = %q, want %q", got, want)
	}
}

func TestAddForeignKeySQL(t *testing.T) {
	restrict := "RESTRICT"
	fk := database.ForeignKey{
		Name:              "fk_orders_customer",
		Columns:           []string{"customer_id"},
		ReferencedTable:   "customers",
		ReferencedColumns: []string{"id"},
		OnUpdate:          &restrict,
	}
	want := "ALTER TABLE orders ADD CONSTRAINT fk_orders_customer FOREIGN KEY (customer_id) REFERENCES customers (id) ON UPDATE RESTRICT"
	if got := AddForeignKeySQL("orders", fk); got != want {
		t.Errorf("AddForeignKeySQL() = %q, want %q", got, want)
	}
}
