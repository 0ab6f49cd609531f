package database

import (
	"testing"
	"time"
)

func TestFindColumn(t *testing.T) {
	table := Table{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "Email", Type: "text"},
		},
	}

	col, ok := table.FindColumn("email")
	if !ok {
		t.Fatal("Expected to find column email")
	}
	if col.Name != "Email" {
		t.Errorf("Expected Email, got %s", col.Name)
	}

	if _, ok := table.FindColumn("missing"); ok {
		t.Error("Expected missing column not to be found")
	}
}

func TestNormalizeDialectName(t *testing.T) {
	tests := map[string]string{
		"postgres":    DialectPostgres,
		" PostgreSQL": DialectPostgres,
		"pgx":         DialectPostgres,
		"sqlite3":     DialectSQLite,
		"turso":       DialectLibSQL,
		"H2":          "h2",
	}
	for in, want := range tests {
		if got := NormalizeDialectName(in); got != want {
			t.Errorf("NormalizeDialectName(%q) = %q, want %q", in, got, want)
		}
	}
}

type namedDialect string

func (d namedDialect) Name() string             { return string(d) }
func (namedDialect) SupportsFeature(string) bool { return false }
func (namedDialect) Placeholder(int) string      { return "?" }
func (namedDialect) Introspector() Introspector  { return nil }

func TestIsSQLiteFamily(t *testing.T) {
	if !IsSQLiteFamily(namedDialect(DialectSQLite)) || !IsSQLiteFamily(namedDialect(DialectLibSQL)) {
		t.Error("Expected sqlite and libsql to be in the SQLite family")
	}
	if IsSQLiteFamily(namedDialect(DialectPostgres)) || IsSQLiteFamily(nil) {
		t.Error("Expected postgresql and nil not to be in the SQLite family")
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	for _, v := range []any{
		want,
		"2026-03-04T05:06:07Z",
		"2026-03-04 05:06:07+00:00",
		[]byte("2026-03-04 05:06:07"),
	} {
		got, err := ParseTimestamp(v)
		if err != nil {
			t.Fatalf("ParseTimestamp(%v) failed: %v", v, err)
		}
		if !want.Equal(got) {
			t.Errorf("ParseTimestamp(%v) = %s, want %s", v, got, want)
		}
	}

	if _, err := ParseTimestamp(nil); err == nil {
		t.Error("Expected error for NULL")
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("Expected error for unparseable text")
	}
}
