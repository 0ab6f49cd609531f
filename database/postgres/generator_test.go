package postgres

import (
	"strings"
	"testing"

	"github.com/lockplane/changeplane/database"
)

func TestCreateIndexSQL(t *testing.T) {
	idx := database.Index{Name: "idx_users_email", Columns: []string{"email", "tenant_id"}, Unique: true}

	sql := CreateIndexSQL("users", idx, false)
	if sql != "CREATE UNIQUE INDEX idx_users_email ON users (email, tenant_id)" {
		t.Errorf("Unexpected SQL: %s", sql)
	}

	sql = CreateIndexSQL("users", idx, true)
	if !strings.HasPrefix(sql, "CREATE UNIQUE INDEX CONCURRENTLY idx_users_email") {
		t.Errorf("Expected CONCURRENTLY after INDEX, got: %s", sql)
	}
}

func TestIndexColumns(t *testing.T) {
	tests := []struct {
		name     string
		indexDef string
		want     []string
	}{
		{
			name:     "single column",
			indexDef: "CREATE UNIQUE INDEX idx_email ON public.users USING btree (email)",
			want:     []string{"email"},
		},
		{
			name:     "multi column",
			indexDef: "CREATE INDEX idx_posts ON public.posts USING btree (user_id, created_at DESC)",
			want:     []string{"user_id", "created_at"},
		},
		{
			name:     "expression",
			indexDef: "CREATE INDEX idx_lower ON public.users USING btree (lower(email))",
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IndexColumns(tt.indexDef)
			if err != nil {
				t.Fatalf("IndexColumns failed: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("IndexColumns() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := IndexColumns("SELECT 1"); err == nil {
		t.Error("Expected error for a non-index statement")
	}
}

func TestDataLossWarnings(t *testing.T) {
	tests := []struct {
		sql      string
		contains string
	}{
		{"DROP TABLE users CASCADE", "every object that depends on it"},
		{"TRUNCATE audit_log", "TRUNCATE audit_log"},
		{"DELETE FROM sessions", "no WHERE clause"},
		{"ALTER TABLE users DROP COLUMN legacy", "users.legacy"},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			warnings := DataLossWarnings(tt.sql)
			if len(warnings) != 1 {
				t.Fatalf("Expected 1 warning, got %v", warnings)
			}
			if !strings.Contains(warnings[0], tt.contains) {
				t.Errorf("Expected warning to contain %q, got %q", tt.contains, warnings[0])
			}
		})
	}

	safe := []string{
		"DELETE FROM sessions WHERE expires_at < now()",
		"CREATE TABLE t (id integer)",
		"not sql at all",
	}
	for _, sql := range safe {
		if warnings := DataLossWarnings(sql); len(warnings) != 0 {
			t.Errorf("Expected no warnings for %q, got %v", sql, warnings)
		}
	}
}

func TestLockMode(t *testing.T) {
	if LockAccessExclusive.String() != "ACCESS EXCLUSIVE" {
		t.Errorf("Unexpected name: %s", LockAccessExclusive)
	}
	if !LockAccessExclusive.BlocksReads() || LockExclusive.BlocksReads() {
		t.Error("Only ACCESS EXCLUSIVE blocks reads")
	}
	if !LockShare.BlocksWrites() || LockShareUpdateExclusive.BlocksWrites() {
		t.Error("SHARE and above block writes")
	}
	if LockRowExclusive.ImpactLevel() != "low" || LockShare.ImpactLevel() != "medium" || LockAccessExclusive.ImpactLevel() != "high" {
		t.Error("Unexpected impact levels")
	}
}

func TestDetectLockMode(t *testing.T) {
	tests := []struct {
		sql  string
		want LockMode
	}{
		{"CREATE INDEX idx ON t (a)", LockShare},
		{"CREATE UNIQUE INDEX CONCURRENTLY idx ON t (a)", LockShareUpdateExclusive},
		{"ALTER TABLE t ADD COLUMN a text", LockAccessExclusive},
		{"ALTER TABLE t VALIDATE CONSTRAINT fk", LockShareUpdateExclusive},
		{"DROP INDEX CONCURRENTLY idx", LockShareUpdateExclusive},
		{"DROP TABLE t", LockAccessExclusive},
		{"CREATE TABLE t (a int)", LockAccessShare},
		{"UPDATE t SET a = 1", LockRowExclusive},
		{"SELECT 1", LockAccessShare},
		{"VACUUM FULL t", LockAccessExclusive},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			if got := DetectLockMode(tt.sql); got != tt.want {
				t.Errorf("DetectLockMode() = %s, want %s", got, tt.want)
			}
		})
	}
}
