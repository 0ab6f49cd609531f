package postgres

import (
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/logic"
)

// LockMode is a PostgreSQL table-level lock mode, ordered weakest first
type LockMode int

const (
	LockAccessShare LockMode = iota
	LockRowShare
	LockRowExclusive
	LockShareUpdateExclusive
	LockShare
	LockShareRowExclusive
	LockExclusive
	LockAccessExclusive
)

var lockModeNames = [...]string{
	"ACCESS SHARE",
	"ROW SHARE",
	"ROW EXCLUSIVE",
	"SHARE UPDATE EXCLUSIVE",
	"SHARE",
	"SHARE ROW EXCLUSIVE",
	"EXCLUSIVE",
	"ACCESS EXCLUSIVE",
}

func (m LockMode) String() string {
	if m < 0 || int(m) >= len(lockModeNames) {
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
	return lockModeNames[m]
}

// BlocksReads reports whether plain SELECTs wait on this lock
func (m LockMode) BlocksReads() bool { return m == LockAccessExclusive }

// BlocksWrites reports whether INSERT/UPDATE/DELETE wait on this lock
func (m LockMode) BlocksWrites() bool { return m >= LockShare }

// ImpactLevel summarizes the lock's effect on concurrent traffic
func (m LockMode) ImpactLevel() string {
	switch {
	case m.BlocksReads():
		return "high"
	case m.BlocksWrites():
		return "medium"
	default:
		return "low"
	}
}

// LockImpact describes the lock a single statement of SQL acquires
type LockImpact struct {
	Operation    string   `json:"operation"`
	LockMode     LockMode `json:"lock_mode"`
	BlocksReads  bool     `json:"blocks_reads"`
	BlocksWrites bool     `json:"blocks_writes"`
	Impact       string   `json:"impact"`
	Explanation  string   `json:"explanation"`
}

// DetectLockMode returns the lock mode a SQL statement acquires on its table
func DetectLockMode(sql string) LockMode {
	sqlUpper := strings.ToUpper(strings.TrimSpace(sql))
	if sqlUpper == "" {
		return LockAccessShare
	}

	// CREATE INDEX patterns
	if strings.HasPrefix(sqlUpper, "CREATE INDEX") || strings.HasPrefix(sqlUpper, "CREATE UNIQUE INDEX") {
		if strings.Contains(sqlUpper, "CONCURRENTLY") {
			return LockShareUpdateExclusive
		}
		return LockShare
	}

	if strings.HasPrefix(sqlUpper, "ALTER TABLE") {
		// VALIDATE CONSTRAINT - lower lock mode
		if strings.Contains(sqlUpper, "VALIDATE CONSTRAINT") {
			return LockShareUpdateExclusive
		}
		// Most ALTER TABLE operations take ACCESS EXCLUSIVE
		return LockAccessExclusive
	}

	// DROP TABLE, DROP INDEX, TRUNCATE
	if strings.HasPrefix(sqlUpper, "DROP TABLE") ||
		strings.HasPrefix(sqlUpper, "DROP INDEX") ||
		strings.HasPrefix(sqlUpper, "TRUNCATE") {
		if strings.HasPrefix(sqlUpper, "DROP INDEX CONCURRENTLY") {
			return LockShareUpdateExclusive
		}
		return LockAccessExclusive
	}

	// CREATE TABLE - no lock on the table itself (it doesn't exist yet)
	if strings.HasPrefix(sqlUpper, "CREATE TABLE") {
		return LockAccessShare
	}

	if strings.HasPrefix(sqlUpper, "INSERT") ||
		strings.HasPrefix(sqlUpper, "UPDATE") ||
		strings.HasPrefix(sqlUpper, "DELETE") {
		return LockRowExclusive
	}

	if strings.HasPrefix(sqlUpper, "SELECT") {
		return LockAccessShare
	}

	// Default: assume high lock for safety
	return LockAccessExclusive
}

// AnalyzeLockImpact returns detailed lock impact information for an action
func AnalyzeLockImpact(action change.Action) LockImpact {
	mode := DetectLockMode(action.SQL)
	return LockImpact{
		Operation:    action.Description,
		LockMode:     mode,
		BlocksReads:  mode.BlocksReads(),
		BlocksWrites: mode.BlocksWrites(),
		Impact:       mode.ImpactLevel(),
		Explanation:  explainLockMode(action.SQL, mode),
	}
}

// explainLockMode provides a human-readable explanation of why this lock is needed
func explainLockMode(sql string, mode LockMode) string {
	sqlUpper := strings.ToUpper(strings.TrimSpace(sql))

	switch mode {
	case LockAccessExclusive:
		switch {
		case strings.Contains(sqlUpper, "ADD COLUMN") && strings.Contains(sqlUpper, "DEFAULT"):
			return "ALTER TABLE ADD COLUMN with DEFAULT may rewrite the entire table"
		case strings.Contains(sqlUpper, "DROP COLUMN"):
			return "DROP COLUMN requires exclusive access to modify table structure"
		case strings.Contains(sqlUpper, " TYPE "):
			return "Changing column type may require rewriting the entire table"
		case strings.Contains(sqlUpper, "ADD CONSTRAINT") && !strings.Contains(sqlUpper, "NOT VALID"):
			return "ADD CONSTRAINT scans all existing rows to validate the constraint"
		case strings.HasPrefix(sqlUpper, "ALTER TABLE"):
			return "ALTER TABLE operation requires exclusive access"
		case strings.HasPrefix(sqlUpper, "DROP TABLE"):
			return "DROP TABLE requires exclusive access to remove the table"
		case strings.HasPrefix(sqlUpper, "TRUNCATE"):
			return "TRUNCATE requires exclusive access to delete all rows"
		}
		return "This operation requires exclusive table access"
	case LockShare:
		return "CREATE INDEX requires SHARE lock, blocking writes during index build"
	case LockShareUpdateExclusive:
		return "This operation allows concurrent reads and writes"
	case LockRowExclusive:
		return "Normal DML operation (INSERT/UPDATE/DELETE)"
	default:
		return "Read-only operation"
	}
}

// StatementLockMode returns the strongest lock a statement's SQL acquires
// on PostgreSQL, judged from the statement itself
func StatementLockMode(stmt change.Statement) LockMode {
	switch s := stmt.(type) {
	case change.CreateTable, change.TagDatabase:
		return LockAccessShare
	case change.CreateIndex:
		if s.Concurrently {
			return LockShareUpdateExclusive
		}
		return LockShare
	case change.RawSQL:
		strongest := LockAccessShare
		for _, part := range s.Parts() {
			strongest = max(strongest, DetectLockMode(part))
		}
		return strongest
	default:
		return LockAccessExclusive
	}
}

// LockImpactWarner warns about statements whose locks block concurrent
// writes. Generation passes through.
type LockImpactWarner struct{ dialectBase }

func (l LockImpactWarner) Warn(stmt change.Statement, env *logic.Environment, next logic.Next) logic.Warnings {
	var warnings logic.Warnings
	if mode := StatementLockMode(stmt); mode.BlocksWrites() {
		blocks := "writes"
		if mode.BlocksReads() {
			blocks = "reads and writes"
		}
		warnings = warnings.Add("%s acquires %s lock, blocking %s while it runs", stmt.Describe(), mode, blocks)
	}
	return append(warnings, next.Warn(stmt, env)...)
}
