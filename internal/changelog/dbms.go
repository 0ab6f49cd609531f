package changelog

import (
	"strings"

	"github.com/lockplane/changeplane/database"
)

// SplitList splits a comma-separated attribute into trimmed, non-empty entries
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchesDbms reports whether a declared dbms list admits the dialect.
// An empty list and "all" match everything, "none" matches nothing, and a
// "!name" entry excludes that dialect. A list made only of exclusions
// matches every other dialect.
func MatchesDbms(declared, dialect string) bool {
	entries := SplitList(declared)
	if len(entries) == 0 {
		return true
	}
	dialect = database.NormalizeDialectName(dialect)

	matched, sawPositive := false, false
	for _, entry := range entries {
		entry = strings.ToLower(entry)
		switch {
		case entry == "none":
			return false
		case strings.HasPrefix(entry, "!"):
			if database.NormalizeDialectName(entry[1:]) == dialect {
				return false
			}
		default:
			sawPositive = true
			if entry == "all" || database.NormalizeDialectName(entry) == dialect {
				matched = true
			}
		}
	}
	return matched || !sawPositive
}
