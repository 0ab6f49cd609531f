package postgres

import (
	"fmt"
	"regexp"
	"strings"
)

var nearToken = regexp.MustCompile(`at or near "([^"]+)"`)

// Position is a zero-based line and column in a SQL string
type Position struct {
	Line      int
	Character int
}

// PositionFromOffset converts a byte offset in content to a line and column
func PositionFromOffset(content string, offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(content) {
		offset = len(content)
	}

	line, lineStart := 0, 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return Position{Line: line, Character: offset - lineStart}
}

// syntaxErrorPosition locates a pg_query parse error in sql
func syntaxErrorPosition(sql string, err error) (Position, bool) {
	msg := err.Error()
	if m := nearToken.FindStringSubmatch(msg); len(m) > 1 {
		if offset := strings.Index(sql, m[1]); offset >= 0 {
			return PositionFromOffset(sql, offset), true
		}
	}
	if strings.Contains(msg, "at end of input") {
		return PositionFromOffset(sql, len(sql)), true
	}
	return Position{}, false
}

// describeSyntaxError formats a parse error with its one-based line and
// column when they can be recovered
func describeSyntaxError(sql string, err error) string {
	msg := strings.TrimPrefix(err.Error(), "failed to parse SQL: ")
	if pos, ok := syntaxErrorPosition(sql, err); ok {
		return fmt.Sprintf("line %d, column %d: %s", pos.Line+1, pos.Character+1, msg)
	}
	return msg
}
