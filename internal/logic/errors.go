package logic

import (
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/internal/change"
)

// Error codes carried by the errors in this package
const (
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeValidationFailed     = "VALIDATION_FAILED"
)

// ValidationErrors collects the problems a chain found with one statement
type ValidationErrors []string

// Add appends a formatted problem
func (v ValidationErrors) Add(format string, args ...any) ValidationErrors {
	return append(v, fmt.Sprintf(format, args...))
}

// Required appends a problem when value is empty
func (v ValidationErrors) Required(field, value string) ValidationErrors {
	if strings.TrimSpace(value) == "" {
		return append(v, fmt.Sprintf("%s is required", field))
	}
	return v
}

// Disallowed appends a problem when set is true and the dialect lacks support
func (v ValidationErrors) Disallowed(field string, set bool, dialect string) ValidationErrors {
	if set {
		return append(v, fmt.Sprintf("%s is not allowed on %s", field, dialect))
	}
	return v
}

// HasErrors reports whether any problem was found
func (v ValidationErrors) HasErrors() bool { return len(v) > 0 }

// Warnings collects non-fatal advisories for one statement
type Warnings []string

// Add appends a formatted warning
func (w Warnings) Add(format string, args ...any) Warnings {
	return append(w, fmt.Sprintf(format, args...))
}

// UnsupportedOperationError is returned when no logic applies to a statement
// in the given environment.
type UnsupportedOperationError struct {
	Statement   change.StatementType
	Description string
	Dialect     string
}

func (e *UnsupportedOperationError) Error() string {
	dialect := e.Dialect
	if dialect == "" {
		dialect = "unknown dialect"
	}
	return fmt.Sprintf("%s is not supported on %s (%s)", e.Statement, dialect, e.Description)
}

// Code returns the stable error code
func (e *UnsupportedOperationError) Code() string { return CodeUnsupportedOperation }

// Problem is one validation failure attributed to its source
type Problem struct {
	ChangeSet string `json:"changeset,omitempty"`
	Statement string `json:"statement"`
	Message   string `json:"message"`
}

// ValidationError aggregates validation problems across statements (and,
// in the migrator, across changesets). Nothing is executed when it is
// returned.
type ValidationError struct {
	Problems []Problem
}

// Append records every message in errs against the statement
func (e *ValidationError) Append(changeSet string, stmt change.Statement, errs ValidationErrors) {
	for _, msg := range errs {
		e.Problems = append(e.Problems, Problem{
			ChangeSet: changeSet,
			Statement: stmt.Describe(),
			Message:   msg,
		})
	}
}

// Empty reports whether no problem was recorded
func (e *ValidationError) Empty() bool { return e == nil || len(e.Problems) == 0 }

// ErrOrNil returns e if it holds problems, nil otherwise
func (e *ValidationError) ErrOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d problem(s):", len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		if p.ChangeSet != "" {
			b.WriteString(p.ChangeSet)
			b.WriteString(": ")
		}
		fmt.Fprintf(&b, "%s: %s", p.Statement, p.Message)
	}
	return b.String()
}

// Code returns the stable error code
func (e *ValidationError) Code() string { return CodeValidationFailed }
