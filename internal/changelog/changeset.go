// Package changelog models changelogs and changesets: identity, run policy,
// applicability attributes, rollback, checksums and SQL visitors.
package changelog

import (
	"strings"

	"github.com/lockplane/changeplane/internal/change"
)

// ChangeSet is a named, ordered group of statements with identity and run
// policy. It is built once by the loader and treated as immutable during a
// run, except for Visitors which are pruned to those matching the run.
type ChangeSet struct {
	ID       string
	Author   string
	FilePath string
	Comments string

	Statements []change.Statement

	// Rollback holds explicitly declared rollback statements. When empty the
	// automatic inverse of Statements is used.
	Rollback []change.Statement

	// Contexts is a context expression, Labels a comma-separated label set
	// and Dbms a dialect list. Empty means unrestricted.
	Contexts string
	Labels   string
	Dbms     string

	AlwaysRun   bool
	RunOnChange bool
	Ignore      bool

	// ValidCheckSums lists recorded checksums accepted in place of the
	// computed one. "ANY" accepts every checksum.
	ValidCheckSums []string

	Visitors []SQLVisitor

	changeLog *ChangeLog
}

// Identity returns the changeset's normalized identity triple
func (c *ChangeSet) Identity() Identity {
	return NewIdentity(c.ID, c.Author, c.FilePath)
}

func (c *ChangeSet) String() string {
	return c.Identity().String()
}

// ChangeLog returns the changelog that declared this changeset, if any
func (c *ChangeSet) ChangeLog() *ChangeLog { return c.changeLog }

// Ignored reports whether the changeset or any enclosing changelog is ignored
func (c *ChangeSet) Ignored() bool {
	if c.Ignore {
		return true
	}
	for l := c.changeLog; l != nil; l = l.parent {
		if l.Ignore {
			return true
		}
	}
	return false
}

// InheritedContexts returns the context expressions of the enclosing
// include chain, innermost first. All of them must match for the
// changeset to run.
func (c *ChangeSet) InheritedContexts() []string {
	var exprs []string
	for l := c.changeLog; l != nil; l = l.parent {
		if strings.TrimSpace(l.Contexts) != "" {
			exprs = append(exprs, l.Contexts)
		}
	}
	return exprs
}

// InheritedLabels returns the label sets of the enclosing include chain
func (c *ChangeSet) InheritedLabels() []string {
	var labels []string
	for l := c.changeLog; l != nil; l = l.parent {
		labels = append(labels, SplitList(l.Labels)...)
	}
	return labels
}

// Description summarizes the statements, as recorded in the ledger
func (c *ChangeSet) Description() string {
	parts := make([]string, 0, len(c.Statements))
	for _, stmt := range c.Statements {
		parts = append(parts, stmt.Describe())
	}
	desc := strings.Join(parts, "; ")
	if len(desc) > 250 {
		desc = desc[:247] + "..."
	}
	return desc
}

// Tag returns the tag applied by a tag_database statement, if any
func (c *ChangeSet) Tag() (string, bool) {
	for _, stmt := range c.Statements {
		if t, ok := stmt.(change.TagDatabase); ok {
			return t.Tag, true
		}
	}
	return "", false
}

// RollbackStatements returns the declared rollback, or the automatic
// inverse. missing names statements that have no automatic inverse.
func (c *ChangeSet) RollbackStatements() (stmts []change.Statement, missing []string) {
	if len(c.Rollback) > 0 {
		return c.Rollback, nil
	}
	return change.InverseAll(c.Statements)
}
