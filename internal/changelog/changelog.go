package changelog

import (
	"fmt"
)

// CodeDuplicateChangeSet is the error code of DuplicateChangeSetError
const CodeDuplicateChangeSet = "DUPLICATE_CHANGESET"

// DuplicateChangeSetError is returned when two changesets share an identity
type DuplicateChangeSetError struct {
	Identity Identity
}

func (e *DuplicateChangeSetError) Error() string {
	return fmt.Sprintf("changeset %s is declared more than once", e.Identity)
}

// Code returns the stable error code
func (e *DuplicateChangeSetError) Code() string { return CodeDuplicateChangeSet }

// ChangeLog is an ordered list of changesets and included changelogs.
type ChangeLog struct {
	Path string

	// Ignore, Contexts and Labels set on an included changelog apply to
	// every changeset inside it
	Ignore   bool
	Contexts string
	Labels   string

	parent  *ChangeLog
	entries []entry
}

type entry struct {
	changeSet *ChangeSet
	include   *ChangeLog
}

// New creates an empty changelog for the given file path
func New(path string) *ChangeLog {
	return &ChangeLog{Path: NormalizePath(path)}
}

// Add appends a changeset. A changeset with no FilePath takes the
// changelog's path.
func (l *ChangeLog) Add(cs *ChangeSet) *ChangeSet {
	if cs.FilePath == "" {
		cs.FilePath = l.Path
	}
	cs.changeLog = l
	l.entries = append(l.entries, entry{changeSet: cs})
	return cs
}

// Include appends a nested changelog at the current position
func (l *ChangeLog) Include(child *ChangeLog) error {
	for p := l; p != nil; p = p.parent {
		if p == child || (child.Path != "" && p.Path == child.Path) {
			return fmt.Errorf("changelog %s includes itself", child.Path)
		}
	}
	child.parent = l
	l.entries = append(l.entries, entry{include: child})
	return nil
}

// Parent returns the including changelog, or nil at the root
func (l *ChangeLog) Parent() *ChangeLog { return l.parent }

// ChangeSets flattens the changelog and its includes in declaration order
func (l *ChangeLog) ChangeSets() []*ChangeSet {
	var out []*ChangeSet
	for _, e := range l.entries {
		if e.changeSet != nil {
			out = append(out, e.changeSet)
			continue
		}
		out = append(out, e.include.ChangeSets()...)
	}
	return out
}

// Find returns the changeset with the given identity
func (l *ChangeLog) Find(id Identity) (*ChangeSet, bool) {
	key := id.Key()
	for _, cs := range l.ChangeSets() {
		if cs.Identity().Key() == key {
			return cs, true
		}
	}
	return nil, false
}

// Validate checks identity uniqueness and the well-formedness of every
// changeset's visitors
func (l *ChangeLog) Validate() error {
	seen := make(map[string]bool)
	for _, cs := range l.ChangeSets() {
		if cs.ID == "" || cs.Author == "" {
			return fmt.Errorf("changeset %s must have both id and author", cs)
		}
		key := cs.Identity().Key()
		if seen[key] {
			return &DuplicateChangeSetError{Identity: cs.Identity()}
		}
		seen[key] = true
		for _, v := range cs.Visitors {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("changeset %s: %w", cs, err)
			}
		}
	}
	return nil
}

// TagPosition returns the index in ChangeSets() of the first changeset
// declaring tag through a tag_database statement
func (l *ChangeLog) TagPosition(tag string) (int, bool) {
	for i, cs := range l.ChangeSets() {
		if t, ok := cs.Tag(); ok && t == tag {
			return i, true
		}
	}
	return -1, false
}
