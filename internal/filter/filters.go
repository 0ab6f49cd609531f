package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/expression"
	"github.com/lockplane/changeplane/internal/ledger"
)

// Filter names, as reported in Result.Filter
const (
	AlreadyRanName = "already_ran"
	NotRanName     = "not_ran"
	ShouldRunName  = "should_run"
	ContextName    = "context"
	LabelName      = "label"
	DbmsName       = "dbms"
	IgnoreName     = "ignore"
	CountName      = "count"
	AfterTagName   = "after_tag"
	UpToTagName    = "up_to_tag"
	AfterDateName  = "after_date"
)

// CodeBoundaryNotFound is the error code of BoundaryNotFoundError
const CodeBoundaryNotFound = "ROLLBACK_BOUNDARY_NOT_FOUND"

// BoundaryNotFoundError is returned when a requested tag does not exist
type BoundaryNotFoundError struct {
	Kind  string // "tag" or "date"
	Value string
}

func (e *BoundaryNotFoundError) Error() string {
	return fmt.Sprintf("%s %q was not found in the execution history", e.Kind, e.Value)
}

// Code returns the stable error code
func (e *BoundaryNotFoundError) Code() string { return CodeBoundaryNotFound }

// AlreadyRan accepts changesets that have a ledger row
type AlreadyRan struct{ History *ledger.History }

func (AlreadyRan) Name() string { return AlreadyRanName }

func (f AlreadyRan) Accepts(cs *changelog.ChangeSet) (Result, error) {
	if _, ok := f.History.Find(cs.Identity()); ok {
		return accept(AlreadyRanName, "changeset already ran"), nil
	}
	return reject(AlreadyRanName, "changeset has not run"), nil
}

// NotRan accepts changesets without a ledger row
type NotRan struct{ History *ledger.History }

func (NotRan) Name() string { return NotRanName }

func (f NotRan) Accepts(cs *changelog.ChangeSet) (Result, error) {
	if _, ok := f.History.Find(cs.Identity()); ok {
		return reject(NotRanName, "changeset already ran"), nil
	}
	return accept(NotRanName, "changeset has not run"), nil
}

// ShouldRun accepts changesets that never ran, and ran changesets that are
// alwaysRun or runOnChange with a changed checksum
type ShouldRun struct{ History *ledger.History }

func (ShouldRun) Name() string { return ShouldRunName }

func (f ShouldRun) Accepts(cs *changelog.ChangeSet) (Result, error) {
	ran, ok := f.History.Find(cs.Identity())
	if !ok {
		return accept(ShouldRunName, "changeset has not run"), nil
	}
	if cs.AlwaysRun {
		return accept(ShouldRunName, "changeset is marked always run"), nil
	}
	if cs.RunOnChange {
		matches, err := cs.ChecksumMatches(ran.Checksum)
		if err != nil {
			return Result{}, err
		}
		if !matches {
			return accept(ShouldRunName, "changeset is marked run on change and its checksum changed"), nil
		}
	}
	return reject(ShouldRunName, "changeset already ran"), nil
}

// Context accepts changesets whose context expression, and those of every
// enclosing changelog, match the requested contexts
type Context struct {
	Requested   []string
	Expressions *expression.Cache
}

func (Context) Name() string { return ContextName }

func (f Context) Accepts(cs *changelog.ChangeSet) (Result, error) {
	if len(f.Requested) == 0 {
		return accept(ContextName, "no contexts requested"), nil
	}
	exprs := append([]string{cs.Contexts}, cs.InheritedContexts()...)
	declared := false
	for _, e := range exprs {
		if strings.TrimSpace(e) == "" {
			continue
		}
		declared = true
		ok, err := contextsMatch(f.Expressions, e, f.Requested)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return reject(ContextName, "context mismatch: %q does not match requested contexts %q", e, strings.Join(f.Requested, ", ")), nil
		}
	}
	if !declared {
		return accept(ContextName, "changeset has no contexts"), nil
	}
	return accept(ContextName, "context matches %q", strings.Join(f.Requested, ", ")), nil
}

// Label accepts changesets whose labels, including those of enclosing
// changelogs, satisfy the requested label expression
type Label struct {
	Requested   string
	Expressions *expression.Cache
}

func (Label) Name() string { return LabelName }

func (f Label) Accepts(cs *changelog.ChangeSet) (Result, error) {
	if strings.TrimSpace(f.Requested) == "" {
		return accept(LabelName, "no label expression requested"), nil
	}
	labels := append(changelog.SplitList(cs.Labels), cs.InheritedLabels()...)
	if len(labels) == 0 {
		return accept(LabelName, "changeset has no labels"), nil
	}
	ok, err := labelsMatch(f.Expressions, f.Requested, labels)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return reject(LabelName, "label mismatch: labels %q do not match %q", strings.Join(labels, ", "), f.Requested), nil
	}
	return accept(LabelName, "labels match %q", f.Requested), nil
}

// Dbms accepts changesets whose dbms list admits the target dialect
type Dbms struct{ Dialect string }

func (Dbms) Name() string { return DbmsName }

func (f Dbms) Accepts(cs *changelog.ChangeSet) (Result, error) {
	if strings.TrimSpace(cs.Dbms) == "" {
		return accept(DbmsName, "changeset has no dbms restriction"), nil
	}
	if changelog.MatchesDbms(cs.Dbms, f.Dialect) {
		return accept(DbmsName, "dbms %q matches %s", cs.Dbms, f.Dialect), nil
	}
	return reject(DbmsName, "dbms mismatch: %q does not include %s", cs.Dbms, f.Dialect), nil
}

// Ignore rejects changesets marked ignored, directly or by an enclosing
// changelog
type Ignore struct{}

func (Ignore) Name() string { return IgnoreName }

func (Ignore) Accepts(cs *changelog.ChangeSet) (Result, error) {
	if cs.Ignored() {
		return reject(IgnoreName, "changeset is ignored"), nil
	}
	return accept(IgnoreName, "changeset is not ignored"), nil
}

// Count accepts the first Limit changesets it sees and rejects the rest.
// It is stateful: use a fresh instance per run.
type Count struct {
	Limit int
	seen  int
}

// NewCount creates a count filter allowing limit changesets
func NewCount(limit int) *Count { return &Count{Limit: limit} }

func (*Count) Name() string { return CountName }

func (f *Count) Accepts(*changelog.ChangeSet) (Result, error) {
	f.seen++
	if f.seen > f.Limit {
		return reject(CountName, "only %d changeset(s) requested", f.Limit), nil
	}
	return accept(CountName, "changeset %d of %d", f.seen, f.Limit), nil
}

// AfterTag accepts ran changesets executed after the last ledger row
// carrying the tag
type AfterTag struct {
	history *ledger.History
	tag     string
	cutoff  int
}

// NewAfterTag locates tag in history, failing when no row carries it
func NewAfterTag(history *ledger.History, tag string) (*AfterTag, error) {
	pos, ok := history.TagPosition(tag)
	if !ok {
		return nil, &BoundaryNotFoundError{Kind: "tag", Value: tag}
	}
	return &AfterTag{history: history, tag: tag, cutoff: pos}, nil
}

func (*AfterTag) Name() string { return AfterTagName }

func (f *AfterTag) Accepts(cs *changelog.ChangeSet) (Result, error) {
	pos, ok := f.history.Position(cs.Identity())
	if !ok {
		return reject(AfterTagName, "changeset has not run"), nil
	}
	if pos > f.cutoff {
		return accept(AfterTagName, "changeset ran after tag %s", f.tag), nil
	}
	return reject(AfterTagName, "changeset ran at or before tag %s", f.tag), nil
}

// UpToTag accepts changesets up to and including the one that applied the
// tag, and rejects everything declared after it. The tagging changeset is
// found in the changelog (a tag_database statement) or in the ledger,
// whichever comes first in changelog order.
type UpToTag struct {
	tag      string
	position map[string]int
	cutoff   int
}

// NewUpToTag locates tag in log or history, failing when neither has it
func NewUpToTag(log *changelog.ChangeLog, history *ledger.History, tag string) (*UpToTag, error) {
	changeSets := log.ChangeSets()
	f := &UpToTag{tag: tag, position: make(map[string]int, len(changeSets)), cutoff: -1}
	for i, cs := range changeSets {
		f.position[cs.Identity().Key()] = i
	}

	if pos, ok := log.TagPosition(tag); ok {
		f.cutoff = pos
	}
	for _, r := range history.Rows() {
		if r.Tag != tag {
			continue
		}
		if pos, ok := f.position[r.Identity().Key()]; ok && (f.cutoff < 0 || pos < f.cutoff) {
			f.cutoff = pos
		}
	}
	if f.cutoff < 0 {
		return nil, &BoundaryNotFoundError{Kind: "tag", Value: tag}
	}
	return f, nil
}

func (*UpToTag) Name() string { return UpToTagName }

func (f *UpToTag) Accepts(cs *changelog.ChangeSet) (Result, error) {
	pos, ok := f.position[cs.Identity().Key()]
	if !ok {
		return reject(UpToTagName, "changeset is not part of the changelog"), nil
	}
	if pos <= f.cutoff {
		return accept(UpToTagName, "changeset is at or before tag %s", f.tag), nil
	}
	return reject(UpToTagName, "changeset is after tag %s", f.tag), nil
}

// AfterDate accepts ran changesets executed strictly after Date
type AfterDate struct {
	History *ledger.History
	Date    time.Time
}

func (AfterDate) Name() string { return AfterDateName }

func (f AfterDate) Accepts(cs *changelog.ChangeSet) (Result, error) {
	ran, ok := f.History.Find(cs.Identity())
	if !ok {
		return reject(AfterDateName, "changeset has not run"), nil
	}
	if ran.DateExecuted.After(f.Date) {
		return accept(AfterDateName, "changeset ran after %s", f.Date.Format(time.RFC3339)), nil
	}
	return reject(AfterDateName, "changeset ran at or before %s", f.Date.Format(time.RFC3339)), nil
}
