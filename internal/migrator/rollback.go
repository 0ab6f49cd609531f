package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/expression"
	"github.com/lockplane/changeplane/internal/filter"
	"github.com/lockplane/changeplane/internal/ledger"
)

// RollbackRequest names the boundary to roll back to. Exactly one of
// ToTag, ToDate and Count is set.
type RollbackRequest struct {
	// ToTag rolls back every changeset executed after the tag
	ToTag string
	// ToDate rolls back every changeset executed after the date
	ToDate time.Time
	// Count rolls back the last Count changesets
	Count int

	Contexts []string
	Labels   string
}

func (r RollbackRequest) validate() error {
	set := 0
	if r.ToTag != "" {
		set++
	}
	if !r.ToDate.IsZero() {
		set++
	}
	if r.Count != 0 {
		if r.Count < 0 {
			return fmt.Errorf("count must be positive, got %d", r.Count)
		}
		set++
	}
	if set != 1 {
		return errors.New("rollback needs exactly one of a tag, a date or a count")
	}
	return nil
}

// Rollback undoes executed changesets in reverse execution order, using
// their declared rollback statements or the automatic inverse. Ledger rows
// are removed as each changeset rolls back.
func (m *Migrator) Rollback(ctx context.Context, log *changelog.ChangeLog, req RollbackRequest) (*RunResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}

	result := &RunResult{DeploymentID: uuid.NewString()}
	err := m.withLock(ctx, func() error {
		history, err := m.loadHistory(ctx)
		if err != nil {
			return err
		}
		if err := checkDrift(log, history); err != nil {
			return err
		}

		targets, decisions, err := m.rollbackTargets(log, history, req)
		if err != nil {
			return err
		}
		result.Skipped = skipped(decisions)
		m.logger.Info("planned rollback", "count", len(targets))

		planned, err := m.prepare(ctx, targets, true, m.cfg.DB, result)
		if err != nil {
			return err
		}
		for _, p := range planned {
			applied, err := m.apply(ctx, p, result, m.removeRow(p.cs.Identity()))
			if err != nil {
				return runError(p, err, result)
			}
			result.Applied = append(result.Applied, applied)
			m.logger.Info("rolled back changeset", "changeset", p.cs.ID, "author", p.cs.Author, "path", p.cs.FilePath)
		}
		return nil
	})
	return result, err
}

// rollbackTargets returns the changesets to roll back, latest first. The
// boundary is located before anything is planned: an unknown tag fails.
func (m *Migrator) rollbackTargets(log *changelog.ChangeLog, history *ledger.History, req RollbackRequest) ([]*changelog.ChangeSet, []filter.Decision, error) {
	dialect := m.cfg.Dialect.Name()
	exprs := expression.NewCache()
	filters := []filter.Filter{filter.AlreadyRan{History: history}}

	inRange := func(int, ledger.RanChangeSet) bool { return true }
	switch {
	case req.ToTag != "":
		afterTag, err := filter.NewAfterTag(history, req.ToTag)
		if err != nil {
			return nil, nil, err
		}
		cutoff, _ := history.TagPosition(req.ToTag)
		inRange = func(i int, _ ledger.RanChangeSet) bool { return i > cutoff }
		filters = append(filters, afterTag)
	case !req.ToDate.IsZero():
		inRange = func(_ int, r ledger.RanChangeSet) bool { return r.DateExecuted.After(req.ToDate) }
		filters = append(filters, filter.AfterDate{History: history, Date: req.ToDate})
	}
	filters = append(filters,
		filter.Dbms{Dialect: dialect},
		filter.Context{Requested: req.Contexts, Expressions: exprs},
		filter.Label{Requested: req.Labels, Expressions: exprs},
	)
	if req.Count > 0 {
		filters = append(filters, filter.NewCount(req.Count))
	}
	pipeline := filter.NewPipeline(filters...).
		WithPruning(filter.Scope{Contexts: req.Contexts, Labels: req.Labels, Dialect: dialect, Expressions: exprs})

	var targets []*changelog.ChangeSet
	var decisions []filter.Decision
	rows := history.Rows()
	for i := len(rows) - 1; i >= 0; i-- {
		if req.Count > 0 && len(targets) >= req.Count {
			break
		}
		if !inRange(i, rows[i]) {
			continue
		}
		cs, ok := log.Find(rows[i].Identity())
		if !ok {
			return nil, nil, fmt.Errorf("cannot roll back %s: it is not in the changelog", rows[i].Identity())
		}
		d, err := pipeline.Evaluate(cs)
		if err != nil {
			return nil, nil, err
		}
		decisions = append(decisions, d)
		if d.Included {
			targets = append(targets, cs)
		}
	}
	return targets, decisions, nil
}
