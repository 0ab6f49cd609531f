package migrator

import (
	"context"
	"errors"
	"time"

	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/ledger"
)

// ChangeSetStatus is one changeset's standing against the ledger
type ChangeSetStatus struct {
	ChangeSet    string          `json:"changeset"`
	Pending      bool            `json:"pending"`
	Ran          bool            `json:"ran"`
	ExecType     ledger.ExecType `json:"exec_type,omitempty"`
	DateExecuted time.Time       `json:"date_executed,omitempty"`
	Tag          string          `json:"tag,omitempty"`
	// Drifted is set when the changeset changed since it ran
	Drifted bool   `json:"drifted,omitempty"`
	Filter  string `json:"filter,omitempty"`
	Reason  string `json:"reason"`
}

// Status reports, for every changeset in changelog order, whether an
// update with req would run it and why
func (m *Migrator) Status(ctx context.Context, log *changelog.ChangeLog, req Request) ([]ChangeSetStatus, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}

	var statuses []ChangeSetStatus
	err := m.withLock(ctx, func() error {
		history, err := m.loadHistory(ctx)
		if err != nil {
			return err
		}
		_, decisions, err := m.plan(log, history, req)
		if err != nil {
			return err
		}
		for _, d := range decisions {
			s := ChangeSetStatus{ChangeSet: d.ChangeSet.String(), Pending: d.Included, Reason: d.Reasons()}
			if r, ok := d.Rejection(); ok {
				s.Filter = r.Filter
				s.Reason = r.Reason
			}
			if ran, ok := history.Find(d.ChangeSet.Identity()); ok {
				s.Ran = true
				s.ExecType = ran.ExecType
				s.DateExecuted = ran.DateExecuted
				s.Tag = ran.Tag
				matches, err := d.ChangeSet.ChecksumMatches(ran.Checksum)
				if err != nil {
					return err
				}
				s.Drifted = !matches
			}
			statuses = append(statuses, s)
		}
		return nil
	})
	return statuses, err
}

// Verification is the combined verification status of an executed
// changeset's statements
type Verification struct {
	ChangeSet string        `json:"changeset"`
	Status    change.Status `json:"status"`
	Messages  []string      `json:"messages,omitempty"`
}

// Verify checks that the effects of executed changesets are present in
// the database
func (m *Migrator) Verify(ctx context.Context, log *changelog.ChangeLog) ([]Verification, error) {
	if m.cfg.DB == nil {
		return nil, errors.New("verify requires a live connection")
	}

	var out []Verification
	err := m.withLock(ctx, func() error {
		history, err := m.loadHistory(ctx)
		if err != nil {
			return err
		}
		for _, cs := range log.ChangeSets() {
			if _, ok := history.Find(cs.Identity()); !ok {
				continue
			}
			env := m.environment(cs, m.cfg.DB, false)
			status := change.NewActionStatus()
			for _, stmt := range cs.Statements {
				status.Merge(m.cfg.Dispatcher.CheckStatus(ctx, stmt, env))
			}
			out = append(out, Verification{ChangeSet: cs.String(), Status: status.Status(), Messages: status.Messages()})
		}
		return nil
	})
	return out, err
}

// Tag tags the most recently executed changeset
func (m *Migrator) Tag(ctx context.Context, tag string) error {
	if tag == "" {
		return errors.New("tag must not be empty")
	}
	return m.withLock(ctx, func() error {
		if err := m.cfg.Store.Init(ctx); err != nil {
			return err
		}
		if err := m.cfg.Store.Tag(ctx, tag); err != nil {
			return err
		}
		m.logger.Info("tagged ledger", "tag", tag)
		return nil
	})
}
