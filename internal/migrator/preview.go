package migrator

import (
	"context"
	"fmt"

	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/executor"
)

// Preview is the SQL an update would run, without running it
type Preview struct {
	Script   string    `json:"script"`
	Plan     []string  `json:"plan"`
	Skipped  []Skipped `json:"skipped,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
	// Volatile names the statements whose SQL is only known at run time
	Volatile []string `json:"volatile,omitempty"`
}

// VolatilePreviewError is returned by a strict preview of a statement whose
// actions depend on live database state
type VolatilePreviewError struct {
	ChangeSet string
	Statement string
}

func (e *VolatilePreviewError) Error() string {
	return fmt.Sprintf("%s: %s reads the live schema when it runs and cannot be previewed", e.ChangeSet, e.Statement)
}

// Preview generates the actions of the pending changesets offline and
// renders them as a script. Nothing is executed and the ledger is not
// written.
func (m *Migrator) Preview(ctx context.Context, log *changelog.ChangeLog, req Request) (*Preview, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}

	preview := &Preview{}
	err := m.withLock(ctx, func() error {
		history, err := m.loadHistory(ctx)
		if err != nil {
			return err
		}
		if err := checkDrift(log, history); err != nil {
			return err
		}
		plan, decisions, err := m.plan(log, history, req)
		if err != nil {
			return err
		}

		result := &RunResult{}
		planned, err := m.prepare(ctx, plan, false, nil, result)
		if err != nil {
			return err
		}
		preview.Skipped = skipped(decisions)

		recorder := executor.NewRecorder()
		for _, p := range planned {
			preview.Plan = append(preview.Plan, p.cs.String())
			recorder.Comment(fmt.Sprintf("Changeset %s", p.cs))
			if !p.transactional(m.cfg.Dialect) {
				recorder.Comment("runs outside a transaction")
			}
			for _, st := range p.statements {
				if st.volatile {
					if m.cfg.StrictPreview {
						return &VolatilePreviewError{ChangeSet: p.cs.String(), Statement: st.stmt.Describe()}
					}
					msg := fmt.Sprintf("%s is generated from the live schema when it runs", st.stmt.Describe())
					preview.Volatile = append(preview.Volatile, fmt.Sprintf("%s: %s", p.cs, st.stmt.Describe()))
					result.Warnings = append(result.Warnings, Warning{ChangeSet: p.cs.String(), Statement: st.stmt.Describe(), Message: msg})
					recorder.Comment(msg)
					continue
				}
				if _, err := executeAll(ctx, recorder, st.actions); err != nil {
					return err
				}
			}
		}
		preview.Script = recorder.Script()
		preview.Warnings = result.Warnings
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}
