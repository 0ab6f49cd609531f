package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/executor"
	"github.com/lockplane/changeplane/internal/expression"
	"github.com/lockplane/changeplane/internal/filter"
	"github.com/lockplane/changeplane/internal/ledger"
	"github.com/lockplane/changeplane/internal/logic"
)

// Request selects the changesets an update considers
type Request struct {
	Contexts []string
	Labels   string
	// Count limits the run to the next Count pending changesets; 0 means all
	Count int
	// ToTag stops the run after the changeset that applied or declares the tag
	ToTag string
}

func (r Request) validate() error {
	if r.Count < 0 {
		return fmt.Errorf("count must not be negative, got %d", r.Count)
	}
	return nil
}

// Applied describes one changeset a run executed (or rolled back)
type Applied struct {
	ChangeSet string          `json:"changeset"`
	ExecType  ledger.ExecType `json:"exec_type,omitempty"`
	Checksum  string          `json:"checksum,omitempty"`
	Actions   int             `json:"actions"`
	Duration  time.Duration   `json:"duration"`
}

// Skipped is a changeset the plan excluded, with the reason
type Skipped struct {
	ChangeSet string `json:"changeset"`
	Filter    string `json:"filter"`
	Reason    string `json:"reason"`
}

// Warning is a non-fatal advisory raised while dispatching a statement
type Warning struct {
	ChangeSet string `json:"changeset"`
	Statement string `json:"statement"`
	Message   string `json:"message"`
}

// RunResult is the outcome of an update or rollback
type RunResult struct {
	DeploymentID string `json:"deployment_id"`
	// Applied lists the changesets executed, in order. For a rollback it
	// lists the changesets rolled back, latest first.
	Applied  []Applied `json:"applied"`
	Skipped  []Skipped `json:"skipped,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
	// Errors holds the failures of continue-on-error statements
	Errors []error `json:"-"`
}

// plannedStatement is a validated statement. Actions of non-volatile
// statements are generated during planning; volatile ones are generated
// right before they execute.
type plannedStatement struct {
	stmt     change.Statement
	actions  []change.Action
	volatile bool
}

type plannedChangeSet struct {
	cs         *changelog.ChangeSet
	statements []plannedStatement
	rollback   bool
}

// transactional reports whether the changeset can run in one transaction.
// Volatile statements read the schema through their own connection and
// would not see the transaction's uncommitted work, and a continue-on-error
// failure would abort the whole transaction on some databases.
func (p *plannedChangeSet) transactional(dialect database.Dialect) bool {
	if !dialect.SupportsFeature(database.FeatureTransactionalDDL) {
		return false
	}
	for _, st := range p.statements {
		if st.volatile || st.stmt.ContinueOnError() {
			return false
		}
		for _, a := range st.actions {
			if a.NonTransactional {
				return false
			}
		}
	}
	return true
}

// Update runs every pending changeset selected by req, in changelog order
func (m *Migrator) Update(ctx context.Context, log *changelog.ChangeLog, req Request) (*RunResult, error) {
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

		plan, decisions, err := m.plan(log, history, req)
		if err != nil {
			return err
		}
		result.Skipped = skipped(decisions)
		m.logger.Info("planned update", "count", len(plan), "skipped", len(result.Skipped))

		planned, err := m.prepare(ctx, plan, false, m.cfg.DB, result)
		if err != nil {
			return err
		}

		order := history.NextOrder()
		for _, p := range planned {
			row, err := m.ledgerRow(p.cs, history, order, result.DeploymentID)
			if err != nil {
				return &RunError{ChangeSet: p.cs.String(), Err: err, Recorded: len(result.Applied)}
			}
			applied, err := m.apply(ctx, p, result, m.upsertRow(row))
			if err != nil {
				return runError(p, err, result)
			}
			order++
			applied.ExecType = row.ExecType
			applied.Checksum = row.Checksum
			result.Applied = append(result.Applied, applied)
			m.logger.Info("applied changeset", "changeset", p.cs.ID, "author", p.cs.Author, "path", p.cs.FilePath,
				"exec_type", row.ExecType, "count", applied.Actions)
		}
		return nil
	})
	return result, err
}

// updatePipeline builds the filters an update plans with
func (m *Migrator) updatePipeline(log *changelog.ChangeLog, history *ledger.History, req Request) (*filter.Pipeline, error) {
	dialect := m.cfg.Dialect.Name()
	exprs := expression.NewCache()
	filters := []filter.Filter{
		filter.ShouldRun{History: history},
		filter.Ignore{},
		filter.Dbms{Dialect: dialect},
		filter.Context{Requested: req.Contexts, Expressions: exprs},
		filter.Label{Requested: req.Labels, Expressions: exprs},
	}
	if req.ToTag != "" {
		upTo, err := filter.NewUpToTag(log, history, req.ToTag)
		if err != nil {
			return nil, err
		}
		filters = append(filters, upTo)
	}
	if req.Count > 0 {
		filters = append(filters, filter.NewCount(req.Count))
	}
	scope := filter.Scope{Contexts: req.Contexts, Labels: req.Labels, Dialect: dialect, Expressions: exprs}
	return filter.NewPipeline(filters...).WithPruning(scope), nil
}

func (m *Migrator) plan(log *changelog.ChangeLog, history *ledger.History, req Request) ([]*changelog.ChangeSet, []filter.Decision, error) {
	pipeline, err := m.updatePipeline(log, history, req)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.Plan(log.ChangeSets())
}

func skipped(decisions []filter.Decision) []Skipped {
	var out []Skipped
	for _, d := range decisions {
		if r, ok := d.Rejection(); ok {
			out = append(out, Skipped{ChangeSet: d.ChangeSet.String(), Filter: r.Filter, Reason: r.Reason})
		}
	}
	return out
}

// prepare validates every statement of every changeset before anything is
// generated, then collects warnings and generates the actions of
// non-volatile statements
func (m *Migrator) prepare(ctx context.Context, changeSets []*changelog.ChangeSet, rollback bool, db *sql.DB, result *RunResult) ([]*plannedChangeSet, error) {
	statements := make([][]change.Statement, len(changeSets))
	verr := &logic.ValidationError{}
	for i, cs := range changeSets {
		stmts := cs.Statements
		if rollback {
			var missing []string
			stmts, missing = cs.RollbackStatements()
			for _, desc := range missing {
				verr.Problems = append(verr.Problems, logic.Problem{
					ChangeSet: cs.String(),
					Statement: desc,
					Message:   "no rollback is declared and the statement has no automatic inverse",
				})
			}
		}
		statements[i] = stmts

		env := m.environment(cs, db, rollback)
		for _, stmt := range stmts {
			errs, err := m.cfg.Dispatcher.Validate(stmt, env)
			if err != nil {
				return nil, err
			}
			verr.Append(cs.String(), stmt, errs)
		}
	}
	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}

	planned := make([]*plannedChangeSet, 0, len(changeSets))
	for i, cs := range changeSets {
		p := &plannedChangeSet{cs: cs, rollback: rollback}
		env := m.environment(cs, db, rollback)
		for _, stmt := range statements[i] {
			warnings, err := m.cfg.Dispatcher.Warn(stmt, env)
			if err != nil {
				return nil, err
			}
			for _, w := range warnings {
				m.logger.Warn(w, "changeset", cs.ID, "author", cs.Author, "path", cs.FilePath)
				result.Warnings = append(result.Warnings, Warning{ChangeSet: cs.String(), Statement: stmt.Describe(), Message: w})
			}

			volatile, err := m.cfg.Dispatcher.IsVolatile(stmt, env)
			if err != nil {
				return nil, err
			}
			st := plannedStatement{stmt: stmt, volatile: volatile}
			if !volatile {
				if st.actions, err = m.generate(ctx, p, stmt, env); err != nil {
					return nil, fmt.Errorf("%s: %w", cs, err)
				}
			}
			p.statements = append(p.statements, st)
		}
		planned = append(planned, p)
	}
	return planned, nil
}

// generate dispatches stmt and runs the changeset's SQL visitors over the
// result
func (m *Migrator) generate(ctx context.Context, p *plannedChangeSet, stmt change.Statement, env *logic.Environment) ([]change.Action, error) {
	actions, err := m.cfg.Dispatcher.GenerateActions(ctx, stmt, env)
	if err != nil {
		return nil, err
	}
	return changelog.ApplyVisitors(actions, p.cs.Visitors, p.rollback)
}

// apply executes a planned changeset, in one transaction when possible
func (m *Migrator) apply(ctx context.Context, p *plannedChangeSet, result *RunResult, record ledgerWrite) (Applied, error) {
	start := time.Now()
	applied := Applied{ChangeSet: p.cs.String()}
	m.logger.Debug("running changeset", "changeset", p.cs.ID, "author", p.cs.Author, "path", p.cs.FilePath, "rollback", p.rollback)

	run := func(exec executor.Executor) error {
		env := m.environment(p.cs, m.cfg.DB, p.rollback)
		for _, st := range p.statements {
			actions := st.actions
			if st.volatile {
				var err error
				if actions, err = m.generate(ctx, p, st.stmt, env); err != nil {
					return err
				}
			}
			n, err := executeAll(ctx, exec, actions)
			applied.Actions += n
			if err == nil {
				continue
			}
			if !st.stmt.ContinueOnError() {
				return err
			}
			m.logger.Warn("statement failed, continuing", "changeset", p.cs.ID, "statement", st.stmt.Describe(), "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("%s: %s: %w", p.cs, st.stmt.Describe(), err))
		}
		return nil
	}

	var err error
	recorded := false
	if p.transactional(m.cfg.Dialect) {
		err = m.cfg.Executor.Transaction(ctx, func(exec executor.Executor) error {
			if err := run(exec); err != nil {
				return err
			}
			if record.within == nil {
				return nil
			}
			recorded = true
			return record.within(ctx, exec)
		})
	} else {
		err = run(m.cfg.Executor)
	}
	applied.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Warn("run cancelled", "changeset", p.cs.ID)
		}
		return applied, err
	}
	if !recorded {
		if err := record.after(ctx); err != nil {
			m.logger.Error("changeset applied but not recorded", "changeset", p.cs.ID, "error", err)
			return applied, &unrecordedError{err: err}
		}
	}
	return applied, nil
}

// ledgerWrite records the outcome of a changeset. within runs inside the
// changeset's transaction and is nil when the store cannot join one; after
// runs once the actions are committed.
type ledgerWrite struct {
	within func(ctx context.Context, exec executor.Executor) error
	after  func(ctx context.Context) error
}

func (m *Migrator) upsertRow(row ledger.RanChangeSet) ledgerWrite {
	w := ledgerWrite{after: func(ctx context.Context) error { return m.cfg.Store.Upsert(ctx, row) }}
	if tx, ok := m.cfg.Store.(ledger.TxStore); ok {
		w.within = func(ctx context.Context, exec executor.Executor) error { return tx.UpsertWith(ctx, exec, row) }
	}
	return w
}

func (m *Migrator) removeRow(id changelog.Identity) ledgerWrite {
	w := ledgerWrite{after: func(ctx context.Context) error { return m.cfg.Store.Remove(ctx, id) }}
	if tx, ok := m.cfg.Store.(ledger.TxStore); ok {
		w.within = func(ctx context.Context, exec executor.Executor) error { return tx.RemoveWith(ctx, exec, id) }
	}
	return w
}

// unrecordedError is a ledger write that failed after the changeset's
// actions were committed
type unrecordedError struct{ err error }

func (e *unrecordedError) Error() string { return fmt.Sprintf("update ledger: %v", e.err) }

func (e *unrecordedError) Unwrap() error { return e.err }

func runError(p *plannedChangeSet, err error, result *RunResult) *RunError {
	runErr := &RunError{ChangeSet: p.cs.String(), Err: err, Recorded: len(result.Applied)}
	var unrecorded *unrecordedError
	if errors.As(err, &unrecorded) {
		runErr.Err = unrecorded.err
		runErr.Unrecorded = true
	}
	return runErr
}

func executeAll(ctx context.Context, exec executor.Executor, actions []change.Action) (int, error) {
	for i, action := range actions {
		if _, err := exec.Execute(ctx, action); err != nil {
			return i, err
		}
	}
	return len(actions), nil
}

// ledgerRow builds the record of a successful run of cs
func (m *Migrator) ledgerRow(cs *changelog.ChangeSet, history *ledger.History, order int, deploymentID string) (ledger.RanChangeSet, error) {
	sum, err := cs.Checksum()
	if err != nil {
		return ledger.RanChangeSet{}, err
	}
	execType := ledger.Executed
	if _, ran := history.Find(cs.Identity()); ran {
		execType = ledger.Reran
	}
	tag, _ := cs.Tag()
	return ledger.RanChangeSet{
		ID:             cs.ID,
		Author:         cs.Author,
		FilePath:       cs.FilePath,
		Checksum:       sum,
		DateExecuted:   time.Now().UTC(),
		OrderExecuted:  order,
		ExecType:       execType,
		Tag:            tag,
		Contexts:       cs.Contexts,
		Labels:         cs.Labels,
		Description:    cs.Description(),
		Comments:       cs.Comments,
		ProductVersion: m.cfg.ProductVersion,
		DeploymentID:   deploymentID,
	}, nil
}
