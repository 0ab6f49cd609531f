// Package filter decides which changesets of a changelog belong in a run.
//
// Each Filter is an independent predicate that explains its decision. A
// Pipeline evaluates its filters in order and includes a changeset only if
// every filter accepts it. Pruning of SQL visitors that do not match the
// run is a separate, explicit step (PruneVisitors) that the pipeline runs
// for every changeset before its filters.
package filter

import (
	"fmt"
	"strings"

	"github.com/lockplane/changeplane/internal/changelog"
)

// Result is one filter's explained decision
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Filter   string `json:"filter"`
}

func accept(filter, format string, args ...any) Result {
	return Result{Accepted: true, Reason: fmt.Sprintf(format, args...), Filter: filter}
}

func reject(filter, format string, args ...any) Result {
	return Result{Accepted: false, Reason: fmt.Sprintf(format, args...), Filter: filter}
}

// Filter is one independent predicate over changesets
type Filter interface {
	Name() string
	Accepts(cs *changelog.ChangeSet) (Result, error)
}

// Decision is the pipeline's verdict for one changeset
type Decision struct {
	ChangeSet *changelog.ChangeSet
	Included  bool
	// Results holds the accepting results in order, followed by the
	// rejecting one when the changeset was excluded
	Results []Result
	// Pruned counts the SQL visitors removed from the changeset
	Pruned int
}

// Rejection returns the result that excluded the changeset
func (d Decision) Rejection() (Result, bool) {
	if d.Included || len(d.Results) == 0 {
		return Result{}, false
	}
	return d.Results[len(d.Results)-1], true
}

// Reasons joins every reason for display
func (d Decision) Reasons() string {
	reasons := make([]string, len(d.Results))
	for i, r := range d.Results {
		reasons[i] = r.Reason
	}
	return strings.Join(reasons, "; ")
}

// Pipeline is an ordered list of filters. Filters that carry run-scoped
// state (Count) make a pipeline single-use.
type Pipeline struct {
	filters []Filter
	scope   *Scope
}

// NewPipeline creates a pipeline evaluating filters in order
func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: filters}
}

// WithPruning makes the pipeline prune each changeset's visitors to scope
// before filtering it
func (p *Pipeline) WithPruning(scope Scope) *Pipeline {
	p.scope = &scope
	return p
}

// Filters returns the filter names in evaluation order
func (p *Pipeline) Filters() []string {
	names := make([]string, len(p.filters))
	for i, f := range p.filters {
		names[i] = f.Name()
	}
	return names
}

// Evaluate runs the filters over one changeset, stopping at the first
// rejection so stateful filters only see changesets every earlier filter
// accepted.
func (p *Pipeline) Evaluate(cs *changelog.ChangeSet) (Decision, error) {
	decision := Decision{ChangeSet: cs, Included: true}
	if p.scope != nil {
		pruned, err := PruneVisitors(cs, *p.scope)
		if err != nil {
			return decision, err
		}
		decision.Pruned = pruned
	}

	for _, f := range p.filters {
		result, err := f.Accepts(cs)
		if err != nil {
			return decision, fmt.Errorf("%s filter on %s: %w", f.Name(), cs, err)
		}
		decision.Results = append(decision.Results, result)
		if !result.Accepted {
			decision.Included = false
			break
		}
	}
	return decision, nil
}

// Plan evaluates changeSets in order and returns the included ones, in the
// same order, with every decision
func (p *Pipeline) Plan(changeSets []*changelog.ChangeSet) ([]*changelog.ChangeSet, []Decision, error) {
	var plan []*changelog.ChangeSet
	decisions := make([]Decision, 0, len(changeSets))
	for _, cs := range changeSets {
		d, err := p.Evaluate(cs)
		if err != nil {
			return nil, nil, err
		}
		decisions = append(decisions, d)
		if d.Included {
			plan = append(plan, cs)
		}
	}
	return plan, decisions, nil
}
