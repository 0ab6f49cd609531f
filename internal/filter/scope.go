package filter

import (
	"strings"

	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/expression"
)

// Scope is what a run was asked for: the active contexts, a label
// expression and the target dialect
type Scope struct {
	Contexts []string
	Labels   string
	Dialect  string
	// Expressions memoizes compiled context and label expressions; nil
	// compiles each one as it is evaluated
	Expressions *expression.Cache
}

// contextsMatch evaluates a declared context expression against the
// requested contexts. Nothing requested, or nothing declared, matches.
func contextsMatch(cache *expression.Cache, declared string, requested []string) (bool, error) {
	if len(requested) == 0 || strings.TrimSpace(declared) == "" {
		return true, nil
	}
	return cache.Match(declared, requested)
}

// labelsMatch evaluates the requested label expression against declared
// labels. Nothing requested, or nothing declared, matches.
func labelsMatch(cache *expression.Cache, requested string, declared []string) (bool, error) {
	if strings.TrimSpace(requested) == "" || len(declared) == 0 {
		return true, nil
	}
	return cache.Match(requested, declared)
}

// PruneVisitors removes the changeset's SQL visitors whose own dbms,
// contexts or labels do not match scope, and returns how many were
// removed. Pruning an already pruned changeset removes nothing.
func PruneVisitors(cs *changelog.ChangeSet, scope Scope) (int, error) {
	if len(cs.Visitors) == 0 {
		return 0, nil
	}
	kept := cs.Visitors[:0:0]
	for _, v := range cs.Visitors {
		ok, err := visitorMatches(v, scope)
		if err != nil {
			return 0, err
		}
		if ok {
			kept = append(kept, v)
		}
	}
	removed := len(cs.Visitors) - len(kept)
	if removed > 0 {
		cs.Visitors = kept
	}
	return removed, nil
}

func visitorMatches(v changelog.SQLVisitor, scope Scope) (bool, error) {
	if scope.Dialect != "" && !changelog.MatchesDbms(v.Dbms, scope.Dialect) {
		return false, nil
	}
	ok, err := contextsMatch(scope.Expressions, v.Contexts, scope.Contexts)
	if err != nil || !ok {
		return false, err
	}
	return labelsMatch(scope.Expressions, scope.Labels, changelog.SplitList(v.Labels))
}
