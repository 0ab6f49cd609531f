package changelog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lockplane/changeplane/internal/change"
)

// VisitorKind selects how a SQLVisitor rewrites generated SQL
type VisitorKind string

const (
	VisitorReplace VisitorKind = "replace"
	VisitorRegexp  VisitorKind = "regexp"
	VisitorAppend  VisitorKind = "append"
	VisitorPrepend VisitorKind = "prepend"
)

// SQLVisitor rewrites the SQL of generated actions before execution. Its
// own dbms/contexts/labels restrict where it applies; visitors that do not
// match the run are pruned before execution.
type SQLVisitor struct {
	Kind            VisitorKind `json:"kind" yaml:"kind"`
	Replace         string      `json:"replace,omitempty" yaml:"replace,omitempty"`
	With            string      `json:"with,omitempty" yaml:"with,omitempty"`
	Value           string      `json:"value,omitempty" yaml:"value,omitempty"`
	Dbms            string      `json:"dbms,omitempty" yaml:"dbms,omitempty"`
	Contexts        string      `json:"contexts,omitempty" yaml:"contexts,omitempty"`
	Labels          string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	ApplyToRollback bool        `json:"apply_to_rollback,omitempty" yaml:"apply_to_rollback,omitempty"`
}

// Validate checks the visitor is well formed
func (v SQLVisitor) Validate() error {
	switch v.Kind {
	case VisitorReplace:
		if v.Replace == "" {
			return fmt.Errorf("replace visitor needs a value for replace")
		}
	case VisitorRegexp:
		if _, err := regexp.Compile(v.Replace); err != nil {
			return fmt.Errorf("regexp visitor has invalid pattern %q: %w", v.Replace, err)
		}
	case VisitorAppend, VisitorPrepend:
		if v.Value == "" {
			return fmt.Errorf("%s visitor needs a value", v.Kind)
		}
	default:
		return fmt.Errorf("unknown sql visitor kind %q", v.Kind)
	}
	return nil
}

// Apply rewrites one SQL string
func (v SQLVisitor) Apply(sql string) (string, error) {
	switch v.Kind {
	case VisitorReplace:
		return strings.ReplaceAll(sql, v.Replace, v.With), nil
	case VisitorRegexp:
		re, err := regexp.Compile(v.Replace)
		if err != nil {
			return "", fmt.Errorf("invalid regexp %q: %w", v.Replace, err)
		}
		return re.ReplaceAllString(sql, v.With), nil
	case VisitorAppend:
		return sql + v.Value, nil
	case VisitorPrepend:
		return v.Value + sql, nil
	default:
		return "", fmt.Errorf("unknown sql visitor kind %q", v.Kind)
	}
}

// ApplyVisitors rewrites the SQL of every executable action. During a
// rollback only visitors marked ApplyToRollback run.
func ApplyVisitors(actions []change.Action, visitors []SQLVisitor, rollback bool) ([]change.Action, error) {
	if len(visitors) == 0 {
		return actions, nil
	}
	out := make([]change.Action, len(actions))
	for i, action := range actions {
		for _, v := range visitors {
			if rollback && !v.ApplyToRollback {
				continue
			}
			sql, err := v.Apply(action.SQL)
			if err != nil {
				return nil, err
			}
			action.SQL = sql
		}
		out[i] = action
	}
	return out, nil
}
