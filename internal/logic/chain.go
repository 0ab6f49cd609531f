package logic

import (
	"context"

	"github.com/lockplane/changeplane/internal/change"
)

// traversal is the state shared by one pass over a chain
type traversal struct {
	logics  []Logic
	blocked map[string]bool
}

// Next is the continuation handed to each Logic: the rest of the chain from
// an explicit position. It is a small value; copying it is cheap and does
// not advance anything.
type Next struct {
	t   *traversal
	pos int
}

func newNext(logics []Logic) Next {
	return Next{t: &traversal{logics: logics, blocked: map[string]bool{}}}
}

// Position is the index in the ordered chain that Next will consider first
func (n Next) Position() int { return n.pos }

// Remaining returns the names of the handlers that would still run, in order
func (n Next) Remaining() []string {
	if n.t == nil {
		return nil
	}
	var names []string
	for _, l := range n.t.logics[n.pos:] {
		if !n.t.blocked[l.Name()] {
			names = append(names, l.Name())
		}
	}
	return names
}

// Block prevents the named logic from running for the rest of this
// traversal while letting every other remaining handler proceed.
func (n Next) Block(name string) {
	if n.t != nil {
		n.t.blocked[name] = true
	}
}

// Blocked reports whether the named logic has been blocked in this traversal
func (n Next) Blocked(name string) bool {
	return n.t != nil && n.t.blocked[name]
}

func (n Next) advance() (Logic, Next, bool) {
	if n.t == nil {
		return nil, n, false
	}
	for i := n.pos; i < len(n.t.logics); i++ {
		l := n.t.logics[i]
		if n.t.blocked[l.Name()] {
			continue
		}
		return l, Next{t: n.t, pos: i + 1}, true
	}
	return nil, Next{t: n.t, pos: len(n.t.logics)}, false
}

// Validate runs the rest of the chain's validation
func (n Next) Validate(stmt change.Statement, env *Environment) ValidationErrors {
	l, rest, ok := n.advance()
	if !ok {
		return nil
	}
	return l.Validate(stmt, env, rest)
}

// Warn runs the rest of the chain's warnings
func (n Next) Warn(stmt change.Statement, env *Environment) Warnings {
	l, rest, ok := n.advance()
	if !ok {
		return nil
	}
	return l.Warn(stmt, env, rest)
}

// GenerateActions runs the rest of the chain's generation
func (n Next) GenerateActions(ctx context.Context, stmt change.Statement, env *Environment) ([]change.Action, error) {
	l, rest, ok := n.advance()
	if !ok {
		return nil, nil
	}
	return l.GenerateActions(ctx, stmt, env, rest)
}
