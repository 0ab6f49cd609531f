package logic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
)

type testDialect struct{ name string }

func (d testDialect) Name() string                        { return d.name }
func (d testDialect) SupportsFeature(string) bool         { return false }
func (d testDialect) Placeholder(int) string              { return "?" }
func (d testDialect) Introspector() database.Introspector { return nil }

// emitting generates one action tagged with its own name, optionally
// delegating to the rest of the chain first.
type emitting struct {
	Base
	delegate bool
	only     string
	block    string
	volatile bool
	problems []string
}

func (e emitting) Supports(stmt change.Statement, env *Environment) bool {
	return e.only == "" || env.DialectName() == e.only
}

func (e emitting) IsVolatile(*Environment) bool { return e.volatile }

func (e emitting) Validate(stmt change.Statement, env *Environment, next Next) ValidationErrors {
	errs := ValidationErrors(nil)
	for _, p := range e.problems {
		errs = errs.Add("%s: %s", e.Name(), p)
	}
	return append(errs, next.Validate(stmt, env)...)
}

func (e emitting) GenerateActions(ctx context.Context, stmt change.Statement, env *Environment, next Next) ([]change.Action, error) {
	if e.block != "" {
		next.Block(e.block)
	}
	actions := []change.Action{change.Exec(e.Name(), "")}
	if !e.delegate {
		return actions, nil
	}
	rest, err := next.GenerateActions(ctx, stmt, env)
	if err != nil {
		return nil, err
	}
	return append(actions, rest...), nil
}

func newEmitting(name string, t change.StatementType, priority int) emitting {
	return emitting{Base: Base{LogicName: name, Handles: t, Rank: priority}}
}

func sqlOf(actions []change.Action) []string {
	var out []string
	for _, a := range actions {
		out = append(out, a.SQL)
	}
	return out
}

var dropUsers = change.DropTable{TableName: "users"}

func TestChainOrderIsDeterministic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(
		newEmitting("zeta", change.DropTableType, PriorityDefault),
		newEmitting("alpha", change.DropTableType, PriorityDefault),
		newEmitting("dialect", change.DropTableType, PriorityDialect),
		newEmitting("naming", change.AnyStatement, PriorityCrossCutting),
		newEmitting("other", change.AddColumnType, PriorityDialect),
	))

	env := &Environment{Dialect: testDialect{"sqlite"}}
	names, err := NewDispatcher(reg).Chain(dropUsers, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"naming", "dialect", "alpha", "zeta"}, names)
}

func TestHigherPriorityOverridesWithoutDelegating(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(
		newEmitting("generic", change.DropTableType, PriorityDefault),
		newEmitting("specific", change.DropTableType, PriorityDialect),
	))

	actions, err := NewDispatcher(reg).GenerateActions(context.Background(), dropUsers, &Environment{})
	require.NoError(t, err)
	assert.Equal(t, []string{"specific"}, sqlOf(actions))
}

func TestDelegationAppendsRestOfChain(t *testing.T) {
	specific := newEmitting("specific", change.DropTableType, PriorityDialect)
	specific.delegate = true
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(newEmitting("generic", change.DropTableType, PriorityDefault), specific))

	actions, err := NewDispatcher(reg).GenerateActions(context.Background(), dropUsers, &Environment{})
	require.NoError(t, err)
	assert.Equal(t, []string{"specific", "generic"}, sqlOf(actions))
}

func TestBlockSkipsOnlyTheNamedLogic(t *testing.T) {
	top := newEmitting("top", change.DropTableType, PriorityCrossCutting)
	top.delegate = true
	top.block = "generic"
	middle := newEmitting("middle", change.DropTableType, PriorityDialect)
	middle.delegate = true

	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(top, middle, newEmitting("generic", change.DropTableType, PriorityDefault)))
	d := NewDispatcher(reg)

	actions, err := d.GenerateActions(context.Background(), dropUsers, &Environment{})
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "middle"}, sqlOf(actions))

	// blocks are scoped to one traversal
	names, err := d.Chain(dropUsers, &Environment{})
	require.NoError(t, err)
	assert.Contains(t, names, "generic")
}

func TestSupportsPredicateFiltersChain(t *testing.T) {
	pg := newEmitting("pg", change.DropTableType, PriorityDialect)
	pg.only = "postgresql"
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(pg, newEmitting("generic", change.DropTableType, PriorityDefault)))
	d := NewDispatcher(reg)

	actions, err := d.GenerateActions(context.Background(), dropUsers, &Environment{Dialect: testDialect{"sqlite"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"generic"}, sqlOf(actions))

	actions, err = d.GenerateActions(context.Background(), dropUsers, &Environment{Dialect: testDialect{"postgresql"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"pg"}, sqlOf(actions))
}

func TestUnsupportedOperation(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newEmitting("generic", change.DropTableType, PriorityDefault)))
	d := NewDispatcher(reg)

	_, err := d.GenerateActions(context.Background(), change.AddColumn{TableName: "users"}, &Environment{Dialect: testDialect{"sqlite"}})
	var unsupported *UnsupportedOperationError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, change.AddColumnType, unsupported.Statement)
	assert.Equal(t, "sqlite", unsupported.Dialect)
	assert.Equal(t, CodeUnsupportedOperation, unsupported.Code())
	assert.False(t, d.Supports(change.AddColumn{}, &Environment{}))
}

func TestValidationAggregatesAcrossChain(t *testing.T) {
	a := newEmitting("a", change.DropTableType, PriorityDialect)
	a.problems = []string{"first"}
	b := newEmitting("b", change.DropTableType, PriorityDefault)
	b.problems = []string{"second"}
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(a, b))
	d := NewDispatcher(reg)

	errs, err := d.Validate(dropUsers, &Environment{})
	require.NoError(t, err)
	assert.Equal(t, ValidationErrors{"a: first", "b: second"}, errs)

	_, err = d.Run(context.Background(), dropUsers, &Environment{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Problems, 2)
	assert.Equal(t, "Drop table users", verr.Problems[0].Statement)
}

func TestIsVolatile(t *testing.T) {
	v := newEmitting("reads-live-state", change.DropTableType, PriorityDefault)
	v.volatile = true
	reg := NewRegistry()
	require.NoError(t, reg.RegisterAll(v, newEmitting("plain", change.AddColumnType, PriorityDefault)))
	d := NewDispatcher(reg)

	volatile, err := d.IsVolatile(dropUsers, &Environment{})
	require.NoError(t, err)
	assert.True(t, volatile)

	volatile, err = d.IsVolatile(change.AddColumn{}, &Environment{})
	require.NoError(t, err)
	assert.False(t, volatile)
}

func TestRegistryRejectsDuplicatesAndInvalidatesCache(t *testing.T) {
	reg := NewRegistry()
	generic := newEmitting("generic", change.DropTableType, PriorityDefault)
	require.NoError(t, reg.Register(generic))
	assert.Error(t, reg.Register(generic))
	assert.Error(t, reg.Register(newEmitting("", change.DropTableType, 1)))

	assert.Len(t, reg.FindApplicable(dropUsers, &Environment{}), 1)
	assert.True(t, reg.Unregister(generic))
	assert.Empty(t, reg.FindApplicable(dropUsers, &Environment{}))
	assert.False(t, reg.Unregister(generic))
}

func TestCheckStatusWithoutVerifier(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newEmitting("generic", change.DropTableType, PriorityDefault)))
	status := NewDispatcher(reg).CheckStatus(context.Background(), dropUsers, &Environment{})
	assert.Equal(t, change.CannotVerify, status.Status())
}
