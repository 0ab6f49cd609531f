// Package logic selects and runs the pluggable handlers that turn
// dialect-neutral statements into dialect-specific actions.
//
// Handlers are registered explicitly in a Registry; each declares the
// statement type tag it supports, a support predicate and a priority.
// For a given statement the applicable handlers form an ordered chain that
// is traversed once per phase (validate, warn, generate). A handler may
// delegate to the rest of the chain, short-circuit it, or block a named
// lower-priority handler for the remainder of the traversal.
package logic

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/internal/change"
	"github.com/lockplane/changeplane/internal/changelog"
)

// Priorities used by the built-in handlers
const (
	PriorityDefault      = 1
	PriorityDialect      = 10
	PriorityCrossCutting = 100
)

// Environment is the target dialect plus the ambient execution context. It
// is passed by reference through a whole chain and is never shared between
// goroutines.
type Environment struct {
	Dialect database.Dialect

	// DB is the live connection. It is nil when actions are generated
	// offline (previews), in which case volatile logic must not run.
	DB *sql.DB

	// ChangeSet is the changeset whose statements are being dispatched
	ChangeSet *changelog.ChangeSet

	// Rollback is set while dispatching rollback statements
	Rollback bool
}

// Online reports whether a live connection is available
func (e *Environment) Online() bool {
	return e != nil && e.DB != nil
}

// DialectName returns the canonical dialect name, or "" when unset
func (e *Environment) DialectName() string {
	if e == nil || e.Dialect == nil {
		return ""
	}
	return e.Dialect.Name()
}

// Logic is one pluggable handler.
type Logic interface {
	// Name is the canonical implementation name. It must be unique within a
	// registry and is the deterministic tie-break between equal priorities.
	Name() string

	// StatementType is the declared statement type tag this logic handles;
	// change.AnyStatement for cross-cutting logic.
	StatementType() change.StatementType

	// Priority orders the chain; higher runs first
	Priority() int

	// Supports is the dialect/context predicate
	Supports(stmt change.Statement, env *Environment) bool

	Validate(stmt change.Statement, env *Environment, next Next) ValidationErrors
	Warn(stmt change.Statement, env *Environment, next Next) Warnings
	GenerateActions(ctx context.Context, stmt change.Statement, env *Environment, next Next) ([]change.Action, error)

	// IsVolatile reports that generation reads live database state, so its
	// output must not be computed ahead of the execution window
	IsVolatile(env *Environment) bool
}

// Verifier is implemented by logic that can check whether a statement's
// effect is already present in the database.
type Verifier interface {
	CheckStatus(ctx context.Context, stmt change.Statement, env *Environment) *change.ActionStatus
}

// Expect asserts the concrete statement type a logic was registered for
func Expect[T change.Statement](stmt change.Statement) (T, error) {
	s, ok := stmt.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("expected %T statement, got %T", zero, stmt)
	}
	return s, nil
}

// SupportsFeature reports whether env's dialect has feature. Without a
// dialect every feature is assumed.
func (e *Environment) SupportsFeature(feature string) bool {
	if e == nil || e.Dialect == nil {
		return true
	}
	return e.Dialect.SupportsFeature(feature)
}

// Introspector returns the live-schema reader when a connection is available
func (e *Environment) Introspector() (database.Introspector, bool) {
	if !e.Online() || e.Dialect == nil || e.Dialect.Introspector() == nil {
		return nil, false
	}
	return e.Dialect.Introspector(), true
}

// Base gives pass-through behavior for every phase. Embed it and override
// only what a handler changes.
type Base struct {
	LogicName string
	Handles   change.StatementType
	Rank      int
}

// Name returns LogicName
func (b Base) Name() string { return b.LogicName }

// StatementType returns the statement type the logic is registered for
func (b Base) StatementType() change.StatementType { return b.Handles }

// Priority returns Rank
func (b Base) Priority() int { return b.Rank }

// IsVolatile reports false: generation does not read live state
func (b Base) IsVolatile(*Environment) bool { return false }

// Supports accepts every statement in every environment
func (b Base) Supports(change.Statement, *Environment) bool { return true }

// Validate delegates to the rest of the chain
func (b Base) Validate(stmt change.Statement, env *Environment, next Next) ValidationErrors {
	return next.Validate(stmt, env)
}

// Warn delegates to the rest of the chain
func (b Base) Warn(stmt change.Statement, env *Environment, next Next) Warnings {
	return next.Warn(stmt, env)
}

// GenerateActions delegates to the rest of the chain
func (b Base) GenerateActions(ctx context.Context, stmt change.Statement, env *Environment, next Next) ([]change.Action, error) {
	return next.GenerateActions(ctx, stmt, env)
}
