package logic

import (
	"context"
	"fmt"

	"github.com/lockplane/changeplane/internal/change"
)

// Dispatcher runs the three phases over the chain applicable to a
// statement. Each call builds a fresh traversal, so blocks recorded in one
// phase never leak into another.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over the registry
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Registry returns the underlying registry
func (d *Dispatcher) Registry() *Registry { return d.registry }

func (d *Dispatcher) chain(stmt change.Statement, env *Environment) (Next, error) {
	logics := d.registry.FindApplicable(stmt, env)
	if len(logics) == 0 {
		return Next{}, &UnsupportedOperationError{
			Statement:   stmt.Type(),
			Description: stmt.Describe(),
			Dialect:     env.DialectName(),
		}
	}
	return newNext(logics), nil
}

// Chain returns the names of the applicable handlers in the order they
// would be consulted
func (d *Dispatcher) Chain(stmt change.Statement, env *Environment) ([]string, error) {
	next, err := d.chain(stmt, env)
	if err != nil {
		return nil, err
	}
	return next.Remaining(), nil
}

// Supports reports whether at least one handler applies
func (d *Dispatcher) Supports(stmt change.Statement, env *Environment) bool {
	return len(d.registry.FindApplicable(stmt, env)) > 0
}

// Validate runs the validation phase
func (d *Dispatcher) Validate(stmt change.Statement, env *Environment) (ValidationErrors, error) {
	next, err := d.chain(stmt, env)
	if err != nil {
		return nil, err
	}
	return next.Validate(stmt, env), nil
}

// Warn runs the warning phase
func (d *Dispatcher) Warn(stmt change.Statement, env *Environment) (Warnings, error) {
	next, err := d.chain(stmt, env)
	if err != nil {
		return nil, err
	}
	return next.Warn(stmt, env), nil
}

// GenerateActions runs the generation phase. It does not validate; callers
// validate every statement first and generate only when nothing failed.
func (d *Dispatcher) GenerateActions(ctx context.Context, stmt change.Statement, env *Environment) ([]change.Action, error) {
	next, err := d.chain(stmt, env)
	if err != nil {
		return nil, err
	}
	actions, err := next.GenerateActions(ctx, stmt, env)
	if err != nil {
		return nil, fmt.Errorf("failed to generate actions for %s: %w", stmt.Describe(), err)
	}
	return actions, nil
}

// IsVolatile reports whether any applicable handler reads live state
func (d *Dispatcher) IsVolatile(stmt change.Statement, env *Environment) (bool, error) {
	logics := d.registry.FindApplicable(stmt, env)
	if len(logics) == 0 {
		return false, &UnsupportedOperationError{Statement: stmt.Type(), Description: stmt.Describe(), Dialect: env.DialectName()}
	}
	for _, l := range logics {
		if l.IsVolatile(env) {
			return true, nil
		}
	}
	return false, nil
}

// CheckStatus asks the first applicable Verifier whether the statement's
// effect is present. Without one the status is CannotVerify.
func (d *Dispatcher) CheckStatus(ctx context.Context, stmt change.Statement, env *Environment) *change.ActionStatus {
	for _, l := range d.registry.FindApplicable(stmt, env) {
		if v, ok := l.(Verifier); ok {
			return v.CheckStatus(ctx, stmt, env)
		}
	}
	return change.NewActionStatus().Add(change.CannotVerify, fmt.Sprintf("no verifier for %s", stmt.Type()))
}

// Outcome is the result of running all three phases for one statement
type Outcome struct {
	Actions  []change.Action
	Warnings Warnings
}

// Run validates, warns and generates in that order. A statement that fails
// validation yields a *ValidationError and no actions.
func (d *Dispatcher) Run(ctx context.Context, stmt change.Statement, env *Environment) (*Outcome, error) {
	errs, err := d.Validate(stmt, env)
	if err != nil {
		return nil, err
	}
	if errs.HasErrors() {
		verr := &ValidationError{}
		changeSet := ""
		if env != nil && env.ChangeSet != nil {
			changeSet = env.ChangeSet.String()
		}
		verr.Append(changeSet, stmt, errs)
		return nil, verr
	}
	warnings, err := d.Warn(stmt, env)
	if err != nil {
		return nil, err
	}
	actions, err := d.GenerateActions(ctx, stmt, env)
	if err != nil {
		return nil, err
	}
	return &Outcome{Actions: actions, Warnings: warnings}, nil
}
