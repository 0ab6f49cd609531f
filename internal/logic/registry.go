package logic

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lockplane/changeplane/internal/change"
)

// Registry holds the registered Logic handlers. It is mutated at startup and
// safe for concurrent reads afterwards.
type Registry struct {
	mu     sync.RWMutex
	logics map[string]Logic

	// byType caches, per statement type, the type-matching handlers in
	// chain order. Invalidated on every register/unregister.
	byType map[change.StatementType][]Logic
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		logics: make(map[string]Logic),
		byType: make(map[change.StatementType][]Logic),
	}
}

// Register adds a handler. Names must be unique.
func (r *Registry) Register(l Logic) error {
	if l == nil {
		return fmt.Errorf("cannot register nil logic")
	}
	name := l.Name()
	if name == "" {
		return fmt.Errorf("logic for %s has no name", l.StatementType())
	}
	if l.StatementType() == "" {
		return fmt.Errorf("logic %s declares no statement type", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.logics[name]; exists {
		return fmt.Errorf("logic %s is already registered", name)
	}
	r.logics[name] = l
	r.byType = make(map[change.StatementType][]Logic)
	return nil
}

// RegisterAll registers every handler, stopping at the first error
func (r *Registry) RegisterAll(logics ...Logic) error {
	for _, l := range logics {
		if err := r.Register(l); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a handler by name. It reports whether it was present.
func (r *Registry) Unregister(l Logic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logics[l.Name()]; !ok {
		return false
	}
	delete(r.logics, l.Name())
	r.byType = make(map[change.StatementType][]Logic)
	return true
}

// Len returns the number of registered handlers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logics)
}

// Logics returns every registered handler in chain order
func (r *Registry) Logics() []Logic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Logic, 0, len(r.logics))
	for _, l := range r.logics {
		all = append(all, l)
	}
	sortChain(all)
	return all
}

// FindApplicable returns the handlers whose declared type accepts the
// statement's type and whose Supports predicate holds, in chain order. An
// empty result means the statement is unsupported in env.
func (r *Registry) FindApplicable(stmt change.Statement, env *Environment) []Logic {
	candidates := r.candidates(stmt.Type())
	applicable := make([]Logic, 0, len(candidates))
	for _, l := range candidates {
		if l.Supports(stmt, env) {
			applicable = append(applicable, l)
		}
	}
	return applicable
}

func (r *Registry) candidates(t change.StatementType) []Logic {
	r.mu.RLock()
	cached, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.byType[t]; ok {
		return cached
	}
	var matching []Logic
	for _, l := range r.logics {
		if l.StatementType().AssignableFrom(t) {
			matching = append(matching, l)
		}
	}
	sortChain(matching)
	r.byType[t] = matching
	return matching
}

// sortChain orders by descending priority, then ascending name
func sortChain(logics []Logic) {
	sort.SliceStable(logics, func(i, j int) bool {
		pi, pj := logics[i].Priority(), logics[j].Priority()
		if pi != pj {
			return pi > pj
		}
		return logics[i].Name() < logics[j].Name()
	})
}
