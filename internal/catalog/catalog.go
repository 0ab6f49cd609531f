// Package catalog assembles the built-in logic into a registry.
package catalog

import (
	"github.com/lockplane/changeplane/database/generic"
	"github.com/lockplane/changeplane/database/postgres"
	"github.com/lockplane/changeplane/database/sqlite"
	"github.com/lockplane/changeplane/internal/logic"
)

// NewRegistry returns a registry holding every built-in logic
func NewRegistry() (*logic.Registry, error) {
	registry := logic.NewRegistry()
	for _, logics := range [][]logic.Logic{generic.Logics(), postgres.Logics(), sqlite.Logics()} {
		if err := registry.RegisterAll(logics...); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// NewDispatcher returns a dispatcher over the built-in registry
func NewDispatcher() (*logic.Dispatcher, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	return logic.NewDispatcher(registry), nil
}
