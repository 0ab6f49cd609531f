// Package ledger persists the history of executed changesets.
package ledger

import (
	"context"
	"time"

	"github.com/lockplane/changeplane/internal/changelog"
	"github.com/lockplane/changeplane/internal/executor"
)

// ExecType records how a changeset came to be in the ledger
type ExecType string

const (
	Executed ExecType = "EXECUTED"
	Reran    ExecType = "RERAN"
	Skipped  ExecType = "SKIPPED"
)

// RanChangeSet is the persisted record of an executed changeset
type RanChangeSet struct {
	ID             string    `json:"id"`
	Author         string    `json:"author"`
	FilePath       string    `json:"filename"`
	Checksum       string    `json:"checksum"`
	DateExecuted   time.Time `json:"date_executed"`
	OrderExecuted  int       `json:"order_executed"`
	ExecType       ExecType  `json:"exec_type"`
	Tag            string    `json:"tag,omitempty"`
	Contexts       string    `json:"contexts,omitempty"`
	Labels         string    `json:"labels,omitempty"`
	Description    string    `json:"description,omitempty"`
	Comments       string    `json:"comments,omitempty"`
	ProductVersion string    `json:"product_version,omitempty"`
	DeploymentID   string    `json:"deployment_id,omitempty"`
}

// Identity returns the row's normalized identity triple
func (r RanChangeSet) Identity() changelog.Identity {
	return changelog.NewIdentity(r.ID, r.Author, r.FilePath)
}

// Store is the ledger's persistence contract. Every call happens while the
// caller holds the distributed lock.
type Store interface {
	// Init creates the ledger table if needed
	Init(ctx context.Context) error

	// LoadAll returns every row ordered by OrderExecuted
	LoadAll(ctx context.Context) ([]RanChangeSet, error)

	// Upsert inserts the row, or updates the row with the same identity
	Upsert(ctx context.Context, row RanChangeSet) error

	// Remove deletes the row with the given identity
	Remove(ctx context.Context, id changelog.Identity) error

	// Tag sets tag on the most recently executed row
	Tag(ctx context.Context, tag string) error
}

// TxStore is a Store whose row writes can go through an executor, so a row
// commits or rolls back with the changeset it records
type TxStore interface {
	Store
	UpsertWith(ctx context.Context, exec executor.Executor, row RanChangeSet) error
	RemoveWith(ctx context.Context, exec executor.Executor, id changelog.Identity) error
}
