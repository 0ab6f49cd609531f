package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/lockplane/changeplane/internal/changelog"
)

// MemoryStore keeps the ledger in process memory. It backs previews and
// tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows []RanChangeSet
}

// NewMemoryStore creates a store seeded with rows
func NewMemoryStore(rows ...RanChangeSet) *MemoryStore {
	return &MemoryStore{rows: append([]RanChangeSet(nil), rows...)}
}

func (s *MemoryStore) Init(context.Context) error { return nil }

func (s *MemoryStore) LoadAll(context.Context) ([]RanChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NewHistory(s.rows).Rows(), nil
}

func (s *MemoryStore) Upsert(_ context.Context, row RanChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := row.Identity().Key()
	for i := range s.rows {
		if s.rows[i].Identity().Key() == key {
			s.rows[i] = row
			return nil
		}
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id changelog.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.Key()
	for i := range s.rows {
		if s.rows[i].Identity().Key() == key {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Tag(_ context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return fmt.Errorf("cannot tag an empty ledger")
	}
	last := 0
	for i := range s.rows {
		if s.rows[i].OrderExecuted >= s.rows[last].OrderExecuted {
			last = i
		}
	}
	s.rows[last].Tag = tag
	return nil
}
