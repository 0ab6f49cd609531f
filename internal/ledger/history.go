package ledger

import (
	"sort"
	"time"

	"github.com/lockplane/changeplane/internal/changelog"
)

// History is an in-memory index over ledger rows, ordered by execution.
// Paths are normalized once here, when the rows are loaded.
type History struct {
	rows  []RanChangeSet
	byKey map[string]int
}

// NewHistory indexes rows. The input slice is not modified.
func NewHistory(rows []RanChangeSet) *History {
	sorted := make([]RanChangeSet, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderExecuted != sorted[j].OrderExecuted {
			return sorted[i].OrderExecuted < sorted[j].OrderExecuted
		}
		return sorted[i].DateExecuted.Before(sorted[j].DateExecuted)
	})

	h := &History{rows: sorted, byKey: make(map[string]int, len(sorted))}
	for i := range sorted {
		sorted[i].FilePath = changelog.NormalizePath(sorted[i].FilePath)
		h.byKey[sorted[i].Identity().Key()] = i
	}
	return h
}

// Rows returns the rows in execution order
func (h *History) Rows() []RanChangeSet { return h.rows }

// Len returns the number of rows
func (h *History) Len() int { return len(h.rows) }

// Find returns the row for a changeset identity
func (h *History) Find(id changelog.Identity) (RanChangeSet, bool) {
	i, ok := h.byKey[id.Key()]
	if !ok {
		return RanChangeSet{}, false
	}
	return h.rows[i], true
}

// Position returns the execution-order index of the row for id
func (h *History) Position(id changelog.Identity) (int, bool) {
	i, ok := h.byKey[id.Key()]
	return i, ok
}

// NextOrder returns the order-executed value for the next recorded row
func (h *History) NextOrder() int {
	highest := 0
	for _, r := range h.rows {
		if r.OrderExecuted > highest {
			highest = r.OrderExecuted
		}
	}
	return highest + 1
}

// TagPosition returns the execution-order index of the last row carrying tag
func (h *History) TagPosition(tag string) (int, bool) {
	for i := len(h.rows) - 1; i >= 0; i-- {
		if h.rows[i].Tag == tag {
			return i, true
		}
	}
	return -1, false
}

// Last returns the most recently executed row
func (h *History) Last() (RanChangeSet, bool) {
	if len(h.rows) == 0 {
		return RanChangeSet{}, false
	}
	return h.rows[len(h.rows)-1], true
}

// ExecutedSince returns the rows executed strictly after date, in
// execution order, and whether any row was executed at or before it
func (h *History) ExecutedSince(date time.Time) (rows []RanChangeSet, found bool) {
	for _, r := range h.rows {
		if r.DateExecuted.After(date) {
			rows = append(rows, r)
		} else {
			found = true
		}
	}
	return rows, found
}
