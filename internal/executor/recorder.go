package executor

import (
	"context"
	"strings"
	"sync"

	"github.com/lockplane/changeplane/internal/change"
)

// Entry is one recorded line of a preview: an action or a comment
type Entry struct {
	Comment string         `json:"comment,omitempty"`
	Action  *change.Action `json:"action,omitempty"`
}

// Recorder collects actions instead of executing them
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

var _ Executor = (*Recorder)(nil)

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Execute(_ context.Context, action change.Action) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Action: &action})
	return Result{}, nil
}

func (r *Recorder) Transaction(_ context.Context, fn func(Executor) error) error {
	return fn(r)
}

// Comment records a comment line
func (r *Recorder) Comment(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Comment: text})
}

// Entries returns everything recorded, in order
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Actions returns the recorded actions, in order
func (r *Recorder) Actions() []change.Action {
	var out []change.Action
	for _, e := range r.Entries() {
		if e.Action != nil {
			out = append(out, *e.Action)
		}
	}
	return out
}

// Script renders the recording as a SQL script
func (r *Recorder) Script() string {
	var b strings.Builder
	for _, e := range r.Entries() {
		if e.Action == nil {
			for _, line := range strings.Split(e.Comment, "\n") {
				b.WriteString("-- ")
				b.WriteString(line)
				b.WriteString("\n")
			}
			continue
		}
		sql := strings.TrimRight(strings.TrimSpace(e.Action.SQL), ";")
		if sql == "" {
			continue
		}
		b.WriteString(sql)
		b.WriteString(";\n")
	}
	return b.String()
}
