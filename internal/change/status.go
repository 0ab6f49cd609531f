package change

import (
	"sort"
	"strings"
)

// Status is one verification outcome. Higher values take priority when an
// ActionStatus holds several.
type Status int

const (
	Applied Status = iota
	Incorrect
	NotApplied
	Unknown
	CannotVerify
)

func (s Status) String() string {
	switch s {
	case Applied:
		return "applied"
	case Incorrect:
		return "incorrect"
	case NotApplied:
		return "not applied"
	case Unknown:
		return "unknown"
	case CannotVerify:
		return "cannot verify"
	default:
		return "invalid"
	}
}

// ActionStatus accumulates verification results for a statement whose
// effect may already be present in the database.
type ActionStatus struct {
	messages map[Status][]string
}

// NewActionStatus returns an empty status, which reads as Applied
func NewActionStatus() *ActionStatus {
	return &ActionStatus{messages: make(map[Status][]string)}
}

// Add records a result with an explanatory message
func (a *ActionStatus) Add(status Status, message string) *ActionStatus {
	if a.messages == nil {
		a.messages = make(map[Status][]string)
	}
	a.messages[status] = append(a.messages[status], message)
	return a
}

// AssertApplied records NotApplied with message unless applied is true
func (a *ActionStatus) AssertApplied(applied bool, message string) *ActionStatus {
	if !applied {
		a.Add(NotApplied, message)
	}
	return a
}

// AssertCorrect records Incorrect with message unless correct is true
func (a *ActionStatus) AssertCorrect(correct bool, message string) *ActionStatus {
	if !correct {
		a.Add(Incorrect, message)
	}
	return a
}

// Merge folds other into a
func (a *ActionStatus) Merge(other *ActionStatus) *ActionStatus {
	if other == nil {
		return a
	}
	for status, msgs := range other.messages {
		for _, msg := range msgs {
			a.Add(status, msg)
		}
	}
	return a
}

// Status returns the highest-priority result recorded, or Applied if none
func (a *ActionStatus) Status() Status {
	result := Applied
	for status, msgs := range a.messages {
		if len(msgs) > 0 && status > result {
			result = status
		}
	}
	return result
}

// Messages returns the messages recorded for the winning status
func (a *ActionStatus) Messages() []string {
	return append([]string(nil), a.messages[a.Status()]...)
}

func (a *ActionStatus) String() string {
	status := a.Status()
	msgs := a.Messages()
	if len(msgs) == 0 {
		return status.String()
	}
	sort.Strings(msgs)
	return status.String() + ": " + strings.Join(msgs, "; ")
}
