package migrator

import (
	"fmt"
	"strings"
)

// Error codes carried by the errors in this package
const (
	CodeChecksumDrift = "CHECKSUM_DRIFT"
	CodeRunFailed     = "RUN_FAILED"
)

// Drift is one changeset whose content no longer matches the ledger
type Drift struct {
	ChangeSet string `json:"changeset"`
	Recorded  string `json:"recorded"`
	Current   string `json:"current"`
}

// ChecksumDriftError is returned when changesets that already ran were
// edited and are neither always-run nor run-on-change
type ChecksumDriftError struct {
	Drifts []Drift
}

func (e *ChecksumDriftError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d changeset(s) changed since they ran:", len(e.Drifts))
	for _, d := range e.Drifts {
		fmt.Fprintf(&b, "\n  - %s: was %s, is now %s", d.ChangeSet, d.Recorded, d.Current)
	}
	return b.String()
}

// Code returns the stable error code
func (e *ChecksumDriftError) Code() string { return CodeChecksumDrift }

// RunError reports a failed run: the changeset that failed, why, and the
// state the run left behind
type RunError struct {
	ChangeSet string
	Err       error
	// Recorded counts the changesets this run recorded before the failure
	Recorded int
	// Unrecorded means the changeset's actions were committed but its
	// ledger update failed
	Unrecorded   bool
	LockReleased bool
}

func (e *RunError) Error() string {
	lockState := "the lock was released"
	if !e.LockReleased {
		lockState = "the lock could not be released"
	}
	if e.Unrecorded {
		return fmt.Sprintf("changeset %s was applied but the ledger was not updated: %v; %s. "+
			"The ledger does not reflect this changeset and must be reconciled before the next run",
			e.ChangeSet, e.Err, lockState)
	}
	return fmt.Sprintf("changeset %s failed: %v; %s and the ledger records the %d changeset(s) applied before the failure",
		e.ChangeSet, e.Err, lockState, e.Recorded)
}

func (e *RunError) Unwrap() error { return e.Err }

// Code returns the stable error code
func (e *RunError) Code() string { return CodeRunFailed }
