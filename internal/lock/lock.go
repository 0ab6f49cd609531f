// Package lock provides the mutual exclusion that keeps independent
// processes from migrating the same database at once.
//
// A lock has at most one holder. Acquisition polls with bounded
// exponential backoff until a wait timeout; release is only permitted to
// the holder. Stale locks are never cleared automatically: ForceRelease is
// an administrative operation.
package lock

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Error codes carried by the errors in this package
const (
	CodeTimeout = "LOCK_TIMEOUT"
	CodeState   = "LOCK_STATE"
)

// Default polling settings
const (
	DefaultWaitTimeout     = 5 * time.Minute
	DefaultPollInterval    = 250 * time.Millisecond
	DefaultMaxPollInterval = 10 * time.Second
)

// Info describes the lock row
type Info struct {
	ID       int       `json:"id"`
	Locked   bool      `json:"locked"`
	Granted  time.Time `json:"lock_granted"`
	LockedBy string    `json:"locked_by"`
}

func (i Info) String() string {
	if !i.Locked {
		return "unlocked"
	}
	return fmt.Sprintf("locked by %s since %s", i.LockedBy, i.Granted.Format(time.RFC3339))
}

// Locker is a distributed lock
type Locker interface {
	// TryAcquire takes the lock for owner, polling until timeout. With a
	// timeout of zero it tries once and reports held=false without error
	// when another owner has the lock.
	TryAcquire(ctx context.Context, owner string, timeout time.Duration) (held bool, err error)

	// Release frees the lock. It fails if owner is not the holder.
	Release(ctx context.Context, owner string) error

	// ForceRelease clears the lock whoever holds it
	ForceRelease(ctx context.Context) error

	// ListHolders returns the current holder, if any
	ListHolders(ctx context.Context) ([]Info, error)
}

// TimeoutError is returned when the lock was not acquired in time
type TimeoutError struct {
	Owner  string
	Waited time.Duration
	Holder Info
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("could not acquire lock for %s within %s", e.Owner, e.Waited)
	if e.Holder.Locked {
		msg += fmt.Sprintf(": held by %s since %s", e.Holder.LockedBy, e.Holder.Granted.Format(time.RFC3339))
	}
	return msg
}

// Code returns the stable error code
func (e *TimeoutError) Code() string { return CodeTimeout }

// StateError is returned when the lock cannot be read or written, or is
// released by an owner that does not hold it
type StateError struct {
	Op     string
	Owner  string
	Holder string
	Err    error
}

func (e *StateError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("lock %s failed: %v", e.Op, e.Err)
	case e.Holder == "":
		return fmt.Sprintf("lock %s by %s failed: lock is not held", e.Op, e.Owner)
	default:
		return fmt.Sprintf("lock %s by %s failed: lock is held by %s", e.Op, e.Owner, e.Holder)
	}
}

func (e *StateError) Unwrap() error { return e.Err }

// Code returns the stable error code
func (e *StateError) Code() string { return CodeState }

// NewOwner returns an owner identity unique to this process:
// hostname, pid and a random suffix
func NewOwner() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), strings.SplitN(uuid.NewString(), "-", 2)[0])
}

// Polling configures the backoff between acquisition attempts
type Polling struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

func (p Polling) withDefaults() Polling {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = max(DefaultMaxPollInterval, p.Interval)
	}
	return p
}

// backend is the single-attempt protocol a lock implementation provides
type backend interface {
	attempt(ctx context.Context, owner string) (bool, error)
	current(ctx context.Context) (Info, error)
}

// poll retries attempt with exponential backoff until it succeeds, fails,
// or timeout elapses. Waits are clamped to the deadline and one last attempt
// is made when it is reached.
func poll(ctx context.Context, b backend, owner string, timeout time.Duration, polling Polling) (bool, error) {
	if timeout <= 0 {
		ok, err := b.attempt(ctx, owner)
		if err != nil {
			return false, &StateError{Op: "acquire", Owner: owner, Err: err}
		}
		return ok, nil
	}

	polling = polling.withDefaults()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = polling.Interval
	policy.MaxInterval = polling.MaxInterval
	policy.MaxElapsedTime = 0
	policy.Reset()

	start := time.Now()
	deadline := start.Add(timeout)
	for {
		ok, err := b.attempt(ctx, owner)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, &StateError{Op: "acquire", Owner: owner, Err: err}
		}
		if ok {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		timer := time.NewTimer(min(policy.NextBackOff(), remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	holder, err := b.current(ctx)
	if err != nil {
		return false, &StateError{Op: "acquire", Owner: owner, Err: err}
	}
	return false, &TimeoutError{Owner: owner, Waited: time.Since(start).Round(time.Millisecond), Holder: holder}
}

// Acquire takes the lock and returns the function that releases it. The
// release function uses a context detached from ctx's cancellation so an
// interrupted run still frees the lock.
func Acquire(ctx context.Context, l Locker, owner string, timeout time.Duration) (release func() error, err error) {
	held, err := l.TryAcquire(ctx, owner, timeout)
	if err != nil {
		return nil, err
	}
	if !held {
		holders, _ := l.ListHolders(ctx)
		timeoutErr := &TimeoutError{Owner: owner}
		if len(holders) > 0 {
			timeoutErr.Holder = holders[0]
		}
		return nil, timeoutErr
	}

	release = func() error {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return l.Release(releaseCtx, owner)
	}
	return release, nil
}
