// Package lease implements the advisory lock that decides which instance
// drives the external agent for the current Task.
//
// The lock is a lease stored on the Task itself: an owner id plus the time of
// the owner's last heartbeat. It is not a mutex. The shared store has no
// compare-and-swap, so two instances that both see a free or stale lease in
// the same tick will both claim it and the later save wins. The cost of such
// a race is at most one batch being sent twice, which the reconciler absorbs
// because its writes are keyed by absolute block index.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/translator/pkg/task"
	"github.com/google/uuid"
)

const (
	// HeartbeatTimeout is how long a lease stays valid without a heartbeat.
	HeartbeatTimeout = 10 * time.Second

	// TickInterval is the poll/heartbeat cadence. It must stay well below
	// HeartbeatTimeout so a live owner is never mistaken for a dead one.
	TickInterval = 2 * time.Second
)

// Decision is the outcome of evaluating the lease for one instance.
type Decision int

const (
	// Held means another live instance owns the lease.
	Held Decision = iota
	// Claim means the lease was free or stale and this instance takes it.
	Claim
	// Renew means this instance already owns the lease.
	Renew
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Held:
		return "held"
	case Claim:
		return "claim"
	case Renew:
		return "renew"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Owns reports whether the decision lets the instance drive work.
func (d Decision) Owns() bool {
	return d == Claim || d == Renew
}

// NewSelfID returns a fresh instance identity. It is stable for the life of
// the process and regenerated on restart.
func NewSelfID() string {
	return "tr_" + uuid.New().String()
}

// Stale reports whether the lease on t has expired at now.
func Stale(t *task.Task, now time.Time, timeout time.Duration) bool {
	if t.LastHeartbeat == 0 {
		return true
	}
	return now.Sub(t.HeartbeatAt()) >= timeout
}

// Decide evaluates the lease on t for selfID. It does not modify t.
func Decide(t *task.Task, selfID string, now time.Time, timeout time.Duration) Decision {
	switch {
	case t.HandlerID == selfID:
		return Renew
	case t.HandlerID == "":
		return Claim
	case Stale(t, now, timeout):
		return Claim
	default:
		return Held
	}
}

// Result reports what Acquire saw and did.
type Result struct {
	Decision Decision
	Task     *task.Task

	// PreviousOwner is set when a stale lease was taken over.
	PreviousOwner string
}

// Elector claims and renews the lease for one instance.
type Elector struct {
	store   *task.Store
	selfID  string
	timeout time.Duration
	now     func() time.Time
}

// Option configures an Elector.
type Option func(*Elector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Elector) {
		e.now = now
	}
}

// WithTimeout overrides HeartbeatTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Elector) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewElector creates an elector for selfID.
func NewElector(store *task.Store, selfID string, opts ...Option) *Elector {
	e := &Elector{
		store:   store,
		selfID:  selfID,
		timeout: HeartbeatTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SelfID returns the identity this elector claims with.
func (e *Elector) SelfID() string {
	return e.selfID
}

// Acquire loads the Task and claims or renews the lease when allowed. When
// another live instance holds the lease nothing is written. It returns
// task.ErrNoTask when there is no Task at all.
//
// Calling Acquire on every tick while driving work is what keeps the lease
// alive; an instance that stops calling it loses the lease after the timeout.
func (e *Elector) Acquire(ctx context.Context) (Result, error) {
	current, err := e.store.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	now := e.now()
	decision := Decide(current, e.selfID, now, e.timeout)
	if decision == Held {
		return Result{Decision: Held, Task: current}, nil
	}

	res := Result{Decision: decision}
	if decision == Claim && current.HandlerID != "" {
		res.PreviousOwner = current.HandlerID
	}

	updated, err := e.store.Update(ctx, current.ID, func(t *task.Task) error {
		t.HandlerID = e.selfID
		t.SetHeartbeat(now)
		return nil
	})
	if errors.Is(err, task.ErrStaleTask) {
		// Replaced between load and save; the next tick starts over.
		return Result{}, err
	}
	if err != nil {
		return Result{}, fmt.Errorf("lease: heartbeat: %w", err)
	}
	res.Task = updated
	return res, nil
}
