// Package reconcile applies agent responses to the shared Task and Cache.
//
// Reconciliation always works on a freshly loaded Task, addresses blocks by
// absolute index only, and only ever moves a block out of pending. Replaying
// the same response therefore changes nothing and writes nothing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/entrhq/translator/pkg/cache"
	"github.com/entrhq/translator/pkg/scheduler"
	"github.com/entrhq/translator/pkg/task"
)

// errUnchanged aborts an update that would rewrite an identical record.
var errUnchanged = errors.New("reconcile: unchanged")

// Outcome summarizes one reconciliation.
type Outcome struct {
	// Resolved, Missing and Failed count blocks this call actually changed.
	Resolved int
	Missing  int
	Failed   int

	// Malformed is set when the response could not be parsed; ParseErr
	// holds the reason.
	Malformed bool
	ParseErr  error

	// Cached is the number of pairs handed to the cache.
	Cached int
}

// Changed returns the number of blocks moved out of pending.
func (o Outcome) Changed() int {
	return o.Resolved + o.Missing + o.Failed
}

// Reconciler writes batch results.
type Reconciler struct {
	tasks *task.Store
	cache *cache.Engine
}

// New creates a Reconciler. cache may be nil to skip cache writes.
func New(tasks *task.Store, c *cache.Engine) *Reconciler {
	return &Reconciler{tasks: tasks, cache: c}
}

// Reconcile parses raw and applies it to the blocks of batch in the Task
// identified by taskID.
//
// A malformed response fails every batch block with [JSON Error]. Otherwise
// each block whose index has a translation is resolved, and every other
// block is failed with [Trans Missing]. Newly resolved pairs go to the cache
// in a single write after the Task is saved.
//
// If the Task has been replaced it returns task.ErrStaleTask and touches
// neither the Task nor the cache. A cache write failure is returned wrapped
// after the Task has already been saved.
func (r *Reconciler) Reconcile(ctx context.Context, taskID int64, raw string, batch scheduler.Batch) (Outcome, error) {
	records, perr := Parse(raw)
	if perr != nil {
		out, err := r.Fail(ctx, taskID, batch, task.ReasonJSON)
		out.Malformed = true
		out.ParseErr = perr
		return out, err
	}

	byID := Index(records)
	var (
		out   Outcome
		fresh []cache.Item
	)
	_, err := r.tasks.Update(ctx, taskID, func(t *task.Task) error {
		out = Outcome{}
		fresh = fresh[:0]
		for _, item := range batch {
			trans, ok := byID[item.Index]
			if !ok {
				if t.Resolve(item.Index, task.Failed(task.ReasonMissing)) {
					out.Missing++
				}
				continue
			}
			if t.Resolve(item.Index, task.Resolved(trans)) {
				out.Resolved++
				fresh = append(fresh, cache.Item{Text: t.Blocks[item.Index].SourceText, Translation: trans})
			}
		}
		if out.Changed() == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		slog.Debug("reconcile: nothing to apply", "task", taskID, "batch", len(batch))
		return out, nil
	}
	if err != nil {
		return out, err
	}

	if r.cache != nil && len(fresh) > 0 {
		if err := r.cache.PutMany(ctx, fresh); err != nil {
			return out, fmt.Errorf("reconcile: cache: %w", err)
		}
		out.Cached = len(fresh)
	}
	return out, nil
}

// Fail marks every still-pending block of batch with reason.
func (r *Reconciler) Fail(ctx context.Context, taskID int64, batch scheduler.Batch, reason task.Reason) (Outcome, error) {
	var out Outcome
	_, err := r.tasks.Update(ctx, taskID, func(t *task.Task) error {
		out = Outcome{}
		for _, item := range batch {
			if t.Resolve(item.Index, task.Failed(reason)) {
				out.Failed++
			}
		}
		if out.Failed == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return out, nil
	}
	return out, err
}
