// Package worker runs the per-instance tick loop that drives the external
// agent through the shared Task.
//
// Every instance runs the same loop. On each tick it takes or renews the
// lease; only the lease owner sends batches. A batch in flight is observed
// in the background while ticks keep renewing the heartbeat, and its result
// is written back by absolute index so a duplicate send by another instance
// is harmless.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/translator/pkg/channel"
	"github.com/entrhq/translator/pkg/lease"
	"github.com/entrhq/translator/pkg/llm/tokenizer"
	"github.com/entrhq/translator/pkg/logging"
	"github.com/entrhq/translator/pkg/observe"
	"github.com/entrhq/translator/pkg/prompt"
	"github.com/entrhq/translator/pkg/reconcile"
	"github.com/entrhq/translator/pkg/scheduler"
	"github.com/entrhq/translator/pkg/task"
	"github.com/entrhq/translator/pkg/types"
)

var workerLog *logging.Logger

func init() {
	var err error
	workerLog, err = logging.NewLogger("worker")
	if err != nil {
		workerLog.Warnf("Failed to initialize worker logger, using stderr fallback: %v", err)
	}
}

// Config holds the loop parameters.
type Config struct {
	// TickInterval is the lease and scheduling cadence.
	TickInterval time.Duration

	// Budget bounds each batch.
	Budget scheduler.Budget

	// Observe controls response polling. Markers default to the prompt
	// markers derived from Preamble.
	Observe observe.Config

	// Preamble opens the first prompt of every Task.
	Preamble string

	// Features are applied once per Task before the first prompt.
	Features channel.Features
}

// DefaultConfig returns the standard loop parameters for preamble.
func DefaultConfig(preamble string) Config {
	return Config{
		TickInterval: lease.TickInterval,
		Budget:       scheduler.DefaultBudget(),
		Observe:      observe.DefaultConfig(prompt.Markers(preamble)...),
		Preamble:     preamble,
		Features:     channel.Features{DeepThink: true},
	}
}

// flight is a batch awaiting its response.
type flight struct {
	taskID int64
	cancel context.CancelFunc
}

// Worker drives one instance.
type Worker struct {
	tasks      *task.Store
	elector    *lease.Elector
	ch         channel.Channel
	reconciler *reconcile.Reconciler
	tok        *tokenizer.Tokenizer
	cfg        Config
	now        func() time.Time
	onEvent    types.EventHandler

	mu        sync.Mutex
	inflight  *flight
	lastOwner string
	doneTask  int64
	wg        sync.WaitGroup

	// primed is the Task this instance's channel last received the
	// preamble for. Only the Tick goroutine touches it.
	primed int64
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock overrides the time source used for observation timeouts.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

// WithEventHandler sets the callback receiving worker events.
func WithEventHandler(h types.EventHandler) Option {
	return func(w *Worker) {
		w.onEvent = h
	}
}

// WithTokenizer sets the tokenizer used for prompt size estimates.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(w *Worker) {
		w.tok = tok
	}
}

// New creates a worker. The elector must share tasks' store.
func New(tasks *task.Store, elector *lease.Elector, ch channel.Channel, r *reconcile.Reconciler, cfg Config, opts ...Option) *Worker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = lease.TickInterval
	}
	if cfg.Budget.MaxItems <= 0 || cfg.Budget.MaxChars <= 0 {
		cfg.Budget = scheduler.DefaultBudget()
	}
	if len(cfg.Observe.Markers) == 0 {
		cfg.Observe.Markers = prompt.Markers(cfg.Preamble)
	}
	w := &Worker{
		tasks:      tasks,
		elector:    elector,
		ch:         ch,
		reconciler: r,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run ticks until ctx is cancelled. Tick errors are reported as events and
// do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	workerLog.Infof("Worker %s starting, tick=%s", w.elector.SelfID(), w.cfg.TickInterval)
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			workerLog.Errorf("Tick failed: %v", err)
			w.emit(types.NewErrorEvent(0, err))
		}
		select {
		case <-ctx.Done():
			w.abort()
			w.Wait()
			workerLog.Infof("Worker %s stopped", w.elector.SelfID())
			return nil
		case <-ticker.C:
		}
	}
}

// Tick performs one scheduling step. Conditions another tick will resolve,
// such as a missing or replaced Task, are not errors.
//
// A Task already marked done is left alone: the lease is only taken and
// renewed while there is work, so idle instances do not rewrite the record.
func (w *Worker) Tick(ctx context.Context) error {
	cur, err := w.tasks.Load(ctx)
	switch {
	case errors.Is(err, task.ErrNoTask):
		return nil
	case err != nil:
		return err
	}
	if cur.Complete() && cur.Status == task.StatusDone {
		w.dropStaleFlight(cur.ID)
		w.reportComplete(cur)
		return nil
	}

	res, err := w.elector.Acquire(ctx)
	switch {
	case errors.Is(err, task.ErrNoTask), errors.Is(err, task.ErrStaleTask):
		return nil
	case err != nil:
		return err
	}
	t := res.Task

	if w.dropStaleFlight(t.ID) {
		return nil
	}

	if res.Decision == lease.Held {
		w.reportHeld(t)
		return nil
	}
	w.reportClaim(t, res)

	if t.Complete() {
		return w.finish(ctx, t)
	}
	if w.busy() {
		return nil
	}

	batch := scheduler.NextBatch(t, w.cfg.Budget)
	if len(batch) == 0 {
		return nil
	}
	return w.dispatch(ctx, t, batch)
}

func (w *Worker) dispatch(ctx context.Context, t *task.Task, batch scheduler.Batch) error {
	var (
		text string
		err  error
	)
	// The preamble is sent once per Task and channel. An instance taking
	// over from a dead leader has never primed its own conversation, even
	// though the Task is already initialized.
	fresh := !t.Initialized || w.primed != t.ID
	if w.primed != t.ID {
		w.resetChannel(t.ID)
	}

	// Toggles are applied once per Task, by whichever instance sends first.
	if !t.Initialized {
		if cerr := w.ch.Configure(ctx, w.cfg.Features); cerr != nil {
			workerLog.Warnf("Configure failed for task %d: %v", t.ID, cerr)
		} else {
			w.emit(types.NewAgentConfiguredEvent(t.ID))
		}
	}

	if fresh {
		text, err = prompt.Initial(w.cfg.Preamble, batch)
	} else {
		text, err = prompt.Next(batch)
	}
	if err != nil {
		return fmt.Errorf("worker: build prompt: %w", err)
	}

	info := batchInfo(batch)
	info.Tokens = w.countTokens(text)
	w.emit(types.NewTokenEstimateEvent(t.ID, info))

	start := w.now()
	if err := w.ch.Dispatch(ctx, text); err != nil {
		if errors.Is(err, channel.ErrNotReady) {
			workerLog.Debugf("Agent not ready, retrying next tick")
			return nil
		}
		workerLog.Errorf("Dispatch failed for items %d-%d: %v", info.First, info.Last, err)
		w.emit(types.NewErrorEvent(t.ID, err))
		return w.fail(ctx, t.ID, batch, info, task.ReasonError)
	}
	if fresh {
		w.primed = t.ID
	}

	_, err = w.tasks.Update(ctx, t.ID, func(cur *task.Task) error {
		cur.Initialized = true
		cur.Status = task.StatusProcessing
		return nil
	})
	if errors.Is(err, task.ErrStaleTask) {
		w.emit(types.NewTaskReplacedEvent(t.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker: mark processing: %w", err)
	}

	workerLog.Infof("Processing items %d - %d (%d chars, ~%d tokens)", info.First, info.Last, info.Chars, info.Tokens)
	w.emit(types.NewBatchDispatchedEvent(t.ID, info))
	w.watch(ctx, t.ID, batch, info, start)
	return nil
}

// watch waits for the response in the background.
func (w *Worker) watch(ctx context.Context, taskID int64, batch scheduler.Batch, info types.BatchInfo, start time.Time) {
	fctx, cancel := context.WithCancel(ctx)
	f := &flight{taskID: taskID, cancel: cancel}

	w.mu.Lock()
	w.inflight = f
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.land(f)

		res, err := observe.Wait(fctx, w.ch, w.cfg.Observe, start, w.now)
		if err != nil {
			return
		}
		if res.ObserveErrors > 0 {
			workerLog.Warnf("Observe failed %d of %d polls, last: %v", res.ObserveErrors, res.Polls, res.LastError)
		}

		switch res.State {
		case observe.Stabilized:
			w.emit(types.NewBatchStabilizedEvent(taskID, info))
			w.apply(fctx, taskID, res.Text, batch, info)
		case observe.TimedOut:
			w.emit(types.NewBatchTimedOutEvent(taskID, info))
			if err := w.fail(fctx, taskID, batch, info, task.ReasonTimeout); err != nil {
				w.emit(types.NewErrorEvent(taskID, err))
			}
		}
	}()
}

func (w *Worker) apply(ctx context.Context, taskID int64, raw string, batch scheduler.Batch, info types.BatchInfo) {
	out, err := w.reconciler.Reconcile(ctx, taskID, raw, batch)
	if errors.Is(err, task.ErrStaleTask) {
		workerLog.Infof("Task %d replaced, dropping response", taskID)
		w.emit(types.NewTaskReplacedEvent(taskID))
		return
	}
	if err != nil && out.Changed() == 0 {
		workerLog.Errorf("Reconcile failed: %v", err)
		w.emit(types.NewErrorEvent(taskID, err))
		return
	}
	if err != nil {
		// The Task was saved; only the cache write failed.
		workerLog.Warnf("Reconcile: %v", err)
	}

	if out.Malformed {
		workerLog.Warnf("Malformed response for items %d-%d: %v", info.First, info.Last, out.ParseErr)
		w.emit(types.NewBatchFailedEvent(taskID, info, task.ReasonJSON.Tag()))
		return
	}
	workerLog.Infof("Reconciled items %d-%d: %d resolved, %d missing", info.First, info.Last, out.Resolved, out.Missing)
	w.emit(types.NewBatchReconciledEvent(taskID, info, w.progress(ctx, taskID)).
		WithMetadata("resolved", out.Resolved).
		WithMetadata("missing", out.Missing).
		WithMetadata("cached", out.Cached))
}

func (w *Worker) fail(ctx context.Context, taskID int64, batch scheduler.Batch, info types.BatchInfo, reason task.Reason) error {
	_, err := w.reconciler.Fail(ctx, taskID, batch, reason)
	if errors.Is(err, task.ErrStaleTask) {
		w.emit(types.NewTaskReplacedEvent(taskID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker: mark %s: %w", reason.Tag(), err)
	}
	workerLog.Warnf("Marked items %d-%d %s", info.First, info.Last, reason.Tag())
	w.emit(types.NewBatchFailedEvent(taskID, info, reason.Tag()))
	return nil
}

// resetChannel drops a conversation primed for another Task.
func (w *Worker) resetChannel(taskID int64) {
	r, ok := w.ch.(channel.Resetter)
	if !ok {
		return
	}
	if w.primed != 0 {
		workerLog.Infof("Starting a new conversation for task %d (was %d)", taskID, w.primed)
	}
	r.Reset()
}

// finish records completion once per Task.
func (w *Worker) finish(ctx context.Context, t *task.Task) error {
	if t.Status != task.StatusDone {
		_, err := w.tasks.Update(ctx, t.ID, func(cur *task.Task) error {
			cur.Status = task.StatusDone
			return nil
		})
		if errors.Is(err, task.ErrStaleTask) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker: mark done: %w", err)
		}
	}
	w.reportComplete(t)
	return nil
}

// reportComplete emits TaskComplete once per Task.
func (w *Worker) reportComplete(t *task.Task) {
	w.mu.Lock()
	first := w.doneTask != t.ID
	w.doneTask = t.ID
	w.mu.Unlock()
	if first {
		workerLog.Infof("Task %d complete", t.ID)
		w.emit(types.NewTaskCompleteEvent(t.ID, progressOf(t)))
	}
}

func (w *Worker) reportHeld(t *task.Task) {
	w.mu.Lock()
	changed := w.lastOwner != t.HandlerID
	w.lastOwner = t.HandlerID
	w.mu.Unlock()
	if changed {
		workerLog.Infof("Another instance (%s) is handling task %d", t.HandlerID, t.ID)
		w.emit(types.NewLeaseHeldEvent(t.ID, t.HandlerID))
	}
}

func (w *Worker) reportClaim(t *task.Task, res lease.Result) {
	w.mu.Lock()
	w.lastOwner = w.elector.SelfID()
	w.mu.Unlock()
	if res.Decision != lease.Claim {
		return
	}
	if res.PreviousOwner != "" {
		workerLog.Infof("Took over task %d from stale owner %s", t.ID, res.PreviousOwner)
	}
	w.emit(types.NewLeaseClaimedEvent(t.ID, res.PreviousOwner))
}

// dropStaleFlight abandons an in-flight batch that belongs to a replaced
// Task. It reports whether it did.
func (w *Worker) dropStaleFlight(currentID int64) bool {
	w.mu.Lock()
	f := w.inflight
	w.mu.Unlock()
	if f == nil || f.taskID == currentID {
		return false
	}
	workerLog.Infof("Task %d replaced by %d, abandoning in-flight batch", f.taskID, currentID)
	f.cancel()
	w.emit(types.NewTaskReplacedEvent(f.taskID))
	return true
}

func (w *Worker) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight != nil
}

func (w *Worker) land(f *flight) {
	f.cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight == f {
		w.inflight = nil
	}
}

func (w *Worker) abort() {
	w.mu.Lock()
	f := w.inflight
	w.mu.Unlock()
	if f != nil {
		f.cancel()
	}
}

// Wait blocks until the in-flight batch, if any, has been settled.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) progress(ctx context.Context, taskID int64) types.Progress {
	t, err := w.tasks.Load(ctx)
	if err != nil || t.ID != taskID {
		return types.Progress{}
	}
	return progressOf(t)
}

func (w *Worker) countTokens(text string) int {
	if w.tok != nil {
		return w.tok.CountTokens(text)
	}
	return tokenizer.Estimate(text)
}

func (w *Worker) emit(e *types.Event) {
	if w.onEvent != nil {
		w.onEvent(e)
	}
}

func batchInfo(b scheduler.Batch) types.BatchInfo {
	first, last := b.Span()
	return types.BatchInfo{First: first, Last: last, Size: len(b), Chars: b.Chars()}
}

func progressOf(t *task.Task) types.Progress {
	c := t.Counts()
	return types.Progress{Resolved: c.Resolved, Failed: c.Failed, Pending: c.Pending, Total: c.Total}
}
