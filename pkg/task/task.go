// Package task defines the shared Task record and its typed store accessor.
//
// A Task is owned by nobody in particular: whichever instance saved it last
// owns the current version. Every mutation in this module is written so that
// losing it, or applying it twice, leaves the record in a valid shape.
package task

import (
	"time"
	"unicode/utf16"
)

// Status is the advisory lifecycle state of a Task. Completion is decided by
// the absence of pending blocks, not by this field.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
)

// Block is one unit of source text and its resolution.
type Block struct {
	// Key is a structural fingerprint of the originating element. It is
	// stable for the Task's lifetime and not guaranteed to be unique.
	Key string `json:"hash"`

	// SourceText is the text to translate.
	SourceText string `json:"text"`

	// Translation is pending until the reconciler resolves or fails it.
	Translation Translation `json:"translation"`
}

// Task is the single shared translation job.
type Task struct {
	ID            int64   `json:"id"`
	OriginURL     string  `json:"url"`
	Blocks        []Block `json:"blocks"`
	Status        Status  `json:"status"`
	Initialized   bool    `json:"isInitialized"`
	HandlerID     string  `json:"handlerId"`
	LastHeartbeat int64   `json:"lastHeartbeat"` // unix millis, 0 = never
}

// Counts summarizes block states.
type Counts struct {
	Resolved int
	Failed   int
	Pending  int
	Total    int
}

// Done returns the number of blocks that no longer need work.
func (c Counts) Done() int {
	return c.Resolved + c.Failed
}

// New creates a Task for originURL. The id is the creation time in unix
// millis, matching how replacements are told apart.
func New(originURL string, blocks []Block, now time.Time) *Task {
	t := &Task{
		ID:        now.UnixMilli(),
		OriginURL: originURL,
		Blocks:    blocks,
		Status:    StatusPending,
	}
	if t.Complete() {
		t.Status = StatusDone
	}
	return t
}

// TextLength returns the length of s in UTF-16 code units. Batch budgets
// and block length thresholds are measured this way, so characters outside
// the Basic Multilingual Plane count twice.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// FirstPending returns the index of the first pending block, or -1.
func (t *Task) FirstPending() int {
	for i := range t.Blocks {
		if t.Blocks[i].Translation.IsPending() {
			return i
		}
	}
	return -1
}

// Complete reports whether no block is pending.
func (t *Task) Complete() bool {
	return t.FirstPending() == -1
}

// Counts tallies blocks by state.
func (t *Task) Counts() Counts {
	c := Counts{Total: len(t.Blocks)}
	for _, b := range t.Blocks {
		switch b.Translation.State() {
		case StateResolved:
			c.Resolved++
		case StateFailed:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c
}

// Resolve sets the translation at the absolute index. Only pending blocks
// change; already-settled blocks and out-of-range indices are left alone, so
// replaying an update is harmless. It reports whether anything changed.
func (t *Task) Resolve(index int, tr Translation) bool {
	if index < 0 || index >= len(t.Blocks) || tr.IsPending() {
		return false
	}
	b := &t.Blocks[index]
	if !b.Translation.IsPending() {
		return false
	}
	b.Translation = tr
	return true
}

// HeartbeatAt returns the last heartbeat time, or the zero time if none.
func (t *Task) HeartbeatAt() time.Time {
	if t.LastHeartbeat == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.LastHeartbeat)
}

// SetHeartbeat records a heartbeat at now.
func (t *Task) SetHeartbeat(now time.Time) {
	t.LastHeartbeat = now.UnixMilli()
}
