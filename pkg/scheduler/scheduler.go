// Package scheduler picks the next window of pending blocks to send to the
// agent.
package scheduler

import (
	"github.com/entrhq/translator/pkg/task"
)

const (
	DefaultMaxItems = 50
	DefaultMaxChars = 2000
)

// Budget bounds a batch by item count and by total source length, counted
// in UTF-16 code units.
type Budget struct {
	MaxItems int
	MaxChars int
}

// DefaultBudget returns the standard batch limits.
func DefaultBudget() Budget {
	return Budget{MaxItems: DefaultMaxItems, MaxChars: DefaultMaxChars}
}

// Item is a block tagged with its absolute index in the Task.
type Item struct {
	Index int
	Block task.Block
}

// Batch is an ordered window of pending blocks.
type Batch []Item

// Indices returns the absolute indices in batch order.
func (b Batch) Indices() []int {
	out := make([]int, len(b))
	for i, item := range b {
		out[i] = item.Index
	}
	return out
}

// Span returns the first and last absolute index, or (-1, -1) when empty.
func (b Batch) Span() (int, int) {
	if len(b) == 0 {
		return -1, -1
	}
	return b[0].Index, b[len(b)-1].Index
}

// Chars returns the total source length of the batch in UTF-16 code units.
func (b Batch) Chars() int {
	n := 0
	for _, item := range b {
		n += task.TextLength(item.Block.SourceText)
	}
	return n
}

// NextBatch returns the next window of pending blocks starting at the first
// pending index. Blocks are added greedily until either budget would be
// exceeded. A first block that alone exceeds MaxChars is still returned on
// its own so an oversized block can never stall the Task.
//
// Items carry their absolute Task index; callers must address blocks by that
// index and never by position within the batch.
func NextBatch(t *task.Task, budget Budget) Batch {
	start := t.FirstPending()
	if start == -1 {
		return nil
	}
	if budget.MaxItems <= 0 {
		budget.MaxItems = DefaultMaxItems
	}
	if budget.MaxChars <= 0 {
		budget.MaxChars = DefaultMaxChars
	}

	var batch Batch
	chars := 0
	for i := start; i < len(t.Blocks); i++ {
		b := t.Blocks[i]
		if !b.Translation.IsPending() {
			continue
		}
		if len(batch) >= budget.MaxItems {
			break
		}
		n := task.TextLength(b.SourceText)
		if chars+n > budget.MaxChars && len(batch) > 0 {
			break
		}
		batch = append(batch, Item{Index: i, Block: b})
		chars += n
	}
	return batch
}
