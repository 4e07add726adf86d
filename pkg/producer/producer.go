// Package producer turns a source page into the shared Task.
//
// Creating a Task replaces whatever Task was stored before, wholesale. Any
// instance still working on the old Task notices the new id on its next
// write and drops its result.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/entrhq/translator/pkg/cache"
	"github.com/entrhq/translator/pkg/task"
)

// ErrNoBlocks is returned when a page has no translatable text.
var ErrNoBlocks = errors.New("producer: no significant text blocks found")

// Summary describes a created Task.
type Summary struct {
	TaskID  int64
	Title   string
	Blocks  int
	Cached  int
	Pending int
}

// FromCache reports whether every block was already translated.
func (s Summary) FromCache() bool {
	return s.Pending == 0
}

// Producer creates Tasks.
type Producer struct {
	tasks *task.Store
	cache *cache.Engine
	now   func() time.Time
}

// Option configures a Producer.
type Option func(*Producer)

// WithClock overrides the time source used for Task ids.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) {
		p.now = now
	}
}

// New creates a Producer. c may be nil to skip cache pre-filling.
func New(tasks *task.Store, c *cache.Engine, opts ...Option) *Producer {
	p := &Producer{tasks: tasks, cache: c, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create scans the HTML document read from r and stores a new Task for
// originURL. Blocks whose text is already cached start out resolved; if all
// of them are, the Task is created done.
func (p *Producer) Create(ctx context.Context, originURL string, r io.Reader) (*task.Task, Summary, error) {
	page, err := Extract(r)
	if err != nil {
		return nil, Summary{}, err
	}
	if len(page.Candidates) == 0 {
		return nil, Summary{}, ErrNoBlocks
	}

	hits := map[string]string{}
	if p.cache != nil {
		texts := make([]string, len(page.Candidates))
		for i, c := range page.Candidates {
			texts[i] = c.Text
		}
		if hits, err = p.cache.LookupMany(ctx, texts); err != nil {
			return nil, Summary{}, fmt.Errorf("producer: cache lookup: %w", err)
		}
	}

	blocks := make([]task.Block, len(page.Candidates))
	for i, c := range page.Candidates {
		blocks[i] = task.Block{Key: Key(c.Tag, c.Text), SourceText: c.Text}
		if tr, ok := hits[c.Text]; ok {
			blocks[i].Translation = task.Resolved(tr)
		}
	}

	t := task.New(originURL, blocks, p.now())
	// Ids must grow even when two Tasks are created in the same millisecond
	// or the clock steps back, or workers would mistake one for the other.
	prev, err := p.tasks.Load(ctx)
	switch {
	case err == nil && prev.ID >= t.ID:
		t.ID = prev.ID + 1
	case err != nil && !errors.Is(err, task.ErrNoTask):
		return nil, Summary{}, fmt.Errorf("producer: load previous task: %w", err)
	}
	if err := p.tasks.Save(ctx, t); err != nil {
		return nil, Summary{}, err
	}

	counts := t.Counts()
	sum := Summary{
		TaskID:  t.ID,
		Title:   page.Title,
		Blocks:  counts.Total,
		Cached:  counts.Resolved,
		Pending: counts.Pending,
	}
	return t, sum, nil
}
