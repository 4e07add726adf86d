// Package cache stores completed translations keyed by a fingerprint of the
// exact source text. Entries are shared across tasks and origins and are
// bounded by age and count.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/entrhq/translator/pkg/kv"
)

const (
	// DefaultTTL is how long an entry survives after it was written.
	DefaultTTL = 14 * 24 * time.Hour

	// DefaultCapacity is the maximum number of entries kept after pruning.
	DefaultCapacity = 50000
)

// Entry is one persisted translation. Field names match the compact record
// layout shared with other instances.
type Entry struct {
	Translation string `json:"t"`
	WrittenAt   int64  `json:"ts"` // unix millis
}

// Item is one (source text, translation) pair handed to PutMany.
type Item struct {
	Text        string
	Translation string
}

// Engine is the cache front-end over a shared kv.Store.
//
// There is no locking: every write is a full load, prune and save of the
// cache record. Two instances writing at once can lose one of the updates,
// which costs at most a future cache miss.
type Engine struct {
	store    kv.Store
	key      string
	now      func() time.Time
	ttl      time.Duration
	capacity int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for timestamps and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithCapacity overrides the maximum entry count.
func WithCapacity(capacity int) Option {
	return func(e *Engine) {
		if capacity > 0 {
			e.capacity = capacity
		}
	}
}

// New creates a cache engine persisting into store under kv.KeyCache.
func New(store kv.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		key:      kv.KeyCache,
		now:      time.Now,
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lookup returns the cached translation for text, if any.
// Hits do not refresh the entry's timestamp, which keeps reads write-free.
func (e *Engine) Lookup(ctx context.Context, text string) (string, bool, error) {
	entries, err := e.load(ctx)
	if err != nil {
		return "", false, err
	}
	entry, ok := entries[Fingerprint(text)]
	if !ok || entry.Translation == "" {
		return "", false, nil
	}
	return entry.Translation, true, nil
}

// LookupMany returns the cached translations for texts, keyed by text, with
// a single load.
func (e *Engine) LookupMany(ctx context.Context, texts []string) (map[string]string, error) {
	entries, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	hits := make(map[string]string)
	for _, text := range texts {
		if entry, ok := entries[Fingerprint(text)]; ok && entry.Translation != "" {
			hits[text] = entry.Translation
		}
	}
	return hits, nil
}

// Put stores a single translation. Empty text or translation is ignored.
func (e *Engine) Put(ctx context.Context, text, translation string) error {
	return e.PutMany(ctx, []Item{{Text: text, Translation: translation}})
}

// PutMany stores all usable items with a single load and a single save.
// When no item is usable the record is not written at all.
func (e *Engine) PutMany(ctx context.Context, items []Item) error {
	entries, err := e.load(ctx)
	if err != nil {
		return err
	}

	ts := e.now().UnixMilli()
	modified := false
	for _, item := range items {
		if item.Text == "" || item.Translation == "" {
			continue
		}
		entries[Fingerprint(item.Text)] = Entry{Translation: item.Translation, WrittenAt: ts}
		modified = true
	}
	if !modified {
		return nil
	}

	e.prune(entries)
	return e.save(ctx, entries)
}

// Clear resets the cache to empty. Asking the user for confirmation is the
// caller's job.
func (e *Engine) Clear(ctx context.Context) error {
	return e.save(ctx, map[string]Entry{})
}

// Len returns the number of stored entries.
func (e *Engine) Len(ctx context.Context) (int, error) {
	entries, err := e.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// prune drops expired entries first and only then trims to capacity, so the
// sort never has to consider entries that are about to expire anyway.
func (e *Engine) prune(entries map[string]Entry) {
	now := e.now().UnixMilli()
	ttl := e.ttl.Milliseconds()

	for k, entry := range entries {
		if now-entry.WrittenAt > ttl {
			delete(entries, k)
		}
	}

	excess := len(entries) - e.capacity
	if excess <= 0 {
		return
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := entries[keys[i]], entries[keys[j]]
		if a.WrittenAt != b.WrittenAt {
			return a.WrittenAt < b.WrittenAt
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys[:excess] {
		delete(entries, k)
	}
}

func (e *Engine) load(ctx context.Context) (map[string]Entry, error) {
	raw, err := e.store.Get(ctx, e.key)
	if errors.Is(err, kv.ErrNotFound) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load: %w", err)
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		// A damaged record is replaced on the next write rather than
		// blocking every lookup.
		slog.Debug("cache: discarding unreadable cache record", "err", err)
		return make(map[string]Entry), nil
	}
	for k, entry := range entries {
		if entry.Translation == "" {
			delete(entries, k)
		}
	}
	return entries, nil
}

func (e *Engine) save(ctx context.Context, entries map[string]Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := e.store.Put(ctx, e.key, raw); err != nil {
		return fmt.Errorf("cache: save: %w", err)
	}
	return nil
}
