package task

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/translator/pkg/kv"
)

var (
	// ErrNoTask is returned when no Task record exists.
	ErrNoTask = errors.New("task: no task")

	// ErrStaleTask is returned by Update when the stored Task has been
	// replaced since the caller read it.
	ErrStaleTask = errors.New("task: task was replaced")
)

// Store is the typed accessor for the shared Task record.
//
// Every Save overwrites the whole record; there is no merge. Callers that
// mutate should go through Update so they always work on a fresh copy.
//
// Updates made through the same Store are serialized, so goroutines of one
// instance never lose each other's writes. Nothing orders writes across
// instances.
type Store struct {
	kv  kv.Store
	key string
	mu  sync.Mutex
}

// NewStore wraps a kv.Store.
func NewStore(s kv.Store) *Store {
	return &Store{kv: s, key: kv.KeyTask}
}

// Load reads the current Task.
func (s *Store) Load(ctx context.Context) (*Task, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("task: load: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, ErrNoTask
	}

	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("task: decode: %w", err)
	}
	return &t, nil
}

// Save overwrites the stored Task with t.
func (s *Store) Save(ctx context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, t)
}

func (s *Store) save(ctx context.Context, t *Task) error {
	if t == nil {
		return fmt.Errorf("task: save: nil task")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("task: encode: %w", err)
	}
	if err := s.kv.Put(ctx, s.key, raw); err != nil {
		return fmt.Errorf("task: save: %w", err)
	}
	return nil
}

// Clear removes the stored Task.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("task: clear: %w", err)
	}
	return nil
}

// Update loads the Task fresh, checks that it is still the Task with the
// given id, applies fn and saves the result. It returns ErrStaleTask when the
// Task was replaced, in which case nothing is written. If fn returns an
// error the Task is not saved.
//
// The load and save are not atomic: a concurrent writer can still overwrite
// this update. Callers must keep fn idempotent.
func (s *Store) Update(ctx context.Context, id int64, fn func(*Task) error) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.Load(ctx)
	if errors.Is(err, ErrNoTask) {
		return nil, ErrStaleTask
	}
	if err != nil {
		return nil, err
	}
	if t.ID != id {
		return nil, ErrStaleTask
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
