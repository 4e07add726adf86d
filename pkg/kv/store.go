// Package kv provides the shared key-value store that translator instances
// coordinate through.
//
// The store offers nothing stronger than whole-record reads and
// whole-record overwrites: there is no compare-and-swap, no transaction and no
// cross-process lock. Every caller is expected to load, mutate and save as one
// tight unit and to tolerate a concurrent writer clobbering its update.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Well-known record keys.
const (
	KeyTask  = "task"
	KeyCache = "cache"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("kv: record not found")

// Store is the read/write interface for shared records.
type Store interface {
	// Get returns the raw record for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put overwrites the whole record for key. Last write wins.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the record. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that cannot be mapped safely onto a file name.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("kv: invalid key (empty)")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("kv: invalid key %q (contains path separator)", key)
	}
	return nil
}
