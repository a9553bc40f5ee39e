// Package store defines the transactional document-store capability the
// reservation engine is written against. Adapters live in the subpackages.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no document exists under the key.
	ErrNotFound = errors.New("store: key not found")

	// ErrConflict is returned by Transaction when a concurrent writer touched
	// one of the keys read or created inside the transaction. The caller is
	// expected to retry with fresh reads.
	ErrConflict = errors.New("store: write conflict")
)

// Tx is the view handed to a Transaction func. Reads see committed state as
// of the transaction start; writes are buffered and applied atomically at
// commit, or not at all.
type Tx interface {
	// Get unmarshals the document at key into out. Returns ErrNotFound if
	// absent; the key is still tracked, so a concurrent create conflicts.
	Get(ctx context.Context, key string, out any) error
	// Set buffers an upsert of key.
	Set(key string, v any)
	// Create buffers an insert of key. Commit fails with ErrConflict if the
	// key exists by then.
	Create(key string, v any)
	// Delete buffers removal of key.
	Delete(key string)
}

// Store is the capability required from the backing database: single-key
// primitives plus an optimistic multi-key transaction.
type Store interface {
	Get(ctx context.Context, key string, out any) error
	Set(ctx context.Context, key string, v any) error
	// CreateIfAbsent writes v under key only if the key does not exist.
	// Returns false (and no error) when it already does.
	CreateIfAbsent(ctx context.Context, key string, v any) (bool, error)
	Delete(ctx context.Context, key string) error
	// Scan invokes fn for every document whose key starts with prefix.
	// Iteration order is unspecified. Returning an error from fn stops the
	// scan and propagates the error.
	Scan(ctx context.Context, prefix string, fn func(key string, raw []byte) error) error
	// Transaction runs fn and atomically applies its buffered writes.
	// Returns ErrConflict if a concurrent commit invalidated the read set;
	// any error from fn aborts with no writes applied.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}
