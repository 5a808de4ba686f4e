// Package store provides the shared node store: a tree of JSON records addressed
// by slash-separated paths (rooms/{room}/players/{id}, ...). The only write
// primitive is an optimistic compare-and-swap transaction on a single node;
// there is no cross-node atomicity.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by reads of a node that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTxFailed is returned when a transaction exhausts its retry budget.
	ErrTxFailed = errors.New("transaction failed")
)

// DefaultMaxRetries bounds how often a transaction function is re-run
// against a newer value before giving up.
const DefaultMaxRetries = 32

// TxFunc receives the node's current encoded value (nil when the node is
// absent) and returns the value to commit. Returning a nil value with a nil
// error commits nothing. Returning an error aborts without writing.
//
// A TxFunc may run several times; it must derive its result only from the
// value it is given.
type TxFunc func(current []byte) ([]byte, error)

// Store is a hierarchical, key-addressed store with per-node CAS.
type Store interface {
	// Get returns the encoded value at path or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)

	// List returns every node strictly below prefix, keyed by full path.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Transact atomically replaces the node at path with fn's result,
	// retrying fn against the latest value on conflict.
	Transact(ctx context.Context, path string, fn TxFunc) ([]byte, error)
}

// Join builds a node path from segments.
func Join(segments ...string) string {
	return Clean(strings.Join(segments, "/"))
}

// Clean trims surrounding and duplicate slashes from a path.
func Clean(path string) string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// backoff sleeps briefly between conflicting attempts so hot nodes do not
// burn the whole retry budget in one scheduler slice.
func backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return ctx.Err()
	}
	d := time.Duration(attempt*attempt) * 20 * time.Microsecond
	if d > 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
