package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Store. Transaction functions run outside the lock;
// the commit compares the node version read before fn ran and retries on
// mismatch, which is the same optimistic discipline as a remote store.
type Memory struct {
	MaxRetries int

	mu    sync.RWMutex
	nodes map[string]memNode

	commits   atomic.Uint64
	conflicts atomic.Uint64
}

type memNode struct {
	value   []byte
	version uint64 // 0 means absent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		MaxRetries: DefaultMaxRetries,
		nodes:      make(map[string]memNode),
	}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = Clean(path)
	m.mu.RLock()
	n, ok := m.nodes[path]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return clone(n.value), nil
}

// List implements Store.
func (m *Memory) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = Clean(prefix) + "/"
	out := make(map[string][]byte)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for p, n := range m.nodes {
		if strings.HasPrefix(p, prefix) {
			out[p] = clone(n.value)
		}
	}
	return out, nil
}

// Transact implements Store.
func (m *Memory) Transact(ctx context.Context, path string, fn TxFunc) ([]byte, error) {
	path = Clean(path)
	retries := m.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	for attempt := 0; attempt < retries; attempt++ {
		if err := backoff(ctx, attempt); err != nil {
			return nil, err
		}

		m.mu.RLock()
		seen := m.nodes[path]
		m.mu.RUnlock()

		var cur []byte
		if seen.version > 0 {
			cur = clone(seen.value)
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return cur, nil
		}

		m.mu.Lock()
		if m.nodes[path].version != seen.version {
			m.mu.Unlock()
			m.conflicts.Add(1)
			continue
		}
		m.nodes[path] = memNode{value: clone(next), version: seen.version + 1}
		m.mu.Unlock()
		m.commits.Add(1)
		return next, nil
	}
	return nil, fmt.Errorf("%s: %w", path, ErrTxFailed)
}

// Stats reports committed transactions and CAS conflicts since creation.
func (m *Memory) Stats() (commits, conflicts uint64) {
	return m.commits.Load(), m.conflicts.Load()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
