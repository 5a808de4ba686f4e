package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNoChange may be returned from an Update callback to finish the
// transaction successfully without writing.
var ErrNoChange = errors.New("no change")

// Update runs fn against the decoded node at path inside one transaction and
// commits the mutated value. exists reports whether the node was present.
// fn may run more than once and must not accumulate state across runs.
func Update[T any](ctx context.Context, s Store, path string, fn func(v *T, exists bool) error) (T, error) {
	var out T
	_, err := s.Transact(ctx, path, func(cur []byte) ([]byte, error) {
		var v T
		exists := cur != nil
		if exists {
			if err := json.Unmarshal(cur, &v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
		if err := fn(&v, exists); err != nil {
			if errors.Is(err, ErrNoChange) {
				out = v
				return nil, nil
			}
			return nil, err
		}
		out = v
		return json.Marshal(v)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Read decodes the node at path.
func Read[T any](ctx context.Context, s Store, path string) (T, error) {
	var v T
	raw, err := s.Get(ctx, path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

// ReadAll decodes every node directly below prefix, ordered by path.
// Deeper descendants are skipped.
func ReadAll[T any](ctx context.Context, s Store, prefix string) ([]T, error) {
	prefix = Clean(prefix)
	nodes, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(nodes))
	for p := range nodes {
		if isDirectChild(prefix, p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	out := make([]T, 0, len(paths))
	for _, p := range paths {
		var v T
		if err := json.Unmarshal(nodes[p], &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func isDirectChild(prefix, path string) bool {
	if len(path) <= len(prefix)+1 || path[:len(prefix)] != prefix || path[len(prefix)] != '/' {
		return false
	}
	for _, c := range path[len(prefix)+1:] {
		if c == '/' {
			return false
		}
	}
	return true
}
