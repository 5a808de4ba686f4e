package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
)

// ErrDigestMismatch is returned when an imported snapshot does not hash to
// the digest it was exported with.
var ErrDigestMismatch = errors.New("snapshot digest mismatch")

// ErrForeignSnapshot is returned when a snapshot was taken under a
// different prefix or carries nodes outside its own prefix.
var ErrForeignSnapshot = errors.New("snapshot does not belong here")

// Snapshot is the serialisable form of every node under a prefix.
type Snapshot struct {
	Prefix  string                     `json:"prefix"`
	TakenAt time.Time                  `json:"taken_at"`
	Nodes   map[string]json.RawMessage `json:"nodes"`
}

// Export reads every node under prefix and returns the snapshot as
// lz4-compressed JSON together with the hex BLAKE3 digest of the
// uncompressed JSON.
func Export(ctx context.Context, s Store, prefix string, now time.Time) ([]byte, string, error) {
	nodes, err := s.List(ctx, prefix)
	if err != nil {
		return nil, "", fmt.Errorf("list %s: %w", prefix, err)
	}
	snap := Snapshot{
		Prefix:  Clean(prefix),
		TakenAt: now.UTC(),
		Nodes:   make(map[string]json.RawMessage, len(nodes)),
	}
	for p, v := range nodes {
		snap.Nodes[p] = json.RawMessage(v)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, "", fmt.Errorf("encode snapshot: %w", err)
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress snapshot: %w", err)
	}
	return buf.Bytes(), Digest(raw), nil
}

// Import decompresses blob, verifies it against digest (when non-empty) and
// writes every node back, one transaction per node. The snapshot must have
// been taken under prefix and every node must lie beneath it; nothing is
// written otherwise. It returns the number of nodes written.
func Import(ctx context.Context, s Store, blob []byte, digest, prefix string) (int, error) {
	zr := lz4.NewReader(bytes.NewReader(blob))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return 0, fmt.Errorf("decompress snapshot: %w", err)
	}
	if digest != "" && Digest(raw) != digest {
		return 0, ErrDigestMismatch
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	prefix = Clean(prefix)
	if Clean(snap.Prefix) != prefix {
		return 0, fmt.Errorf("%w: taken under %q, not %q", ErrForeignSnapshot, snap.Prefix, prefix)
	}
	for p := range snap.Nodes {
		if !strings.HasPrefix(Clean(p), prefix+"/") {
			return 0, fmt.Errorf("%w: node %q is outside %q", ErrForeignSnapshot, p, prefix)
		}
	}

	written := 0
	for p, v := range snap.Nodes {
		value := []byte(v)
		if _, err := s.Transact(ctx, p, func([]byte) ([]byte, error) {
			return value, nil
		}); err != nil {
			return written, fmt.Errorf("restore %s: %w", p, err)
		}
		written++
	}
	return written, nil
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
