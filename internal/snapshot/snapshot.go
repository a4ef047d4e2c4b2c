// Package snapshot provides the capped snapshot ring of the key-value engine.
// A snapshot is captured every N writes while snapshotting is enabled.
package snapshot

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flashdb/playground/internal/bucket"
)

// Meta describes a snapshot without its data.
type Meta struct {
	T         int64 `json:"t"`
	SizeBytes int   `json:"size_bytes"`
}

// Ring holds snapshots newest first, bounded by a cap, and counts writes
// towards the next capture. It is safe for concurrent use.
type Ring struct {
	mu     sync.Mutex
	snaps  []bucket.Snapshot
	cap    int
	writes int
}

// NewRing creates a ring with the given cap, seeded with snaps (newest first).
func NewRing(capacity int, snaps []bucket.Snapshot) *Ring {
	r := &Ring{cap: max(bucket.MinSnapshotCap, capacity)}
	r.snaps = append(make([]bucket.Snapshot, 0, len(snaps)), snaps...)
	r.trim()
	return r
}

func (r *Ring) trim() {
	if len(r.snaps) > r.cap {
		r.snaps = r.snaps[:r.cap]
	}
}

// Tick counts one write and captures a snapshot when the write count reaches
// a multiple of threshold. capture is only called when a snapshot is taken.
// It reports whether a snapshot was captured.
func (r *Ring) Tick(now time.Time, threshold int, capture func() (json.RawMessage, error)) (bool, error) {
	if threshold < 1 {
		threshold = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes++
	if r.writes%threshold != 0 {
		return false, nil
	}

	data, err := capture()
	if err != nil {
		return false, fmt.Errorf("snapshot: capture: %w", err)
	}

	r.snaps = append(r.snaps, bucket.Snapshot{})
	copy(r.snaps[1:], r.snaps)
	r.snaps[0] = bucket.Snapshot{T: now.UnixMilli(), Data: data}
	r.trim()
	return true, nil
}

// Writes returns the number of counted writes.
func (r *Ring) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// List returns metadata for all snapshots, newest first.
func (r *Ring) List() []Meta {
	r.mu.Lock()
	defer r.mu.Unlock()

	metas := make([]Meta, len(r.snaps))
	for i, s := range r.snaps {
		metas[i] = Meta{T: s.T, SizeBytes: len(s.Data)}
	}
	return metas
}

// Load returns the snapshot at position i (0 is the newest).
func (r *Ring) Load(i int) (bucket.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.snaps) {
		return bucket.Snapshot{}, fmt.Errorf("snapshot: no snapshot at %d", i)
	}
	s := r.snaps[i]
	return bucket.Snapshot{T: s.T, Data: append(json.RawMessage(nil), s.Data...)}, nil
}

// Entries returns a copy of all snapshots, newest first.
func (r *Ring) Entries() []bucket.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bucket.Snapshot, len(r.snaps))
	for i, s := range r.snaps {
		out[i] = bucket.Snapshot{T: s.T, Data: append(json.RawMessage(nil), s.Data...)}
	}
	return out
}

// SetCap changes the cap, trimming immediately if needed.
func (r *Ring) SetCap(n int) {
	r.mu.Lock()
	r.cap = max(bucket.MinSnapshotCap, n)
	r.trim()
	r.mu.Unlock()
}

// Reset replaces the held snapshots. The write counter is kept.
func (r *Ring) Reset(snaps []bucket.Snapshot) {
	r.mu.Lock()
	r.snaps = append(make([]bucket.Snapshot, 0, len(snaps)), snaps...)
	r.trim()
	r.mu.Unlock()
}
