// Package oplog provides the capped append-only operation log kept in each
// bucket. Entries are held newest first.
package oplog

import (
	"sync"
	"time"

	"github.com/flashdb/playground/internal/bucket"
)

// Log is a capped, newest-first list of operation lines.
// It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []bucket.LogEntry
	cap     int
}

// New creates a log with the given capacity, seeded with entries (newest first).
// The capacity is clamped to bucket.MinLogCap.
func New(capacity int, entries []bucket.LogEntry) *Log {
	l := &Log{cap: max(bucket.MinLogCap, capacity)}
	l.entries = append(make([]bucket.LogEntry, 0, len(entries)), entries...)
	l.trim()
	return l
}

// Record prepends a new entry and drops the oldest entries beyond the cap.
func (l *Log) Record(at time.Time, line string) bucket.LogEntry {
	e := bucket.LogEntry{T: at.UnixMilli(), Line: line}

	l.mu.Lock()
	l.entries = append(l.entries, bucket.LogEntry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = e
	l.trim()
	l.mu.Unlock()

	return e
}

// trim must be called with the lock held.
func (l *Log) trim() {
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
}

// Latest returns up to n of the most recent entries, newest first.
func (l *Log) Latest(n int) []bucket.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	if n <= 0 {
		return nil
	}
	return append([]bucket.LogEntry(nil), l.entries[:n]...)
}

// Since returns the entries recorded strictly after the given epoch
// milliseconds, oldest first.
func (l *Log) Since(afterMillis int64) []bucket.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []bucket.LogEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].T > afterMillis {
			result = append(result, l.entries[i])
		}
	}
	return result
}

// Entries returns a copy of all entries, newest first.
func (l *Log) Entries() []bucket.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append(make([]bucket.LogEntry, 0, len(l.entries)), l.entries...)
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Cap returns the effective capacity.
func (l *Log) Cap() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cap
}

// SetCap changes the capacity, trimming immediately if needed.
func (l *Log) SetCap(n int) {
	l.mu.Lock()
	l.cap = max(bucket.MinLogCap, n)
	l.trim()
	l.mu.Unlock()
}

// Reset replaces the entries, for example after an import.
func (l *Log) Reset(entries []bucket.LogEntry) {
	l.mu.Lock()
	l.entries = append(make([]bucket.LogEntry, 0, len(entries)), entries...)
	l.trim()
	l.mu.Unlock()
}
