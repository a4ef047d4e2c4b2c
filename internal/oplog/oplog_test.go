package oplog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(ms int64) time.Time { return time.UnixMilli(ms) }

func TestRecord_NewestFirst(t *testing.T) {
	l := New(100, nil)

	l.Record(at(1), "[redis] SET a 1")
	l.Record(at(2), "[redis] SET b 2")
	l.Record(at(3), "[redis] DEL a")

	entries := l.Latest(10)
	require.Len(t, entries, 3)
	assert.Equal(t, "[redis] DEL a", entries[0].Line)
	assert.Equal(t, int64(3), entries[0].T)
	assert.Equal(t, "[redis] SET a 1", entries[2].Line)
}

func TestLatest_Bounds(t *testing.T) {
	l := New(100, nil)
	assert.Nil(t, l.Latest(5))

	l.Record(at(1), "x")
	assert.Len(t, l.Latest(5), 1)
	assert.Nil(t, l.Latest(0))
}

func TestSince(t *testing.T) {
	l := New(100, nil)
	l.Record(at(10), "a")
	l.Record(at(20), "b")
	l.Record(at(30), "c")

	entries := l.Since(10)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Line)
	assert.Equal(t, "c", entries[1].Line)
}

func TestCap_ClampedAndTrimmed(t *testing.T) {
	l := New(1, nil)
	assert.Equal(t, bucket.MinLogCap, l.Cap())

	for i := 0; i < 60; i++ {
		l.Record(at(int64(i)), fmt.Sprintf("line %d", i))
	}
	assert.Equal(t, bucket.MinLogCap, l.Len())
	assert.Equal(t, "line 59", l.Latest(1)[0].Line)

	entries := l.Entries()
	assert.Equal(t, "line 10", entries[len(entries)-1].Line)
}

func TestSetCap(t *testing.T) {
	l := New(100, nil)
	for i := 0; i < 80; i++ {
		l.Record(at(int64(i)), "x")
	}
	l.SetCap(60)
	assert.Equal(t, 60, l.Len())
	l.SetCap(10)
	assert.Equal(t, bucket.MinLogCap, l.Len())
}

func TestNew_SeededEntries(t *testing.T) {
	seed := []bucket.LogEntry{{T: 2, Line: "new"}, {T: 1, Line: "old"}}
	l := New(800, seed)
	seed[0].Line = "mutated"

	assert.Equal(t, "new", l.Latest(1)[0].Line)

	l.Reset([]bucket.LogEntry{{T: 5, Line: "imported"}})
	assert.Equal(t, 1, l.Len())
}

func TestConcurrentRecord(t *testing.T) {
	l := New(1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(at(int64(n*100+j)), "x")
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 500, l.Len())
}
