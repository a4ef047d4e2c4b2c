package activity

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock { return &fakeClock{t: time.UnixMilli(1_700_000_000_000)} }

func TestMeter_Rate(t *testing.T) {
	clock := newClock()
	m := New(0, clock.Now)

	m.Record("redis")
	assert.Zero(t, m.Rate("redis"), "a single operation has no span")

	for i := 0; i < 4; i++ {
		clock.Advance(500 * time.Millisecond)
		m.Record("redis")
	}
	// 5 operations over 2 seconds.
	assert.InDelta(t, 2.5, m.Rate("redis"), 0.001)
	assert.Zero(t, m.Rate("mongo"))
}

func TestMeter_WindowExpires(t *testing.T) {
	clock := newClock()
	m := New(10*time.Second, clock.Now)

	m.Record("redis")
	clock.Advance(time.Second)
	m.Record("redis")
	clock.Advance(11 * time.Second)

	assert.Zero(t, m.Rate("redis"))
	assert.Equal(t, uint64(2), m.Total("redis"), "totals survive the window")
}

func TestMeter_Top(t *testing.T) {
	clock := newClock()
	m := New(0, clock.Now)

	for i := 0; i < 5; i++ {
		m.Record("mongo")
	}
	for i := 0; i < 2; i++ {
		m.Record("redis")
		m.Record("cassandra")
	}

	top := m.Top(0)
	require.Len(t, top, 3)
	assert.Equal(t, "mongo", top[0].Engine)
	assert.Equal(t, 5, top[0].Count)
	assert.Equal(t, "cassandra", top[1].Engine)
	assert.Equal(t, "redis", top[2].Engine)

	assert.Len(t, m.Top(1), 1)
}

func TestMeter_WritePrometheus(t *testing.T) {
	m := New(0, nil)
	m.Record("redis")
	m.Record("redis")

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	assert.Contains(t, buf.String(), `playground_operations_total{engine="redis"} 2`)
	assert.Contains(t, buf.String(), `playground_operations_rate{engine="redis"}`)
}

func TestMeter_Concurrent(t *testing.T) {
	m := New(0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Record("redis")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), m.Total("redis"))
}
