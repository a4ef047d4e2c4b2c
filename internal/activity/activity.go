// Package activity measures how many operations each engine completes.
// It backs the operations-per-second display and the exported metrics.
package activity

import (
	"container/heap"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// DefaultWindow is the observation window of the rate display.
const DefaultWindow = 10 * time.Second

// Entry is an engine with its operation count inside the window.
type Entry struct {
	Engine string  `json:"engine"`
	Count  int     `json:"count"`
	Rate   float64 `json:"rate"`
}

// Meter records operation timestamps per engine and reports recent rates.
// It is safe for concurrent use.
type Meter struct {
	mu     sync.Mutex
	stamps map[string][]time.Time
	window time.Duration
	now    func() time.Time

	set    *metrics.Set
	totals map[string]*metrics.Counter
}

// New creates a meter. A zero window uses DefaultWindow and a nil clock uses
// time.Now.
func New(window time.Duration, now func() time.Time) *Meter {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Meter{
		stamps: make(map[string][]time.Time),
		window: window,
		now:    now,
		set:    metrics.NewSet(),
		totals: make(map[string]*metrics.Counter),
	}
}

// Record marks one completed operation for engine.
func (m *Meter) Record(engine string) {
	now := m.now()

	m.mu.Lock()
	m.stamps[engine] = m.prune(append(m.stamps[engine], now), now)
	c, ok := m.totals[engine]
	if !ok {
		c = m.set.GetOrCreateCounter(fmt.Sprintf(`playground_operations_total{engine=%q}`, engine))
		m.totals[engine] = c
		m.set.GetOrCreateGauge(fmt.Sprintf(`playground_operations_rate{engine=%q}`, engine), func() float64 {
			return m.Rate(engine)
		})
	}
	m.mu.Unlock()

	c.Inc()
}

// prune drops timestamps older than the window. Must hold lock.
func (m *Meter) prune(stamps []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) > m.window {
		i++
	}
	return stamps[i:]
}

// Rate returns operations per second for engine over the span between the
// oldest and newest timestamps in the window. A single operation has no span
// and reports 0.
func (m *Meter) Rate(engine string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate(engine)
}

func (m *Meter) rate(engine string) float64 {
	stamps := m.prune(m.stamps[engine], m.now())
	m.stamps[engine] = stamps
	if len(stamps) == 0 {
		return 0
	}
	span := stamps[len(stamps)-1].Sub(stamps[0])
	if span <= 0 {
		return 0
	}
	return float64(len(stamps)) / span.Seconds()
}

// Total returns the number of operations recorded for engine since start.
func (m *Meter) Total(engine string) uint64 {
	m.mu.Lock()
	c, ok := m.totals[engine]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return c.Get()
}

// Top returns up to n engines ranked by operations inside the window.
// n <= 0 returns all of them.
func (m *Meter) Top(n int) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 {
		n = len(m.stamps)
	}

	h := &entryHeap{}
	heap.Init(h)

	for engine := range m.stamps {
		e := Entry{Engine: engine, Rate: m.rate(engine)}
		e.Count = len(m.stamps[engine])
		if h.Len() < n {
			heap.Push(h, e)
		} else if h.Len() > 0 && less((*h)[0], e) {
			(*h)[0] = e
			heap.Fix(h, 0)
		}
	}

	result := make([]Entry, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Entry)
	}
	return result
}

// WritePrometheus writes the meter's counters in Prometheus text format.
func (m *Meter) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// less orders entries by count, then by name descending so that ties pop in
// name order.
func less(a, b Entry) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	return a.Engine > b.Engine
}

// --- min-heap for top-N selection ---

type entryHeap []Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
