// Package keyvalue - List data type
//
// A List is an ordered sequence of strings stored under a single key.
// Pushing to the head is O(N); pushing to the tail is amortised O(1).
package keyvalue

// List represents a Redis-like list.
// The List itself is NOT thread-safe; concurrency is managed by the Engine.
type List struct {
	items []string
}

// NewList creates a new empty List.
func NewList() *List {
	return &List{items: make([]string, 0)}
}

// LPush prepends values one at a time from left to right, so
// LPUSH key a b c leaves c at the head.
// Returns the new length of the list.
func (l *List) LPush(values ...string) int {
	newItems := make([]string, len(values)+len(l.items))
	for i, v := range values {
		newItems[len(values)-1-i] = v
	}
	copy(newItems[len(values):], l.items)
	l.items = newItems
	return len(l.items)
}

// RPush appends values. Returns the new length of the list.
func (l *List) RPush(values ...string) int {
	l.items = append(l.items, values...)
	return len(l.items)
}

// LPop removes and returns the first element.
func (l *List) LPop() (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	val := l.items[0]
	l.items = l.items[1:]
	return val, true
}

// RPop removes and returns the last element.
func (l *List) RPop() (string, bool) {
	if len(l.items) == 0 {
		return "", false
	}
	val := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return val, true
}

// Len returns the number of elements.
func (l *List) Len() int {
	return len(l.items)
}

// Range returns the inclusive slice [start, stop]. Negative indices count
// from the end. An empty or inverted range returns nil.
func (l *List) Range(start, stop int) []string {
	st, en, ok := rangeBounds(len(l.items), start, stop)
	if !ok {
		return nil
	}
	return append([]string(nil), l.items[st:en+1]...)
}

// Items returns a copy of all elements.
func (l *List) Items() []string {
	return append([]string(nil), l.items...)
}

// rangeBounds resolves an inclusive index range over n elements. Negative
// indices count from the end; the start is floored at 0 and the stop is
// capped at the last element.
func rangeBounds(n, start, stop int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	stop = min(stop, n-1)
	if stop < start {
		return 0, 0, false
	}
	return start, stop, true
}
