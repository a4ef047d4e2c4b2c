// Package keyvalue - Sorted Set data type
package keyvalue

import "sort"

// ScoredMember represents a member with its score in a sorted set.
type ScoredMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// SortedSet is a Redis-like sorted set. Members are unique and kept ordered
// by score ascending, then member ascending.
// The SortedSet itself is NOT thread-safe; concurrency is managed by the Engine.
type SortedSet struct {
	items []ScoredMember
	index map[string]int
}

// NewSortedSet creates a new sorted set.
func NewSortedSet() *SortedSet {
	return &SortedSet{index: make(map[string]int)}
}

func lessScored(a, b ScoredMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// Add inserts or updates members and re-sorts the whole set.
// Returns the number of new members; updated scores are not counted.
func (z *SortedSet) Add(members ...ScoredMember) int {
	added := 0
	for _, m := range members {
		if i, exists := z.index[m.Member]; exists {
			z.items[i].Score = m.Score
			continue
		}
		z.index[m.Member] = len(z.items)
		z.items = append(z.items, m)
		added++
	}
	z.resort()
	return added
}

func (z *SortedSet) resort() {
	sort.Slice(z.items, func(i, j int) bool { return lessScored(z.items[i], z.items[j]) })
	for i, m := range z.items {
		z.index[m.Member] = i
	}
}

// Score returns the score of a member.
func (z *SortedSet) Score(member string) (float64, bool) {
	i, exists := z.index[member]
	if !exists {
		return 0, false
	}
	return z.items[i].Score, true
}

// Remove removes members. Returns the number removed.
func (z *SortedSet) Remove(members ...string) int {
	drop := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, exists := z.index[m]; exists {
			drop[m] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	kept := z.items[:0]
	for _, it := range z.items {
		if _, gone := drop[it.Member]; gone {
			delete(z.index, it.Member)
			continue
		}
		kept = append(kept, it)
	}
	z.items = kept
	for i, m := range z.items {
		z.index[m.Member] = i
	}
	return len(drop)
}

// Card returns the number of members.
func (z *SortedSet) Card() int {
	return len(z.items)
}

// Range returns members by rank in the inclusive range [start, stop].
// Negative indices count from the end.
func (z *SortedSet) Range(start, stop int) []ScoredMember {
	st, en, ok := rangeBounds(len(z.items), start, stop)
	if !ok {
		return nil
	}
	return append([]ScoredMember(nil), z.items[st:en+1]...)
}

// RangeByScore returns members with min <= score <= max, in order.
func (z *SortedSet) RangeByScore(min, max float64) []ScoredMember {
	var result []ScoredMember
	for _, it := range z.items {
		if it.Score >= min && it.Score <= max {
			result = append(result, it)
		}
	}
	return result
}

// Members returns all members in order.
func (z *SortedSet) Members() []ScoredMember {
	return append([]ScoredMember(nil), z.items...)
}
