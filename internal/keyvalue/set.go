// Package keyvalue - Set data type
//
// A Set is an unordered collection of unique string members.
// Add/Remove/IsMember are O(1). Inter/union/diff are O(N*M) in the worst case.
package keyvalue

import "sort"

// Set represents a Redis-like set.
// The Set itself is NOT thread-safe; concurrency is managed by the Engine.
type Set struct {
	members map[string]struct{}
}

// NewSet creates a new empty Set.
func NewSet() *Set {
	return &Set{members: make(map[string]struct{})}
}

// Add adds members. Returns the number of members not already present.
func (s *Set) Add(members ...string) int {
	added := 0
	for _, m := range members {
		if _, exists := s.members[m]; !exists {
			s.members[m] = struct{}{}
			added++
		}
	}
	return added
}

// Rem removes members. Returns the number of members actually removed.
func (s *Set) Rem(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, exists := s.members[m]; exists {
			delete(s.members, m)
			removed++
		}
	}
	return removed
}

// IsMember reports whether member is in the set.
func (s *Set) IsMember(member string) bool {
	_, exists := s.members[member]
	return exists
}

// Card returns the number of members.
func (s *Set) Card() int {
	return len(s.members)
}

// Members returns all members sorted lexicographically.
func (s *Set) Members() []string {
	result := make([]string, 0, len(s.members))
	for m := range s.members {
		result = append(result, m)
	}
	sort.Strings(result)
	return result
}

// Inter returns the members present in every set, sorted. Nil sets count as
// empty.
func Inter(sets ...*Set) []string {
	if len(sets) == 0 || sets[0] == nil {
		return nil
	}
	var result []string
	for _, m := range sets[0].Members() {
		inAll := true
		for _, other := range sets[1:] {
			if other == nil || !other.IsMember(m) {
				inAll = false
				break
			}
		}
		if inAll {
			result = append(result, m)
		}
	}
	return result
}

// Union returns the members present in any set, sorted.
func Union(sets ...*Set) []string {
	u := NewSet()
	for _, s := range sets {
		if s == nil {
			continue
		}
		for m := range s.members {
			u.Add(m)
		}
	}
	return u.Members()
}

// Diff returns the members of the first set absent from all others, sorted.
func Diff(sets ...*Set) []string {
	if len(sets) == 0 || sets[0] == nil {
		return nil
	}
	var result []string
	for _, m := range sets[0].Members() {
		found := false
		for _, other := range sets[1:] {
			if other != nil && other.IsMember(m) {
				found = true
				break
			}
		}
		if !found {
			result = append(result, m)
		}
	}
	return result
}
