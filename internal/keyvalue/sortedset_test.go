package keyvalue

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func members(items []ScoredMember) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Member
	}
	return out
}

func TestSortedSet_AddUpdatesScore(t *testing.T) {
	z := NewSortedSet()
	assert.Equal(t, 1, z.Add(ScoredMember{Member: "a", Score: 1}))
	assert.Equal(t, 0, z.Add(ScoredMember{Member: "a", Score: 2}))

	assert.Equal(t, 1, z.Card())
	score, ok := z.Score("a")
	assert.True(t, ok)
	assert.Equal(t, 2.0, score)
}

func TestSortedSet_OrderByScoreThenMember(t *testing.T) {
	z := NewSortedSet()
	z.Add(
		ScoredMember{Member: "c", Score: 1},
		ScoredMember{Member: "a", Score: 2},
		ScoredMember{Member: "b", Score: 1},
	)
	assert.Equal(t, []string{"b", "c", "a"}, members(z.Members()))

	// An update re-sorts the whole set.
	z.Add(ScoredMember{Member: "a", Score: 0})
	assert.Equal(t, []string{"a", "b", "c"}, members(z.Members()))
}

func TestSortedSet_Remove(t *testing.T) {
	z := NewSortedSet()
	z.Add(
		ScoredMember{Member: "a", Score: 1},
		ScoredMember{Member: "b", Score: 2},
		ScoredMember{Member: "c", Score: 3},
	)

	assert.Equal(t, 2, z.Remove("a", "c", "zz"))
	assert.Equal(t, []string{"b"}, members(z.Members()))
	_, ok := z.Score("a")
	assert.False(t, ok)
	score, ok := z.Score("b")
	assert.True(t, ok)
	assert.Equal(t, 2.0, score)
}

func TestSortedSet_Range(t *testing.T) {
	z := NewSortedSet()
	z.Add(
		ScoredMember{Member: "a", Score: 1},
		ScoredMember{Member: "b", Score: 2},
		ScoredMember{Member: "c", Score: 3},
	)

	assert.Equal(t, []string{"a", "b", "c"}, members(z.Range(0, -1)))
	assert.Equal(t, []string{"b", "c"}, members(z.Range(-2, -1)))
	assert.Empty(t, z.Range(2, 1))
}

func TestSortedSet_RangeByScore(t *testing.T) {
	z := NewSortedSet()
	z.Add(
		ScoredMember{Member: "a", Score: 1},
		ScoredMember{Member: "b", Score: 2.5},
		ScoredMember{Member: "c", Score: 3},
	)

	assert.Equal(t, []string{"b", "c"}, members(z.RangeByScore(2, 3)))
	assert.Equal(t, []string{"a", "b", "c"}, members(z.RangeByScore(math.Inf(-1), math.Inf(1))))
	assert.Empty(t, z.RangeByScore(4, 5))
}
