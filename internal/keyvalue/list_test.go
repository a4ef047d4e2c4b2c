package keyvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestList_PushAndLen(t *testing.T) {
	l := NewList()
	assert.Equal(t, 0, l.Len())

	n := l.RPush("a", "b", "c")
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, l.Len())

	n = l.LPush("z")
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"z", "a", "b", "c"}, l.Items())
}

func TestList_LPushOrder(t *testing.T) {
	l := NewList()
	l.LPush("a", "b", "c")
	assert.Equal(t, []string{"c", "b", "a"}, l.Items())

	l.LPush("d")
	assert.Equal(t, []string{"d", "c", "b", "a"}, l.Items())
}

func TestList_Pop(t *testing.T) {
	l := NewList()
	l.RPush("a", "b", "c")

	val, ok := l.LPop()
	assert.True(t, ok)
	assert.Equal(t, "a", val)

	val, ok = l.RPop()
	assert.True(t, ok)
	assert.Equal(t, "c", val)

	l.LPop() // remove "b"
	_, ok = l.LPop()
	assert.False(t, ok)

	_, ok = l.RPop()
	assert.False(t, ok)
}

func TestList_Range(t *testing.T) {
	l := NewList()
	l.RPush("a", "b", "c", "d", "e")

	tests := []struct {
		name        string
		start, stop int
		want        []string
	}{
		{"all", 0, -1, []string{"a", "b", "c", "d", "e"}},
		{"prefix", 0, 1, []string{"a", "b"}},
		{"negative", -2, -1, []string{"d", "e"}},
		{"stop past end", 3, 100, []string{"d", "e"}},
		{"start before head", -100, 0, []string{"a"}},
		{"inverted", 3, 1, nil},
		{"start past end", 10, 20, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Range(tt.start, tt.stop))
		})
	}

	assert.Nil(t, NewList().Range(0, -1))
}

func TestList_RangeReturnsCopy(t *testing.T) {
	l := NewList()
	l.RPush("a", "b")

	got := l.Range(0, -1)
	got[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, l.Items())
}
