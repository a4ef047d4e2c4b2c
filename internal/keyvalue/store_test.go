package keyvalue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_KeyLivesInOneMap(t *testing.T) {
	s := NewStore()
	s.List("k", true).RPush("a")
	assert.Equal(t, TypeList, s.Type("k"))

	s.Set("k", true).Add("m")
	assert.Equal(t, TypeSet, s.Type("k"))
	assert.Nil(t, s.List("k", false))

	s.SetString("k", "v")
	assert.Equal(t, TypeString, s.Type("k"))
	assert.Nil(t, s.Set("k", false))
	assert.Equal(t, 1, s.Len())
}

func TestStore_DeleteClearsExpiry(t *testing.T) {
	s := NewStore()
	s.SetString("k", "v")
	require.True(t, s.Expire("k", 1000))

	assert.True(t, s.Delete("k"))
	_, ok := s.ExpireAt("k")
	assert.False(t, ok)
	assert.False(t, s.Delete("k"))
	assert.False(t, s.Expire("k", 1000), "missing keys cannot expire")
}

func TestStore_SetStringDropsExpiry(t *testing.T) {
	s := NewStore()
	s.SetString("k", "v")
	s.Expire("k", 1000)

	s.SetString("k", "w")
	_, ok := s.ExpireAt("k")
	assert.False(t, ok)

	s.Expire("k", 2000)
	s.ReplaceString("k", "x")
	at, ok := s.ExpireAt("k")
	assert.True(t, ok)
	assert.Equal(t, int64(2000), at)
}

func TestStore_Rename(t *testing.T) {
	s := NewStore()
	s.Hash("h", true).Set("f", "v")
	s.Expire("h", 5000)
	s.SetString("other", "x")

	require.True(t, s.Rename("h", "other"))
	assert.False(t, s.Exists("h"))
	assert.Equal(t, TypeHash, s.Type("other"))
	at, ok := s.ExpireAt("other")
	assert.True(t, ok)
	assert.Equal(t, int64(5000), at)

	assert.False(t, s.Rename("missing", "x"))
}

func TestStore_DropIfEmpty(t *testing.T) {
	s := NewStore()
	s.Set("s", true).Add("a")
	s.Expire("s", 1000)
	s.Set("s", false).Rem("a")

	s.DropIfEmpty("s")
	assert.False(t, s.Exists("s"))
	assert.Empty(t, s.Expired(2000))
}

func TestStore_Expired(t *testing.T) {
	s := NewStore()
	s.SetString("b", "1")
	s.SetString("a", "1")
	s.SetString("c", "1")
	s.Expire("b", 100)
	s.Expire("a", 100)
	s.Expire("c", 300)

	assert.Equal(t, []string{"a", "b"}, s.Expired(100))
	assert.Empty(t, s.Expired(99))
}

func TestStore_JSONRoundTrip(t *testing.T) {
	s := NewStore()
	s.SetString("str", "v")
	s.List("list", true).RPush("a", "b")
	s.Set("set", true).Add("x", "y")
	s.Hash("hash", true).Set("f", "v")
	s.ZSet("zset", true).Add(ScoredMember{Member: "m", Score: 1.5})
	s.Expire("str", 12345)

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	loaded := NewStore()
	require.NoError(t, json.Unmarshal(raw, loaded))
	assert.Equal(t, s, loaded)
}

func TestStore_UnmarshalRepairsModel(t *testing.T) {
	raw := `{"strings":{"k":"v"},"lists":{"k":["a"],"empty":[]},"sets":{},"hashes":{},"zsets":{},"ttl":{"gone":5,"k":7}}`

	s := NewStore()
	require.NoError(t, json.Unmarshal([]byte(raw), s))
	assert.Equal(t, TypeString, s.Type("k"))
	assert.False(t, s.Exists("empty"))
	_, ok := s.ExpireAt("gone")
	assert.False(t, ok)
	at, _ := s.ExpireAt("k")
	assert.Equal(t, int64(7), at)
}
