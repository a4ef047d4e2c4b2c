package keyvalue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdb/playground/internal/engine"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"SET k v", []string{"SET", "k", "v"}},
		{"  SET   k\tv  ", []string{"SET", "k", "v"}},
		{`SET k "hello world"`, []string{"SET", "k", "hello world"}},
		{`SET k 'it''s'`, []string{"SET", "k", "it", "s"}},
		{`SET k "say \"hi\""`, []string{"SET", "k", `say "hi"`}},
		{`SET k ab"cd"`, []string{"SET", "k", "ab", "cd"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := tokenize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize_Unterminated(t *testing.T) {
	_, err := tokenize(`SET k "open`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrParse))
	assert.Equal(t, "Unterminated quoted string", err.Error())
}

func TestCompileGlob(t *testing.T) {
	keys := []string{"user:1", "user:10", "user:2", "session", "u.x"}

	assert.Equal(t, keys, filterKeys(keys, "*"))
	assert.Equal(t, []string{"user:1", "user:2"}, filterKeys(keys, "user:?"))
	assert.Equal(t, []string{"user:1", "user:10", "user:2"}, filterKeys(keys, "user:*"))
	assert.Equal(t, []string{"u.x"}, filterKeys(keys, "u.x"))
	assert.Empty(t, filterKeys(keys, "nope*"))
}
