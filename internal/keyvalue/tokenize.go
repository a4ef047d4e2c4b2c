package keyvalue

import (
	"strings"
	"unicode"

	"github.com/flashdb/playground/internal/engine"
)

// tokenize splits a command line on whitespace. Single- or double-quoted
// substrings form one token with backslash escapes honoured inside them; an
// opening quote also ends the token in progress.
func tokenize(line string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if quote != 0 {
			switch {
			case c == '\\' && i+1 < len(runes):
				i++
				cur.WriteRune(runes[i])
			case c == quote:
				quote = 0
			default:
				cur.WriteRune(c)
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			quote = c
			flush()
		case unicode.IsSpace(c):
			flush()
		default:
			cur.WriteRune(c)
		}
	}
	if quote != 0 {
		return nil, engine.ParseError("Unterminated quoted string")
	}
	flush()
	return out, nil
}
