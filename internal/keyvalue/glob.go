package keyvalue

import (
	"regexp"
	"strings"
)

// compileGlob converts a glob pattern into an anchored regular expression.
// '*' matches any run of characters and '?' matches exactly one; everything
// else is literal.
func compileGlob(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, c := range pattern {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// filterKeys returns the keys matching pattern, preserving their order.
func filterKeys(keys []string, pattern string) []string {
	if pattern == "*" {
		return keys
	}
	re := compileGlob(pattern)
	var result []string
	for _, key := range keys {
		if re.MatchString(key) {
			result = append(result, key)
		}
	}
	return result
}
