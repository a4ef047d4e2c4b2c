package engine

import (
	"math"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate parses a date string in the common ISO-8601 and RFC layouts and
// returns epoch milliseconds. Times without a zone are taken as UTC.
func ParseDate(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// ParseIntPrefix parses the leading integer of s the way lenient shells do:
// surrounding whitespace is skipped, an optional sign and the longest run of
// digits are read, and anything after them is ignored. It fails when no digit
// is found. Values beyond the int64 range saturate.
func ParseIntPrefix(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var n int64
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		d := int64(s[digits] - '0')
		if n > (math.MaxInt64-d)/10 {
			n = math.MaxInt64
		} else {
			n = n*10 + d
		}
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

// ExpiryAt returns the epoch milliseconds sec seconds after nowMs, saturating
// at math.MaxInt64.
func ExpiryAt(nowMs, sec int64) int64 {
	if sec > (math.MaxInt64-nowMs)/1000 {
		return math.MaxInt64
	}
	return nowMs + sec*1000
}
