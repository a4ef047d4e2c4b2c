// Package columnar provides the wide-column engine: keyspaces of tables with
// a single primary-key column, driven by a CQL subset.
package columnar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/flashdb/playground/internal/engine"
)

// Type is a column type.
type Type string

const (
	TypeText      Type = "text"
	TypeInt       Type = "int"
	TypeTimestamp Type = "timestamp"
)

func parseType(s string) (Type, bool) {
	switch t := Type(strings.ToLower(s)); t {
	case TypeText, TypeInt, TypeTimestamp:
		return t, true
	}
	return "", false
}

// Cell is a stored column value: an integer (int and timestamp columns) or
// a string. Cells are comparable with ==.
type Cell struct {
	Num   int64
	Str   string
	IsNum bool
}

// IntCell returns a numeric cell.
func IntCell(n int64) Cell { return Cell{Num: n, IsNum: true} }

// TextCell returns a string cell.
func TextCell(s string) Cell { return Cell{Str: s} }

// String renders the cell as SELECT prints it. It is also the row key of a
// primary-key cell.
func (c Cell) String() string {
	if c.IsNum {
		return strconv.FormatInt(c.Num, 10)
	}
	return c.Str
}

// MarshalJSON encodes the cell as a JSON number or string.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.IsNum {
		return []byte(strconv.FormatInt(c.Num, 10)), nil
	}
	return json.Marshal(c.Str)
}

// UnmarshalJSON decodes a JSON number or string.
func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextCell(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("columnar: bad cell %s: %w", data, err)
	}
	if i, err := n.Int64(); err == nil {
		*c = IntCell(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("columnar: bad cell %s: %w", data, err)
	}
	*c = IntCell(int64(f))
	return nil
}

var (
	quotedPattern = regexp.MustCompile(`^'.*'$|^".*"$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

// unquote strips one pair of matching outer quotes. A doubled single quote
// inside a single-quoted literal is an escaped quote.
func unquote(s string) string {
	if len(s) < 2 || !quotedPattern.MatchString(s) {
		return s
	}
	inner := s[1 : len(s)-1]
	if s[0] == '\'' {
		inner = strings.ReplaceAll(inner, "''", "'")
	}
	return inner
}

// cast converts a literal to a cell of the column's type.
func cast(typ Type, column, raw string) (Cell, error) {
	v := unquote(strings.TrimSpace(raw))
	switch typ {
	case TypeInt:
		n, ok := engine.ParseIntPrefix(v)
		if !ok {
			return Cell{}, engine.ArgumentError("Invalid INTEGER constant (%s) for \"%s\" of type int", raw, column)
		}
		return IntCell(n), nil
	case TypeTimestamp:
		if digitsPattern.MatchString(v) {
			n, err := strconv.ParseInt(v, 10, 64)
			if err == nil {
				return IntCell(n), nil
			}
		}
		ms, ok := engine.ParseDate(v)
		if !ok {
			return Cell{}, engine.ArgumentError("Unable to coerce '%s' to a formatted date (long)", v)
		}
		return IntCell(ms), nil
	}
	return TextCell(v), nil
}
