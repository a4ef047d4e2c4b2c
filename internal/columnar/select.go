package columnar

import (
	"fmt"
	"strings"

	"github.com/flashdb/playground/internal/engine"
)

// plan decides how a SELECT reads its table. Primary-key predicates are
// served from the row map; any other predicate is a linear scan that an index
// or ALLOW FILTERING must permit.
type plan struct {
	lookup bool
	keys   []Cell
}

func planSelect(t *Table, s selectStmt) (plan, error) {
	if s.where == nil {
		return plan{}, nil
	}
	field := s.where.field
	isKey := field == t.PrimaryKey
	if !isKey && !t.HasIndex(field) && !s.allowFiltering {
		return plan{}, engine.Errorf(engine.ErrFilteringRequired,
			"Non-primary-key queries require ALLOW FILTERING (or an index)")
	}
	keys := make([]Cell, 0, len(s.where.values))
	for _, raw := range s.where.values {
		c, err := cast(t.TypeOf(field), field, raw)
		if err != nil {
			return plan{}, err
		}
		keys = append(keys, c)
	}
	return plan{lookup: isKey, keys: keys}, nil
}

func (p plan) rows(t *Table, s selectStmt) []Row {
	var out []Row
	switch {
	case s.where == nil:
		for _, k := range t.RowKeys() {
			out = append(out, t.Rows[k])
		}
	case p.lookup:
		for _, k := range p.keys {
			if r, ok := t.Rows[k.String()]; ok {
				out = append(out, r)
			}
		}
	default:
		for _, k := range t.RowKeys() {
			r := t.Rows[k]
			if c, ok := r[s.where.field]; ok && containsCell(p.keys, c) {
				out = append(out, r)
			}
		}
	}
	if s.limit >= 0 && s.limit < len(out) {
		out = out[:s.limit]
	}
	return out
}

func containsCell(cells []Cell, c Cell) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}

// query runs a SELECT and prints a header, one line per row and a row count.
func (e *Engine) query(s selectStmt, res *engine.Result) error {
	t, err := e.table(s.table)
	if err != nil {
		return err
	}
	for _, col := range s.columns {
		if _, ok := t.Columns.Lookup(col); !ok {
			return engine.ArgumentError("Undefined column name %s", col)
		}
	}
	p, err := planSelect(t, s)
	if err != nil {
		return err
	}
	rows := p.rows(t, s)
	if len(rows) == 0 {
		res.Print("(0 rows)")
		return nil
	}

	cols := s.columns
	if cols == nil {
		cols = t.Columns.Names()
	}
	res.Print(strings.Join(cols, " | "))
	vals := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			if cell, ok := r[c]; ok {
				vals[i] = cell.String()
			} else {
				vals[i] = "null"
			}
		}
		res.Print(strings.Join(vals, " | "))
	}
	if len(rows) == 1 {
		res.Print("(1 row)")
	} else {
		res.Print(fmt.Sprintf("(%d rows)", len(rows)))
	}
	return nil
}
