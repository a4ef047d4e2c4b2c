package columnar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// SystemKeyspace is the keyspace selected in a fresh model.
const SystemKeyspace = "system"

var initialModel = json.RawMessage(`{"keyspaces":{"system":{"tables":{}}},"currentKs":"system"}`)

// Column is a declared column.
type Column struct {
	Name string
	Type Type
}

// Columns are the declared columns of a table in declaration order. They
// persist as a JSON object of name to type.
type Columns []Column

// Lookup returns the type of the named column.
func (cs Columns) Lookup(name string) (Type, bool) {
	for _, c := range cs {
		if c.Name == name {
			return c.Type, true
		}
	}
	return "", false
}

// Names returns the column names in declaration order.
func (cs Columns) Names() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

// MarshalJSON encodes the columns as an object, keeping declaration order.
func (cs Columns) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		typ, err := json.Marshal(string(c.Type))
		if err != nil {
			return nil, err
		}
		buf.Write(typ)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a name to type object, keeping key order.
func (cs *Columns) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*cs = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("columnar: columns must be an object")
	}
	var out Columns
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var raw string
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("columnar: bad type for column %v: %w", kt, err)
		}
		typ, ok := parseType(raw)
		if !ok {
			return fmt.Errorf("columnar: unknown type %q for column %v", raw, kt)
		}
		out = append(out, Column{Name: kt.(string), Type: typ})
	}
	*cs = out
	return nil
}

// Row maps column names to cells.
type Row map[string]Cell

// Table is one table. Rows are keyed by the string form of the primary-key
// cell; TTL holds absolute expiries in epoch milliseconds.
type Table struct {
	Columns    Columns          `json:"columns"`
	PrimaryKey string           `json:"primaryKey"`
	Rows       map[string]Row   `json:"rows"`
	TTL        map[string]int64 `json:"ttl"`
	Indexes    []string         `json:"indexes"`
}

func newTable() *Table {
	return &Table{
		Columns: Columns{},
		Rows:    make(map[string]Row),
		TTL:     make(map[string]int64),
		Indexes: []string{},
	}
}

// HasIndex reports whether column has a secondary index.
func (t *Table) HasIndex(column string) bool {
	for _, ix := range t.Indexes {
		if ix == column {
			return true
		}
	}
	return false
}

// TypeOf returns the declared type of column, text when undeclared.
func (t *Table) TypeOf(column string) Type {
	if typ, ok := t.Columns.Lookup(column); ok {
		return typ
	}
	return TypeText
}

// DeleteRow removes the row at key and its expiry. Returns true if the row
// existed.
func (t *Table) DeleteRow(key string) bool {
	_, ok := t.Rows[key]
	delete(t.Rows, key)
	delete(t.TTL, key)
	return ok
}

// RowKeys returns the row keys in scan order: integer keys ascending, then
// the rest lexicographically.
func (t *Table) RowKeys() []string {
	keys := make([]string, 0, len(t.Rows))
	for k := range t.Rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aErr := strconv.ParseUint(keys[i], 10, 64)
		b, bErr := strconv.ParseUint(keys[j], 10, 64)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Keyspace holds named tables and its replication options as given.
type Keyspace struct {
	Tables      map[string]*Table `json:"tables"`
	Replication string            `json:"replication,omitempty"`
}

// Model is the columnar engine's persisted state. CurrentKs always names an
// existing keyspace.
// It is NOT thread-safe; concurrency is managed by the Engine.
type Model struct {
	Keyspaces map[string]*Keyspace `json:"keyspaces"`
	CurrentKs string               `json:"currentKs"`
}

func decodeModel(data json.RawMessage) (*Model, error) {
	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("columnar: failed to decode model: %w", err)
	}
	m.normalize()
	return m, nil
}

func (m *Model) normalize() {
	if m.Keyspaces == nil {
		m.Keyspaces = make(map[string]*Keyspace)
	}
	if m.CurrentKs == "" {
		m.CurrentKs = SystemKeyspace
	}
	for name, ks := range m.Keyspaces {
		if ks == nil {
			ks = &Keyspace{}
			m.Keyspaces[name] = ks
		}
		if ks.Tables == nil {
			ks.Tables = make(map[string]*Table)
		}
		for tname, t := range ks.Tables {
			if t == nil {
				ks.Tables[tname] = newTable()
				continue
			}
			if t.Columns == nil {
				t.Columns = Columns{}
			}
			if t.Rows == nil {
				t.Rows = make(map[string]Row)
			}
			if t.TTL == nil {
				t.TTL = make(map[string]int64)
			}
			if t.Indexes == nil {
				t.Indexes = []string{}
			}
		}
	}
	m.Use(m.CurrentKs)
}

// Use selects name as the current keyspace, creating it if needed.
func (m *Model) Use(name string) {
	m.ensure(name)
	m.CurrentKs = name
}

func (m *Model) ensure(name string) *Keyspace {
	ks, ok := m.Keyspaces[name]
	if !ok {
		ks = &Keyspace{Tables: make(map[string]*Table)}
		m.Keyspaces[name] = ks
	}
	return ks
}

// Current returns the current keyspace.
func (m *Model) Current() *Keyspace {
	return m.Keyspaces[m.CurrentKs]
}

// RowCount returns the number of rows in the current keyspace.
func (m *Model) RowCount() int {
	n := 0
	for _, t := range m.Current().Tables {
		n += len(t.Rows)
	}
	return n
}
