package document

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultDB is the database selected in a fresh model.
const DefaultDB = "default"

var initialModel = json.RawMessage(`{"databases":{"default":{"collections":{}}},"currentDb":"default"}`)

// Index is a declared secondary index. It only drives the find hint.
type Index struct {
	Field string `json:"field"`
	Order int    `json:"order"`
}

// Collection is an ordered sequence of documents and its declared indexes.
type Collection struct {
	Docs    []*Object `json:"docs"`
	Indexes []Index   `json:"indexes"`
}

// HasIndex reports whether field has a declared index.
func (c *Collection) HasIndex(field string) bool {
	for _, ix := range c.Indexes {
		if ix.Field == field {
			return true
		}
	}
	return false
}

// Database holds named collections.
type Database struct {
	Collections map[string]*Collection `json:"collections"`
}

// Collection returns the named collection, creating it on first reference.
func (d *Database) Collection(name string) *Collection {
	c, ok := d.Collections[name]
	if !ok {
		c = &Collection{Docs: []*Object{}, Indexes: []Index{}}
		d.Collections[name] = c
	}
	return c
}

// Model is the document engine's persisted state. CurrentDB always names an
// existing database.
// It is NOT thread-safe; concurrency is managed by the Engine.
type Model struct {
	Databases map[string]*Database `json:"databases"`
	CurrentDB string               `json:"currentDb"`
}

// decodeModel parses and normalizes a persisted model.
func decodeModel(data json.RawMessage) (*Model, error) {
	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("document: failed to decode model: %w", err)
	}
	m.normalize()
	return m, nil
}

func (m *Model) normalize() {
	if m.Databases == nil {
		m.Databases = make(map[string]*Database)
	}
	if m.CurrentDB == "" {
		m.CurrentDB = DefaultDB
	}
	for name, db := range m.Databases {
		if db == nil {
			db = &Database{}
			m.Databases[name] = db
		}
		if db.Collections == nil {
			db.Collections = make(map[string]*Collection)
		}
		for cname, c := range db.Collections {
			if c == nil {
				c = &Collection{}
				db.Collections[cname] = c
			}
			docs := c.Docs[:0]
			for _, d := range c.Docs {
				if d != nil {
					docs = append(docs, d)
				}
			}
			c.Docs = docs
			if c.Indexes == nil {
				c.Indexes = []Index{}
			}
		}
	}
	m.Use(m.CurrentDB)
}

// Use selects name as the current database, creating it if needed.
func (m *Model) Use(name string) {
	if _, ok := m.Databases[name]; !ok {
		m.Databases[name] = &Database{Collections: make(map[string]*Collection)}
	}
	m.CurrentDB = name
}

// Current returns the current database.
func (m *Model) Current() *Database {
	return m.Databases[m.CurrentDB]
}

// DocCount returns the number of documents in the current database.
func (m *Model) DocCount() int {
	n := 0
	for _, c := range m.Current().Collections {
		n += len(c.Docs)
	}
	return n
}

// maxNumericID returns the largest integral numeric _id across every
// database, or 0 if there is none.
func (m *Model) maxNumericID() int64 {
	var hi int64
	for _, db := range m.Databases {
		for _, c := range db.Collections {
			for _, d := range c.Docs {
				id, _ := d.Get("_id")
				if n, ok := integralID(id); ok && n > hi {
					hi = n
				}
			}
		}
	}
	return hi
}

// integralID reports the value of an _id that is a whole number within the
// int64 range.
func integralID(id Value) (int64, bool) {
	n, ok := AsNumber(id)
	if !ok || n != math.Trunc(n) || n >= math.MaxInt64 || n <= math.MinInt64 {
		return 0, false
	}
	return int64(n), true
}
