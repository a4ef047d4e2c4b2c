package columnar

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
)

// BucketName is the persisted bucket of the columnar engine.
const BucketName = "cassandra"

var helpList = []string{
	"CREATE KEYSPACE ks WITH replication = {...};",
	"CREATE KEYSPACE IF NOT EXISTS ks;",
	"USE ks;",
	"CREATE TABLE t (col type, ..., PRIMARY KEY (pk));",
	"CREATE TABLE t (pk type PRIMARY KEY, col type, ...);",
	"CREATE INDEX ON t (column);",
	"INSERT INTO t (cols...) VALUES (...) [USING TTL <sec>];",
	"SELECT cols FROM t WHERE pk = ...;",
	"SELECT cols FROM t WHERE pk IN (...);",
	"SELECT * FROM t LIMIT n;",
	"...non-PK requires ALLOW FILTERING unless indexed.",
	"DELETE FROM t WHERE pk = ...;",
	"ALTER TABLE t ADD col type;",
	"DROP TABLE [IF EXISTS] t;",
	"TRUNCATE t;",
	"DESCRIBE TABLES;",
}

// Engine is the columnar engine. It is NOT safe for concurrent use; the
// router serializes Execute and Sweep.
type Engine struct {
	*engine.Base
	model *Model
}

// New loads or creates the cassandra bucket.
func New(deps engine.Deps) (*Engine, error) {
	base, data, err := engine.NewBase(BucketName, deps, initialModel, false)
	if err != nil {
		return nil, err
	}
	model, err := decodeModel(data)
	if err != nil {
		return nil, err
	}
	return &Engine{Base: base, model: model}, nil
}

// Model exposes the data model.
func (e *Engine) Model() *Model { return e.model }

// Count returns the number of rows in the current keyspace.
func (e *Engine) Count() int { return e.model.RowCount() }

// Help returns the supported statements.
func (e *Engine) Help(string) []string {
	return append([]string{"Cassandra - Supported:"}, helpList...)
}

// Execute runs one CQL statement.
func (e *Engine) Execute(line string) engine.Result {
	var res engine.Result
	res.Add(engine.KindPrompt, e.Prompt()+line)

	if strings.TrimSpace(line) != "" {
		if err := e.execute(line, &res); err != nil {
			res.Fail(err)
		}
	}
	e.Activity()
	return res
}

func (e *Engine) execute(line string, res *engine.Result) error {
	stmt, err := parseStatement(line)
	if err != nil {
		return err
	}
	if err := e.dispatch(stmt, res); err != nil {
		return err
	}
	e.Persist(e.model)
	return nil
}

func tableNotFound(name string) error {
	return engine.ArgumentError("Table %s not found", name)
}

func (e *Engine) table(name string) (*Table, error) {
	t, ok := e.model.Current().Tables[name]
	if !ok {
		return nil, tableNotFound(name)
	}
	return t, nil
}

// dispatch executes stmt against the model and appends its output to res.
func (e *Engine) dispatch(stmt statement, res *engine.Result) error {
	switch s := stmt.(type) {
	case createKeyspaceStmt:
		if _, exists := e.model.Keyspaces[s.name]; exists && !s.ifNotExists {
			return engine.ArgumentError("Keyspace %s already exists", s.name)
		}
		ks := e.model.ensure(s.name)
		if s.replication != "" {
			ks.Replication = s.replication
		}
		res.Print("Keyspace " + s.name + " created.")
		entry := "CREATE KEYSPACE " + s.name
		if s.replication != "" {
			entry += " WITH replication = " + s.replication
		}
		e.AppendLog(entry)
	case useStmt:
		e.model.Use(s.keyspace)
		res.Print("Using keyspace " + s.keyspace)
	case createTableStmt:
		return e.createTable(s, res)
	case createIndexStmt:
		t, err := e.table(s.table)
		if err != nil {
			return err
		}
		if _, ok := t.Columns.Lookup(s.column); !ok {
			return engine.ArgumentError("Undefined column name %s", s.column)
		}
		if !t.HasIndex(s.column) {
			t.Indexes = append(t.Indexes, s.column)
		}
		res.Print(fmt.Sprintf("Index created on %s(%s).", s.table, s.column))
		e.AppendLog(fmt.Sprintf("CREATE INDEX ON %s (%s)", s.table, s.column))
	case insertStmt:
		return e.insert(s, res)
	case deleteStmt:
		t, err := e.table(s.table)
		if err != nil {
			return err
		}
		if s.field != t.PrimaryKey {
			return engine.Errorf(engine.ErrUnsupportedDelete, "Only primary-key deletes supported")
		}
		key, err := cast(t.TypeOf(s.field), s.field, s.raw)
		if err != nil {
			return err
		}
		if t.DeleteRow(key.String()) {
			res.Print("1 row deleted.")
		} else {
			res.Print("0 rows deleted.")
		}
		e.AppendLog(fmt.Sprintf("DELETE FROM %s WHERE %s=%s", s.table, s.field, s.raw))
	case alterAddStmt:
		t, err := e.table(s.table)
		if err != nil {
			return err
		}
		if _, exists := t.Columns.Lookup(s.column); exists {
			return engine.ArgumentError("Invalid column name %s because it conflicts with an existing column", s.column)
		}
		t.Columns = append(t.Columns, Column{Name: s.column, Type: s.typ})
		res.Print("Altered table " + s.table + ".")
		e.AppendLog(fmt.Sprintf("ALTER TABLE %s ADD %s %s", s.table, s.column, s.typ))
	case dropTableStmt:
		tables := e.model.Current().Tables
		if _, ok := tables[s.table]; !ok {
			if s.ifExists {
				res.Print("Table " + s.table + " does not exist.")
				return nil
			}
			return tableNotFound(s.table)
		}
		delete(tables, s.table)
		res.Print("Table " + s.table + " dropped.")
		e.AppendLog("DROP TABLE " + s.table)
	case truncateStmt:
		t, err := e.table(s.table)
		if err != nil {
			return err
		}
		clear(t.Rows)
		clear(t.TTL)
		res.Print("Table " + s.table + " truncated.")
		e.AppendLog("TRUNCATE " + s.table)
	case describeTablesStmt:
		names := make([]string, 0, len(e.model.Current().Tables))
		for name := range e.model.Current().Tables {
			names = append(names, name)
		}
		if len(names) == 0 {
			res.Print("(no tables)")
			return nil
		}
		sort.Strings(names)
		res.Print(strings.Join(names, "  "))
	case selectStmt:
		return e.query(s, res)
	default:
		return unsupported()
	}
	return nil
}

// createTable registers the table before validating its definitions; a
// failing clause leaves the partly defined table in place.
func (e *Engine) createTable(s createTableStmt, res *engine.Result) error {
	tables := e.model.Current().Tables
	if _, exists := tables[s.name]; exists {
		if s.ifNotExists {
			res.Print("Table " + s.name + " already exists.")
			return nil
		}
		return engine.ArgumentError("Table %s already exists", s.name)
	}
	t := newTable()
	setKey := func(col string) error {
		if t.PrimaryKey != "" {
			return engine.ArgumentError("Multiple PRIMARY KEY definitions")
		}
		t.PrimaryKey = col
		return nil
	}
	for _, def := range s.defs {
		def = strings.TrimSpace(def)
		if m := primaryKeyClause.FindStringSubmatch(def); m != nil {
			if err := setKey(m[1]); err != nil {
				return err
			}
			continue
		}
		m := inlineKeyColumn.FindStringSubmatch(def)
		if m != nil {
			if err := setKey(m[1]); err != nil {
				return err
			}
		} else if m = columnDef.FindStringSubmatch(def); m == nil {
			return engine.ArgumentError("Bad column definition: %s", def)
		}
		typ, _ := parseType(m[2])
		t.Columns = append(t.Columns, Column{Name: m[1], Type: typ})
	}
	if t.PrimaryKey == "" {
		return engine.Errorf(engine.ErrMissingPrimaryKey, "PRIMARY KEY required")
	}
	tables[s.name] = t
	res.Print("Table " + s.name + " created.")
	e.AppendLog("CREATE TABLE " + s.name + " (...)")
	return nil
}

// insert writes one row, merging into an existing row with the same key.
func (e *Engine) insert(s insertStmt, res *engine.Result) error {
	t, err := e.table(s.table)
	if err != nil {
		return err
	}
	if len(s.columns) != len(s.values) {
		return engine.ArgumentError("Unmatched column names/values")
	}
	if t.PrimaryKey == "" {
		return engine.Errorf(engine.ErrMissingPrimaryKey, "PRIMARY KEY not set")
	}

	row := make(Row, len(s.columns))
	for i, col := range s.columns {
		typ, ok := t.Columns.Lookup(col)
		if !ok {
			return engine.ArgumentError("Undefined column name %s", col)
		}
		cell, err := cast(typ, col, s.values[i])
		if err != nil {
			return err
		}
		row[col] = cell
	}
	pk, ok := row[t.PrimaryKey]
	if !ok {
		return engine.Errorf(engine.ErrMissingPrimaryKey, "Missing PRIMARY KEY part %s", t.PrimaryKey)
	}

	key := pk.String()
	existing, ok := t.Rows[key]
	if !ok {
		existing = make(Row, len(row))
		t.Rows[key] = existing
	}
	for col, cell := range row {
		existing[col] = cell
	}
	entry := fmt.Sprintf("INSERT INTO %s (...)", s.table)
	if s.ttl != "" {
		sec, err := strconv.ParseInt(s.ttl, 10, 64)
		if err != nil {
			return engine.ArgumentError("Invalid TTL %s", s.ttl)
		}
		t.TTL[key] = engine.ExpiryAt(e.Now().UnixMilli(), sec)
		entry += " USING TTL " + s.ttl
	}
	res.Print("1 row applied.")
	e.AppendLog(entry)
	return nil
}

// Sweep removes every row whose TTL is at or before now, across all
// keyspaces.
func (e *Engine) Sweep(now time.Time) int {
	cutoff := now.UnixMilli()
	removed := 0
	for _, ks := range e.model.Keyspaces {
		for _, t := range ks.Tables {
			for key, at := range t.TTL {
				if at > cutoff {
					continue
				}
				if t.DeleteRow(key) {
					removed++
				}
			}
		}
	}
	if removed > 0 {
		e.Persist(e.model)
		e.Logger().Debug("expired rows", zap.Int("count", removed))
	}
	return removed
}

// Export returns a copy of the cassandra bucket.
func (e *Engine) Export() (*bucket.Bucket, error) {
	return e.ExportBucket(e.model)
}

// Import replaces the cassandra bucket.
func (e *Engine) Import(b *bucket.Bucket) error {
	return e.ImportBucket(b, func(data json.RawMessage) error {
		m, err := decodeModel(data)
		if err != nil {
			return err
		}
		e.model = m
		return nil
	})
}
