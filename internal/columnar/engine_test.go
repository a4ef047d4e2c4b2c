package columnar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	*Engine
	clock *clock
	deps  engine.Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	deps := engine.Deps{
		Store:   bucket.NewMemoryStore(),
		Toggles: engine.NewToggles(),
		Now:     c.Now,
	}
	e, err := New(deps)
	require.NoError(t, err)
	return &harness{Engine: e, clock: c, deps: deps}
}

func (h *harness) run(t *testing.T, line string) []string {
	t.Helper()
	res := h.Execute(line)
	require.NotEmpty(t, res.Lines)
	assert.Equal(t, engine.Line{Kind: engine.KindPrompt, Text: "cql> " + line}, res.Lines[0])
	require.NoError(t, res.Err, "%s", line)
	out := make([]string, 0, len(res.Lines)-1)
	for _, l := range res.Lines[1:] {
		out = append(out, l.Text)
	}
	return out
}

func (h *harness) fail(t *testing.T, line string) error {
	t.Helper()
	res := h.Execute(line)
	require.Error(t, res.Err, "%s", line)
	assert.Equal(t, engine.Line{Kind: engine.KindError, Text: "(error) " + res.Err.Error()}, res.Lines[len(res.Lines)-1])
	return res.Err
}

func (h *harness) users(t *testing.T) {
	t.Helper()
	h.run(t, "CREATE KEYSPACE app WITH replication = {'class':'SimpleStrategy','replication_factor':1};")
	h.run(t, "USE app;")
	h.run(t, "CREATE TABLE users (id int, name text, city text, joined timestamp, PRIMARY KEY (id));")
}

func TestEngine_KeyspaceAndTable(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"Keyspace app created."}, h.run(t, "CREATE KEYSPACE app WITH replication = {'class':'SimpleStrategy'};"))
	assert.Equal(t, []string{"Using keyspace app"}, h.run(t, "USE app;"))
	assert.Equal(t, []string{"Table users created."}, h.run(t, "CREATE TABLE users (id int PRIMARY KEY, name text);"))

	table := h.Model().Current().Tables["users"]
	require.NotNil(t, table)
	assert.Equal(t, "id", table.PrimaryKey)
	assert.Equal(t, []string{"id", "name"}, table.Columns.Names())
	assert.Equal(t, "{'class':'SimpleStrategy'}", h.Model().Keyspaces["app"].Replication)

	err := h.fail(t, "CREATE KEYSPACE app")
	assert.Equal(t, "Keyspace app already exists", err.Error())
	h.run(t, "CREATE KEYSPACE IF NOT EXISTS app")

	err = h.fail(t, "CREATE TABLE users (id int, PRIMARY KEY (id))")
	assert.Equal(t, "Table users already exists", err.Error())
	assert.Equal(t, []string{"Table users already exists."}, h.run(t, "CREATE TABLE IF NOT EXISTS users (id int, PRIMARY KEY (id))"))

	assert.Equal(t, []string{"users"}, h.run(t, "DESCRIBE TABLES"))
}

func TestEngine_CreateTableErrors(t *testing.T) {
	h := newHarness(t)
	err := h.fail(t, "CREATE TABLE t (id int, name text)")
	assert.True(t, errors.Is(err, engine.ErrMissingPrimaryKey))
	assert.Equal(t, "PRIMARY KEY required", err.Error())

	err = h.fail(t, "CREATE TABLE t2 (id int, blob bytes, PRIMARY KEY (id))")
	assert.Equal(t, "Bad column definition: blob bytes", err.Error())
	assert.NotContains(t, h.Model().Current().Tables, "t2")

	err = h.fail(t, "CREATE TABLE t3 (id int PRIMARY KEY, n int, PRIMARY KEY (n))")
	assert.Equal(t, "Multiple PRIMARY KEY definitions", err.Error())
	assert.Empty(t, h.Model().Current().Tables, "failed definitions register nothing")

	assert.Equal(t, []string{"Table t2 created."}, h.run(t, "CREATE TABLE t2 (id int, blob text, PRIMARY KEY (id))"))
}

func TestEngine_InsertMerges(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "ALTER TABLE users ADD age int;")

	assert.Equal(t, []string{"1 row applied."}, h.run(t, "INSERT INTO users (id, name) VALUES (1, 'Ada');"))
	h.run(t, "INSERT INTO users (id, age) VALUES (1, 36);")

	table := h.Model().Current().Tables["users"]
	require.Len(t, table.Rows, 1)
	assert.Equal(t, Row{"id": IntCell(1), "name": TextCell("Ada"), "age": IntCell(36)}, table.Rows["1"])

	assert.Equal(t, []string{
		"id | name | age",
		"1 | Ada | 36",
		"(1 row)",
	}, h.run(t, "SELECT id, name, age FROM users WHERE id = 1;"))
}

func TestEngine_InsertErrors(t *testing.T) {
	h := newHarness(t)
	h.users(t)

	err := h.fail(t, "INSERT INTO nope (id) VALUES (1)")
	assert.Equal(t, "Table nope not found", err.Error())
	err = h.fail(t, "INSERT INTO users (id, name) VALUES (1)")
	assert.Equal(t, "Unmatched column names/values", err.Error())
	err = h.fail(t, "INSERT INTO users (name) VALUES ('x')")
	assert.True(t, errors.Is(err, engine.ErrMissingPrimaryKey))
	err = h.fail(t, "INSERT INTO users (id, email) VALUES (1, 'x')")
	assert.Equal(t, "Undefined column name email", err.Error())
	err = h.fail(t, "INSERT INTO users (id) VALUES ('abc')")
	assert.True(t, errors.Is(err, engine.ErrCommandArgument))
	assert.Equal(t, 0, h.Count())
}

func TestEngine_SelectPlanner(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "INSERT INTO users (id, name, city) VALUES (2, 'Bo', 'Oslo');")
	h.run(t, "INSERT INTO users (id, name, city) VALUES (10, 'Cy', 'Rome');")
	h.run(t, "INSERT INTO users (id, name, city) VALUES (1, 'Ada', 'Oslo');")

	assert.Equal(t, []string{
		"id | name | city | joined",
		"1 | Ada | Oslo | null",
		"2 | Bo | Oslo | null",
		"10 | Cy | Rome | null",
		"(3 rows)",
	}, h.run(t, "SELECT * FROM users;"))

	assert.Equal(t, []string{"name", "Ada", "(1 row)"}, h.run(t, "SELECT name FROM users LIMIT 1"))
	assert.Equal(t, []string{"name", "Cy", "Bo", "(2 rows)"}, h.run(t, "SELECT name FROM users WHERE id IN (10, 2, 99)"))
	assert.Equal(t, []string{"(0 rows)"}, h.run(t, "SELECT name FROM users WHERE id = 42"))

	err := h.fail(t, "SELECT name FROM users WHERE city = 'Oslo'")
	assert.True(t, errors.Is(err, engine.ErrFilteringRequired))
	assert.Equal(t, "Non-primary-key queries require ALLOW FILTERING (or an index)", err.Error())

	byCity := []string{"name", "Ada", "Bo", "(2 rows)"}
	assert.Equal(t, byCity, h.run(t, "SELECT name FROM users WHERE city = 'Oslo' ALLOW FILTERING"))

	assert.Equal(t, []string{"Index created on users(city)."}, h.run(t, "CREATE INDEX ON users (city);"))
	assert.Equal(t, byCity, h.run(t, "SELECT name FROM users WHERE city = 'Oslo'"))
	assert.Equal(t, []string{"name", "Ada", "(1 row)"}, h.run(t, "SELECT name FROM users WHERE city IN ('Oslo') LIMIT 1"))

	err = h.fail(t, "SELECT * FROM missing")
	assert.Equal(t, "Table missing not found", err.Error())

	err = h.fail(t, "SELECT name, email FROM users WHERE id = 42")
	assert.True(t, errors.Is(err, engine.ErrCommandArgument))
	assert.Equal(t, "Undefined column name email", err.Error())
}

func TestEngine_TimestampColumns(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "INSERT INTO users (id, joined) VALUES (1, '2024-01-02T03:04:05Z')")
	h.run(t, "INSERT INTO users (id, joined) VALUES (2, 1704164645000)")
	assert.Equal(t, []string{"id", "1", "2", "(2 rows)"},
		h.run(t, "SELECT id FROM users WHERE joined = '2024-01-02T03:04:05Z' ALLOW FILTERING"))
}

func TestEngine_Delete(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "INSERT INTO users (id, name) VALUES (1, 'Ada') USING TTL 60;")

	err := h.fail(t, "DELETE FROM users WHERE name = 'Ada'")
	assert.True(t, errors.Is(err, engine.ErrUnsupportedDelete))
	assert.Equal(t, "Only primary-key deletes supported", err.Error())

	assert.Equal(t, []string{"1 row deleted."}, h.run(t, "DELETE FROM users WHERE id = 1;"))
	assert.Equal(t, []string{"0 rows deleted."}, h.run(t, "DELETE FROM users WHERE id = 1;"))
	assert.Empty(t, h.Model().Current().Tables["users"].TTL)
}

func TestEngine_DropAndTruncate(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "INSERT INTO users (id) VALUES (1)")
	assert.Equal(t, []string{"Table users truncated."}, h.run(t, "TRUNCATE users"))
	assert.Equal(t, 0, h.Count())

	assert.Equal(t, []string{"Table users dropped."}, h.run(t, "DROP TABLE users"))
	assert.Equal(t, []string{"(no tables)"}, h.run(t, "DESCRIBE TABLES"))
	assert.Equal(t, "Table users not found", h.fail(t, "DROP TABLE users").Error())
	h.run(t, "DROP TABLE IF EXISTS users")
}

func TestEngine_UnsupportedStatementKeepsRunning(t *testing.T) {
	h := newHarness(t)
	err := h.fail(t, "GRANT ALL ON KEYSPACE x TO bob")
	assert.True(t, errors.Is(err, engine.ErrUnsupportedStatement))
	h.run(t, "USE x")
	assert.Equal(t, []string{}, h.run(t, "   "))
}

func TestEngine_SweepExpiresRows(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "INSERT INTO users (id) VALUES (1) USING TTL 1")
	h.run(t, "INSERT INTO users (id) VALUES (2) USING TTL 5")
	h.run(t, "INSERT INTO users (id) VALUES (3)")

	assert.Equal(t, 0, h.Sweep(h.clock.Now()))
	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.Sweep(h.clock.Now()))
	assert.Equal(t, 0, h.Sweep(h.clock.Now()), "a second pass removes nothing")

	h.run(t, "INSERT INTO users (id, name) VALUES (2, 'renewed') USING TTL 10")
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 0, h.Sweep(h.clock.Now()))
	assert.Equal(t, 2, h.Count())
}

func TestEngine_HugeTTLNeverExpires(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "INSERT INTO users (id) VALUES (1) USING TTL 9223372036854775807")
	h.run(t, "INSERT INTO users (id) VALUES (2) USING TTL 9300000000000000")
	h.clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, h.Sweep(h.clock.Now()))
	assert.Equal(t, 2, h.Count())
}

func TestEngine_LogWhenEnabled(t *testing.T) {
	h := newHarness(t)
	h.deps.Toggles.SetLog(true)
	h.users(t)
	h.run(t, "INSERT INTO users (id) VALUES (1) USING TTL 9")
	h.run(t, "SELECT * FROM users")
	h.run(t, "DELETE FROM users WHERE id = 1")

	var lines []string
	for _, e := range h.Log() {
		lines = append(lines, e.Line)
	}
	assert.Equal(t, []string{
		"[cassandra] DELETE FROM users WHERE id=1",
		"[cassandra] INSERT INTO users (...) USING TTL 9",
		"[cassandra] CREATE TABLE users (...)",
		"[cassandra] CREATE KEYSPACE app WITH replication = {'class':'SimpleStrategy','replication_factor':1}",
	}, lines)
}

func TestEngine_PersistAndRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.users(t)
	h.run(t, "CREATE INDEX ON users (city)")
	h.run(t, "INSERT INTO users (id, name, city) VALUES (7, 'Ada', 'Oslo') USING TTL 30")

	again, err := New(h.deps)
	require.NoError(t, err)
	assert.Equal(t, "app", again.Model().CurrentKs)
	assert.Equal(t, 1, again.Count())
	tbl := again.Model().Current().Tables["users"]
	assert.True(t, tbl.HasIndex("city"))
	assert.Equal(t, []string{"id", "name", "city", "joined"}, tbl.Columns.Names())
	assert.Equal(t, h.clock.Now().UnixMilli()+30_000, tbl.TTL["7"])

	exported, err := h.Export()
	require.NoError(t, err)
	h.run(t, "DROP TABLE users")
	require.NoError(t, h.Import(exported))
	assert.Equal(t, 1, h.Count())
	assert.Equal(t, Row{"id": IntCell(7), "name": TextCell("Ada"), "city": TextCell("Oslo")}, h.Model().Current().Tables["users"].Rows["7"])

	exported.FormatVersion = 1
	assert.True(t, errors.Is(h.Import(exported), bucket.ErrIncompatibleFormat))
}
