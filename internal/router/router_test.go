package router

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sink struct {
	mu    sync.Mutex
	lines []string
	ops   []string
}

func (s *sink) Emit(_ engine.Kind, text string) {
	s.mu.Lock()
	s.lines = append(s.lines, text)
	s.mu.Unlock()
}

func (s *sink) RecordActivity(name string) {
	s.mu.Lock()
	s.ops = append(s.ops, name)
	s.mu.Unlock()
}

func newRouter(t *testing.T) (*Router, *clock) {
	t.Helper()
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	r, err := New(Options{Store: bucket.NewMemoryStore(), Now: c.Now})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, c
}

func texts(res engine.Result) []string {
	out := make([]string, 0, len(res.Lines))
	for _, l := range res.Lines {
		out = append(out, l.Text)
	}
	return out
}

func TestRouter_ExecuteDispatchesToActiveEngine(t *testing.T) {
	r, _ := newRouter(t)
	assert.Equal(t, "redis", r.Active())
	assert.Equal(t, "redis> ", r.Prompt())
	assert.Equal(t, []string{"redis> SET a 1", "OK"}, texts(r.Execute("  SET a 1  ")))
	assert.Empty(t, r.Execute("   ").Lines)

	res, err := r.ExecuteOn("cassandra", "DESCRIBE TABLES")
	require.NoError(t, err)
	assert.Equal(t, []string{"cql> DESCRIBE TABLES", "(no tables)"}, texts(res))
	assert.Equal(t, "redis", r.Active(), "ExecuteOn keeps the selection")

	_, err = r.ExecuteOn("postgres", "SELECT 1")
	assert.Error(t, err)
}

func TestRouter_Clear(t *testing.T) {
	r, _ := newRouter(t)
	s := &sink{}
	r.Attach(s)

	res := r.Execute("clear")
	assert.True(t, res.Clear)
	assert.Equal(t, []engine.Line{{
		Kind: engine.KindMuted,
		Text: "redis> Ready. Type HELP for supported commands. Type CLEAR to clear terminal.",
	}}, res.Lines)
	assert.Equal(t, uint64(1), r.Meter().Total("redis"))
	assert.Equal(t, []string{"redis"}, s.ops)
}

func TestRouter_Help(t *testing.T) {
	r, _ := newRouter(t)

	res := r.Execute("HELP")
	require.Greater(t, len(res.Lines), 2)
	assert.Equal(t, engine.Line{Kind: engine.KindPrompt, Text: "redis> HELP"}, res.Lines[0])
	assert.Equal(t, " - Redis - Supported:", res.Lines[1].Text)
	assert.Equal(t, " - SET key value", res.Lines[2].Text)

	assert.Equal(t, []string{"redis> HELP zad", "Usage: ZADD key score member [score member ...]"}, texts(r.Execute("HELP zad")))
	assert.Equal(t, []string{"redis> HELP NOPE", "Unknown command for HELP"}, texts(r.Execute("HELP NOPE")))
	assert.Equal(t, []string{"redis> HELP zad", "Usage: ZADD key score member [score member ...]"}, texts(r.Execute("HELP\tzad")))
	assert.True(t, r.Execute("CLEAR\t\t").Clear)

	_, err := r.Switch("mongo")
	require.NoError(t, err)
	assert.Equal(t, []string{"mongo> HELP find", "See CRUD Guide or Quick Start for examples."}, texts(r.Execute("help find")))
	assert.Equal(t, " - MongoDB - Supported:", r.Execute("HELP").Lines[1].Text)
	assert.Equal(t, uint64(5), r.Meter().Total("redis"))
	assert.Equal(t, uint64(2), r.Meter().Total("mongo"))
}

func TestRouter_Switch(t *testing.T) {
	r, _ := newRouter(t)

	res, err := r.Switch("cassandra")
	require.NoError(t, err)
	assert.Equal(t, []engine.Line{{Kind: engine.KindMuted, Text: "cql> Switched database."}}, res.Lines)
	assert.Equal(t, "cassandra", r.Active())

	res, err = r.Switch("CASSANDRA")
	require.NoError(t, err)
	assert.Empty(t, res.Lines)

	_, err = r.Switch("sqlite")
	assert.Error(t, err)
	assert.Equal(t, "cassandra", r.Active())

	_, err = New(Options{Active: "sqlite"})
	assert.Error(t, err)
}

func TestRouter_SweepAllEngines(t *testing.T) {
	r, c := newRouter(t)
	s := &sink{}
	detach := r.Attach(s)

	r.Execute("SET k v")
	r.Execute("EXPIRE k 1")
	_, err := r.ExecuteOn("mongo", `db.s.insertOne({k: 1, expiresAt: "2020-01-01T00:00:00Z"})`)
	require.NoError(t, err)
	for _, line := range []string{
		"CREATE TABLE t (id int PRIMARY KEY)",
		"INSERT INTO t (id) VALUES (1) USING TTL 1",
	} {
		res, err := r.ExecuteOn("cassandra", line)
		require.NoError(t, err)
		require.NoError(t, res.Err)
	}

	assert.Equal(t, 1, r.Sweep(c.Now()), "the past expiresAt goes first")
	c.Advance(time.Second)
	assert.Equal(t, 2, r.Sweep(c.Now()))
	assert.Equal(t, 0, r.Sweep(c.Now()))
	assert.Equal(t, []string{"Key expired: k"}, s.lines)

	detach()
	r.Execute("SET k v")
	r.Execute("EXPIRE k 1")
	c.Advance(time.Second)
	assert.Equal(t, 1, r.Sweep(c.Now()))
	assert.Len(t, s.lines, 1)
}

func TestRouter_RunSweeperStopsOnCancel(t *testing.T) {
	r, _ := newRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunSweeper(ctx, time.Millisecond) }()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRouter_Stats(t *testing.T) {
	r, _ := newRouter(t)
	r.Execute("SET a 1")
	r.Execute("SET b 2")
	_, err := r.ExecuteOn("mongo", "db.c.insertOne({x: 1})")
	require.NoError(t, err)
	r.Toggles().SetLog(true)

	s := r.Stats()
	assert.Equal(t, "redis", s.Active)
	assert.True(t, s.Toggles.Log)
	require.Len(t, s.Engines, 3)
	assert.Equal(t, EngineStats{Name: "redis", Count: 2, Total: 2}, s.Engines[0])
	assert.Equal(t, "mongo", s.Engines[1].Name)
	assert.Equal(t, 1, s.Engines[1].Count)
	assert.Equal(t, 0, s.Engines[2].Count)
	require.NotEmpty(t, s.Busiest)
	assert.Equal(t, "redis", s.Busiest[0].Engine)
}

func TestRouter_LogAndCap(t *testing.T) {
	r, _ := newRouter(t)
	r.Toggles().SetLog(true)
	r.Execute("SET a 1")

	entries, err := r.Log("redis")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "[redis] SET a 1", entries[0].Line)

	require.NoError(t, r.SetLogCap("mongo", 10))
	b, err := r.ExportEngine("mongo")
	require.NoError(t, err)
	assert.Equal(t, bucket.MinLogCap, b.Settings.LogCap)

	_, err = r.Log("nope")
	assert.Error(t, err)
}

func TestRouter_ArchiveRoundTrip(t *testing.T) {
	r, _ := newRouter(t)
	r.Toggles().SetSnapshots(true)
	r.Execute("SET a 1")
	_, err := r.ExecuteOn("mongo", "db.c.insertOne({x: 1})")
	require.NoError(t, err)
	_, err = r.ExecuteOn("cassandra", "CREATE TABLE t (id int PRIMARY KEY)")
	require.NoError(t, err)

	a, err := r.Export()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, a))

	r.Toggles().SetSnapshots(false)
	r.Execute("FLUSHALL")
	r.ExecuteOn("mongo", "db.c.drop()")
	r.ExecuteOn("cassandra", "DROP TABLE t")

	back, err := ReadArchive(&buf)
	require.NoError(t, err)
	require.NoError(t, r.Import(back))

	assert.True(t, r.Toggles().SnapshotsEnabled())
	s := r.Stats()
	assert.Equal(t, 1, s.Engines[0].Count)
	assert.Equal(t, 1, s.Engines[1].Count)
	res, _ := r.ExecuteOn("cassandra", "DESCRIBE TABLES")
	assert.Equal(t, "t", res.Lines[1].Text)
}

func TestRouter_ImportRejectsBadArchives(t *testing.T) {
	r, _ := newRouter(t)
	r.Execute("SET keep 1")

	a, err := r.Export()
	require.NoError(t, err)

	a.FormatVersion = 1
	err = r.Import(a)
	assert.True(t, errors.Is(err, bucket.ErrIncompatibleFormat))
	assert.Contains(t, err.Error(), "Invalid formatVersion")

	a.FormatVersion = bucket.FormatVersion
	a.Mongo = nil
	err = r.Import(a)
	assert.True(t, errors.Is(err, bucket.ErrInvalid))
	assert.Contains(t, err.Error(), "Missing sections")

	_, err = ReadArchive(bytes.NewBufferString(`{"formatVersion": 3}`))
	assert.True(t, errors.Is(err, bucket.ErrIncompatibleFormat))
	_, err = ReadArchive(bytes.NewBufferString(`not json`))
	assert.True(t, errors.Is(err, bucket.ErrInvalid))

	assert.Equal(t, 1, r.Stats().Engines[0].Count)
}

func TestRouter_Snapshots(t *testing.T) {
	r, _ := newRouter(t)
	assert.Empty(t, r.Snapshots())

	r.Toggles().SetSnapshots(true)
	r.Toggles().SetThreshold(2)
	r.Execute("SET a 1")
	r.Execute("GET a")
	assert.Empty(t, r.Snapshots(), "reads do not count towards the threshold")
	r.Execute("SET b 2")
	require.Len(t, r.Snapshots(), 1)
	assert.Equal(t, int64(1_700_000_000_000), r.Snapshots()[0].T)
}
