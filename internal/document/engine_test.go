package document

import (
	"errors"
	"strings"
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
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	deps := engine.Deps{
		Store:   bucket.NewMemoryStore(),
		Toggles: engine.NewToggles(),
		Now:     c.Now,
	}
	e, err := New(deps)
	require.NoError(t, err)
	return &harness{Engine: e, clock: c, deps: deps}
}

// run executes line and returns the output lines without the prompt echo.
func (h *harness) run(t *testing.T, line string) []engine.Line {
	t.Helper()
	res := h.Execute(line)
	require.NotEmpty(t, res.Lines)
	assert.Equal(t, engine.Line{Kind: engine.KindPrompt, Text: "mongo> " + line}, res.Lines[0])
	require.NoError(t, res.Err, "%s", line)
	return res.Lines[1:]
}

// value runs line and decodes its single JSON output.
func (h *harness) value(t *testing.T, line string) Value {
	t.Helper()
	out := h.run(t, line)
	require.NotEmpty(t, out)
	v, err := Decode([]byte(out[len(out)-1].Text))
	require.NoError(t, err)
	return v
}

func (h *harness) fail(t *testing.T, line string) error {
	t.Helper()
	res := h.Execute(line)
	require.Error(t, res.Err, "%s", line)
	last := res.Lines[len(res.Lines)-1]
	assert.Equal(t, engine.KindError, last.Kind)
	assert.Equal(t, "(error) "+res.Err.Error(), last.Text)
	return res.Err
}

func TestEngine_InsertAssignsID(t *testing.T) {
	h := newHarness(t)
	out := h.run(t, `db.people.insertOne({name: "A"})`)
	require.Len(t, out, 1)
	assert.Equal(t, engine.KindOK, out[0].Kind)
	assert.Equal(t, "{\n  \"acknowledged\": true,\n  \"insertedId\": 1001\n}", out[0].Text)

	found := h.value(t, `db.people.find({name: "A"})`)
	assert.Equal(t, `[{"name":"A","_id":1001}]`, Encode(found))

	h.run(t, `db.people.insertOne({name: "B"})`)
	h.run(t, `db.people.deleteOne({name: "B"})`)
	res := h.value(t, `db.people.insertOne({name: "C"})`)
	id, _ := asObject(res).Get("insertedId")
	assert.Equal(t, Number(1003), id, "ids are never reused")
}

func TestEngine_InsertKeepsExplicitIDAndRejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertOne({_id: "x", v: 1})`)
	err := h.fail(t, `db.c.insertOne({_id: "x", v: 2})`)
	assert.Equal(t, `E11000 duplicate key error collection: default.c index: _id_ dup key: { _id: "x" }`, err.Error())

	err = h.fail(t, `db.c.insertMany([{_id: 5}, {_id: 5}])`)
	assert.True(t, errors.Is(err, engine.ErrCommandArgument))
	assert.Equal(t, "1", h.run(t, "db.c.count()")[0].Text)
}

func TestEngine_GeneratedIDsSkipExplicitOnes(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertOne({_id: 1001, a: 0})`)
	h.run(t, `db.c.insertOne({a: 1})`)
	h.run(t, `db.c.insertMany([{_id: 1005}, {a: 2}])`)
	assert.Equal(t, `[{"_id":1001,"a":0},{"a":1,"_id":1002},{"_id":1005},{"a":2,"_id":1006}]`,
		Encode(h.value(t, `db.c.find({})`)))

	h.run(t, `db.c.updateOne({a: 2}, {$set: {_id: 1007}})`)
	res := h.value(t, `db.c.insertOne({a: 3})`)
	id, _ := asObject(res).Get("insertedId")
	assert.Equal(t, Number(1008), id, "an _id already in the collection is skipped")
}

func TestEngine_InsertMany(t *testing.T) {
	h := newHarness(t)
	res := h.value(t, `db.c.insertMany([{a: 1}, {a: 2}, {a: 3}])`)
	assert.Equal(t, `{"acknowledged":true,"insertedCount":3}`, Encode(res))
	assert.Equal(t, 3, h.Count())

	assert.Equal(t, "insertMany requires an array", h.fail(t, `db.c.insertMany({a: 1})`).Error())
	assert.Equal(t, "insertOne requires a document", h.fail(t, `db.c.insertOne(5)`).Error())
}

func TestEngine_FindProjectionLimitAndHint(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertMany([{_id: 1, n: 1, k: "a"}, {_id: 2, n: 2, k: "b"}, {_id: 3, n: 3, k: "c"}])`)
	h.run(t, `db.c.createIndex({n: 1})`)

	out := h.run(t, `db.c.find({n: {$gte: 2}}, {k: 1, _id: 0}).limit(1)`)
	require.Len(t, out, 2)
	assert.Equal(t, engine.Line{Kind: engine.KindMuted, Text: "(eligible index: n)"}, out[0])
	v, err := Decode([]byte(out[1].Text))
	require.NoError(t, err)
	assert.Equal(t, `[{"k":"b"}]`, Encode(v))

	assert.Equal(t, `{"_id":3,"n":3,"k":"c"}`, Encode(h.value(t, `db.c.findOne({k: "c"})`)))
	assert.Equal(t, "null", h.run(t, `db.c.findOne({k: "z"})`)[0].Text)
	assert.Equal(t, "[]", h.run(t, `db.c.find({k: "z"})`)[0].Text)
}

func TestEngine_Updates(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertMany([{_id: 1, n: 1}, {_id: 2, n: 1}])`)

	res := h.value(t, `db.c.updateOne({n: 1}, {$inc: {n: 5}})`)
	assert.Equal(t, `{"acknowledged":true,"matchedCount":1,"modifiedCount":1}`, Encode(res))
	assert.Equal(t, `[{"_id":1,"n":6},{"_id":2,"n":1}]`, Encode(h.value(t, "db.c.find()")))

	res = h.value(t, `db.c.updateMany({}, {$set: {tag: "x"}})`)
	assert.Equal(t, `{"acknowledged":true,"matchedCount":2,"modifiedCount":2}`, Encode(res))

	res = h.value(t, `db.c.updateMany({}, {$set: {tag: "x"}})`)
	assert.Equal(t, `{"acknowledged":true,"matchedCount":2,"modifiedCount":0}`, Encode(res))

	out := h.run(t, `db.c.updateOne({n: 99}, {$set: {a: 1}})`)
	assert.Equal(t, engine.KindPlain, out[0].Kind)

	err := h.fail(t, `db.c.updateOne({_id: 1}, {$inc: {n: "x"}})`)
	assert.Equal(t, `Cannot increment with non-numeric argument: {n: "x"}`, err.Error())
}

func TestEngine_Deletes(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertMany([{k: 1}, {k: 1}, {k: 2}])`)

	res := h.value(t, `db.c.deleteOne({k: 1})`)
	assert.Equal(t, `{"acknowledged":true,"deletedCount":1}`, Encode(res))
	res = h.value(t, `db.c.deleteMany({})`)
	assert.Equal(t, `{"acknowledged":true,"deletedCount":2}`, Encode(res))

	out := h.run(t, `db.c.deleteOne({})`)
	assert.Equal(t, engine.KindPlain, out[0].Kind)
	assert.Equal(t, 0, h.Count())
}

func TestEngine_CountIndexesAndDrop(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertMany([{k: 1}, {k: 2}, {k: 2}])`)
	assert.Equal(t, "3", h.run(t, "db.c.count()")[0].Text)
	assert.Equal(t, "2", h.run(t, "db.c.countDocuments({k: 2})")[0].Text)

	res := h.value(t, `db.c.createIndex({k: -1})`)
	assert.Equal(t, `{"createdCollectionAutomatically":false,"numIndexesAfter":1}`, Encode(res))
	h.run(t, `db.c.createIndex({k: 1})`)
	assert.Equal(t, `[{"key":{"_id":1},"name":"_id_"},{"key":{"k":-1},"name":"k_-1"}]`, Encode(h.value(t, "db.c.getIndexes()")))

	assert.Equal(t, "createIndex requires {field:1}", h.fail(t, "db.c.createIndex({})").Error())

	assert.Equal(t, "true", h.run(t, "db.c.drop()")[0].Text)
	assert.Equal(t, 0, h.Count())
}

func TestEngine_Aggregate(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.s.insertMany([{g: "x", v: 1}, {g: "x", v: 3}, {g: "y", v: 5}])`)

	got := h.value(t, `db.s.aggregate([{$group: {_id: "$g", total: {$sum: "$v"}}}])`)
	assert.Equal(t, `[{"_id":"x","total":4},{"_id":"y","total":5}]`, Encode(got))

	got = h.value(t, `db.s.aggregate([{$sort: {v: -1}}]).limit(1)`)
	assert.Equal(t, `[{"g":"y","v":5,"_id":1003}]`, Encode(got))

	got = h.value(t, `db.s.aggregate("nonsense")`)
	assert.Len(t, got, 3, "a non-array pipeline passes documents through")

	err := h.fail(t, `db.s.aggregate([{$nope: 1}])`)
	assert.Equal(t, "Unrecognized pipeline stage name: '$nope'", err.Error())
}

func TestEngine_UseSwitchesDatabase(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertOne({a: 1})`)
	out := h.run(t, "use shop")
	assert.Equal(t, "switched to db shop", out[0].Text)
	assert.Equal(t, 0, h.Count())
	assert.Equal(t, "[]", h.run(t, "db.c.find()")[0].Text)

	h.run(t, "use default")
	assert.Equal(t, 1, h.Count())
}

func TestEngine_Errors(t *testing.T) {
	h := newHarness(t)
	err := h.fail(t, "show collections")
	assert.True(t, errors.Is(err, engine.ErrParse))

	err = h.fail(t, "db.c.mapReduce()")
	assert.True(t, errors.Is(err, engine.ErrUnknownCommand))
	assert.Equal(t, "Unknown operation: mapReduce", err.Error())

	err = h.fail(t, "db.c.find({a: )")
	assert.True(t, errors.Is(err, engine.ErrParse))

	h.run(t, `db.c.insertOne({a: 1})`)
}

func TestEngine_OperationNamesAreCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.INSERTONE({a: 1})`)
	assert.Equal(t, "1", h.run(t, "db.c.Count()")[0].Text)
}

func TestEngine_LogWhenEnabled(t *testing.T) {
	h := newHarness(t)
	h.deps.Toggles.SetLog(true)

	h.run(t, `db.c.insertOne({_id: 1, a: 1})`)
	h.run(t, `db.c.find()`)
	h.run(t, `db.c.updateOne({a: 9}, {$set: {b: 1}})`)
	h.run(t, `db.c.updateOne({a: 1}, {$set: {b: 1}})`)
	h.run(t, `db.c.deleteOne({_id: 1})`)

	var lines []string
	for _, e := range h.Log() {
		lines = append(lines, e.Line)
	}
	assert.Equal(t, []string{
		`[mongo] db.c.deleteOne({"_id":1})`,
		`[mongo] db.c.updateOne({"a":1},{"$set":{"b":1}})`,
		`[mongo] db.c.insertOne({"_id":1,"a":1})`,
	}, lines)
}

func TestEngine_SweepKeepsFarFutureNumericExpiry(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertOne({_id: 5, expiresAt: 1e20})`)
	h.run(t, `db.c.insertOne({_id: 6, expiresAt: -1e20})`)
	assert.Equal(t, 1, h.Sweep(h.clock.Now()))
	assert.Equal(t, `[{"_id":5,"expiresAt":100000000000000000000}]`, Encode(h.value(t, `db.c.find({})`)))
}

func TestEngine_SweepExpiresDocuments(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	h.run(t, `db.s.insertOne({k: "past", expiresAt: "2024-05-01T11:59:59Z"})`)
	h.run(t, `db.s.insertOne({k: "num", expiresAt: `+itoa(now.UnixMilli())+`})`)
	h.run(t, `db.s.insertOne({k: "future", expiresAt: "2024-05-01T12:00:05Z"})`)
	h.run(t, `db.s.insertOne({k: "bad", expiresAt: "not a date"})`)
	h.run(t, "use other")
	h.run(t, `db.t.insertOne({expiresAt: 1})`)

	assert.Equal(t, 3, h.Sweep(now))
	assert.Equal(t, 0, h.Sweep(now), "a second pass removes nothing")

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 1, h.Sweep(h.clock.Now()))

	h.run(t, "use default")
	got := h.value(t, "db.s.find({}, {k: 1, _id: 0})")
	assert.Equal(t, `[{"k":"bad"}]`, Encode(got))
}

func TestEngine_PersistsAcrossInstances(t *testing.T) {
	h := newHarness(t)
	h.run(t, "use shop")
	h.run(t, `db.items.insertOne({sku: "a"})`)
	h.run(t, `db.items.createIndex({sku: 1})`)

	again, err := New(h.deps)
	require.NoError(t, err)
	assert.Equal(t, "shop", again.Model().CurrentDB)
	assert.Equal(t, 1, again.Count())
	assert.True(t, again.Model().Current().Collection("items").HasIndex("sku"))

	res := again.Execute(`db.items.insertOne({sku: "b"})`)
	assert.Contains(t, res.Lines[1].Text, `"insertedId": 1002`, "the counter resumes after the highest stored _id")
}

func TestEngine_ExportImportRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.run(t, `db.c.insertMany([{a: 1, nested: {x: [1, 2]}}, {b: "two"}])`)
	h.run(t, `db.c.createIndex({a: 1})`)

	exported, err := h.Export()
	require.NoError(t, err)
	before, err := exported.Data.MarshalJSON()
	require.NoError(t, err)

	h.run(t, "db.c.drop()")
	require.NoError(t, h.Import(exported))
	assert.Equal(t, 2, h.Count())

	after, err := h.Export()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after.Data))

	exported.FormatVersion = 99
	assert.True(t, errors.Is(h.Import(exported), bucket.ErrIncompatibleFormat))

	exported.FormatVersion = bucket.FormatVersion
	exported.Data = []byte(`{"databases": 5}`)
	assert.True(t, errors.Is(h.Import(exported), bucket.ErrInvalid))
	assert.Equal(t, 2, h.Count(), "a rejected import leaves the model untouched")
}

func TestEngine_Help(t *testing.T) {
	h := newHarness(t)
	lines := h.Help("")
	assert.Equal(t, "MongoDB - Supported:", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "use "))
}

func itoa(n int64) string {
	return formatNumber(float64(n))
}
