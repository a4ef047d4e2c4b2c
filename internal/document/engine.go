package document

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/engine"
)

// BucketName is the persisted bucket of the document engine.
const BucketName = "mongo"

// firstID is the counter value before the first generated _id.
const firstID = 1000

var helpList = []string{
	"use <dbname>",
	"db.<coll>.insertOne(doc)",
	"db.<coll>.insertMany([..])",
	"db.<coll>.find(query, projection).limit(n)",
	"db.<coll>.findOne(query, projection)",
	`db.<coll>.aggregate([{$match:{}},{$group:{_id:"$field"|null, total:{$sum:1}, avg:{$avg:"$f"}, items:{$push:"$f"}}}]).limit(n)`,
	"  stages: $match $group $sort $skip $limit $project $count",
	"  accumulators: $sum $avg $push $min $max $first $last",
	"db.<coll>.updateOne(filter, {$set|$inc|$push|$pull|$rename:{...}})",
	"db.<coll>.updateMany(filter, update)",
	"db.<coll>.deleteOne(filter)",
	"db.<coll>.deleteMany(filter)",
	"db.<coll>.count()",
	"db.<coll>.countDocuments(filter)",
	"db.<coll>.createIndex({field:1})",
	"db.<coll>.getIndexes()",
	"db.<coll>.drop()",
}

// Engine is the document engine. It is NOT safe for concurrent use; the
// router serializes Execute and Sweep.
type Engine struct {
	*engine.Base
	model *Model
	// lastID is the most recently generated _id. It only grows.
	lastID int64
}

// New loads or creates the mongo bucket.
func New(deps engine.Deps) (*Engine, error) {
	base, data, err := engine.NewBase(BucketName, deps, initialModel, false)
	if err != nil {
		return nil, err
	}
	model, err := decodeModel(data)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Base:   base,
		model:  model,
		lastID: max(firstID, model.maxNumericID()),
	}, nil
}

// Model exposes the data model.
func (e *Engine) Model() *Model { return e.model }

// Count returns the number of documents in the current database.
func (e *Engine) Count() int { return e.model.DocCount() }

// Help returns the supported statements.
func (e *Engine) Help(string) []string {
	return append([]string{"MongoDB - Supported:"}, helpList...)
}

// Execute runs one shell statement.
func (e *Engine) Execute(line string) engine.Result {
	var res engine.Result
	res.Add(engine.KindPrompt, e.Prompt()+line)

	if err := e.execute(line, &res); err != nil {
		res.Fail(err)
	}
	e.Activity()
	return res
}

func (e *Engine) execute(line string, res *engine.Result) error {
	stmt, err := parseStatement(line)
	if err != nil {
		return err
	}
	switch s := stmt.(type) {
	case useStmt:
		e.model.Use(s.db)
		res.Print("switched to db " + s.db)
	case callStmt:
		coll := e.model.Current().Collection(s.coll)
		op, err := parseOperation(s)
		if err != nil {
			return err
		}
		if err := e.dispatch(op, s, coll, res); err != nil {
			return err
		}
	}
	e.Persist(e.model)
	return nil
}

// nextID returns a fresh _id.
func (e *Engine) nextID() Value {
	e.lastID++
	return Number(e.lastID)
}

func reply(kv ...any) *Object {
	o := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1].(Value))
	}
	return o
}

func limitDocs(docs []*Object, limit int) []*Object {
	if limit >= 0 && limit < len(docs) {
		return docs[:limit]
	}
	return docs
}

func toArray(docs []*Object) Array {
	out := make(Array, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func orEmpty(o *Object) *Object {
	if o == nil {
		return NewObject()
	}
	return o
}

// dispatch executes op against coll and appends its output to res.
func (e *Engine) dispatch(op operation, call callStmt, coll *Collection, res *engine.Result) error {
	prefix := "db." + call.coll + "."
	switch o := op.(type) {
	case insertOneOp:
		taken, err := e.checkIDs(call.coll, coll, []*Object{o.doc})
		if err != nil {
			return err
		}
		id := e.assignID(o.doc, taken)
		coll.Docs = append(coll.Docs, o.doc)
		res.Add(engine.KindOK, Pretty(reply("acknowledged", Bool(true), "insertedId", id)))
		e.AppendLog(prefix + "insertOne(" + Encode(o.doc) + ")")
	case insertManyOp:
		taken, err := e.checkIDs(call.coll, coll, o.docs)
		if err != nil {
			return err
		}
		for _, d := range o.docs {
			e.assignID(d, taken)
			coll.Docs = append(coll.Docs, d)
		}
		res.Add(engine.KindOK, Pretty(reply("acknowledged", Bool(true), "insertedCount", Number(len(o.docs)))))
		e.AppendLog(prefix + "insertMany(" + Encode(toArray(o.docs)) + ")")
	case findOp:
		if field, ok := indexHint(coll, o.query); ok {
			res.Add(engine.KindMuted, "(eligible index: "+field+")")
		}
		var hits []*Object
		for _, d := range coll.Docs {
			if Match(d, o.query) {
				hits = append(hits, Project(d, o.projection))
				if o.one {
					break
				}
			}
		}
		if o.one {
			if len(hits) == 0 {
				res.Print("null")
			} else {
				res.Print(Pretty(hits[0]))
			}
			return nil
		}
		res.Print(Pretty(toArray(limitDocs(hits, call.limit))))
	case aggregateOp:
		docs, err := aggregate(append([]*Object(nil), coll.Docs...), o.pipeline)
		if err != nil {
			return err
		}
		res.Print(Pretty(toArray(limitDocs(docs, call.limit))))
	case updateOp:
		matched, modified := 0, 0
		for _, d := range coll.Docs {
			if !Match(d, o.filter) {
				continue
			}
			matched++
			before := Encode(d)
			if err := applyUpdate(d, o.update); err != nil {
				return err
			}
			if Encode(d) != before {
				modified++
			}
			if !o.many {
				break
			}
		}
		out := Pretty(reply("acknowledged", Bool(true), "matchedCount", Number(matched), "modifiedCount", Number(modified)))
		if matched == 0 {
			res.Print(out)
			return nil
		}
		res.Add(engine.KindOK, out)
		name := "updateOne"
		if o.many {
			name = "updateMany"
		}
		e.AppendLog(prefix + name + "(" + Encode(orEmpty(o.filter)) + "," + Encode(o.update) + ")")
	case deleteOp:
		kept := coll.Docs[:0]
		deleted := 0
		for _, d := range coll.Docs {
			if (o.many || deleted == 0) && Match(d, o.filter) {
				deleted++
				continue
			}
			kept = append(kept, d)
		}
		clear(coll.Docs[len(kept):])
		coll.Docs = kept
		out := Pretty(reply("acknowledged", Bool(true), "deletedCount", Number(deleted)))
		if deleted == 0 {
			res.Print(out)
			return nil
		}
		res.Add(engine.KindOK, out)
		name := "deleteOne"
		if o.many {
			name = "deleteMany"
		}
		e.AppendLog(prefix + name + "(" + Encode(orEmpty(o.filter)) + ")")
	case countOp:
		n := 0
		for _, d := range coll.Docs {
			if Match(d, o.filter) {
				n++
			}
		}
		res.Print(strconv.Itoa(n))
	case createIndexOp:
		if !coll.HasIndex(o.field) {
			coll.Indexes = append(coll.Indexes, Index{Field: o.field, Order: o.order})
		}
		res.Add(engine.KindOK, Pretty(reply("createdCollectionAutomatically", Bool(false), "numIndexesAfter", Number(len(coll.Indexes)))))
		e.AppendLog(prefix + "createIndex(" + Encode(o.spec) + ")")
	case getIndexesOp:
		out := Array{reply("key", reply("_id", Number(1)), "name", String("_id_"))}
		for _, ix := range coll.Indexes {
			out = append(out, reply("key", reply(ix.Field, Number(ix.Order)), "name", String(fmt.Sprintf("%s_%d", ix.Field, ix.Order))))
		}
		res.Print(Pretty(out))
	case dropOp:
		delete(e.model.Current().Collections, call.coll)
		res.Print("true")
		e.AppendLog(prefix + "drop()")
	default:
		return engine.Errorf(engine.ErrUnknownCommand, "Unknown operation: %s", call.op)
	}
	return nil
}

// checkIDs rejects documents whose explicit _id already exists in coll or
// repeats within the batch. It returns the encoded _ids now taken in coll and
// moves the counter past every explicit integral _id of the batch.
func (e *Engine) checkIDs(collName string, coll *Collection, docs []*Object) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(coll.Docs)+len(docs))
	for _, d := range coll.Docs {
		if id, ok := d.Get("_id"); ok && id != nil {
			seen[Encode(id)] = struct{}{}
		}
	}
	for _, d := range docs {
		id, ok := d.Get("_id")
		if !ok || id == nil {
			continue
		}
		key := Encode(id)
		if _, dup := seen[key]; dup {
			return nil, engine.ArgumentError("E11000 duplicate key error collection: %s.%s index: _id_ dup key: { _id: %s }",
				e.model.CurrentDB, collName, key)
		}
		seen[key] = struct{}{}
	}
	for _, d := range docs {
		id, _ := d.Get("_id")
		if n, ok := integralID(id); ok {
			e.lastID = max(e.lastID, n)
		}
	}
	return seen, nil
}

// assignID gives doc a generated _id not in taken if it has none and
// returns its _id.
func (e *Engine) assignID(doc *Object, taken map[string]struct{}) Value {
	if id, ok := doc.Get("_id"); ok && id != nil {
		return id
	}
	id := e.nextID()
	for {
		if _, dup := taken[Encode(id)]; !dup {
			break
		}
		id = e.nextID()
	}
	taken[Encode(id)] = struct{}{}
	doc.Set("_id", id)
	return id
}

// expiresAt returns the expiry of doc in epoch milliseconds. Strings are
// parsed as dates and numbers taken as milliseconds.
func expiresAt(doc *Object) (int64, bool) {
	switch v, _ := doc.Get("expiresAt"); t := v.(type) {
	case String:
		return engine.ParseDate(string(t))
	case Number:
		n, ok := AsNumber(t)
		return saturate(n), ok
	}
	return 0, false
}

// saturate converts n to int64, clamping values outside its range.
func saturate(n float64) int64 {
	switch {
	case n >= math.MaxInt64:
		return math.MaxInt64
	case n <= math.MinInt64:
		return math.MinInt64
	}
	return int64(n)
}

// Sweep removes every document whose expiresAt is at or before now, across
// all databases.
func (e *Engine) Sweep(now time.Time) int {
	cutoff := now.UnixMilli()
	removed := 0
	for _, db := range e.model.Databases {
		for _, c := range db.Collections {
			kept := c.Docs[:0]
			for _, d := range c.Docs {
				if at, ok := expiresAt(d); ok && at <= cutoff {
					removed++
					continue
				}
				kept = append(kept, d)
			}
			clear(c.Docs[len(kept):])
			c.Docs = kept
		}
	}
	if removed > 0 {
		e.Persist(e.model)
		e.Logger().Debug("expired documents", zap.Int("count", removed))
	}
	return removed
}

// Export returns a copy of the mongo bucket.
func (e *Engine) Export() (*bucket.Bucket, error) {
	return e.ExportBucket(e.model)
}

// Import replaces the mongo bucket. The _id counter never moves backwards.
func (e *Engine) Import(b *bucket.Bucket) error {
	return e.ImportBucket(b, func(data json.RawMessage) error {
		m, err := decodeModel(data)
		if err != nil {
			return err
		}
		e.model = m
		e.lastID = max(e.lastID, m.maxNumericID())
		return nil
	})
}
