package document

import (
	"sort"
	"strings"

	"github.com/flashdb/playground/internal/engine"
)

// resolve evaluates an aggregation expression against doc. "$field" reads a
// field (nil when absent), objects resolve field by field and anything else
// is a literal.
func resolve(doc *Object, expr Value) Value {
	switch t := expr.(type) {
	case String:
		if name, ok := strings.CutPrefix(string(t), "$"); ok {
			v, _ := doc.Get(name)
			return v
		}
	case *Object:
		out := NewObject()
		for _, k := range t.keys {
			if v := resolve(doc, t.fields[k]); v != nil {
				out.Set(k, v)
			}
		}
		return out
	}
	return expr
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// aggregate runs pipeline over docs. Stages see the output of the previous
// stage; the input documents are never modified.
func aggregate(docs []*Object, pipeline Array) ([]*Object, error) {
	for _, raw := range pipeline {
		stage := asObject(raw)
		if stage == nil || stage.Len() != 1 {
			return nil, engine.ArgumentError("A pipeline stage specification object must contain exactly one field.")
		}
		name := stage.keys[0]
		spec := stage.fields[name]

		var err error
		switch name {
		case "$match":
			docs = matchStage(docs, asObject(spec))
		case "$group":
			docs, err = groupStage(docs, asObject(spec))
		case "$sort":
			docs, err = sortStage(docs, asObject(spec))
		case "$skip":
			n, ok := nonNegative(spec)
			if !ok {
				return nil, engine.ArgumentError("$skip requires a non-negative number")
			}
			docs = docs[min(n, len(docs)):]
		case "$limit":
			n, ok := nonNegative(spec)
			if !ok || n == 0 {
				return nil, engine.ArgumentError("$limit requires a positive number")
			}
			docs = docs[:min(n, len(docs))]
		case "$project":
			proj := asObject(spec)
			if proj == nil {
				return nil, engine.ArgumentError("$project requires an object")
			}
			out := make([]*Object, len(docs))
			for i, d := range docs {
				out[i] = Project(d, proj)
			}
			docs = out
		case "$count":
			field, ok := spec.(String)
			if !ok || field == "" || strings.HasPrefix(string(field), "$") {
				return nil, engine.ArgumentError("$count requires a non-empty field name")
			}
			if len(docs) == 0 {
				docs = nil
				break
			}
			out := NewObject()
			out.Set(string(field), Number(len(docs)))
			docs = []*Object{out}
		default:
			return nil, engine.ArgumentError("Unrecognized pipeline stage name: '%s'", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func nonNegative(v Value) (int, bool) {
	n, ok := AsNumber(v)
	if !ok || n < 0 {
		return 0, false
	}
	return int(n), true
}

func matchStage(docs []*Object, query *Object) []*Object {
	var out []*Object
	for _, d := range docs {
		if Match(d, query) {
			out = append(out, d)
		}
	}
	return out
}

func sortStage(docs []*Object, spec *Object) ([]*Object, error) {
	if spec == nil || spec.Len() == 0 {
		return nil, engine.ArgumentError("$sort requires at least one sort key")
	}
	out := append([]*Object(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range spec.keys {
			a, _ := out[i].Get(k)
			b, _ := out[j].Get(k)
			c := compareValues(a, b)
			if dir, _ := AsNumber(spec.fields[k]); dir < 0 {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out, nil
}

// accumulator folds the documents of one group into a field value.
type accumulator interface {
	add(doc *Object)
	result() Value
}

type sumAcc struct {
	expr  Value
	total float64
}

func (a *sumAcc) add(doc *Object) {
	if n, ok := AsNumber(resolve(doc, a.expr)); ok {
		a.total += n
	}
}

func (a *sumAcc) result() Value { return Number(a.total) }

type avgAcc struct {
	expr  Value
	sum   float64
	count int
}

func (a *avgAcc) add(doc *Object) {
	if n, ok := AsNumber(resolve(doc, a.expr)); ok {
		a.sum += n
		a.count++
	}
}

func (a *avgAcc) result() Value {
	if a.count == 0 {
		return Number(0)
	}
	return Number(a.sum / float64(a.count))
}

type pushAcc struct {
	expr  Value
	items Array
}

func (a *pushAcc) add(doc *Object) {
	a.items = append(a.items, Clone(orNull(resolve(doc, a.expr))))
}

func (a *pushAcc) result() Value {
	if a.items == nil {
		return Array{}
	}
	return a.items
}

// extremeAcc keeps the smallest ($min) or largest ($max) non-null value.
type extremeAcc struct {
	expr Value
	sign int
	best Value
}

func (a *extremeAcc) add(doc *Object) {
	v := resolve(doc, a.expr)
	if v == nil {
		return
	}
	if _, isNull := v.(Null); isNull {
		return
	}
	if a.best == nil || compareValues(v, a.best)*a.sign > 0 {
		a.best = Clone(v)
	}
}

func (a *extremeAcc) result() Value { return orNull(a.best) }

type positionAcc struct {
	expr Value
	last bool
	seen bool
	val  Value
}

func (a *positionAcc) add(doc *Object) {
	if a.seen && !a.last {
		return
	}
	a.seen = true
	a.val = Clone(resolve(doc, a.expr))
}

func (a *positionAcc) result() Value { return orNull(a.val) }

type accumulatorSpec struct {
	field string
	op    string
	expr  Value
}

func (s accumulatorSpec) build() accumulator {
	switch s.op {
	case "$sum":
		return &sumAcc{expr: s.expr}
	case "$avg":
		return &avgAcc{expr: s.expr}
	case "$push":
		return &pushAcc{expr: s.expr}
	case "$min":
		return &extremeAcc{expr: s.expr, sign: -1}
	case "$max":
		return &extremeAcc{expr: s.expr, sign: 1}
	case "$first":
		return &positionAcc{expr: s.expr}
	case "$last":
		return &positionAcc{expr: s.expr, last: true}
	}
	return nil
}

type group struct {
	id   Value
	accs []accumulator
}

// groupStage buckets docs by the _id expression. Buckets are keyed by the
// serialized form of the resolved id and emitted in first-seen order.
func groupStage(docs []*Object, spec *Object) ([]*Object, error) {
	if spec == nil {
		return nil, engine.ArgumentError("$group requires an object")
	}
	var specs []accumulatorSpec
	for _, field := range spec.keys {
		if field == "_id" {
			continue
		}
		agg := asObject(spec.fields[field])
		if agg == nil || agg.Len() != 1 {
			return nil, engine.ArgumentError("The field '%s' must be an accumulator object", field)
		}
		s := accumulatorSpec{field: field, op: agg.keys[0], expr: agg.fields[agg.keys[0]]}
		if s.build() == nil {
			return nil, engine.ArgumentError("unknown group operator '%s'", s.op)
		}
		specs = append(specs, s)
	}

	idExpr, _ := spec.Get("_id")
	groups := make(map[string]*group)
	var order []string
	for _, d := range docs {
		id := orNull(resolve(d, idExpr))
		key := Encode(id)
		g, ok := groups[key]
		if !ok {
			g = &group{id: Clone(id)}
			for _, s := range specs {
				g.accs = append(g.accs, s.build())
			}
			groups[key] = g
			order = append(order, key)
		}
		for _, acc := range g.accs {
			acc.add(d)
		}
	}

	out := make([]*Object, 0, len(order))
	for _, key := range order {
		g := groups[key]
		obj := NewObject()
		obj.Set("_id", g.id)
		for i, s := range specs {
			obj.Set(s.field, g.accs[i].result())
		}
		out = append(out, obj)
	}
	return out, nil
}
