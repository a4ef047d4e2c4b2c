package document

import "strings"

// Match reports whether doc satisfies query. A nil query matches every
// document. Top-level keys are combined with AND; $or, $and, $not and $nor
// recurse, and other $-prefixed keys are ignored.
func Match(doc, query *Object) bool {
	if query == nil {
		return true
	}
	for _, k := range query.keys {
		cond := query.fields[k]
		switch k {
		case "$or":
			if !matchAny(doc, asArray(cond)) {
				return false
			}
		case "$and":
			for _, q := range asArray(cond) {
				if !Match(doc, asObject(q)) {
					return false
				}
			}
		case "$not":
			if Match(doc, asObject(cond)) {
				return false
			}
		case "$nor":
			if matchAny(doc, asArray(cond)) {
				return false
			}
		default:
			if strings.HasPrefix(k, "$") {
				continue
			}
			val, _ := doc.Get(k)
			if !matchValue(val, cond) {
				return false
			}
		}
	}
	return true
}

func matchAny(doc *Object, queries Array) bool {
	for _, q := range queries {
		if Match(doc, asObject(q)) {
			return true
		}
	}
	return false
}

// matchValue tests a field value against a condition. An object condition
// holds operators that must all be satisfied; any key that is not a known
// operator compares the whole condition for equality. val is nil when the
// field is absent.
func matchValue(val, cond Value) bool {
	ops, isObj := cond.(*Object)
	if !isObj {
		return val != nil && Equal(val, cond)
	}
	for _, op := range ops.keys {
		arg := ops.fields[op]
		switch op {
		case "$gt":
			if c, ok := compareOrdered(val, arg); !ok || c <= 0 {
				return false
			}
		case "$lt":
			if c, ok := compareOrdered(val, arg); !ok || c >= 0 {
				return false
			}
		case "$gte":
			if c, ok := compareOrdered(val, arg); !ok || c < 0 {
				return false
			}
		case "$lte":
			if c, ok := compareOrdered(val, arg); !ok || c > 0 {
				return false
			}
		case "$ne":
			if val != nil && Equal(val, arg) {
				return false
			}
		case "$in":
			arr, ok := arg.(Array)
			if !ok || !contains(arr, val) {
				return false
			}
		case "$nin":
			if arr, ok := arg.(Array); ok && contains(arr, val) {
				return false
			}
		default:
			if val == nil || !Equal(val, cond) {
				return false
			}
		}
	}
	return true
}

func contains(arr Array, val Value) bool {
	if val == nil {
		return false
	}
	for _, x := range arr {
		if Equal(x, val) {
			return true
		}
	}
	return false
}

func isInclude(v Value) bool {
	switch t := v.(type) {
	case Number:
		return t == 1
	case Bool:
		return bool(t)
	}
	return false
}

func isExclude(v Value) bool {
	switch t := v.(type) {
	case Number:
		return t == 0
	case Bool:
		return !bool(t)
	}
	return false
}

// Project applies an inclusion projection to a copy of doc. Fields listed
// with 1 are kept, plus _id unless it is excluded with _id:0. Without
// inclusions the whole document is returned, minus an excluded _id.
func Project(doc, proj *Object) *Object {
	if proj == nil {
		return doc.Clone()
	}
	var include []string
	for _, k := range proj.keys {
		if k != "_id" && isInclude(proj.fields[k]) {
			include = append(include, k)
		}
	}
	id, hasID := proj.Get("_id")
	excludeID := hasID && isExclude(id)

	if len(include) == 0 {
		out := doc.Clone()
		if excludeID {
			out.Delete("_id")
		}
		return out
	}
	out := NewObject()
	for _, k := range include {
		if v, ok := doc.Get(k); ok {
			out.Set(k, Clone(v))
		}
	}
	if v, ok := doc.Get("_id"); ok && !excludeID {
		out.Set("_id", Clone(v))
	}
	return out
}

// indexHint names the first query field that has a declared index.
func indexHint(coll *Collection, query *Object) (string, bool) {
	if query == nil || len(coll.Indexes) == 0 {
		return "", false
	}
	for _, k := range query.keys {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if coll.HasIndex(k) {
			return k, true
		}
	}
	return "", false
}
