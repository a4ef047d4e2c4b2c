// Package document provides the document engine: databases of collections of
// JSON-like documents queried and updated through a Mongo-shell style
// language.
package document

import (
	"cmp"
	"math"
)

// Value is a JSON-like document value. The concrete types are Null, Bool,
// Number, String, Array and *Object. A nil Value means "absent".
type Value interface {
	isValue()
}

type (
	// Null is the JSON null.
	Null struct{}
	// Bool is a JSON boolean.
	Bool bool
	// Number is a JSON number.
	Number float64
	// String is a JSON string.
	String string
	// Array is an ordered sequence of values.
	Array []Value
)

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Number) isValue()  {}
func (String) isValue()  {}
func (Array) isValue()   {}
func (*Object) isValue() {}

// Object is a mapping that remembers the insertion order of its keys.
// It is NOT thread-safe; concurrency is managed by the Engine.
type Object struct {
	keys   []string
	fields map[string]Value
}

// NewObject creates an empty Object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Get returns the value of key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.fields[key]
	return ok
}

// Set stores v under key. New keys are appended to the key order.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Delete removes key. Returns true if it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.fields[key]; !ok {
		return false
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	c := &Object{
		keys:   append([]string(nil), o.keys...),
		fields: make(map[string]Value, len(o.fields)),
	}
	for k, v := range o.fields {
		c.fields[k] = Clone(v)
	}
	return c
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case *Object:
		return t.Clone()
	default:
		return v
	}
}

// Equal reports whether a and b have the same serialized form. Absent
// values are equal only to each other.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Encode(a) == Encode(b)
}

// AsNumber returns v as a finite float64.
func AsNumber(v Value) (float64, bool) {
	n, ok := v.(Number)
	if !ok || math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
		return 0, false
	}
	return float64(n), true
}

// typeRank orders values of different kinds for sorting: null, numbers,
// strings, objects, arrays, booleans.
func typeRank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Number:
		return 1
	case String:
		return 2
	case *Object:
		return 3
	case Array:
		return 4
	case Bool:
		return 5
	}
	return 6
}

// compareOrdered compares two values of the same orderable kind. ok is false
// when the kinds differ or cannot be ordered.
func compareOrdered(a, b Value) (int, bool) {
	switch x := a.(type) {
	case Number:
		y, isNum := b.(Number)
		if !isNum {
			return 0, false
		}
		return cmp.Compare(x, y), true
	case String:
		y, isStr := b.(String)
		if !isStr {
			return 0, false
		}
		return cmp.Compare(x, y), true
	case Bool:
		y, isBool := b.(Bool)
		if !isBool {
			return 0, false
		}
		return compareBool(bool(x), bool(y)), true
	}
	return 0, false
}

// compareValues is a total order used by $sort, $min and $max.
func compareValues(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := compareOrdered(a, b); ok {
		return c
	}
	if a == nil || b == nil {
		return 0
	}
	return cmp.Compare(Encode(a), Encode(b))
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
