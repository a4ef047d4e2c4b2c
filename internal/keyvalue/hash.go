// Package keyvalue - Hash data type
//
// A Hash is a map of field→value pairs stored under a single key.
// Single-field operations are O(1); bulk operations are O(N).
package keyvalue

import "sort"

// FieldValue is a hash field and its value.
type FieldValue struct {
	Field string
	Value string
}

// Hash represents a Redis-like hash.
// The Hash itself is NOT thread-safe; concurrency is managed by the Engine.
type Hash struct {
	fields map[string]string
}

// NewHash creates a new empty Hash.
func NewHash() *Hash {
	return &Hash{fields: make(map[string]string)}
}

// Set sets field to value. Returns true if the field is new.
func (h *Hash) Set(field, value string) bool {
	_, existed := h.fields[field]
	h.fields[field] = value
	return !existed
}

// Get returns the value of a field.
func (h *Hash) Get(field string) (string, bool) {
	val, exists := h.fields[field]
	return val, exists
}

// Del removes fields. Returns the number of fields removed.
func (h *Hash) Del(fields ...string) int {
	removed := 0
	for _, f := range fields {
		if _, exists := h.fields[f]; exists {
			delete(h.fields, f)
			removed++
		}
	}
	return removed
}

// Len returns the number of fields.
func (h *Hash) Len() int {
	return len(h.fields)
}

// GetAll returns all field-value pairs sorted by field.
func (h *Hash) GetAll() []FieldValue {
	result := make([]FieldValue, 0, len(h.fields))
	for f, v := range h.fields {
		result = append(result, FieldValue{Field: f, Value: v})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Field < result[j].Field })
	return result
}
