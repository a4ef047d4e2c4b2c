// Package keyvalue provides the key-value engine: a typed in-memory store of
// strings, lists, sets, hashes and sorted sets with per-key expiry, driven by
// a Redis-style command language.
package keyvalue

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Key types as reported by TYPE.
const (
	TypeString = "string"
	TypeList   = "list"
	TypeSet    = "set"
	TypeHash   = "hash"
	TypeZSet   = "zset"
)

// Store is the key-value data model. A key lives in at most one of the typed
// maps, and only live keys may carry an expiry.
// It is NOT thread-safe; concurrency is managed by the Engine.
type Store struct {
	strings map[string]string
	lists   map[string]*List
	sets    map[string]*Set
	hashes  map[string]*Hash
	zsets   map[string]*SortedSet
	ttl     map[string]int64 // absolute expiry in epoch milliseconds
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		strings: make(map[string]string),
		lists:   make(map[string]*List),
		sets:    make(map[string]*Set),
		hashes:  make(map[string]*Hash),
		zsets:   make(map[string]*SortedSet),
		ttl:     make(map[string]int64),
	}
}

// Type returns the type of key, or "" if it does not exist.
func (s *Store) Type(key string) string {
	if _, ok := s.strings[key]; ok {
		return TypeString
	}
	if _, ok := s.lists[key]; ok {
		return TypeList
	}
	if _, ok := s.sets[key]; ok {
		return TypeSet
	}
	if _, ok := s.hashes[key]; ok {
		return TypeHash
	}
	if _, ok := s.zsets[key]; ok {
		return TypeZSet
	}
	return ""
}

// Exists reports whether key holds a value of any type.
func (s *Store) Exists(key string) bool {
	return s.Type(key) != ""
}

// Delete removes key from every typed map and clears its expiry.
// Returns true if the key existed.
func (s *Store) Delete(key string) bool {
	existed := s.Exists(key)
	delete(s.strings, key)
	delete(s.lists, key)
	delete(s.sets, key)
	delete(s.hashes, key)
	delete(s.zsets, key)
	delete(s.ttl, key)
	return existed
}

// Rename moves oldKey, with its expiry, to newKey, replacing anything stored
// at newKey. Returns false if oldKey does not exist.
func (s *Store) Rename(oldKey, newKey string) bool {
	typ := s.Type(oldKey)
	if typ == "" {
		return false
	}
	if oldKey == newKey {
		return true
	}
	s.Delete(newKey)

	switch typ {
	case TypeString:
		s.strings[newKey] = s.strings[oldKey]
	case TypeList:
		s.lists[newKey] = s.lists[oldKey]
	case TypeSet:
		s.sets[newKey] = s.sets[oldKey]
	case TypeHash:
		s.hashes[newKey] = s.hashes[oldKey]
	case TypeZSet:
		s.zsets[newKey] = s.zsets[oldKey]
	}
	exp, hasTTL := s.ttl[oldKey]
	s.Delete(oldKey)
	if hasTTL {
		s.ttl[newKey] = exp
	}
	return true
}

// Keys returns every key sorted lexicographically.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for k := range s.strings {
		keys = append(keys, k)
	}
	for k := range s.lists {
		keys = append(keys, k)
	}
	for k := range s.sets {
		keys = append(keys, k)
	}
	for k := range s.hashes {
		keys = append(keys, k)
	}
	for k := range s.zsets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (s *Store) Len() int {
	return len(s.strings) + len(s.lists) + len(s.sets) + len(s.hashes) + len(s.zsets)
}

// Flush removes every key.
func (s *Store) Flush() {
	*s = *NewStore()
}

// claim prepares key to hold typ, deleting it first if it holds another type.
func (s *Store) claim(key, typ string) {
	if t := s.Type(key); t != "" && t != typ {
		s.Delete(key)
	}
}

// GetString returns the string stored at key.
func (s *Store) GetString(key string) (string, bool) {
	v, ok := s.strings[key]
	return v, ok
}

// SetString replaces whatever is stored at key, including its expiry.
func (s *Store) SetString(key, value string) {
	s.Delete(key)
	s.strings[key] = value
}

// ReplaceString updates a string value in place, keeping its expiry.
func (s *Store) ReplaceString(key, value string) {
	s.claim(key, TypeString)
	s.strings[key] = value
}

// List returns the list at key. With create set, a missing list is created
// and a key of another type is replaced.
func (s *Store) List(key string, create bool) *List {
	if l, ok := s.lists[key]; ok || !create {
		return l
	}
	s.claim(key, TypeList)
	l := NewList()
	s.lists[key] = l
	return l
}

// Set returns the set at key. See List for create.
func (s *Store) Set(key string, create bool) *Set {
	if st, ok := s.sets[key]; ok || !create {
		return st
	}
	s.claim(key, TypeSet)
	st := NewSet()
	s.sets[key] = st
	return st
}

// Hash returns the hash at key. See List for create.
func (s *Store) Hash(key string, create bool) *Hash {
	if h, ok := s.hashes[key]; ok || !create {
		return h
	}
	s.claim(key, TypeHash)
	h := NewHash()
	s.hashes[key] = h
	return h
}

// ZSet returns the sorted set at key. See List for create.
func (s *Store) ZSet(key string, create bool) *SortedSet {
	if z, ok := s.zsets[key]; ok || !create {
		return z
	}
	s.claim(key, TypeZSet)
	z := NewSortedSet()
	s.zsets[key] = z
	return z
}

// DropIfEmpty deletes key, with its expiry, if its collection is empty.
func (s *Store) DropIfEmpty(key string) {
	empty := false
	switch s.Type(key) {
	case TypeList:
		empty = s.lists[key].Len() == 0
	case TypeSet:
		empty = s.sets[key].Card() == 0
	case TypeHash:
		empty = s.hashes[key].Len() == 0
	case TypeZSet:
		empty = s.zsets[key].Card() == 0
	}
	if empty {
		s.Delete(key)
	}
}

// Expire sets key's absolute expiry. The key must exist.
func (s *Store) Expire(key string, atMillis int64) bool {
	if !s.Exists(key) {
		return false
	}
	s.ttl[key] = atMillis
	return true
}

// Persist clears key's expiry. Returns true if an expiry was removed.
func (s *Store) Persist(key string) bool {
	if _, ok := s.ttl[key]; !ok {
		return false
	}
	delete(s.ttl, key)
	return true
}

// ExpireAt returns key's absolute expiry, if any.
func (s *Store) ExpireAt(key string) (int64, bool) {
	at, ok := s.ttl[key]
	return at, ok
}

// Expired returns the keys whose expiry is at or before nowMillis, sorted.
func (s *Store) Expired(nowMillis int64) []string {
	var keys []string
	for k, at := range s.ttl {
		if at <= nowMillis {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// model is the persisted shape of the Store.
type model struct {
	Strings map[string]string            `json:"strings"`
	Lists   map[string][]string          `json:"lists"`
	Sets    map[string][]string          `json:"sets"`
	Hashes  map[string]map[string]string `json:"hashes"`
	ZSets   map[string][]ScoredMember    `json:"zsets"`
	TTL     map[string]int64             `json:"ttl"`
}

// MarshalJSON encodes the Store in its persisted shape.
func (s *Store) MarshalJSON() ([]byte, error) {
	m := model{
		Strings: make(map[string]string, len(s.strings)),
		Lists:   make(map[string][]string, len(s.lists)),
		Sets:    make(map[string][]string, len(s.sets)),
		Hashes:  make(map[string]map[string]string, len(s.hashes)),
		ZSets:   make(map[string][]ScoredMember, len(s.zsets)),
		TTL:     make(map[string]int64, len(s.ttl)),
	}
	for k, v := range s.strings {
		m.Strings[k] = v
	}
	for k, l := range s.lists {
		m.Lists[k] = l.Items()
	}
	for k, st := range s.sets {
		m.Sets[k] = st.Members()
	}
	for k, h := range s.hashes {
		fields := make(map[string]string, h.Len())
		for _, fv := range h.GetAll() {
			fields[fv.Field] = fv.Value
		}
		m.Hashes[k] = fields
	}
	for k, z := range s.zsets {
		m.ZSets[k] = z.Members()
	}
	for k, at := range s.ttl {
		m.TTL[k] = at
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a persisted Store. A key found in several typed maps
// keeps its first type in string, list, set, hash, zset order, and expiries
// of missing keys are dropped.
func (s *Store) UnmarshalJSON(data []byte) error {
	var m model
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("keyvalue: decode store: %w", err)
	}

	fresh := NewStore()
	for k, v := range m.Strings {
		fresh.strings[k] = v
	}
	for k, items := range m.Lists {
		if fresh.Exists(k) || len(items) == 0 {
			continue
		}
		fresh.List(k, true).RPush(items...)
	}
	for k, members := range m.Sets {
		if fresh.Exists(k) || len(members) == 0 {
			continue
		}
		fresh.Set(k, true).Add(members...)
	}
	for k, fields := range m.Hashes {
		if fresh.Exists(k) || len(fields) == 0 {
			continue
		}
		h := fresh.Hash(k, true)
		for f, v := range fields {
			h.Set(f, v)
		}
	}
	for k, members := range m.ZSets {
		if fresh.Exists(k) || len(members) == 0 {
			continue
		}
		fresh.ZSet(k, true).Add(members...)
	}
	for k, at := range m.TTL {
		if fresh.Exists(k) {
			fresh.ttl[k] = at
		}
	}

	*s = *fresh
	return nil
}
