// Package records converts spreadsheet selections into ordered records and back.
package records

import (
	"bytes"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is an ordered mapping from column name to cell value.
// The zero value is an empty record ready to use.
type Record struct {
	m *orderedmap.OrderedMap[string, any]
}

// New returns an empty record.
func New() Record {
	return Record{m: orderedmap.New[string, any]()}
}

// Of builds a record from alternating key/value arguments.
// Keys must be strings; a trailing key without a value is ignored.
func Of(kv ...any) Record {
	r := New()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		r.Set(key, kv[i+1])
	}
	return r
}

func (r *Record) init() {
	if r.m == nil {
		r.m = orderedmap.New[string, any]()
	}
}

// Get returns the value stored under key. Missing keys report ok == false.
func (r *Record) Get(key string) (any, bool) {
	if r.m == nil {
		return nil, false
	}
	return r.m.Get(key)
}

// Set stores value under key. Existing keys keep their position.
func (r *Record) Set(key string, value any) {
	r.init()
	r.m.Set(key, value)
}

// Delete removes key if present.
func (r *Record) Delete(key string) {
	if r.m == nil {
		return
	}
	r.m.Delete(key)
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r.m == nil {
		return 0
	}
	return r.m.Len()
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	if r.m == nil {
		return nil
	}
	keys := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns a shallow copy that can be modified independently.
func (r *Record) Clone() Record {
	out := New()
	if r.m == nil {
		return out
	}
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		out.m.Set(pair.Key, pair.Value)
	}
	return out
}

// MarshalJSON encodes the record as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.m == nil {
		return []byte("{}"), nil
	}
	return r.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
// JSON null decodes to an empty record.
func (r *Record) UnmarshalJSON(data []byte) error {
	r.m = orderedmap.New[string, any]()
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	return r.m.UnmarshalJSON(data)
}
