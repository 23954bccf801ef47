package model

import (
	"math"
	"strconv"
	"strings"
)

// Record is one spreadsheet row: field name to value, in column order.
// Values are string, float64 or nil (blank cell).
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordFrom builds a record from alternating key/value pairs. Intended for
// tests and fixtures.
func RecordFrom(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		r.Set(k, kv[i+1])
	}
	return r
}

// Get returns the value stored under key and whether the key exists.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set stores a value. New keys are appended after existing ones.
func (r *Record) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Clone returns a shallow copy that can be mutated independently.
func (r *Record) Clone() *Record {
	c := &Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// Text returns the field rendered as text. Absent and nil fields are "".
func (r *Record) Text(key string) string {
	v, ok := r.values[key]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// IsBlank reports whether the field is absent, nil, or whitespace only.
func (r *Record) IsBlank(key string) bool {
	return strings.TrimSpace(r.Text(key)) == ""
}

// FormatValue renders a cell value the way it is sent to the oracle and
// compared for request identity.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
