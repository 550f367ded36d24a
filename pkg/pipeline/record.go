package pipeline

import (
	"encoding/json"
	"sort"
)

// Record is one immutable dataset row: a mapping from field name to Value.
// Absent fields read as Missing.
type Record struct {
	fields map[string]Value
}

// NewRecord copies fields into a Record. Missing values are dropped.
func NewRecord(fields map[string]Value) Record {
	m := make(map[string]Value, len(fields))
	for k, v := range fields {
		if !v.IsMissing() {
			m[k] = v
		}
	}
	return Record{fields: m}
}

// RecordOf builds a Record from plain Go values (see Of).
func RecordOf(kv map[string]any) Record {
	m := make(map[string]Value, len(kv))
	for k, x := range kv {
		if v := Of(x); !v.IsMissing() {
			m[k] = v
		}
	}
	return Record{fields: m}
}

func (r Record) Get(field string) Value { return r.fields[field] }

func (r Record) Has(field string) bool {
	_, ok := r.fields[field]
	return ok
}

func (r Record) Str(field string) string          { return r.fields[field].Str() }
func (r Record) Num(field string) (float64, bool) { return r.fields[field].Num() }
func (r Record) Float(field string) float64       { return r.fields[field].Float() }
func (r Record) Len() int                         { return len(r.fields) }

// Fields returns the field names in sorted order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r.fields))
	for k := range r.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of r with field set to v. Setting Missing removes the field.
func (r Record) With(field string, v Value) Record {
	m := make(map[string]Value, len(r.fields)+1)
	for k, x := range r.fields {
		m[k] = x
	}
	if v.IsMissing() {
		delete(m, field)
	} else {
		m[field] = v
	}
	return Record{fields: m}
}

// Map returns a copy of the underlying fields.
func (r Record) Map() map[string]Value {
	m := make(map[string]Value, len(r.fields))
	for k, v := range r.fields {
		m[k] = v
	}
	return m
}

func (r Record) Equal(o Record) bool {
	if len(r.fields) != len(o.fields) {
		return false
	}
	for k, v := range r.fields {
		if ov, ok := o.fields[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.fields)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]Value
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*r = NewRecord(m)
	return nil
}
