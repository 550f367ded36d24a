package pipeline

import (
	"encoding/json"
	"iter"
	"sort"
)

// Shape identifies what a stage of the pipeline produced.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeRecords
	ShapeGroups
	ShapeSummaries
	ShapeSummaryMap
	ShapeIndex
	ShapeValues
)

func (s Shape) String() string {
	switch s {
	case ShapeRecords:
		return "records"
	case ShapeGroups:
		return "groups"
	case ShapeSummaries:
		return "summaries"
	case ShapeSummaryMap:
		return "summary_map"
	case ShapeIndex:
		return "index"
	case ShapeValues:
		return "values"
	default:
		return "none"
	}
}

func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Result is whatever a stage of the pipeline produced. Callers type-switch on
// the concrete types below, or check Shape.
type Result interface {
	Shape() Shape
}

// ShapeOf returns the shape of r, ShapeNone for nil.
func ShapeOf(r Result) Shape {
	if r == nil {
		return ShapeNone
	}
	return r.Shape()
}

// Records is an ordered sequence of Records.
type Records []Record

func (Records) Shape() Shape { return ShapeRecords }

// Clone copies the slice; the Records themselves are immutable and shared.
func (rs Records) Clone() Records {
	if rs == nil {
		return Records{}
	}
	out := make(Records, len(rs))
	copy(out, rs)
	return out
}

// FieldNames returns the sorted union of the fields of rs.
func (rs Records) FieldNames() []string {
	seen := map[string]struct{}{}
	var names []string
	for _, r := range rs {
		for k := range r.fields {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Keyed is an insertion-ordered mapping from Value to V.
type Keyed[V any] struct {
	keys []Value
	vals map[Value]V
}

// Set inserts or overwrites key. Overwriting keeps the original position.
func (k *Keyed[V]) Set(key Value, v V) {
	if k.vals == nil {
		k.vals = make(map[Value]V)
	}
	if _, ok := k.vals[key]; !ok {
		k.keys = append(k.keys, key)
	}
	k.vals[key] = v
}

func (k *Keyed[V]) Get(key Value) (V, bool) {
	v, ok := k.vals[key]
	return v, ok
}

func (k *Keyed[V]) Len() int { return len(k.keys) }

func (k *Keyed[V]) Keys() []Value {
	out := make([]Value, len(k.keys))
	copy(out, k.keys)
	return out
}

// All iterates entries in insertion order.
func (k *Keyed[V]) All() iter.Seq2[Value, V] {
	return func(yield func(Value, V) bool) {
		for _, key := range k.keys {
			if !yield(key, k.vals[key]) {
				return
			}
		}
	}
}

type keyedEntry[V any] struct {
	Key   Value `json:"key"`
	Value V     `json:"value"`
}

// MarshalJSON encodes entries as an ordered array; keys may not be strings.
func (k *Keyed[V]) MarshalJSON() ([]byte, error) {
	out := make([]keyedEntry[V], 0, len(k.keys))
	for key, v := range k.All() {
		out = append(out, keyedEntry[V]{Key: key, Value: v})
	}
	return json.Marshal(out)
}

// Groups maps a group key to the records sharing it (output of group-by).
type Groups struct{ Keyed[Records] }

func NewGroups() *Groups     { return &Groups{} }
func (*Groups) Shape() Shape { return ShapeGroups }

// Summary is one aggregated group.
type Summary struct {
	Key   Value `json:"key"`
	Value any   `json:"value"`
}

// Summaries is the array form of an aggregate.
type Summaries []Summary

func (Summaries) Shape() Shape { return ShapeSummaries }

// SummaryMap is the mapping form of an aggregate.
type SummaryMap struct{ Keyed[any] }

func NewSummaryMap() *SummaryMap { return &SummaryMap{} }
func (*SummaryMap) Shape() Shape { return ShapeSummaryMap }

// Index maps a key to the record holding it (last write wins).
type Index struct{ Keyed[Record] }

func NewIndex() *Index      { return &Index{} }
func (*Index) Shape() Shape { return ShapeIndex }

// Values is a sequence of arbitrary per-record projections.
type Values []any

func (Values) Shape() Shape { return ShapeValues }

// Recorder is implemented by summary values that can flatten themselves
// into a Record, so aggregates can be written by the record writers.
type Recorder interface {
	Record() Record
}

// Tabulate flattens any Result into Records. Groups gain a "group" field,
// summaries become {key, value} rows (or the Recorder fields plus key) and
// indexes yield their records in key order. Values become {value} rows, or
// the record itself when the value is a Record.
func Tabulate(r Result) Records {
	switch t := r.(type) {
	case Records:
		return t
	case *Groups:
		var out Records
		for key, recs := range t.All() {
			for _, rec := range recs {
				out = append(out, rec.With("group", key))
			}
		}
		return out
	case Summaries:
		out := make(Records, 0, len(t))
		for _, s := range t {
			out = append(out, summaryRecord(s.Key, s.Value))
		}
		return out
	case *SummaryMap:
		out := make(Records, 0, t.Len())
		for key, v := range t.All() {
			out = append(out, summaryRecord(key, v))
		}
		return out
	case *Index:
		out := make(Records, 0, t.Len())
		for _, rec := range t.All() {
			out = append(out, rec)
		}
		return out
	case Values:
		out := make(Records, 0, len(t))
		for _, v := range t {
			switch x := v.(type) {
			case Record:
				out = append(out, x)
			case Recorder:
				out = append(out, x.Record())
			default:
				out = append(out, NewRecord(map[string]Value{"value": Of(v)}))
			}
		}
		return out
	default:
		return Records{}
	}
}

func summaryRecord(key Value, v any) Record {
	if rc, ok := v.(Recorder); ok {
		return rc.Record().With("key", key)
	}
	return NewRecord(map[string]Value{"key": key, "value": Of(v)})
}
