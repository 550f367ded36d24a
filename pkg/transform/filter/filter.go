// Package filter holds operations that keep a subset of a record sequence.
// Every filter preserves the order of the records it keeps.
package filter

import (
	"context"
	"strings"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// Func keeps the records for which Pred returns true.
type Func struct{ Pred func(p.Record) bool }

func (t *Func) Kind() string { return "filter" }

func (t *Func) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	return keep(recs, t.Pred), nil
}

func keep(recs p.Records, pred func(p.Record) bool) p.Records {
	out := make(p.Records, 0, len(recs))
	for _, r := range recs {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Eq keeps records whose Field equals Value. Values of different kinds match
// when both read as the same number, so "10" equals 10.
type Eq struct {
	Field string
	Value p.Value
}

func (t *Eq) Kind() string { return "filter_eq" }

func (t *Eq) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	return keep(recs, func(r p.Record) bool { return Equal(r.Get(t.Field), t.Value) }), nil
}

// Equal is the comparison used by Eq.
func Equal(a, b p.Value) bool {
	if a == b {
		return true
	}
	if a.Kind() == b.Kind() {
		return false
	}
	x, okx := a.Num()
	y, oky := b.Num()
	return okx && oky && x == y
}

// In keeps records whose Field is one of Values. With Fold set, both sides
// are trimmed and upper-cased before comparing.
type In struct {
	Field  string
	Values map[string]struct{}
	Fold   bool
}

func NewIn(field string, vals []string, fold bool) *In {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		if fold {
			v = foldCase(v)
		}
		m[v] = struct{}{}
	}
	return &In{Field: field, Values: m, Fold: fold}
}

func (t *In) Kind() string { return "filter_in" }

func (t *In) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	return keep(recs, func(r p.Record) bool {
		v := r.Str(t.Field)
		if t.Fold {
			v = foldCase(v)
		}
		_, hit := t.Values[v]
		return hit
	}), nil
}

func foldCase(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// Contains keeps records whose Field, read as a Sep-separated list, has at
// least one element in Items. Elements are trimmed; Sep defaults to ",".
type Contains struct {
	Field string
	Items []string
	Sep   string
}

func (t *Contains) Kind() string { return "filter_contains" }

func (t *Contains) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	want := make(map[string]struct{}, len(t.Items))
	for _, it := range t.Items {
		want[strings.TrimSpace(it)] = struct{}{}
	}
	sep := t.Sep
	if sep == "" {
		sep = ","
	}
	return keep(recs, func(r p.Record) bool {
		for _, part := range strings.Split(r.Str(t.Field), sep) {
			if _, hit := want[strings.TrimSpace(part)]; hit {
				return true
			}
		}
		return false
	}), nil
}

// Range keeps records whose Field is numeric and inside [Min, Max]. A nil
// bound is open; non-numeric values are dropped.
type Range struct {
	Field string
	Min   *float64
	Max   *float64
}

func (t *Range) Kind() string { return "filter_range" }

func (t *Range) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	return keep(recs, func(r p.Record) bool {
		v, ok := r.Num(t.Field)
		if !ok {
			return false
		}
		if t.Min != nil && v < *t.Min {
			return false
		}
		if t.Max != nil && v > *t.Max {
			return false
		}
		return true
	}), nil
}
