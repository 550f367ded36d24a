package order

import (
	"context"
	"sort"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// SortBy stable-sorts records by Field. Numbers sort before strings and
// missing values always sort last, in both directions. The zero value sorts
// descending.
type SortBy struct {
	Field     string
	Ascending bool
}

func (t *SortBy) Kind() string { return "sort_by" }

func (t *SortBy) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	out := recs.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortKey(out[i].Get(t.Field)), sortKey(out[j].Get(t.Field))
		if a.IsMissing() || b.IsMissing() {
			return !a.IsMissing() && b.IsMissing()
		}
		if t.Ascending {
			return a.Compare(b) < 0
		}
		return a.Compare(b) > 0
	})
	return out, nil
}

// numeric strings sort as numbers
func sortKey(v p.Value) p.Value {
	if v.Kind() == p.KindString {
		if f, ok := v.Num(); ok {
			return p.Number(f)
		}
	}
	return v
}

// Limit keeps the first N records. N <= 0 yields an empty sequence; input
// that is not a record sequence passes through unchanged.
type Limit struct{ N int }

func (t *Limit) Kind() string { return "limit" }

func (t *Limit) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return in, nil
	}
	if t.N <= 0 {
		return p.Records{}, nil
	}
	if t.N >= len(recs) {
		return recs[:len(recs):len(recs)], nil
	}
	return recs[:t.N:t.N], nil
}
