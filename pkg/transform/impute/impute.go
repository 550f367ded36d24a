// Package impute fills missing values of a field with a statistic of the
// values that are present, optionally computed per group.
package impute

import (
	"context"
	"strings"

	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/reduce"
)

func missing(v p.Value) bool {
	return v.IsMissing() || (v.Kind() == p.KindString && strings.TrimSpace(v.Str()) == "")
}

// fill replaces missing Field values with stat over the records sharing the
// same By value. Groups without any present value use stat over all records;
// when that is missing too the records are left alone.
func fill(ctx context.Context, kind string, in p.Result, field, by string, stat func(string) reduce.Reducer) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, kind, p.ShapeRecords, in)
	}
	present := make(p.Records, 0, len(recs))
	groups := map[p.Value]p.Records{}
	for _, r := range recs {
		if missing(r.Get(field)) {
			continue
		}
		present = append(present, r)
		if by != "" {
			g := r.Get(by)
			groups[g] = append(groups[g], r)
		}
	}
	overall := p.Of(stat(field)(present))

	cache := map[p.Value]p.Value{}
	out := make(p.Records, len(recs))
	for i, r := range recs {
		out[i] = r
		if !missing(r.Get(field)) {
			continue
		}
		v := overall
		if by != "" {
			g := r.Get(by)
			gv, seen := cache[g]
			if !seen {
				gv = p.Missing
				if members := groups[g]; len(members) > 0 {
					gv = p.Of(stat(field)(members))
				}
				cache[g] = gv
			}
			if !gv.IsMissing() {
				v = gv
			}
		}
		if !v.IsMissing() {
			out[i] = r.With(field, v)
		}
	}
	return out, nil
}

// Mean fills missing values of Field with the mean of its numeric values.
type Mean struct {
	Field string
	By    string
}

func (t *Mean) Kind() string { return "impute_mean" }

func (t *Mean) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return fill(ctx, t.Kind(), in, t.Field, t.By, reduce.Mean)
}

type Median struct {
	Field string
	By    string
}

func (t *Median) Kind() string { return "impute_median" }

func (t *Median) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return fill(ctx, t.Kind(), in, t.Field, t.By, reduce.Median)
}

// Mode fills with the most frequent value and so also works for text fields.
type Mode struct {
	Field string
	By    string
}

func (t *Mode) Kind() string { return "impute_mode" }

func (t *Mode) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return fill(ctx, t.Kind(), in, t.Field, t.By, reduce.Mode)
}
