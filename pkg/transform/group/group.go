package group

import (
	"context"

	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/reduce"
)

// GroupBy partitions records by the value of Field, keeping first-seen key
// order and record order within each group. Keys compare strictly, so the
// number 3 and the string "3" form different groups. An empty Field puts
// every record into a single group keyed by Missing.
type GroupBy struct{ Field string }

func (t *GroupBy) Kind() string { return "group_by" }

func (t *GroupBy) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	g := p.NewGroups()
	for _, r := range recs {
		key := p.Missing
		if t.Field != "" {
			key = r.Get(t.Field)
		}
		cur, _ := g.Get(key)
		g.Set(key, append(cur, r))
	}
	return g, nil
}

// Aggregate reduces every group produced by GroupBy. With AsMap the result
// is a *SummaryMap, otherwise Summaries.
type Aggregate struct {
	Reducer reduce.Reducer
	AsMap   bool
}

func (t *Aggregate) Kind() string { return "aggregate" }

func (t *Aggregate) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	g, ok := in.(*p.Groups)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeGroups, in)
	}
	if t.AsMap {
		out := p.NewSummaryMap()
		for key, recs := range g.All() {
			out.Set(key, t.Reducer(recs))
		}
		return out, nil
	}
	out := make(p.Summaries, 0, g.Len())
	for key, recs := range g.All() {
		out = append(out, p.Summary{Key: key, Value: t.Reducer(recs)})
	}
	return out, nil
}

// IndexByKey maps each record's Field to the record. On collisions the last
// record wins and the key keeps its first position.
type IndexByKey struct{ Field string }

func (t *IndexByKey) Kind() string { return "index_by_key" }

func (t *IndexByKey) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	idx := p.NewIndex()
	for _, r := range recs {
		idx.Set(r.Get(t.Field), r)
	}
	return idx, nil
}
