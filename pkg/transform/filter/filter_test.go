package filter

import (
	"context"
	"errors"
	"reflect"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

func channels() p.Records {
	return p.Records{
		p.RecordOf(map[string]any{"id": "1", "country": " fr", "category": "Music, Gaming", "subs": "10"}),
		p.RecordOf(map[string]any{"id": "2", "country": "US", "category": "Education", "subs": 30}),
		p.RecordOf(map[string]any{"id": "3", "country": "FR", "category": "Gaming", "subs": "n/a"}),
		p.RecordOf(map[string]any{"id": "4", "category": "Music"}),
	}
}

func ids(t *testing.T, res p.Result) []string {
	t.Helper()
	recs := res.(p.Records)
	out := []string{}
	for _, r := range recs {
		out = append(out, r.Str("id"))
	}
	return out
}

func TestFilters(t *testing.T) {
	lo, hi := 5.0, 20.0
	cases := []struct {
		name string
		op   p.Operation
		want []string
	}{
		{"func", &Func{Pred: func(r p.Record) bool { return r.Has("country") }}, []string{"1", "2", "3"}},
		{"eq number matches numeric text", &Eq{Field: "subs", Value: p.Number(10)}, []string{"1"}},
		{"eq string", &Eq{Field: "country", Value: p.String("FR")}, []string{"3"}},
		{"in folded", NewIn("country", []string{"fr"}, true), []string{"1", "3"}},
		{"in exact", NewIn("country", []string{"US", "FR"}, false), []string{"2", "3"}},
		{"contains", &Contains{Field: "category", Items: []string{"Gaming"}}, []string{"1", "3"}},
		{"contains any", &Contains{Field: "category", Items: []string{"Education", "Music"}}, []string{"1", "2", "4"}},
		{"range", &Range{Field: "subs", Min: &lo, Max: &hi}, []string{"1"}},
		{"range open", &Range{Field: "subs", Min: &lo}, []string{"1", "2"}},
	}
	for _, tc := range cases {
		res, err := tc.op.Apply(context.Background(), channels())
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := ids(t, res); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestFilterOnGroupsIsAShapeError(t *testing.T) {
	pl := p.NewPipeline(p.WithStrictShapes())
	pl.AddOperation("first", p.Func(func(ctx context.Context, in p.Result) (p.Result, error) {
		return p.NewGroups(), nil
	})).AddOperation("country", &Eq{Field: "country", Value: p.String("FR")})
	_, err := pl.Run(context.Background(), nil)
	var se *p.ShapeError
	if err == nil || !errors.As(err, &se) || se.Kind != "filter_eq" {
		t.Fatalf("expected shape error, got %v", err)
	}
}
