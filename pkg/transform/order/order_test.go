package order_test

import (
	"context"
	"reflect"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/filter"
	"github.com/wdm0006/chandash/pkg/transform/order"
)

func col(t *testing.T, res p.Result, field string) []string {
	t.Helper()
	recs, ok := res.(p.Records)
	if !ok {
		t.Fatalf("expected records, got %s", p.ShapeOf(res))
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Str(field)
	}
	return out
}

func TestScenarioFilterThenSortDescending(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(p.Records{
		p.RecordOf(map[string]any{"name": "a", "country": "FR", "subscribers": 10}),
		p.RecordOf(map[string]any{"name": "b", "country": "FR", "subscribers": 30}),
		p.RecordOf(map[string]any{"name": "c", "country": "US", "subscribers": 20}),
	})
	pl.AddOperation("countryFilter", &filter.Eq{Field: "country", Value: p.String("FR")}).
		AddOperation("sortBy", &order.SortBy{Field: "subscribers"})
	res, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := col(t, res, "subscribers"); !reflect.DeepEqual(got, []string{"30", "10"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSortBy(t *testing.T) {
	in := p.Records{
		p.RecordOf(map[string]any{"id": "1", "v": "b"}),
		p.RecordOf(map[string]any{"id": "2"}),
		p.RecordOf(map[string]any{"id": "3", "v": 5}),
		p.RecordOf(map[string]any{"id": "4", "v": "a"}),
		p.RecordOf(map[string]any{"id": "5", "v": "12"}),
		p.RecordOf(map[string]any{"id": "6", "v": 5}),
	}
	cases := []struct {
		asc  bool
		want []string
	}{
		{true, []string{"3", "6", "5", "4", "1", "2"}},
		{false, []string{"1", "4", "5", "3", "6", "2"}},
	}
	for _, tc := range cases {
		res, err := (&order.SortBy{Field: "v", Ascending: tc.asc}).Apply(context.Background(), in)
		if err != nil {
			t.Fatal(err)
		}
		if got := col(t, res, "id"); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ascending=%v: got %v want %v", tc.asc, got, tc.want)
		}
	}
	if got := col(t, in, "id"); !reflect.DeepEqual(got, []string{"1", "2", "3", "4", "5", "6"}) {
		t.Fatalf("input reordered: %v", got)
	}
}

func TestLimitBoundaries(t *testing.T) {
	in := p.Records{
		p.RecordOf(map[string]any{"id": "a"}),
		p.RecordOf(map[string]any{"id": "b"}),
		p.RecordOf(map[string]any{"id": "c"}),
	}
	cases := []struct {
		n    int
		want []string
	}{
		{0, []string{}},
		{-5, []string{}},
		{2, []string{"a", "b"}},
		{10, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		res, err := (&order.Limit{N: tc.n}).Apply(context.Background(), in)
		if err != nil {
			t.Fatal(err)
		}
		if got := col(t, res, "id"); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("limit(%d): got %v", tc.n, got)
		}
	}
}

func TestLimitPassesNonSequenceThrough(t *testing.T) {
	g := p.NewGroups()
	res, err := (&order.Limit{N: 1}).Apply(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	if res != p.Result(g) {
		t.Fatal("groups were not passed through")
	}
}
