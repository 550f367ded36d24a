package project

import (
	"context"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

func TestNormalizeAndDefault(t *testing.T) {
	in := p.Records{
		p.RecordOf(map[string]any{"country": "  fr "}),
		p.RecordOf(map[string]any{"country": "  "}),
		p.RecordOf(map[string]any{}),
	}
	pl := p.NewPipeline()
	pl.SetData(in)
	pl.AddOperation("norm", &Normalize{Field: "country", Upper: true}).
		AddOperation("unknown", &Default{Field: "country", Value: p.String("Unknown")})
	res, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	recs := res.(p.Records)
	want := []string{"FR", "Unknown", "Unknown"}
	for i, r := range recs {
		if r.Str("country") != want[i] {
			t.Fatalf("row %d: got %q want %q", i, r.Str("country"), want[i])
		}
	}
	if in[0].Str("country") != "  fr " {
		t.Fatal("source record mutated")
	}
}

func TestMapValues(t *testing.T) {
	in := p.Records{
		p.RecordOf(map[string]any{"country": "FR"}),
		p.RecordOf(map[string]any{"country": "ZZ"}),
	}
	op := &MapValues{Field: "country", Target: "country_name", Mapping: map[string]string{"FR": "France"}, Fallback: "Unknown Country"}
	res, err := op.Apply(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	recs := res.(p.Records)
	if recs[0].Str("country_name") != "France" || recs[1].Str("country_name") != "Unknown Country" {
		t.Fatalf("got %v / %v", recs[0].Map(), recs[1].Map())
	}
	if recs[1].Str("country") != "ZZ" {
		t.Fatal("source field overwritten")
	}
}

func TestDeriveAndMap(t *testing.T) {
	in := p.Records{p.RecordOf(map[string]any{"views": "100", "subs": 4})}
	derive := &Derive{Field: "ratio", Fn: func(r p.Record) p.Value {
		return p.Number(r.Float("views") / r.Float("subs"))
	}}
	strip := &Map{Fn: func(r p.Record) p.Record { return r.With("views", p.Missing) }}
	pl := p.NewPipeline()
	out, err := pl.Fold(context.Background(), in, derive, strip)
	if err != nil {
		t.Fatal(err)
	}
	r := out.(p.Records)[0]
	if r.Float("ratio") != 25 || r.Has("views") {
		t.Fatalf("got %v", r.Map())
	}
}

func TestRegexReplaceAndClamp(t *testing.T) {
	in := p.Records{p.RecordOf(map[string]any{"name": "Foo  Bar", "v": 250})}
	rr, err := NewRegexReplace("name", `\s+`, " ")
	if err != nil {
		t.Fatal(err)
	}
	hi := 100.0
	out, err := p.NewPipeline().Fold(context.Background(), in, rr, &Clamp{Field: "v", Max: &hi})
	if err != nil {
		t.Fatal(err)
	}
	r := out.(p.Records)[0]
	if r.Str("name") != "Foo Bar" || r.Float("v") != 100 {
		t.Fatalf("got %v", r.Map())
	}
	if _, err := NewRegexReplace("name", "(", ""); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestMapToArbitraryValues(t *testing.T) {
	in := p.Records{
		p.RecordOf(map[string]any{"channel_id": "a", "subs": 10}),
		p.RecordOf(map[string]any{"channel_id": "b", "subs": "30"}),
	}
	pl := p.NewPipeline()
	pl.SetData(in)
	pl.AddOperation("subs", &MapTo{Fn: func(r p.Record) any { return r.Float("subs") }})
	res, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	vals, ok := res.(p.Values)
	if !ok {
		t.Fatalf("shape %s", p.ShapeOf(res))
	}
	if len(vals) != 2 || vals[0] != 10.0 || vals[1] != 30.0 {
		t.Fatalf("got %v", vals)
	}
	rows := p.Tabulate(res)
	if rows[1].Float("value") != 30 {
		t.Fatalf("tabulated %v", rows[1].Get("value"))
	}
}
