package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

var sample = p.Records{
	p.RecordOf(map[string]any{"id": "a", "country": "FR", "subs": 10.0}),
	p.RecordOf(map[string]any{"id": "b", "country": "us", "subs": 30.0}),
	p.RecordOf(map[string]any{"id": "c", "country": "FR", "subs": 20.0}),
	p.RecordOf(map[string]any{"id": "d", "country": "JP", "subs": 5.0}),
}

const yamlChain = `
input:
  path: data/channels.csv
  format: csv
exclude: [top]
operations:
  - {name: onlyFRUS, kind: filter_in, field: country, values: [FR, US], fold: true}
  - {name: bySubs, kind: sort_by, field: subs, ascending: false}
  - {name: top, kind: limit, n: 1}
`

const jsonChain = `{
  "operations": [
    {"name": "big", "kind": "filter_range", "field": "subs", "min": 10},
    {"name": "byCountry", "kind": "group_by", "field": "country"},
    {"name": "total", "kind": "aggregate", "reducer": "sum", "field": "subs", "as_map": true}
  ]
}`

const tomlChain = `
exclude = []

[input]
path = "data/channels.jsonl"

[[operations]]
name = "eqFR"
kind = "filter_eq"
field = "country"
value = "FR"

[[operations]]
name = "asc"
kind = "sort_by"
field = "subs"
ascending = true
`

func ids(t *testing.T, r p.Result) string {
	t.Helper()
	recs, ok := r.(p.Records)
	if !ok {
		t.Fatalf("expected records, got %s", p.ShapeOf(r))
	}
	var b strings.Builder
	for _, rec := range recs {
		b.WriteString(rec.Str("id"))
	}
	return b.String()
}

func TestDecodeAndInstallYAML(t *testing.T) {
	cf, err := Decode(strings.NewReader(yamlChain), ".yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cf.Input.Path != "data/channels.csv" || len(cf.Operations) != 3 {
		t.Fatalf("decoded %+v", cf)
	}
	pl := p.NewPipeline()
	pl.SetData(sample)
	if err := Install(pl, cf.Operations); err != nil {
		t.Fatal(err)
	}
	out, err := pl.Run(context.Background(), cf.Exclude)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, out); got != "bca" {
		t.Fatalf("got %q", got)
	}
	out, _ = pl.Run(context.Background(), nil)
	if got := ids(t, out); got != "b" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeJSONAggregate(t *testing.T) {
	cf, err := Decode(strings.NewReader(jsonChain), ".json")
	if err != nil {
		t.Fatal(err)
	}
	pl := p.NewPipeline()
	pl.SetData(sample)
	if err := Install(pl, cf.Operations); err != nil {
		t.Fatal(err)
	}
	out, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := out.(*p.SummaryMap)
	if !ok {
		t.Fatalf("shape %s", p.ShapeOf(out))
	}
	fr, _ := sm.Get(p.String("FR"))
	us, _ := sm.Get(p.String("us"))
	if fr != 30.0 || us != 30.0 || sm.Len() != 2 {
		t.Fatalf("FR=%v us=%v len=%d", fr, us, sm.Len())
	}
}

func TestDecodeTOML(t *testing.T) {
	cf, err := Decode(strings.NewReader(tomlChain), ".toml")
	if err != nil {
		t.Fatal(err)
	}
	pl := p.NewPipeline()
	pl.SetData(sample)
	if err := Install(pl, cf.Operations); err != nil {
		t.Fatal(err)
	}
	out, err := pl.Run(context.Background(), cf.Exclude)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, out); got != "ac" {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	if _, err := Decode(strings.NewReader("{}"), ".xml"); !errors.Is(err, ErrUnknownEncoding) {
		t.Fatalf("expected ErrUnknownEncoding, got %v", err)
	}
	if _, err := Decode(strings.NewReader(`{"operatons": []}`), ".json"); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		def  Definition
		want error
	}{
		{Definition{Name: "x", Kind: "explode"}, ErrUnknownKind},
		{Definition{Name: "x", Kind: "sort_by"}, ErrInvalidDefinition},
		{Definition{Name: "x", Kind: "aggregate", Reducer: "mean"}, ErrInvalidDefinition},
		{Definition{Name: "x", Kind: "aggregate", Reducer: "p99", Field: "subs"}, ErrInvalidDefinition},
		{Definition{Name: "x", Kind: "regex_replace", Field: "id", Pattern: "("}, ErrInvalidDefinition},
		{Definition{Name: "x", Kind: "impute_median"}, ErrInvalidDefinition},
	}
	for _, c := range cases {
		if _, err := Compile(c.def); !errors.Is(err, c.want) {
			t.Fatalf("%+v: got %v want %v", c.def, err, c.want)
		}
	}
}

func TestInstallIsAllOrNothing(t *testing.T) {
	pl := p.NewPipeline()
	defs := []Definition{
		{Name: "ok", Kind: "limit", N: 2},
		{Name: "bad", Kind: "nope"},
	}
	if err := Install(pl, defs); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("got %v", err)
	}
	if pl.Len() != 0 {
		t.Fatalf("partial install: %v", pl.Names())
	}
	if err := Install(pl, []Definition{{Kind: "limit"}}); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("missing name accepted: %v", err)
	}
}

func TestDecodeDefinition(t *testing.T) {
	d, err := DecodeDefinition([]byte(`{"name":"n","kind":"filter_eq","field":"subs","value":20}`))
	if err != nil {
		t.Fatal(err)
	}
	op, err := Compile(d)
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.NewPipeline().Fold(context.Background(), sample, op)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, out); got != "c" {
		t.Fatalf("got %q", got)
	}
	if _, err := DecodeDefinition([]byte(`{"nme":"x"}`)); !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("got %v", err)
	}
}

func TestImputeDefinition(t *testing.T) {
	d, err := DecodeDefinition([]byte(`{"name":"fill","kind":"impute_mean","field":"subs","by":"country"}`))
	if err != nil {
		t.Fatal(err)
	}
	op, err := Compile(d)
	if err != nil {
		t.Fatal(err)
	}
	in := append(p.Records{p.RecordOf(map[string]any{"id": "e", "country": "FR"})}, sample...)
	out, err := p.NewPipeline().Fold(context.Background(), in, op)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.(p.Records)[0].Float("subs"); got != 15 {
		t.Fatalf("FR mean fill = %v", got)
	}
}

func TestExamplePresets(t *testing.T) {
	f, err := Load("../../examples/presets.yaml")
	if err != nil {
		t.Fatal(err)
	}
	pl := p.NewPipeline()
	pl.SetData(sample)
	if err := Install(pl, f.Operations); err != nil {
		t.Fatal(err)
	}
	if got := pl.Names(); len(got) != 2 || got[0] != "normCountry" {
		t.Fatalf("names = %v", got)
	}
}

func TestSortByDefaultsAscending(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(sample)
	if err := Install(pl, []Definition{{Name: "bySubs", Kind: "sort_by", Field: "subs"}}); err != nil {
		t.Fatal(err)
	}
	out, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, out); got != "dacb" {
		t.Fatalf("got %q", got)
	}
}
