package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

func channels() p.Records {
	return p.Records{
		p.RecordOf(map[string]any{"channel_id": "a", "country": "FR", "subscriber_count": 10}),
		p.RecordOf(map[string]any{"channel_id": "b", "country": "FR", "subscriber_count": 30}),
		p.RecordOf(map[string]any{"channel_id": "c", "country": "US", "subscriber_count": 20}),
	}
}

func keep(field, want string) p.Operation {
	return p.Func(func(ctx context.Context, in p.Result) (p.Result, error) {
		recs := in.(p.Records)
		var out p.Records
		for _, r := range recs {
			if r.Str(field) == want {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

func sortDesc(field string) p.Operation {
	return p.Func(func(ctx context.Context, in p.Result) (p.Result, error) {
		out := in.(p.Records).Clone()
		sort.SliceStable(out, func(i, j int) bool { return out[i].Float(field) > out[j].Float(field) })
		return out, nil
	})
}

func take(n int) p.Operation {
	return p.Func(func(ctx context.Context, in p.Result) (p.Result, error) {
		recs := in.(p.Records)
		if n < len(recs) {
			recs = recs[:n]
		}
		return recs, nil
	})
}

func ids(t *testing.T, res p.Result) []string {
	t.Helper()
	recs, ok := res.(p.Records)
	if !ok {
		t.Fatalf("expected records, got %s", p.ShapeOf(res))
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Str("channel_id")
	}
	return out
}

func TestRunFilterThenSort(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("countryFilter", keep("country", "FR")).AddOperation("sortBy", sortDesc("subscriber_count"))
	res, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, res); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("got %v", got)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("sortBy", sortDesc("subscriber_count"))
	a, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("runs differ: %v vs %v", a, b)
	}
	// the source order is untouched by the sort
	if got := ids(t, pl.Data()); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("dataset mutated: %v", got)
	}
}

func TestOrderSensitivity(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		first   p.Operation
		second  p.Operation
		commute bool
	}{
		{"filter and sort commute", keep("country", "FR"), sortDesc("subscriber_count"), true},
		{"filter and limit do not", keep("country", "US"), take(1), false},
	}
	for _, tc := range cases {
		fwd := p.NewPipeline()
		fwd.SetData(channels())
		fwd.AddOperation("A", tc.first).AddOperation("B", tc.second)
		rev := p.NewPipeline()
		rev.SetData(channels())
		rev.AddOperation("B", tc.second).AddOperation("A", tc.first)

		a, err := fwd.Run(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		b, err := rev.Run(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if eq := reflect.DeepEqual(ids(t, a), ids(t, b)); eq != tc.commute {
			t.Fatalf("%s: forward %v reverse %v", tc.name, ids(t, a), ids(t, b))
		}
	}
}

func TestOverwriteKeepsPosition(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("filter", keep("country", "US")).AddOperation("limit", take(5))
	pl.AddOperation("filter", keep("country", "FR"))
	if got := pl.Names(); !reflect.DeepEqual(got, []string{"filter", "limit"}) {
		t.Fatalf("order changed: %v", got)
	}
	res, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, res); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("filter", keep("country", "FR"))
	rev := pl.Revision()
	pl.RemoveOperation("missing")
	if pl.Revision() != rev {
		t.Fatal("revision bumped by a no-op removal")
	}
	res, err := pl.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, res); len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	pl.RemoveOperation("filter")
	if pl.Len() != 0 {
		t.Fatalf("expected empty set, got %v", pl.Names())
	}
}

func TestRunExclusion(t *testing.T) {
	ctx := context.Background()
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("countryFilter", keep("country", "FR")).
		AddOperation("sortBy", sortDesc("subscriber_count")).
		AddOperation("topK", take(1))

	res, err := pl.Run(ctx, []string{"countryFilter"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, res); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("got %v", got)
	}
	res, err = pl.Run(ctx, []string{"countryFilter", "topK", "unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, res); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("got %v", got)
	}

	all, _ := pl.Run(ctx, nil)
	empty, _ := pl.Run(ctx, []string{})
	if !reflect.DeepEqual(all, empty) {
		t.Fatalf("run([]) %v differs from run(nil) %v", empty, all)
	}
}

func TestParseSelection(t *testing.T) {
	cases := []struct {
		in      string
		want    []string
		invalid bool
	}{
		{"", nil, false},
		{"null", nil, false},
		{"[]", []string{}, false},
		{`["a","b"]`, []string{"a", "b"}, false},
		{`"a"`, nil, true},
		{`{"a":1}`, nil, true},
		{`[1,2]`, nil, true},
		{`["a",""]`, nil, true},
	}
	for _, tc := range cases {
		got, err := p.ParseSelection([]byte(tc.in))
		if tc.invalid {
			if !errors.Is(err, p.ErrInvalidSelection) {
				t.Fatalf("%q: expected invalid selection, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%q: got %#v want %#v", tc.in, got, tc.want)
		}
	}
}

func TestInvalidSelectionLeavesStateAlone(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("countryFilter", keep("country", "FR"))
	rev := pl.Revision()
	if _, err := pl.RunSelection(context.Background(), []byte(`42`)); !errors.Is(err, p.ErrInvalidSelection) {
		t.Fatalf("expected invalid selection, got %v", err)
	}
	if _, err := pl.Run(context.Background(), []string{""}); !errors.Is(err, p.ErrInvalidSelection) {
		t.Fatalf("expected invalid selection, got %v", err)
	}
	if pl.Revision() != rev || pl.Len() != 1 {
		t.Fatal("pipeline state changed by a rejected run")
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	pl := p.NewPipeline()
	pl.AddOperation("a", take(1))
	rev := pl.Revision()
	pl.Update(func(tx *p.Tx) {
		tx.Remove("a")
		tx.Add("b", take(2))
		if !tx.Has("b") || tx.Has("a") {
			t.Fatal("tx view out of date")
		}
	})
	if pl.Revision() != rev+1 {
		t.Fatalf("expected one revision bump, got %d -> %d", rev, pl.Revision())
	}
	if got := pl.Names(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("countryFilter", keep("country", "FR"))
	snap := pl.Snapshot()
	pl.ClearOperations().AddOperation("topK", take(1))
	pl.Restore(snap)
	if got := pl.Operations(); !reflect.DeepEqual(got, []p.OperationInfo{{Name: "countryFilter", Kind: "func"}}) {
		t.Fatalf("got %v", got)
	}
}

func TestFoldLeavesRegistryAlone(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("countryFilter", keep("country", "FR"))
	res, err := pl.Fold(context.Background(), pl.Data(), keep("country", "US"))
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(t, res); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("got %v", got)
	}
	if pl.Len() != 1 {
		t.Fatal("fold touched the registry")
	}
}

type stubLoader struct {
	recs p.Records
	err  error
}

func (s stubLoader) Load(ctx context.Context, path, format string) (p.Records, error) {
	if format != "csv" {
		return nil, p.ErrUnsupportedFormat
	}
	return s.recs, s.err
}

func TestLoadKeepsOperationsAndOldDataOnFailure(t *testing.T) {
	ctx := context.Background()
	pl := p.NewPipeline(p.WithLoader(stubLoader{recs: channels()}))
	pl.AddOperation("countryFilter", keep("country", "FR"))
	if err := pl.Load(ctx, "channels.csv", "csv"); err != nil {
		t.Fatal(err)
	}
	if pl.Len() != 1 || len(pl.Data()) != 3 {
		t.Fatalf("unexpected state after load: %d ops, %d records", pl.Len(), len(pl.Data()))
	}

	err := pl.Load(ctx, "channels.xml", "xml")
	var le *p.LoadError
	if !errors.As(err, &le) || !errors.Is(err, p.ErrUnsupportedFormat) {
		t.Fatalf("expected LoadError wrapping unsupported format, got %v", err)
	}
	if le.Format != "xml" {
		t.Fatalf("format not recorded: %+v", le)
	}
	if len(pl.Data()) != 3 {
		t.Fatal("failed load replaced the dataset")
	}

	if err := p.NewPipeline().Load(ctx, "x", "csv"); !errors.Is(err, p.ErrNoLoader) {
		t.Fatalf("expected ErrNoLoader, got %v", err)
	}
}

func wantGroups() p.Operation {
	return p.Func(func(ctx context.Context, in p.Result) (p.Result, error) {
		if _, ok := in.(*p.Groups); !ok {
			return p.Mismatch(ctx, "aggregate", p.ShapeGroups, in)
		}
		return p.Summaries{}, nil
	})
}

func TestShapeMismatchPolicy(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	soft := p.NewPipeline(p.WithLogger(log))
	soft.SetData(channels())
	soft.AddOperation("agg", wantGroups())
	res, err := soft.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids(t, res)) != 3 {
		t.Fatal("input not passed through")
	}
	if !strings.Contains(buf.String(), "op=agg") {
		t.Fatalf("warning not logged: %q", buf.String())
	}

	strict := p.NewPipeline(p.WithStrictShapes())
	strict.SetData(channels())
	strict.AddOperation("agg", wantGroups())
	_, err = strict.Run(context.Background(), nil)
	var se *p.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
	if se.Op != "agg" || se.Want != p.ShapeGroups || se.Got != p.ShapeRecords {
		t.Fatalf("unexpected error fields: %+v", se)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pl := p.NewPipeline()
	pl.AddOperation("a", take(1))
	if _, err := pl.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type memSink struct {
	got    p.Records
	closed bool
}

func (m *memSink) Write(r p.Records) error { m.got = append(m.got, r...); return nil }
func (m *memSink) Close() error            { m.closed = true; return nil }

func TestRunToTabulatesGroups(t *testing.T) {
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("group", p.Func(func(ctx context.Context, in p.Result) (p.Result, error) {
		g := p.NewGroups()
		for _, r := range in.(p.Records) {
			cur, _ := g.Get(r.Get("country"))
			g.Set(r.Get("country"), append(cur, r))
		}
		return g, nil
	}))
	sink := &memSink{}
	if err := p.RunTo(context.Background(), pl, nil, sink); err != nil {
		t.Fatal(err)
	}
	if !sink.closed || len(sink.got) != 3 {
		t.Fatalf("sink state: closed=%v rows=%d", sink.closed, len(sink.got))
	}
	if sink.got[2].Str("group") != "US" {
		t.Fatalf("group field missing: %v", sink.got[2].Map())
	}
}

func TestRunResultDoesNotAliasDataset(t *testing.T) {
	ctx := context.Background()
	pl := p.NewPipeline()
	pl.SetData(channels())

	res, err := pl.Run(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	res.(p.Records)[0] = p.RecordOf(map[string]any{"channel_id": "z"})
	res, _ = pl.Run(ctx, nil)
	if got := ids(t, res); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("empty chain: next run = %v", got)
	}

	pl.AddOperation("all", take(100))
	res, _ = pl.Run(ctx, nil)
	res.(p.Records)[1] = p.RecordOf(map[string]any{"channel_id": "z"})
	if got := ids(t, pl.Data()); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("pass-through chain: dataset = %v", got)
	}
}

func TestRunAtReportsRevision(t *testing.T) {
	ctx := context.Background()
	pl := p.NewPipeline()
	pl.SetData(channels())
	pl.AddOperation("fr", keep("country", "FR"))

	res, rev, err := pl.RunAt(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rev != pl.Revision() || len(ids(t, res)) != 2 {
		t.Fatalf("rev=%d revision=%d ids=%v", rev, pl.Revision(), ids(t, res))
	}
	pl.RemoveOperation("fr")
	if _, next, _ := pl.RunAt(ctx, nil); next <= rev {
		t.Fatalf("revision did not advance: %d -> %d", rev, next)
	}
	if _, _, err := pl.RunAt(ctx, []string{""}); !errors.Is(err, p.ErrInvalidSelection) {
		t.Fatalf("err = %v", err)
	}
}
