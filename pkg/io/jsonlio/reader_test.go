package jsonlio

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

func TestJSONLInferAndRead(t *testing.T) {
	path := filepath.FromSlash("../../../examples/data/channels.jsonl")
	r, f, err := Open(path, ReaderOptions{SampleRows: 10})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	keys, err := r.InferSchema()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 7 {
		t.Fatalf("expected 7 keys, got %v", keys)
	}
	recs, err := r.ReadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(recs))
	}
	// numeric strings in a numeric column become numbers
	if recs[1].Get("subscriber_count") != p.Number(350000) {
		t.Fatalf("got %#v", recs[1].Get("subscriber_count"))
	}
	if recs[2].Str("verified") != "true" || recs[0].Has("verified") {
		t.Fatalf("verified field: %v", recs[2].Map())
	}
}

func TestReadArray(t *testing.T) {
	in := `  [{"id":"a","n":1},{"id":"b","n":null,"tags":["x"]}]`
	r, err := NewReader(strings.NewReader(in), ReaderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := r.ReadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].Has("n") || recs[1].Str("tags") != `["x"]` {
		t.Fatalf("got %v", recs)
	}
}

type bufCloser struct{ bytes.Buffer }

func (*bufCloser) Close() error { return nil }

func TestWriter(t *testing.T) {
	out := &bufCloser{}
	w := NewWriter(out)
	err := w.Write(p.Records{p.RecordOf(map[string]any{"b": "x", "a": 2})})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "{\"a\":2,\"b\":\"x\"}\n" {
		t.Fatalf("got %q", out.String())
	}
}
