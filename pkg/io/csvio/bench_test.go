package csvio

import (
	"context"
	"path/filepath"
	"testing"
)

func BenchmarkReadChannels(b *testing.B) {
	path := filepath.FromSlash("../../../examples/data/channels.csv")
	for n := 0; n < b.N; n++ {
		r, f, err := Open(path, ReaderOptions{HasHeader: true})
		if err != nil {
			b.Fatal(err)
		}
		recs, err := r.ReadAll(context.Background())
		if err != nil {
			b.Fatal(err)
		}
		if len(recs) == 0 {
			b.Fatal("no rows")
		}
		_ = f.Close()
	}
}
