package impute

import (
	"context"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

func largeRecords(n int) p.Records {
	recs := make(p.Records, n)
	for i := range recs {
		fields := map[string]any{"country": []string{"FR", "US", "JP"}[i%3]}
		if i%2 == 0 {
			fields["subs"] = float64(i % 10)
		}
		recs[i] = p.RecordOf(fields)
	}
	return recs
}

func BenchmarkImputeMean(b *testing.B) {
	base := largeRecords(10000)
	op := &Mean{Field: "subs", By: "country"}
	for n := 0; n < b.N; n++ {
		if _, err := op.Apply(context.Background(), base); err != nil {
			b.Fatal(err)
		}
	}
}
