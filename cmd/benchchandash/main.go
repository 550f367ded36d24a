// Command benchchandash measures pipeline and view throughput on a synthetic
// channel dataset.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"runtime"
	"time"

	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/impute"
	"github.com/wdm0006/chandash/pkg/transform/order"
	"github.com/wdm0006/chandash/pkg/transform/project"
	"github.com/wdm0006/chandash/pkg/views"
)

var (
	countries  = []string{"US", "IN", "BR", "GB", "JP", "FR", "DE", "KR", "MX", "ID", " us", ""}
	categories = []string{"Music", "Gaming", "Education", "Food, Travel", "Comedy, Entertainment", "Sports", ""}
)

// generate builds n channels; each numeric cell is missing with probability missp.
func generate(n int, missp float64, seed uint64) p.Records {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	recs := make(p.Records, n)
	for i := range recs {
		f := map[string]any{
			views.IDField:       fmt.Sprintf("UC%08d", i),
			views.NameField:     fmt.Sprintf("Channel %d", i),
			views.CountryField:  countries[rng.IntN(len(countries))],
			views.CategoryField: categories[rng.IntN(len(categories))],
		}
		if rng.Float64() >= missp {
			f[views.SubscriberField] = float64(rng.IntN(50_000_000))
		}
		if rng.Float64() >= missp {
			f[views.VideoField] = float64(rng.IntN(5_000))
		}
		if rng.Float64() >= missp {
			f[views.ViewField] = float64(rng.IntN(2_000_000_000))
		}
		recs[i] = p.RecordOf(f)
	}
	return recs
}

type timing struct {
	Name    string  `json:"name"`
	Elapsed float64 `json:"elapsed_ms"`
}

func measure(name string, fn func() error) (timing, error) {
	start := time.Now()
	err := fn()
	return timing{Name: name, Elapsed: float64(time.Since(start).Microseconds()) / 1000}, err
}

// bench installs a cleaning chain and times a full run plus every view model.
func bench(ctx context.Context, recs p.Records) ([]timing, error) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pl := p.NewPipeline(p.WithLogger(log))
	pl.SetData(recs)
	pl.Update(func(tx *p.Tx) {
		tx.Add("normCountry", &project.Normalize{Field: views.CountryField, Upper: true})
		tx.Add("fillSubs", &impute.Median{Field: views.SubscriberField, By: views.CountryField})
		tx.Add("bySubs", &order.SortBy{Field: views.SubscriberField})
	})
	d := views.NewDashboard(pl)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"run", func() error { _, err := pl.Run(ctx, nil); return err }},
		{"country_stats", func() error { _, err := d.CountryStats(ctx); return err }},
		{"world_stats", func() error { _, err := d.WorldStats(ctx); return err }},
		{"pie", func() error { _, err := d.Pie(ctx); return err }},
		{"engagement", func() error { _, err := d.Engagement(ctx); return err }},
		{"treemap", func() error { _, err := d.Treemap(ctx); return err }},
		{"bubble", func() error { _, err := d.Bubble(ctx); return err }},
		{"drill_country", func() error {
			if _, err := d.Drill(views.TreemapView, views.SelectCountry, "US"); err != nil {
				return err
			}
			_, err := d.Treemap(ctx)
			return err
		}},
	}
	out := make([]timing, 0, len(steps))
	for _, s := range steps {
		t, err := measure(s.name, s.fn)
		if err != nil {
			return out, fmt.Errorf("%s: %w", s.name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func main() {
	var (
		rows    = flag.Int("rows", 200_000, "channels to generate")
		missp   = flag.Float64("missing", 0.05, "probability of a missing numeric cell")
		jsonOut = flag.Bool("json", false, "emit JSON summary")
		seed    = flag.Uint64("seed", 42, "random seed")
	)
	flag.Parse()

	recs := generate(*rows, *missp, *seed)

	runtime.GC()
	var msBefore, msAfter runtime.MemStats
	runtime.ReadMemStats(&msBefore)
	start := time.Now()
	timings, err := bench(context.Background(), recs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	elapsed := time.Since(start)
	runtime.ReadMemStats(&msAfter)

	summary := map[string]any{
		"rows":                  *rows,
		"elapsed_ms":            elapsed.Milliseconds(),
		"steps":                 timings,
		"mem_alloc_bytes":       msAfter.Alloc,
		"mem_total_alloc_bytes": msAfter.TotalAlloc - msBefore.TotalAlloc,
		"gc_num":                msAfter.NumGC - msBefore.NumGC,
		"missing_prob":          *missp,
	}
	if *jsonOut {
		b, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Printf("Rows: %d\n", *rows)
	for _, t := range timings {
		fmt.Printf("  %-14s %10.3f ms\n", t.Name, t.Elapsed)
	}
	fmt.Printf("Elapsed: %s\n", elapsed)
	fmt.Printf("Total Alloc (delta): %d MB\n", (msAfter.TotalAlloc-msBefore.TotalAlloc)/1024/1024)
	fmt.Printf("GC cycles (delta): %d\n", msAfter.NumGC-msBefore.NumGC)
}
