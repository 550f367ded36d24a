// Package views computes render-ready models for the dashboard's charts from
// one shared pipeline. Each view keeps its own drill-down state and installs
// it as named filter operations that the other views exclude.
package views

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"

	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/filter"
)

// Dataset field names read by the views.
const (
	IDField         = "channel_id"
	NameField       = "channel_name"
	SubscriberField = "subscriber_count"
	VideoField      = "video_count"
	ViewField       = "view_count"
	CategoryField   = "category"
	CountryField    = "country"
	ThumbnailField  = "thumbnail"
)

// Names of the global filter operations.
const (
	CountryFilter  = "countryFilter"
	CategoryFilter = "categoryFilter"
)

// Unknown labels records with a blank country or category.
const Unknown = "Unknown"

// View names.
const (
	MapView       = "map"
	PieView       = "pie"
	HistogramView = "histogram"
	TreemapView   = "treemap"
	BubbleView    = "bubble"
)

// Views lists every view that owns a drill state.
var Views = []string{MapView, PieView, HistogramView, TreemapView, BubbleView}

// ErrUnknownView is returned for a view name not in Views.
var ErrUnknownView = errors.New("unknown view")

// Dashboard owns the shared pipeline and the drill state of every view.
type Dashboard struct {
	pl *p.Pipeline

	mu       sync.Mutex
	drills   map[string]*Drill
	features *geojson.FeatureCollection
	property string
	seed     uint64
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithFeatures sets the country shapes used by the map view.
func WithFeatures(fc *geojson.FeatureCollection, property string) Option {
	return func(d *Dashboard) { d.features, d.property = fc, property }
}

// WithSeed fixes the seed used to place channel markers.
func WithSeed(seed uint64) Option { return func(d *Dashboard) { d.seed = seed } }

func NewDashboard(pl *p.Pipeline, opts ...Option) *Dashboard {
	d := &Dashboard{pl: pl, drills: make(map[string]*Drill, len(Views)), seed: 1}
	for _, v := range Views {
		d.drills[v] = &Drill{}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Pipeline returns the shared pipeline.
func (d *Dashboard) Pipeline() *p.Pipeline { return d.pl }

// SetFeatures replaces the country shapes.
func (d *Dashboard) SetFeatures(fc *geojson.FeatureCollection, property string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.features, d.property = fc, property
}

func (d *Dashboard) shapes() (*geojson.FeatureCollection, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.features, d.property
}

func countryOp(country string) p.Operation {
	if country == Unknown {
		return &filter.Func{Pred: func(r p.Record) bool { return strings.TrimSpace(r.Str(CountryField)) == "" }}
	}
	return filter.NewIn(CountryField, []string{country}, true)
}

func categoryOp(category string) p.Operation {
	if category == Unknown {
		return &filter.Func{Pred: func(r p.Record) bool { return strings.TrimSpace(r.Str(CategoryField)) == "" }}
	}
	return &filter.Contains{Field: CategoryField, Items: []string{category}}
}

// SetCountries installs the global country filter, or removes it when no
// country is given.
func (d *Dashboard) SetCountries(countries []string) {
	d.pl.Update(func(tx *p.Tx) {
		if len(countries) == 0 {
			tx.Remove(CountryFilter)
			return
		}
		tx.Add(CountryFilter, filter.NewIn(CountryField, countries, true))
	})
}

// SetCategories installs the global category filter, or removes it when no
// category is given. A record matches when any of its listed categories is
// selected.
func (d *Dashboard) SetCategories(categories []string) {
	d.pl.Update(func(tx *p.Tx) {
		if len(categories) == 0 {
			tx.Remove(CategoryFilter)
			return
		}
		tx.Add(CategoryFilter, &filter.Contains{Field: CategoryField, Items: categories})
	})
}

// ClearFilters removes both global filters.
func (d *Dashboard) ClearFilters() {
	d.pl.Update(func(tx *p.Tx) {
		tx.Remove(CountryFilter)
		tx.Remove(CategoryFilter)
	})
}

func drillNames(view string) (country, category string) {
	return view + ".country", view + ".category"
}

// Drill applies ev to the view's state machine and installs the matching
// filter operations in one pipeline update.
func (d *Dashboard) Drill(view string, ev Event, value string) (Drill, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.drills[view]
	if !ok {
		return Drill{}, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	if err := st.Apply(ev, value); err != nil {
		return *st, err
	}
	cur := *st
	cn, kn := drillNames(view)
	d.pl.Update(func(tx *p.Tx) {
		tx.Remove(cn)
		tx.Remove(kn)
		if cur.Country != "" {
			tx.Add(cn, countryOp(cur.Country))
		}
		if cur.Category != "" {
			tx.Add(kn, categoryOp(cur.Category))
		}
	})
	return cur, nil
}

// State returns the view's drill state.
func (d *Dashboard) State(view string) (Drill, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.drills[view]
	if !ok {
		return Drill{}, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	return *st, nil
}

// Exclusions lists the drill operations owned by views other than view.
func Exclusions(view string) []string {
	out := make([]string, 0, 2*len(Views))
	for _, v := range Views {
		if v == view {
			continue
		}
		cn, kn := drillNames(v)
		out = append(out, cn, kn)
	}
	return out
}

// Records runs the shared pipeline for view: the global filters, any other
// registered operations and the view's own drill filters. The result must be
// a record sequence.
func (d *Dashboard) Records(ctx context.Context, view string) (p.Records, error) {
	if !slices.Contains(Views, view) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	res, err := d.pl.Run(ctx, Exclusions(view))
	if err != nil {
		return nil, err
	}
	recs, ok := res.(p.Records)
	if !ok {
		return nil, &p.ShapeError{Op: view, Kind: "view", Want: p.ShapeRecords, Got: p.ShapeOf(res)}
	}
	return recs, nil
}

func (d *Dashboard) rng() *rand.Rand {
	return rand.New(rand.NewPCG(d.seed, d.seed^0x9e3779b97f4a7c15))
}

// Categories splits a comma-separated category list into trimmed, non-empty
// names. A blank list yields Unknown.
func Categories(r p.Record) []string {
	var out []string
	for _, c := range strings.Split(r.Str(CategoryField), ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []string{Unknown}
	}
	return out
}

// MainCategory is the first listed category.
func MainCategory(r p.Record) string { return Categories(r)[0] }

func countryOf(r p.Record) string {
	c := strings.ToUpper(strings.TrimSpace(r.Str(CountryField)))
	if c == "" {
		return Unknown
	}
	return c
}

func channelName(r p.Record) string {
	if n := strings.TrimSpace(r.Str(NameField)); n != "" {
		return n
	}
	return "Unknown channel"
}

// subscribers reads the subscriber count, treating zero or unparseable
// values as 1 so sizes and ratios stay defined.
func subscribers(r p.Record) float64 {
	if v, ok := r.Num(SubscriberField); ok && v != 0 {
		return v
	}
	return 1
}
