package views

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/paulmach/orb/geojson"

	"github.com/wdm0006/chandash/pkg/geo"
	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/group"
	"github.com/wdm0006/chandash/pkg/transform/order"
	"github.com/wdm0006/chandash/pkg/transform/project"
	"github.com/wdm0006/chandash/pkg/transform/reduce"
)

// ErrNoFeatures is returned by the choropleth when no shapes are loaded.
var ErrNoFeatures = errors.New("no country features loaded")

// Metrics the choropleth can colour by.
var Metrics = []string{"avgSubscribers", "totalSubscribers", "avgVideos", "totalVideos", "channelCount"}

// CountryStats aggregates the map view's records into channel statistics per
// upper-cased country code.
func (d *Dashboard) CountryStats(ctx context.Context) (*p.SummaryMap, error) {
	recs, err := d.Records(ctx, MapView)
	if err != nil {
		return nil, err
	}
	res, err := d.pl.Fold(ctx, recs,
		&project.Normalize{Field: CountryField, Upper: true},
		&group.GroupBy{Field: CountryField},
		&group.Aggregate{Reducer: reduce.ChannelStats(), AsMap: true},
	)
	if err != nil {
		return nil, err
	}
	return res.(*p.SummaryMap), nil
}

// WorldStats summarises the whole dataset, ignoring every registered
// operation.
func (d *Dashboard) WorldStats(ctx context.Context) (reduce.Stats, error) {
	res, err := d.pl.Fold(ctx, d.pl.Data(),
		&group.GroupBy{},
		&group.Aggregate{Reducer: reduce.WorldStats(), AsMap: true},
	)
	if err != nil {
		return reduce.Stats{}, err
	}
	s, ok := res.(*p.SummaryMap).Get(p.Missing)
	if !ok {
		return reduce.Stats{}, nil
	}
	return s.(reduce.Stats), nil
}

// TopChannels ranks the whole dataset by subscribers, optionally restricted
// to one country, and keeps the first n.
func (d *Dashboard) TopChannels(ctx context.Context, country string, n int) (p.Records, error) {
	ops := []p.Operation{}
	if country != "" {
		ops = append(ops, countryOp(country))
	}
	ops = append(ops, &order.SortBy{Field: SubscriberField}, &order.Limit{N: n})
	res, err := d.pl.Fold(ctx, d.pl.Data(), ops...)
	if err != nil {
		return nil, err
	}
	return res.(p.Records), nil
}

// ChannelIndex maps channel ids to their records across the whole dataset.
func (d *Dashboard) ChannelIndex(ctx context.Context) (*p.Index, error) {
	res, err := d.pl.Fold(ctx, d.pl.Data(), &group.IndexByKey{Field: IDField})
	if err != nil {
		return nil, err
	}
	return res.(*p.Index), nil
}

// Choropleth is the joined country layer plus the scale maximum.
type Choropleth struct {
	Metric   string                     `json:"metric"`
	Max      float64                    `json:"max"`
	Features *geojson.FeatureCollection `json:"features"`
}

// Choropleth joins CountryStats onto the country shapes and colours each
// feature by metric. An empty metric means the first of Metrics; any other
// name outside Metrics fails with pipeline.ErrInvalidSelection.
func (d *Dashboard) Choropleth(ctx context.Context, metric string) (*Choropleth, error) {
	if metric == "" {
		metric = Metrics[0]
	}
	if !slices.Contains(Metrics, metric) {
		return nil, fmt.Errorf("%w: unknown metric %q", p.ErrInvalidSelection, metric)
	}
	fc, prop := d.shapes()
	if fc == nil {
		return nil, ErrNoFeatures
	}
	stats, err := d.CountryStats(ctx)
	if err != nil {
		return nil, err
	}
	joined, peak := geo.Join(fc, stats, prop, metric)
	for _, f := range joined.Features {
		v, _ := f.Properties["value"].(float64)
		f.Properties["fill"] = geo.ColorScale(v, peak)
	}
	return &Choropleth{Metric: metric, Max: peak, Features: joined}, nil
}

// Marker is a channel placed on the map.
type Marker struct {
	ChannelID string  `json:"channelId"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Markers places the map view's channels inside their country. Channels
// whose country has no shape are skipped. Placement is deterministic for a
// given seed and dataset.
func (d *Dashboard) Markers(ctx context.Context) ([]Marker, error) {
	fc, prop := d.shapes()
	if fc == nil {
		return nil, ErrNoFeatures
	}
	recs, err := d.Records(ctx, MapView)
	if err != nil {
		return nil, err
	}
	placed, err := geo.PlaceChannels(ctx, recs, geo.Geometries(fc, prop), CountryField, d.rng())
	if err != nil {
		return nil, err
	}
	out := make([]Marker, 0, len(placed))
	for _, r := range placed {
		lat, ok := r.Num(geo.LatitudeField)
		if !ok {
			continue
		}
		out = append(out, Marker{
			ChannelID: r.Str(IDField),
			Name:      channelName(r),
			Country:   countryOf(r),
			Latitude:  lat,
			Longitude: r.Float(geo.LongitudeField),
		})
	}
	return out, nil
}
