// Package geo joins per-country channel statistics onto GeoJSON country
// shapes and places channels at plausible coordinates inside their country.
package geo

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	iox "github.com/wdm0006/chandash/pkg/io/ioutils"
	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// CountryProperty is the feature property holding the ISO 3166-1 alpha-2 code.
const CountryProperty = "ISO3166-1-Alpha-2"

// DefaultAttempts bounds the rejection sampling in RandomPoint.
const DefaultAttempts = 5000

// Metricer is implemented by summaries that expose named numeric metrics,
// such as reduce.Stats.
type Metricer interface {
	Metric(name string) (float64, bool)
}

// LoadFeatures reads a GeoJSON FeatureCollection from a local file
// (optionally gzip-compressed).
func LoadFeatures(ctx context.Context, path string) (*geojson.FeatureCollection, error) {
	rc, err := iox.OpenMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return fc, nil
}

// Names maps each country code found in property to the feature's name.
func Names(fc *geojson.FeatureCollection, property string) map[string]string {
	out := make(map[string]string, len(fc.Features))
	for _, f := range fc.Features {
		code := f.Properties.MustString(property, "")
		name := f.Properties.MustString("name", "")
		if code != "" && name != "" {
			out[code] = name
		}
	}
	return out
}

// Geometries maps country codes to their shapes. Features without the
// property are skipped; an empty code is kept.
func Geometries(fc *geojson.FeatureCollection, property string) map[string]orb.Geometry {
	out := make(map[string]orb.Geometry, len(fc.Features))
	for _, f := range fc.Features {
		code, ok := f.Properties[property].(string)
		if !ok || f.Geometry == nil {
			continue
		}
		out[code] = f.Geometry
	}
	return out
}

// Join returns a copy of fc whose features carry a "stats" property (the
// summary for their country code, absent when none) and a numeric "value"
// property holding the named metric (0 without data). The maximum metric
// value across the joined features is returned for colour scaling.
func Join(fc *geojson.FeatureCollection, stats *p.SummaryMap, property, metric string) (*geojson.FeatureCollection, float64) {
	out := geojson.NewFeatureCollection()
	var peak float64
	for _, f := range fc.Features {
		nf := geojson.NewFeature(f.Geometry)
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		if nf.Properties == nil {
			nf.Properties = geojson.Properties{}
		}
		value := 0.0
		code, _ := f.Properties[property].(string)
		if s, ok := stats.Get(p.String(code)); ok {
			nf.Properties["stats"] = s
			if m, ok := s.(Metricer); ok {
				value, _ = m.Metric(metric)
			}
		}
		nf.Properties["value"] = value
		if value > peak {
			peak = value
		}
		out.Append(nf)
	}
	return out, peak
}

var (
	palette    = []string{"#ffffff", "#fee5d9", "#fcbba1", "#fc9272", "#fb6a4a", "#ef3b2c", "#cb181d", "#a50f15", "#67000d"}
	thresholds = []float64{0, 0.02, 0.05, 0.09, 0.15, 0.25, 0.40, 0.60, 0.80, 1.0}
)

// ColorScale buckets value/peak into the choropleth palette.
func ColorScale(value, peak float64) string {
	if value == 0 || peak == 0 {
		return palette[0]
	}
	ratio := value / peak
	for i := 0; i < len(thresholds)-1; i++ {
		if ratio >= thresholds[i] && ratio < thresholds[i+1] {
			return palette[i]
		}
	}
	return palette[len(palette)-1]
}

// Contains reports whether pt lies inside g. Non-areal geometries fall back
// to their bounding box.
func Contains(g orb.Geometry, pt orb.Point) bool {
	switch t := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(t, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(t, pt)
	case orb.Bound:
		return t.Contains(pt)
	default:
		return g.Bound().Contains(pt)
	}
}

// RandomPoint samples the bounding box of g until a point falls inside it.
// After attempts misses it tries the centroid jittered by half a degree, and
// finally returns the centroid jittered by a tenth of a degree.
func RandomPoint(rng *rand.Rand, g orb.Geometry, attempts int) orb.Point {
	b := g.Bound()
	for i := 0; i < attempts; i++ {
		pt := orb.Point{
			b.Min[0] + rng.Float64()*(b.Max[0]-b.Min[0]),
			b.Min[1] + rng.Float64()*(b.Max[1]-b.Min[1]),
		}
		if Contains(g, pt) {
			return pt
		}
	}
	c, _ := planar.CentroidArea(g)
	pt := orb.Point{c[0] + jitter(rng, 0.5), c[1] + jitter(rng, 0.5)}
	if Contains(g, pt) {
		return pt
	}
	return orb.Point{c[0] + jitter(rng, 0.1), c[1] + jitter(rng, 0.1)}
}

func jitter(rng *rand.Rand, d float64) float64 { return (rng.Float64()*2 - 1) * d }

// Field names written by PlaceChannels.
const (
	LatitudeField  = "latitude"
	LongitudeField = "longitude"
)

// PlaceChannels adds latitude and longitude to every record whose country
// (read from countryField, trimmed) has a shape. Other records are returned
// unchanged. The input is not modified.
func PlaceChannels(ctx context.Context, recs p.Records, shapes map[string]orb.Geometry, countryField string, rng *rand.Rand) (p.Records, error) {
	out := make(p.Records, len(recs))
	for i, r := range recs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g, ok := shapes[strings.TrimSpace(r.Str(countryField))]
		if !ok {
			out[i] = r
			continue
		}
		pt := RandomPoint(rng, g, DefaultAttempts)
		out[i] = r.With(LongitudeField, p.Number(pt[0])).With(LatitudeField, p.Number(pt[1]))
	}
	return out, nil
}
