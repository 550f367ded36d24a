// Package project holds record-wise operations: each maps every record of a
// sequence to a new record and keeps the order.
package project

import (
	"context"
	"regexp"
	"strings"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

func each(ctx context.Context, kind string, in p.Result, fn func(p.Record) p.Record) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, kind, p.ShapeRecords, in)
	}
	out := make(p.Records, len(recs))
	for i, r := range recs {
		out[i] = fn(r)
	}
	return out, nil
}

// Map projects each record through Fn.
type Map struct{ Fn func(p.Record) p.Record }

func (t *Map) Kind() string { return "map" }

func (t *Map) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return each(ctx, t.Kind(), in, t.Fn)
}

// MapTo projects each record to an arbitrary value. The result is a
// pipeline.Values sequence in input order, which later record operations
// see as a shape mismatch.
type MapTo struct{ Fn func(p.Record) any }

func (t *MapTo) Kind() string { return "map_to" }

func (t *MapTo) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	recs, ok := in.(p.Records)
	if !ok {
		return p.Mismatch(ctx, t.Kind(), p.ShapeRecords, in)
	}
	out := make(p.Values, len(recs))
	for i, r := range recs {
		out[i] = t.Fn(r)
	}
	return out, nil
}

// Derive sets Field to Fn(record).
type Derive struct {
	Field string
	Fn    func(p.Record) p.Value
}

func (t *Derive) Kind() string { return "derive" }

func (t *Derive) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return each(ctx, t.Kind(), in, func(r p.Record) p.Record { return r.With(t.Field, t.Fn(r)) })
}

// Normalize trims a string field and optionally upper-cases it. Numbers and
// missing values are left alone.
type Normalize struct {
	Field string
	Upper bool
}

func (t *Normalize) Kind() string { return "normalize" }

func (t *Normalize) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return each(ctx, t.Kind(), in, func(r p.Record) p.Record {
		v := r.Get(t.Field)
		if v.Kind() != p.KindString {
			return r
		}
		s := strings.TrimSpace(v.Str())
		if t.Upper {
			s = strings.ToUpper(s)
		}
		return r.With(t.Field, p.String(s))
	})
}

// Default fills Field with Value where it is missing or blank.
type Default struct {
	Field string
	Value p.Value
}

func (t *Default) Kind() string { return "default" }

func (t *Default) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return each(ctx, t.Kind(), in, func(r p.Record) p.Record {
		v := r.Get(t.Field)
		if !v.IsMissing() && strings.TrimSpace(v.Str()) != "" {
			return r
		}
		return r.With(t.Field, t.Value)
	})
}

// MapValues replaces Field's text through Mapping and stores it in Target
// (Field when empty). Unmapped values get Fallback when it is set and are
// otherwise copied unchanged.
type MapValues struct {
	Field    string
	Target   string
	Mapping  map[string]string
	Fallback string
}

func (t *MapValues) Kind() string { return "map_values" }

func (t *MapValues) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	target := t.Target
	if target == "" {
		target = t.Field
	}
	return each(ctx, t.Kind(), in, func(r p.Record) p.Record {
		v := r.Get(t.Field)
		if nv, ok := t.Mapping[v.Str()]; ok {
			return r.With(target, p.String(nv))
		}
		if t.Fallback != "" {
			return r.With(target, p.String(t.Fallback))
		}
		return r.With(target, v)
	})
}

// RegexReplace rewrites a string field with Pattern -> Replace.
type RegexReplace struct {
	Field   string
	Pattern string
	Replace string
	re      *regexp.Regexp
}

func NewRegexReplace(field, pattern, replace string) (*RegexReplace, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexReplace{Field: field, Pattern: pattern, Replace: replace, re: re}, nil
}

func (t *RegexReplace) Kind() string { return "regex_replace" }

func (t *RegexReplace) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	re := t.re
	if re == nil {
		var err error
		if re, err = regexp.Compile(t.Pattern); err != nil {
			return nil, err
		}
	}
	return each(ctx, t.Kind(), in, func(r p.Record) p.Record {
		v := r.Get(t.Field)
		if v.Kind() != p.KindString {
			return r
		}
		return r.With(t.Field, p.String(re.ReplaceAllString(v.Str(), t.Replace)))
	})
}

// Clamp caps a numeric field to [Min, Max]; nil bounds are open.
type Clamp struct {
	Field string
	Min   *float64
	Max   *float64
}

func (t *Clamp) Kind() string { return "clamp" }

func (t *Clamp) Apply(ctx context.Context, in p.Result) (p.Result, error) {
	return each(ctx, t.Kind(), in, func(r p.Record) p.Record {
		v, ok := r.Num(t.Field)
		if !ok {
			return r
		}
		if t.Min != nil && v < *t.Min {
			v = *t.Min
		}
		if t.Max != nil && v > *t.Max {
			v = *t.Max
		}
		return r.With(t.Field, p.Number(v))
	})
}
