// Package chain declares operation chains in JSON, YAML or TOML files and
// compiles them into pipeline operations.
//
// A chain file looks like:
//
//	input:
//	  path: data/channels.csv
//	  format: csv
//	exclude: [topTen]
//	operations:
//	  - {name: onlyFR, kind: filter_in, field: country, values: [FR], fold: true}
//	  - {name: bySubs, kind: sort_by, field: subscriber_count, ascending: false}
//	  - {name: topTen, kind: limit, n: 10}
//
// sort_by sorts ascending unless ascending is set to false.
package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"

	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/filter"
	"github.com/wdm0006/chandash/pkg/transform/group"
	"github.com/wdm0006/chandash/pkg/transform/impute"
	"github.com/wdm0006/chandash/pkg/transform/order"
	"github.com/wdm0006/chandash/pkg/transform/project"
	"github.com/wdm0006/chandash/pkg/transform/reduce"
)

var (
	// ErrUnknownKind is returned for a definition whose kind has no operation.
	ErrUnknownKind = errors.New("unknown operation kind")
	// ErrInvalidDefinition is returned for a definition missing required parameters.
	ErrInvalidDefinition = errors.New("invalid operation definition")
	// ErrUnknownEncoding is returned for a chain file extension with no decoder.
	ErrUnknownEncoding = errors.New("unknown chain file encoding")
)

// Definition describes one named operation. Only the parameters relevant to
// Kind are read.
type Definition struct {
	Name      string            `json:"name" yaml:"name" toml:"name"`
	Kind      string            `json:"kind" yaml:"kind" toml:"kind"`
	Field     string            `json:"field,omitempty" yaml:"field,omitempty" toml:"field,omitempty"`
	Value     any               `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Values    []string          `json:"values,omitempty" yaml:"values,omitempty" toml:"values,omitempty"`
	Fold      bool              `json:"fold,omitempty" yaml:"fold,omitempty" toml:"fold,omitempty"`
	Sep       string            `json:"sep,omitempty" yaml:"sep,omitempty" toml:"sep,omitempty"`
	Min       *float64          `json:"min,omitempty" yaml:"min,omitempty" toml:"min,omitempty"`
	Max       *float64          `json:"max,omitempty" yaml:"max,omitempty" toml:"max,omitempty"`
	Ascending *bool             `json:"ascending,omitempty" yaml:"ascending,omitempty" toml:"ascending,omitempty"`
	N         int               `json:"n,omitempty" yaml:"n,omitempty" toml:"n,omitempty"`
	Reducer   string            `json:"reducer,omitempty" yaml:"reducer,omitempty" toml:"reducer,omitempty"`
	By        string            `json:"by,omitempty" yaml:"by,omitempty" toml:"by,omitempty"`
	AsMap     bool              `json:"as_map,omitempty" yaml:"as_map,omitempty" toml:"as_map,omitempty"`
	Upper     bool              `json:"upper,omitempty" yaml:"upper,omitempty" toml:"upper,omitempty"`
	Target    string            `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
	Mapping   map[string]string `json:"mapping,omitempty" yaml:"mapping,omitempty" toml:"mapping,omitempty"`
	Fallback  string            `json:"fallback,omitempty" yaml:"fallback,omitempty" toml:"fallback,omitempty"`
	Pattern   string            `json:"pattern,omitempty" yaml:"pattern,omitempty" toml:"pattern,omitempty"`
	Replace   string            `json:"replace,omitempty" yaml:"replace,omitempty" toml:"replace,omitempty"`
}

// Endpoint names a dataset file and its format.
type Endpoint struct {
	Path   string `json:"path" yaml:"path" toml:"path"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
}

// File is a decoded chain file.
type File struct {
	Input      Endpoint     `json:"input" yaml:"input" toml:"input"`
	Output     Endpoint     `json:"output" yaml:"output" toml:"output"`
	Exclude    []string     `json:"exclude,omitempty" yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	Operations []Definition `json:"operations" yaml:"operations" toml:"operations"`
}

// Load reads a chain file, picking the decoder from its extension.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	cf, err := Decode(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cf, nil
}

// Decode parses a chain file. ext is ".json", ".yaml", ".yml" or ".toml".
func Decode(r io.Reader, ext string) (*File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cf File
	switch strings.ToLower(ext) {
	case ".json", "json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		dec.DisallowUnknownFields()
		err = dec.Decode(&cf)
	case ".yaml", ".yml", "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&cf)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case ".toml", "toml":
		err = toml.NewDecoder(bytes.NewReader(b)).DisallowUnknownFields().Decode(&cf)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, ext)
	}
	if err != nil {
		return nil, err
	}
	return &cf, nil
}

// DecodeDefinition parses a single JSON definition, as sent over HTTP.
func DecodeDefinition(b []byte) (Definition, error) {
	var d Definition
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return d, nil
}

func invalid(d Definition, msg string) error {
	return fmt.Errorf("%w: %s %q: %s", ErrInvalidDefinition, d.Kind, d.Name, msg)
}

// Compile builds the operation described by d.
func Compile(d Definition) (p.Operation, error) {
	needField := func() error {
		if d.Field == "" {
			return invalid(d, "field is required")
		}
		return nil
	}
	switch d.Kind {
	case "filter_eq":
		if err := needField(); err != nil {
			return nil, err
		}
		return &filter.Eq{Field: d.Field, Value: p.Of(d.Value)}, nil
	case "filter_in":
		if err := needField(); err != nil {
			return nil, err
		}
		return filter.NewIn(d.Field, d.Values, d.Fold), nil
	case "filter_contains":
		if err := needField(); err != nil {
			return nil, err
		}
		return &filter.Contains{Field: d.Field, Items: d.Values, Sep: d.Sep}, nil
	case "filter_range":
		if err := needField(); err != nil {
			return nil, err
		}
		return &filter.Range{Field: d.Field, Min: d.Min, Max: d.Max}, nil
	case "sort_by":
		if err := needField(); err != nil {
			return nil, err
		}
		return &order.SortBy{Field: d.Field, Ascending: d.Ascending == nil || *d.Ascending}, nil
	case "limit":
		return &order.Limit{N: d.N}, nil
	case "group_by":
		return &group.GroupBy{Field: d.Field}, nil
	case "aggregate":
		r, err := Reducer(d.Reducer, d.Field)
		if err != nil {
			return nil, invalid(d, err.Error())
		}
		return &group.Aggregate{Reducer: r, AsMap: d.AsMap}, nil
	case "index_by_key":
		if err := needField(); err != nil {
			return nil, err
		}
		return &group.IndexByKey{Field: d.Field}, nil
	case "normalize":
		if err := needField(); err != nil {
			return nil, err
		}
		return &project.Normalize{Field: d.Field, Upper: d.Upper}, nil
	case "default":
		if err := needField(); err != nil {
			return nil, err
		}
		return &project.Default{Field: d.Field, Value: p.Of(d.Value)}, nil
	case "map_values":
		if err := needField(); err != nil {
			return nil, err
		}
		return &project.MapValues{Field: d.Field, Target: d.Target, Mapping: d.Mapping, Fallback: d.Fallback}, nil
	case "regex_replace":
		if err := needField(); err != nil {
			return nil, err
		}
		op, err := project.NewRegexReplace(d.Field, d.Pattern, d.Replace)
		if err != nil {
			return nil, invalid(d, err.Error())
		}
		return op, nil
	case "clamp":
		if err := needField(); err != nil {
			return nil, err
		}
		return &project.Clamp{Field: d.Field, Min: d.Min, Max: d.Max}, nil
	case "impute_mean", "impute_median", "impute_mode":
		if err := needField(); err != nil {
			return nil, err
		}
		switch d.Kind {
		case "impute_mean":
			return &impute.Mean{Field: d.Field, By: d.By}, nil
		case "impute_median":
			return &impute.Median{Field: d.Field, By: d.By}, nil
		}
		return &impute.Mode{Field: d.Field, By: d.By}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.Kind)
}

// Reducer resolves a reducer by name. Field is required by the numeric ones.
func Reducer(name, field string) (reduce.Reducer, error) {
	switch name {
	case "", "count":
		return reduce.Count(), nil
	case "channel_stats":
		return reduce.ChannelStats(), nil
	case "world_stats":
		return reduce.WorldStats(), nil
	}
	byField := map[string]func(string) reduce.Reducer{
		"sum":    reduce.Sum,
		"mean":   reduce.Mean,
		"median": reduce.Median,
		"min":    reduce.Min,
		"max":    reduce.Max,
		"mode":   reduce.Mode,
	}
	mk, ok := byField[name]
	if !ok {
		return nil, fmt.Errorf("unknown reducer %q", name)
	}
	if field == "" {
		return nil, fmt.Errorf("reducer %q needs a field", name)
	}
	return mk(field), nil
}

// Install compiles every definition and registers them on pl in one update,
// in order. Nothing is registered if any definition fails to compile.
func Install(pl *p.Pipeline, defs []Definition) error {
	ops := make([]p.Operation, len(defs))
	for i, d := range defs {
		if d.Name == "" {
			return invalid(d, "name is required")
		}
		op, err := Compile(d)
		if err != nil {
			return err
		}
		ops[i] = op
	}
	pl.Update(func(tx *p.Tx) {
		for i, d := range defs {
			tx.Add(d.Name, ops[i])
		}
	})
	return nil
}
