// Command chanquery runs an operation chain over a channel dataset once and
// writes the result, without starting the dashboard server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	golearn "github.com/wdm0006/chandash/adapters/golearn"
	"github.com/wdm0006/chandash/internal/logging"
	"github.com/wdm0006/chandash/pkg/chain"
	csvio "github.com/wdm0006/chandash/pkg/io/csvio"
	iox "github.com/wdm0006/chandash/pkg/io/ioutils"
	jsonlio "github.com/wdm0006/chandash/pkg/io/jsonlio"
	parquetio "github.com/wdm0006/chandash/pkg/io/parquetio"
	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/profile"
	"github.com/wdm0006/chandash/pkg/source"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	config    string
	data      string
	format    string
	exclude   string
	out       string
	outFormat string
	profile   bool
	features  string
	class     string
	fill      string
	logLevel  string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chanquery", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.StringVar(&o.config, "config", "", "Operation chain file (.json, .yaml or .toml)")
	fs.StringVar(&o.data, "data", "", "Dataset path or URL; overrides the chain file input")
	fs.StringVar(&o.format, "format", "", "Dataset format: csv|jsonl|json|parquet (default from extension)")
	fs.StringVar(&o.exclude, "exclude", "", "Comma-separated operation names to skip")
	fs.StringVar(&o.out, "out", "", "Output path, - for stdout; overrides the chain file output")
	fs.StringVar(&o.outFormat, "out-format", "", "Output format: csv|jsonl|parquet|json (default from extension, else csv)")
	fs.BoolVar(&o.profile, "profile", false, "Print a profile of the result instead of writing it")
	fs.StringVar(&o.features, "features", "", "Comma-separated fields to print as a golearn feature table")
	fs.StringVar(&o.class, "class", "", "Class attribute for -features")
	fs.StringVar(&o.fill, "fill", "", "Constant for missing numeric cells of the -features table")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		_, _ = fmt.Fprintln(stdout, "chanquery", version)
		return 0
	}
	if err := query(ctx, o, stdout, stderr); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func query(ctx context.Context, o options, stdout, stderr io.Writer) error {
	log, err := logging.New(stderr, o.logLevel, "text")
	if err != nil {
		return usageError(err.Error())
	}

	cf := &chain.File{}
	if o.config != "" {
		if cf, err = chain.Load(o.config); err != nil {
			return err
		}
	}
	in := cf.Input
	if o.data != "" {
		in = chain.Endpoint{Path: o.data, Format: o.format}
	} else if o.format != "" {
		in.Format = o.format
	}
	if in.Path == "" {
		return usageError("no dataset given; use -data or a chain file with an input path")
	}

	pl := p.NewPipeline(p.WithLogger(log), p.WithLoader(source.NewLoader(nil, log)))
	if err := pl.Load(ctx, in.Path, in.Format); err != nil {
		return err
	}
	if err := chain.Install(pl, cf.Operations); err != nil {
		return err
	}

	exclude := cf.Exclude
	if o.exclude != "" {
		exclude = splitList(o.exclude)
	}

	switch {
	case o.profile:
		c := profile.NewCollector(5)
		if err := p.RunTo(ctx, pl, exclude, c); err != nil {
			return err
		}
		_, err := fmt.Fprint(stdout, c.ReportText())
		return err
	case o.features != "":
		res, err := pl.Run(ctx, exclude)
		if err != nil {
			return err
		}
		inst, err := golearn.ToDenseInstances(p.Tabulate(res), splitList(o.features), o.class)
		if err != nil {
			return err
		}
		if o.fill != "" {
			v, err := strconv.ParseFloat(o.fill, 64)
			if err != nil {
				return usageError(fmt.Sprintf("-fill: %v", err))
			}
			n, err := golearn.FillMissing(inst, v)
			if err != nil {
				return err
			}
			log.Info("filled missing feature cells", "cells", n)
		}
		_, err = fmt.Fprintln(stdout, inst.String())
		return err
	}

	out := cf.Output
	if o.out != "" {
		out = chain.Endpoint{Path: o.out, Format: o.outFormat}
	} else if o.outFormat != "" {
		out.Format = o.outFormat
	}
	if out.Path == "" {
		out.Path = "-"
	}
	sink, err := openSink(out)
	if err != nil {
		return err
	}
	return p.RunTo(ctx, pl, exclude, sink)
}

// jsonSink writes the whole result as one JSON array.
type jsonSink struct {
	out  io.WriteCloser
	recs p.Records
}

func (s *jsonSink) Write(recs p.Records) error {
	s.recs = append(s.recs, recs...)
	return nil
}

func (s *jsonSink) Close() error {
	if s.recs == nil {
		s.recs = p.Records{}
	}
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	err := enc.Encode(s.recs)
	if cerr := s.out.Close(); err == nil {
		err = cerr
	}
	return err
}

func outputFormat(e chain.Endpoint) string {
	if e.Format != "" {
		return strings.ToLower(e.Format)
	}
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(e.Path, ".gz"))) {
	case ".jsonl", ".ndjson":
		return source.FormatJSONL
	case ".json":
		return source.FormatJSON
	case ".parquet":
		return source.FormatParquet
	}
	return source.FormatCSV
}

func openSink(e chain.Endpoint) (p.Sink, error) {
	switch f := outputFormat(e); f {
	case source.FormatCSV:
		return csvio.Create(e.Path, csvio.WriterOptions{})
	case source.FormatJSONL:
		return jsonlio.Create(e.Path)
	case source.FormatJSON:
		w, err := iox.CreateMaybeCompressed(e.Path)
		if err != nil {
			return nil, err
		}
		return &jsonSink{out: w}, nil
	case source.FormatParquet:
		if e.Path == "-" {
			return nil, usageError("parquet output needs a file path")
		}
		return parquetio.Create(e.Path), nil
	default:
		return nil, usageError(fmt.Sprintf("unsupported output format %q", f))
	}
}
