// Package source loads datasets for a pipeline from local files, stdin or
// HTTP(S) URLs.
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	csvio "github.com/wdm0006/chandash/pkg/io/csvio"
	iox "github.com/wdm0006/chandash/pkg/io/ioutils"
	"github.com/wdm0006/chandash/pkg/io/jsonlio"
	"github.com/wdm0006/chandash/pkg/io/parquetio"
	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// Supported format names.
const (
	FormatCSV     = "csv"
	FormatJSONL   = "jsonl"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// Loader implements pipeline.Loader.
type Loader struct {
	Client *http.Client
	CSV    csvio.ReaderOptions
	Log    *slog.Logger
}

// NewLoader returns a Loader for headered CSV with delimiter sniffing. CSV
// cells are kept as strings; consumers coerce numbers where they need them, so
// identifiers like "0123" survive intact.
func NewLoader(client *http.Client, log *slog.Logger) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{Client: client, CSV: csvio.ReaderOptions{HasHeader: true, Raw: true}, Log: log}
}

// FormatFromPath guesses a format from the file extension, ignoring .gz.
func FormatFromPath(path string) string {
	path = strings.TrimSuffix(strings.ToLower(path), ".gz")
	if i := strings.IndexAny(path, "?#"); i >= 0 && isURL(path) {
		path = path[:i]
	}
	switch filepath.Ext(path) {
	case ".csv", ".tsv":
		return FormatCSV
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".json":
		return FormatJSON
	case ".parquet":
		return FormatParquet
	}
	return ""
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Load reads path in the given format. An empty format is guessed from the
// path. Unknown formats fail with pipeline.ErrUnsupportedFormat before any
// I/O happens.
func (l *Loader) Load(ctx context.Context, path, format string) (p.Records, error) {
	if format == "" {
		format = FormatFromPath(path)
	}
	format = strings.ToLower(format)
	switch format {
	case FormatCSV, FormatJSONL, FormatJSON, FormatParquet:
	default:
		return nil, fmt.Errorf("%w: %q", p.ErrUnsupportedFormat, format)
	}

	rc, err := l.open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	var recs p.Records
	switch format {
	case FormatCSV:
		r := csvio.NewReader(rc, l.CSV)
		recs, err = r.ReadAll(ctx)
		if w := r.Warnings(); err == nil && w != "" {
			l.logger().WarnContext(ctx, "csv input repaired", "path", path, "warnings", w)
		}
	case FormatJSONL, FormatJSON:
		var r *jsonlio.Reader
		if r, err = jsonlio.NewReader(rc, jsonlio.ReaderOptions{}); err == nil {
			recs, err = r.ReadAll(ctx)
		}
	case FormatParquet:
		var r *parquetio.Reader
		if r, err = parquetio.NewReaderFrom(rc); err == nil {
			recs, err = r.ReadAll(ctx)
			_ = r.Close()
		}
	}
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Log == nil {
		return slog.Default()
	}
	return l.Log
}

func (l *Loader) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !isURL(path) {
		return iox.OpenMaybeCompressed(path)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", path, resp.Status)
	}
	r, err := iox.MaybeGunzip(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{r, resp.Body}, nil
}
