package parquetio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	parquet "github.com/segmentio/parquet-go"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// Reader reads flat Parquet files row group by row group into Records.
// Nested columns are named by their dotted path.
type Reader struct {
	closer io.Closer
	reader *parquet.Reader
	names  []string
	buf    []parquet.Row
}

// OpenReader opens a local Parquet file.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r, err := NewReader(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReaderFrom buffers a non-seekable stream (stdin, HTTP body) in memory.
func NewReaderFrom(r io.Reader) (*Reader, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewReader(bytes.NewReader(b), int64(len(b)))
}

func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	pf, err := parquet.OpenFile(ra, size)
	if err != nil {
		return nil, err
	}
	cols := pf.Schema().Columns()
	names := make([]string, len(cols))
	for i, path := range cols {
		names[i] = strings.Join(path, ".")
	}
	return &Reader{reader: parquet.NewReader(pf), names: names}, nil
}

// Columns returns the leaf column names in file order.
func (r *Reader) Columns() []string { return r.names }

func (r *Reader) Close() error {
	err := r.reader.Close()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Next returns up to n records, or io.EOF once the file is exhausted.
func (r *Reader) Next(n int) (p.Records, error) {
	if n <= 0 {
		n = 1024
	}
	if cap(r.buf) < n {
		r.buf = make([]parquet.Row, n)
	}
	buf := r.buf[:n]
	got, err := r.reader.ReadRows(buf)
	if got == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	out := make(p.Records, got)
	for i := 0; i < got; i++ {
		out[i] = r.record(buf[i])
	}
	return out, nil
}

// ReadAll reads the remaining rows, checking ctx between chunks.
func (r *Reader) ReadAll(ctx context.Context) (p.Records, error) {
	out := p.Records{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := r.Next(4096)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

func (r *Reader) record(row parquet.Row) p.Record {
	fields := make(map[string]p.Value, len(r.names))
	for _, v := range row {
		c := v.Column()
		if v.IsNull() || c < 0 || c >= len(r.names) {
			continue
		}
		fields[r.names[c]] = value(v)
	}
	return p.NewRecord(fields)
}

func value(v parquet.Value) p.Value {
	switch v.Kind() {
	case parquet.Boolean:
		return p.String(strconv.FormatBool(v.Boolean()))
	case parquet.Int32:
		return p.Number(float64(v.Int32()))
	case parquet.Int64:
		return p.Number(float64(v.Int64()))
	case parquet.Float:
		return p.Number(float64(v.Float()))
	case parquet.Double:
		return p.Number(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		s := strings.TrimSpace(string(v.ByteArray()))
		if s == "" {
			return p.Missing
		}
		return p.String(s)
	default:
		return p.String(v.String())
	}
}
