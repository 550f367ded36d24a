package csvio

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	iox "github.com/wdm0006/chandash/pkg/io/ioutils"
	p "github.com/wdm0006/chandash/pkg/pipeline"
)

type ReaderOptions struct {
	HasHeader  bool
	Delimiter  rune // 0 = sniff, default ','
	SampleRows int  // for inference; default 100
	Strict     bool // if true, error on short/long records
	Raw        bool // if true, skip inference and keep every cell as a string
}

// Column is one inferred CSV column.
type Column struct {
	Name string
	Kind p.Kind
}

type Reader struct {
	r    *csv.Reader
	opt  ReaderOptions
	cols []Column
	buf  [][]string
	// repair/warning counters
	shortRecords int
	longRecords  int
}

// Open opens a CSV file (or stdin for "-"), transparently gunzipping it.
func Open(path string, opt ReaderOptions) (*Reader, io.Closer, error) {
	rc, err := iox.OpenMaybeCompressed(path)
	if err != nil {
		return nil, nil, err
	}
	return NewReader(rc, opt), rc, nil
}

// NewReader constructs a Reader from an arbitrary io.Reader (stdin, pipe, HTTP body).
func NewReader(r io.Reader, opt ReaderOptions) *Reader {
	br := bufio.NewReader(r)
	rr := csv.NewReader(br)
	rr.FieldsPerRecord = -1
	if opt.Delimiter == 0 {
		sample, _ := br.Peek(4096)
		d, lazy := sniffDelimiterAndQuotes(sample)
		rr.Comma = d
		rr.LazyQuotes = lazy
	} else {
		rr.Comma = opt.Delimiter
	}
	return &Reader{r: rr, opt: opt}
}

// InferSchema reads the header (if present) and samples rows to decide which
// columns are numeric. It is called by Next when needed.
func (r *Reader) InferSchema() ([]Column, error) {
	if r.cols != nil {
		return r.cols, nil
	}
	rec, err := r.r.Read()
	if err != nil {
		return nil, err
	}
	var names []string
	if r.opt.HasHeader {
		names = make([]string, len(rec))
		for i := range rec {
			names[i] = strings.TrimSpace(strings.ToValidUTF8(rec[i], "?"))
		}
		// strip BOM on first header cell if present
		if len(names) > 0 {
			names[0] = strings.TrimPrefix(names[0], "\ufeff")
		}
		rec, err = r.r.Read()
		if errors.Is(err, io.EOF) {
			r.cols = columns(names, nil, r.opt.Raw)
			return r.cols, nil
		}
		if err != nil {
			return nil, err
		}
	} else {
		names = make([]string, len(rec))
		for i := range names {
			names[i] = "col_" + strconv.Itoa(i)
		}
	}

	sample := [][]string{rec}
	max := r.opt.SampleRows
	if max <= 0 {
		max = 100
	}
	for i := 1; i < max; i++ {
		rr, err := r.r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		sample = append(sample, rr)
	}
	r.cols = columns(names, sample, r.opt.Raw)
	// retain sampled rows for subsequent reads
	r.buf = append(r.buf, sample...)
	return r.cols, nil
}

func columns(names []string, sample [][]string, raw bool) []Column {
	var numeric []bool
	if !raw {
		numeric = inferNumeric(sample, len(names))
	}
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: p.KindString}
		if i < len(numeric) && numeric[i] {
			cols[i].Kind = p.KindNumber
		}
	}
	return cols
}

// Next returns up to n records, or io.EOF once the input is exhausted.
func (r *Reader) Next(n int) (p.Records, error) {
	if _, err := r.InferSchema(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 1024
	}
	out := make(p.Records, 0, n)
	for len(out) < n {
		var rec []string
		if len(r.buf) > 0 {
			rec, r.buf = r.buf[0], r.buf[1:]
		} else {
			var err error
			rec, err = r.r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
		}
		row, err := r.record(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, nil
}

// ReadAll reads the remaining records, checking ctx between chunks.
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

func (r *Reader) record(rec []string) (p.Record, error) {
	if len(rec) > len(r.cols) {
		r.longRecords++
		if r.opt.Strict {
			return p.Record{}, fmt.Errorf("csv long record: need %d fields, got %d", len(r.cols), len(rec))
		}
	}
	m := make(map[string]p.Value, len(r.cols))
	for i, c := range r.cols {
		if i >= len(rec) {
			r.shortRecords++
			if r.opt.Strict {
				return p.Record{}, fmt.Errorf("csv short record: need %d fields, got %d", len(r.cols), len(rec))
			}
			break
		}
		val := strings.ToValidUTF8(strings.TrimSpace(rec[i]), "?")
		if val == "" {
			continue
		}
		if c.Kind == p.KindNumber {
			if x, err := strconv.ParseFloat(val, 64); err == nil {
				m[c.Name] = p.Number(x)
				continue
			}
		}
		m[c.Name] = p.String(val)
	}
	return p.NewRecord(m), nil
}

var numre = regexp.MustCompile(`^[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?$`)

func inferNumeric(rows [][]string, ncol int) []bool {
	out := make([]bool, ncol)
	for c := 0; c < ncol; c++ {
		num, str := 0, 0
		for _, row := range rows {
			if c >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[c])
			if v == "" {
				continue
			}
			if numre.MatchString(v) {
				num++
			} else {
				str++
			}
		}
		// any text cell keeps the whole column textual
		out[c] = num > 0 && str == 0
	}
	return out
}

func sniffDelimiterAndQuotes(sample []byte) (rune, bool) {
	if len(sample) == 0 {
		return ',', false
	}
	// only the first line decides; quoted payloads can hold any delimiter
	if i := strings.IndexByte(string(sample), '\n'); i > 0 {
		sample = sample[:i]
	}
	candidates := []byte{',', '\t', ';', '|'}
	best := byte(',')
	bestCount := 0
	for _, c := range candidates {
		cnt := 0
		for _, b := range sample {
			if b == c {
				cnt++
			}
		}
		if cnt > bestCount {
			bestCount = cnt
			best = c
		}
	}
	quoteCount := 0
	for _, b := range sample {
		if b == '"' {
			quoteCount++
		}
	}
	return rune(best), quoteCount%2 != 0
}

// Warnings returns a summary string of any repairs/mismatches encountered.
func (r *Reader) Warnings() string {
	if r.shortRecords == 0 && r.longRecords == 0 {
		return ""
	}
	parts := []string{}
	if r.shortRecords > 0 {
		parts = append(parts, fmt.Sprintf("short_records=%d", r.shortRecords))
	}
	if r.longRecords > 0 {
		parts = append(parts, fmt.Sprintf("long_records=%d", r.longRecords))
	}
	return strings.Join(parts, ", ")
}
