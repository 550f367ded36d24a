package jsonlio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	iox "github.com/wdm0006/chandash/pkg/io/ioutils"
	p "github.com/wdm0006/chandash/pkg/pipeline"
)

type ReaderOptions struct {
	SampleRows int
}

// Reader decodes JSON Lines, or a single top-level JSON array of objects.
// Keys whose sampled values are all numeric (numbers or numeric strings)
// read as Number values.
type Reader struct {
	dec     *json.Decoder
	opt     ReaderOptions
	array   bool
	buf     []map[string]any
	numeric map[string]bool
	keys    []string
}

func Open(path string, opt ReaderOptions) (*Reader, io.Closer, error) {
	rc, err := iox.OpenMaybeCompressed(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := NewReader(rc, opt)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return r, rc, nil
}

func NewReader(r io.Reader, opt ReaderOptions) (*Reader, error) {
	br := bufio.NewReader(r)
	rd := &Reader{opt: opt}
	if first, err := peekNonSpace(br); err == nil && first == '[' {
		rd.array = true
	}
	rd.dec = json.NewDecoder(br)
	if rd.array {
		if _, err := rd.dec.Token(); err != nil {
			return nil, err
		}
	}
	return rd, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for n := 1; ; n++ {
		b, err := br.Peek(n)
		if err != nil {
			return 0, err
		}
		c := b[n-1]
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return c, nil
		}
	}
}

func (r *Reader) decode() (map[string]any, error) {
	if r.array && !r.dec.More() {
		return nil, io.EOF
	}
	var m map[string]any
	if err := r.dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// InferSchema samples rows and returns the sorted set of keys seen.
func (r *Reader) InferSchema() ([]string, error) {
	if r.numeric != nil {
		return r.keys, nil
	}
	max := r.opt.SampleRows
	if max <= 0 {
		max = 100
	}
	var sample []map[string]any
	keysSet := map[string]struct{}{}
	for len(sample) < max {
		m, err := r.decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		sample = append(sample, m)
		for k := range m {
			keysSet[k] = struct{}{}
		}
	}
	r.buf = append(r.buf, sample...)
	r.keys = make([]string, 0, len(keysSet))
	for k := range keysSet {
		r.keys = append(r.keys, k)
	}
	sort.Strings(r.keys)
	r.numeric = inferNumeric(sample, r.keys)
	return r.keys, nil
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
		var m map[string]any
		if len(r.buf) > 0 {
			m, r.buf = r.buf[0], r.buf[1:]
		} else {
			var err error
			m, err = r.decode()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, err
			}
		}
		out = append(out, r.record(m))
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

func (r *Reader) record(m map[string]any) p.Record {
	fields := make(map[string]p.Value, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
		case float64:
			fields[k] = p.Number(t)
		case bool:
			fields[k] = p.String(strconv.FormatBool(t))
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			if r.numeric[k] {
				if x, err := strconv.ParseFloat(s, 64); err == nil {
					fields[k] = p.Number(x)
					continue
				}
			}
			fields[k] = p.String(t)
		default:
			// nested values are kept as their JSON text
			b, _ := json.Marshal(t)
			fields[k] = p.String(string(b))
		}
	}
	return p.NewRecord(fields)
}

var numre = regexp.MustCompile(`^[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?$`)

func inferNumeric(sample []map[string]any, keys []string) map[string]bool {
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		nNum, nStr := 0, 0
		for _, m := range sample {
			v, ok := m[k]
			if !ok || v == nil {
				continue
			}
			switch t := v.(type) {
			case float64:
				nNum++
			case string:
				s := strings.TrimSpace(t)
				if s == "" {
					continue
				}
				if numre.MatchString(s) {
					nNum++
				} else {
					nStr++
				}
			default:
				nStr++
			}
		}
		out[k] = nNum > 0 && nStr == 0
	}
	return out
}
