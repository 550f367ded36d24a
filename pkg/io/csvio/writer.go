package csvio

import (
	"encoding/csv"
	"io"

	iox "github.com/wdm0006/chandash/pkg/io/ioutils"
	p "github.com/wdm0006/chandash/pkg/pipeline"
)

type WriterOptions struct {
	Delimiter rune     // default ','
	Fields    []string // header; default is the sorted field union of the first batch
}

// Writer appends record batches to a CSV stream with a header written once.
// It implements pipeline.Sink.
type Writer struct {
	w           *csv.Writer
	out         io.WriteCloser
	fields      []string
	wroteHeader bool
}

// Create opens path (stdout for "-", gzip for .gz) for writing.
func Create(path string, opt WriterOptions) (*Writer, error) {
	out, err := iox.CreateMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	return NewWriter(out, opt), nil
}

func NewWriter(out io.WriteCloser, opt WriterOptions) *Writer {
	w := csv.NewWriter(out)
	if opt.Delimiter != 0 {
		w.Comma = opt.Delimiter
	}
	return &Writer{w: w, out: out, fields: opt.Fields}
}

func (s *Writer) Write(recs p.Records) error {
	if !s.wroteHeader {
		if s.fields == nil {
			s.fields = recs.FieldNames()
		}
		if err := s.w.Write(s.fields); err != nil {
			return err
		}
		s.wroteHeader = true
	}
	row := make([]string, len(s.fields))
	for _, r := range recs {
		for c, name := range s.fields {
			row[c] = r.Str(name)
		}
		if err := s.w.Write(row); err != nil {
			return err
		}
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *Writer) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.out.Close()
		return err
	}
	return s.out.Close()
}

// WriteAll writes recs to a CSV file with headers.
func WriteAll(path string, recs p.Records, opt WriterOptions) error {
	w, err := Create(path, opt)
	if err != nil {
		return err
	}
	if err := w.Write(recs); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
