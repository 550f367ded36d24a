package jsonlio

import (
	"bufio"
	"encoding/json"
	"io"

	iox "github.com/wdm0006/chandash/pkg/io/ioutils"
	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// Writer encodes one record per line. It implements pipeline.Sink.
type Writer struct {
	enc *json.Encoder
	w   *bufio.Writer
	out io.WriteCloser
}

func Create(path string) (*Writer, error) {
	out, err := iox.CreateMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	return NewWriter(out), nil
}

func NewWriter(out io.WriteCloser) *Writer {
	w := bufio.NewWriter(out)
	return &Writer{enc: json.NewEncoder(w), w: w, out: out}
}

func (s *Writer) Write(recs p.Records) error {
	for _, r := range recs {
		if err := s.enc.Encode(r); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

func (s *Writer) Close() error {
	if err := s.w.Flush(); err != nil {
		_ = s.out.Close()
		return err
	}
	return s.out.Close()
}

func WriteAll(path string, recs p.Records) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	if err := w.Write(recs); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
