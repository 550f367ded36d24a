package parquetio

import (
	"encoding/json"
	"fmt"
	"math"

	local "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	pw "github.com/xitongsys/parquet-go/writer"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// parquetSchemaJSON builds the JSON schema for the parquet-go JSONWriter. A
// field becomes DOUBLE when every present value is a number, UTF8 otherwise.
func parquetSchemaJSON(fields []string, numeric map[string]bool) string {
	type field struct {
		Tag string `json:"Tag"`
	}
	type schema struct {
		Tag    string  `json:"Tag"`
		Fields []field `json:"Fields"`
	}
	sc := schema{Tag: "name=schema, repetitiontype=REQUIRED"}
	for _, name := range fields {
		tag := "name=" + name + ", repetitiontype=OPTIONAL, type="
		if numeric[name] {
			tag += "DOUBLE"
		} else {
			tag += "BYTE_ARRAY, convertedtype=UTF8"
		}
		sc.Fields = append(sc.Fields, field{Tag: tag})
	}
	b, _ := json.Marshal(sc)
	return string(b)
}

func numericField(recs p.Records, name string) bool {
	seen := false
	for _, r := range recs {
		switch r.Get(name).Kind() {
		case p.KindString:
			return false
		case p.KindNumber:
			seen = true
		}
	}
	return seen
}

// Writer buffers records and writes a single Parquet file on Close, since
// the column types are fixed by the first row group. It implements
// pipeline.Sink.
type Writer struct {
	path string
	recs p.Records
}

func Create(path string) *Writer { return &Writer{path: path} }

func (w *Writer) Write(recs p.Records) error {
	w.recs = append(w.recs, recs...)
	return nil
}

func (w *Writer) Close() error { return WriteAll(w.path, w.recs) }

// WriteAll writes recs to a Parquet file using the parquet-go JSONWriter.
func WriteAll(path string, recs p.Records) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	return write(fw, recs)
}

func write(fw source.ParquetFile, recs p.Records) (err error) {
	fields := recs.FieldNames()
	numeric := make(map[string]bool, len(fields))
	for _, name := range fields {
		numeric[name] = numericField(recs, name)
	}
	writer, err := pw.NewJSONWriter(parquetSchemaJSON(fields, numeric), fw, 4)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer init: %w", err)
	}
	defer func() {
		if serr := writer.WriteStop(); err == nil && serr != nil {
			err = fmt.Errorf("parquet write stop: %w", serr)
		}
		if cerr := fw.Close(); err == nil {
			err = cerr
		}
	}()
	for _, r := range recs {
		row := make(map[string]any, len(fields))
		for _, name := range fields {
			v := r.Get(name)
			switch {
			case v.IsMissing():
			case !numeric[name]:
				row[name] = v.Str()
			case !math.IsInf(v.Float(), 0):
				row[name] = v.Float()
			}
		}
		b, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := writer.Write(string(b)); err != nil {
			return fmt.Errorf("parquet write row: %w", err)
		}
	}
	return nil
}
