package profile

import (
	"fmt"
	"math"
	"sort"
	"strings"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

type NumStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
}

type StringStats struct {
	Count int            `json:"count"`
	Freqs map[string]int `json:"-"`
	Top   []Freq         `json:"top,omitempty"`
}

type Freq struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FieldProfile summarises one field across a dataset. A field may hold both
// numbers and strings; each kind is tallied separately.
type FieldProfile struct {
	Name    string       `json:"name"`
	Missing int          `json:"missing"`
	Num     *NumStats    `json:"num,omitempty"`
	Str     *StringStats `json:"str,omitempty"`
}

// Kind is the dominant kind of the field's present values.
func (fp *FieldProfile) Kind() p.Kind {
	var n, s int
	if fp.Num != nil {
		n = fp.Num.Count
	}
	if fp.Str != nil {
		s = fp.Str.Count
	}
	switch {
	case n == 0 && s == 0:
		return p.KindMissing
	case n >= s:
		return p.KindNumber
	default:
		return p.KindString
	}
}

type Collector struct {
	fields []*FieldProfile
	index  map[string]int
	rows   int
	topK   int
}

func NewCollector(topK int) *Collector {
	return &Collector{index: make(map[string]int), topK: topK}
}

func (c *Collector) field(name string) *FieldProfile {
	if i, ok := c.index[name]; ok {
		return c.fields[i]
	}
	// rows seen before this field appeared were missing it
	fp := &FieldProfile{Name: name, Missing: c.rows}
	c.index[name] = len(c.fields)
	c.fields = append(c.fields, fp)
	return fp
}

// Consume adds a batch of records to the profile.
func (c *Collector) Consume(recs p.Records) {
	for _, r := range recs {
		for _, name := range r.Fields() {
			fp := c.field(name)
			v := r.Get(name)
			x, numeric := v.Num()
			switch {
			case numeric:
				if fp.Num == nil {
					fp.Num = &NumStats{Min: math.Inf(1), Max: math.Inf(-1)}
				}
				fp.Num.Count++
				if x < fp.Num.Min {
					fp.Num.Min = x
				}
				if x > fp.Num.Max {
					fp.Num.Max = x
				}
				fp.Num.Sum += x
			case v.Kind() == p.KindString:
				if fp.Str == nil {
					fp.Str = &StringStats{Freqs: map[string]int{}}
				}
				fp.Str.Count++
				if c.topK > 0 {
					fp.Str.Freqs[v.Str()]++
				}
			}
		}
		for _, fp := range c.fields {
			if !r.Has(fp.Name) {
				fp.Missing++
			}
		}
		c.rows++
	}
}

// Write implements pipeline.Sink so a run can be profiled directly.
func (c *Collector) Write(recs p.Records) error { c.Consume(recs); return nil }
func (c *Collector) Close() error               { return nil }

func (c *Collector) Rows() int { return c.rows }

// Fields returns the profiles sorted by name.
func (c *Collector) Fields() []*FieldProfile {
	out := append([]*FieldProfile(nil), c.fields...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for _, fp := range out {
		if fp.Num != nil && fp.Num.Count > 0 {
			fp.Num.Mean = fp.Num.Sum / float64(fp.Num.Count)
		}
		if fp.Str != nil {
			fp.Str.Top = c.top(fp.Str.Freqs)
		}
	}
	return out
}

func (c *Collector) top(freqs map[string]int) []Freq {
	if c.topK <= 0 || len(freqs) == 0 {
		return nil
	}
	arr := make([]Freq, 0, len(freqs))
	for k, v := range freqs {
		arr = append(arr, Freq{Value: k, Count: v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].Count != arr[j].Count {
			return arr[i].Count > arr[j].Count
		}
		return arr[i].Value < arr[j].Value
	})
	if len(arr) > c.topK {
		arr = arr[:c.topK]
	}
	return arr
}

func (c *Collector) ReportText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Profile Summary (%d rows)\n", c.rows)
	for _, fp := range c.Fields() {
		fmt.Fprintf(&b, "- %s (%v): missing=%d", fp.Name, fp.Kind(), fp.Missing)
		if fp.Num != nil {
			fmt.Fprintf(&b, " numbers=%d min=%.6g max=%.6g mean=%.6g", fp.Num.Count, fp.Num.Min, fp.Num.Max, fp.Num.Mean)
		}
		if fp.Str != nil {
			fmt.Fprintf(&b, " strings=%d", fp.Str.Count)
		}
		b.WriteString("\n")
		if fp.Str != nil {
			for _, f := range fp.Str.Top {
				fmt.Fprintf(&b, "  * %q: %d\n", f.Value, f.Count)
			}
		}
	}
	return b.String()
}

type JSONProfile struct {
	Rows   int         `json:"rows"`
	Fields []JSONField `json:"fields"`
}

type JSONField struct {
	FieldProfile
	Kind string `json:"kind"`
}

func (c *Collector) ReportJSON() JSONProfile {
	fields := c.Fields()
	out := JSONProfile{Rows: c.rows, Fields: make([]JSONField, 0, len(fields))}
	for _, fp := range fields {
		out.Fields = append(out.Fields, JSONField{FieldProfile: *fp, Kind: fp.Kind().String()})
	}
	return out
}
