// Package reduce provides the summary functions used by group.Aggregate.
package reduce

import (
	"sort"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// Reducer turns one group of records into its summary.
type Reducer func(p.Records) any

// Count returns the number of records as a float64.
func Count() Reducer {
	return func(rs p.Records) any { return float64(len(rs)) }
}

func numbers(rs p.Records, field string) []float64 {
	out := make([]float64, 0, len(rs))
	for _, r := range rs {
		if v, ok := r.Num(field); ok {
			out = append(out, v)
		}
	}
	return out
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

// Sum adds the numeric values of field; non-numeric values are skipped.
func Sum(field string) Reducer {
	return func(rs p.Records) any { return sum(numbers(rs, field)) }
}

// Mean averages the numeric values of field. A group without any yields Missing.
func Mean(field string) Reducer {
	return func(rs p.Records) any {
		vals := numbers(rs, field)
		if len(vals) == 0 {
			return p.Missing
		}
		return sum(vals) / float64(len(vals))
	}
}

func Median(field string) Reducer {
	return func(rs p.Records) any {
		vals := numbers(rs, field)
		if len(vals) == 0 {
			return p.Missing
		}
		sort.Float64s(vals)
		mid := len(vals) / 2
		if len(vals)%2 == 0 {
			return (vals[mid-1] + vals[mid]) / 2
		}
		return vals[mid]
	}
}

func Min(field string) Reducer {
	return func(rs p.Records) any {
		vals := numbers(rs, field)
		if len(vals) == 0 {
			return p.Missing
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m
	}
}

func Max(field string) Reducer {
	return func(rs p.Records) any {
		vals := numbers(rs, field)
		if len(vals) == 0 {
			return p.Missing
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m
	}
}

// Mode returns the most frequent present value of field; ties go to the
// value seen first.
func Mode(field string) Reducer {
	return func(rs p.Records) any {
		counts := map[p.Value]int{}
		best := p.Missing
		var bestc int
		for _, r := range rs {
			v := r.Get(field)
			if v.IsMissing() {
				continue
			}
			counts[v]++
			if counts[v] > bestc {
				bestc = counts[v]
				best = v
			}
		}
		return best
	}
}
