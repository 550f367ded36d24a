// Package golearn converts pipeline Records to and from
// github.com/sjwhitworth/golearn/base DenseInstances, so a run result can be
// handed to golearn models as a feature table.
package golearn

import (
	"fmt"
	"math"

	"github.com/sjwhitworth/golearn/base"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// ToDenseInstances converts recs into golearn DenseInstances with one
// attribute per field. A field whose present values are all numbers becomes a
// float attribute, anything else a categorical one. Missing numeric cells are
// NaN (see FillMissing) and missing categorical ones the zero value. When
// class is not empty that field is the class attribute.
func ToDenseInstances(recs p.Records, fields []string, class string) (*base.DenseInstances, error) {
	if fields == nil {
		fields = recs.FieldNames()
	}
	attrs := make([]base.Attribute, len(fields))
	numeric := make([]bool, len(fields))
	classIdx := -1
	for i, name := range fields {
		numeric[i] = numericField(recs, name)
		if numeric[i] {
			attrs[i] = base.NewFloatAttribute(name)
		} else {
			ca := new(base.CategoricalAttribute)
			ca.SetName(name)
			attrs[i] = ca
		}
		if name == class {
			classIdx = i
		}
	}
	if class != "" && classIdx < 0 {
		return nil, fmt.Errorf("class field %q is not among the exported fields", class)
	}
	inst := base.NewDenseInstances()
	specs := make([]base.AttributeSpec, len(attrs))
	for i, a := range attrs {
		specs[i] = inst.AddAttribute(a)
	}
	if err := inst.Extend(len(recs)); err != nil {
		return nil, err
	}

	for r, rec := range recs {
		for c, name := range fields {
			v := rec.Get(name)
			if v.IsMissing() {
				if numeric[c] {
					inst.Set(specs[c], r, base.PackFloatToBytes(math.NaN()))
				}
				continue
			}
			if numeric[c] {
				inst.Set(specs[c], r, base.PackFloatToBytes(v.Float()))
			} else {
				inst.Set(specs[c], r, attrs[c].GetSysValFromString(v.Str()))
			}
		}
	}
	if classIdx >= 0 {
		if err := inst.AddClassAttribute(attrs[classIdx]); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func numericField(recs p.Records, name string) bool {
	seen := false
	for _, r := range recs {
		v := r.Get(name)
		if v.IsMissing() {
			continue
		}
		if _, ok := v.Num(); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// FromDenseInstances converts golearn DenseInstances into Records.
func FromDenseInstances(inst *base.DenseInstances) (p.Records, error) {
	attrs := inst.AllAttributes()
	specs := make([]base.AttributeSpec, len(attrs))
	for i, a := range attrs {
		spec, err := inst.GetAttribute(a)
		if err != nil {
			return nil, err
		}
		specs[i] = spec
	}
	_, nrows := inst.Size()
	out := make(p.Records, nrows)
	for r := 0; r < nrows; r++ {
		fields := make(map[string]p.Value, len(attrs))
		for c, a := range attrs {
			raw := inst.Get(specs[c], r)
			if a.GetType() == base.Float64Type {
				fields[a.GetName()] = p.Number(base.UnpackBytesToFloat(raw))
			} else {
				fields[a.GetName()] = p.String(a.GetStringFromSysVal(raw))
			}
		}
		out[r] = p.NewRecord(fields)
	}
	return out, nil
}
