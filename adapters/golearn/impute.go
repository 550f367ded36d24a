package golearn

import (
	"math"

	"github.com/sjwhitworth/golearn/base"
)

// FillMissing replaces NaN cells of every float attribute with value, in
// place, and returns how many cells it filled.
func FillMissing(inst *base.DenseInstances, value float64) (int, error) {
	var specs []base.AttributeSpec
	for _, a := range inst.AllAttributes() {
		if a.GetType() != base.Float64Type {
			continue
		}
		spec, err := inst.GetAttribute(a)
		if err != nil {
			return 0, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return 0, nil
	}
	filled := 0
	fill := base.PackFloatToBytes(value)
	err := inst.MapOverRows(specs, func(row [][]byte, r int) (bool, error) {
		for c, cell := range row {
			if math.IsNaN(base.UnpackBytesToFloat(cell)) {
				inst.Set(specs[c], r, fill)
				filled++
			}
		}
		return true, nil
	})
	return filled, err
}
