package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind enumerates the variants a field Value can hold.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "missing"
	}
}

// Value is a tagged union of String, Number and Missing. The zero Value is
// Missing. Values are comparable and usable as map keys; equality is strict,
// so Number(3) and String("3") are different keys.
type Value struct {
	kind Kind
	s    string
	n    float64
}

// Missing is the absent value.
var Missing = Value{}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric Value. NaN is stored as Missing.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Missing
	}
	return Value{kind: KindNumber, n: f}
}

// Of converts a plain Go value into a Value.
func Of(x any) Value {
	switch t := x.(type) {
	case nil:
		return Missing
	case Value:
		return t
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case bool:
		return String(strconv.FormatBool(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Str renders the value as text. Numbers use the shortest representation
// and Missing renders as "".
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	default:
		return ""
	}
}

// Num coerces the value to a float64. Strings are trimmed and parsed; ok is
// false for Missing and for strings that are not numeric.
func (v Value) Num() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Float is Num with 0 for non-numeric values.
func (v Value) Float() float64 {
	f, _ := v.Num()
	return f
}

// Compare orders two values: numbers numerically, strings lexically,
// numbers before strings, Missing after everything else.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		return cmpKind(v.kind) - cmpKind(o.kind)
	}
	switch v.kind {
	case KindNumber:
		switch {
		case v.n < o.n:
			return -1
		case v.n > o.n:
			return 1
		}
		return 0
	case KindString:
		return strings.Compare(v.s, o.s)
	default:
		return 0
	}
}

func cmpKind(k Kind) int {
	switch k {
	case KindNumber:
		return 0
	case KindString:
		return 1
	default:
		return 2
	}
}

// Any returns nil, a string or a float64.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.kind == KindMissing {
		return "<missing>"
	}
	return v.Str()
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		if math.IsInf(v.n, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.n)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	switch x.(type) {
	case nil, string, float64, bool:
		*v = Of(x)
		return nil
	default:
		return fmt.Errorf("pipeline: cannot decode %s into a Value", string(b))
	}
}
