package profile

import (
	"strings"
	"testing"

	p "github.com/wdm0006/chandash/pkg/pipeline"
)

func TestCollector(t *testing.T) {
	c := NewCollector(2)
	c.Consume(p.Records{
		p.RecordOf(map[string]any{"country": "FR", "subs": 10}),
		p.RecordOf(map[string]any{"country": "FR"}),
	})
	c.Consume(p.Records{
		p.RecordOf(map[string]any{"country": "US", "subs": 30, "late": "x"}),
	})
	rep := c.ReportJSON()
	if rep.Rows != 3 || len(rep.Fields) != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	byName := map[string]JSONField{}
	for _, f := range rep.Fields {
		byName[f.Name] = f
	}
	subs := byName["subs"]
	if subs.Kind != "number" || subs.Missing != 1 || subs.Num.Mean != 20 || subs.Num.Max != 30 {
		t.Fatalf("subs: %+v %+v", subs, subs.Num)
	}
	if late := byName["late"]; late.Missing != 2 {
		t.Fatalf("late field missing count = %d", late.Missing)
	}
	top := byName["country"].Str.Top
	if len(top) != 2 || top[0] != (Freq{Value: "FR", Count: 2}) {
		t.Fatalf("top: %+v", top)
	}
	if txt := c.ReportText(); !strings.Contains(txt, "- subs (number): missing=1") {
		t.Fatalf("text report:\n%s", txt)
	}
}
