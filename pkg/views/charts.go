package views

import (
	"context"
	"errors"
	"net/url"
	"sort"

	p "github.com/wdm0006/chandash/pkg/pipeline"
	"github.com/wdm0006/chandash/pkg/transform/filter"
	"github.com/wdm0006/chandash/pkg/transform/group"
	"github.com/wdm0006/chandash/pkg/transform/order"
	"github.com/wdm0006/chandash/pkg/transform/project"
	"github.com/wdm0006/chandash/pkg/transform/reduce"
)

// Others labels the slice that groups the smallest categories.
const Others = "Others"

// Pie slice grouping limits: at most PieSlices slices, widened to
// PieSlicesWide when Others would hold more than half the total.
const (
	PieSlices     = 10
	PieSlicesWide = 20
)

// Slice is one pie wedge.
type Slice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Pie is the pie view model. Overview and CountryDrill slice view counts by
// category; CategoryDrill slices them by channel.
type Pie struct {
	Title   string   `json:"title"`
	Drill   Drill    `json:"drill"`
	Slices  []Slice  `json:"slices"`
	Grouped []string `json:"grouped,omitempty"`
}

func views(r p.Record) float64 {
	v, _ := r.Num(ViewField)
	return v
}

// tally sums values per label keeping first-seen order, drops non-positive
// totals and sorts descending.
type tally struct {
	order []string
	sums  map[string]float64
}

func newTally() *tally { return &tally{sums: map[string]float64{}} }

func (t *tally) add(label string, v float64) {
	if _, ok := t.sums[label]; !ok {
		t.order = append(t.order, label)
	}
	t.sums[label] += v
}

func (t *tally) slices() []Slice {
	out := make([]Slice, 0, len(t.order))
	for _, l := range t.order {
		if v := t.sums[l]; v > 0 {
			out = append(out, Slice{Label: l, Value: v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// GroupSlices keeps the limit-1 largest slices and folds the rest into
// Others. It returns the grouped labels.
func GroupSlices(all []Slice, limit int) ([]Slice, []string) {
	if len(all) <= limit {
		return all, nil
	}
	out := append([]Slice(nil), all[:limit-1]...)
	rest := Slice{Label: Others}
	var grouped []string
	for _, s := range all[limit-1:] {
		rest.Value += s.Value
		grouped = append(grouped, s.Label)
	}
	return append(out, rest), grouped
}

func groupCategories(all []Slice) ([]Slice, []string) {
	var total float64
	for _, s := range all {
		total += s.Value
	}
	out, grouped := GroupSlices(all, PieSlices)
	if n := len(out); grouped != nil && total > 0 && out[n-1].Value/total > 0.5 {
		out, grouped = GroupSlices(all, PieSlicesWide)
	}
	return out, grouped
}

// Pie builds the pie view. Drilling into Others selects every channel of
// the grouped categories.
func (d *Dashboard) Pie(ctx context.Context) (*Pie, error) {
	st, err := d.State(PieView)
	if err != nil {
		return nil, err
	}
	title := "World"
	if st.Country != "" {
		title = CountryName(st.Country)
	}
	if st.State != CategoryDrill {
		recs, err := d.Records(ctx, PieView)
		if err != nil {
			return nil, err
		}
		t := newTally()
		for _, r := range recs {
			for _, c := range Categories(r) {
				t.add(c, views(r))
			}
		}
		slices, grouped := groupCategories(t.slices())
		return &Pie{Title: title, Drill: st, Slices: slices, Grouped: grouped}, nil
	}

	title += " > " + st.Category
	var recs p.Records
	if st.Category == Others {
		// Others is not a real category, so run without the category drill
		// and regroup at the country level.
		_, kn := drillNames(PieView)
		res, err := d.pl.Run(ctx, append(Exclusions(PieView), kn))
		if err != nil {
			return nil, err
		}
		all, _ := res.(p.Records)
		t := newTally()
		for _, r := range all {
			for _, c := range Categories(r) {
				t.add(c, views(r))
			}
		}
		_, grouped := groupCategories(t.slices())
		res, err = d.pl.Fold(ctx, all, &filter.Contains{Field: CategoryField, Items: grouped})
		if err != nil {
			return nil, err
		}
		recs = res.(p.Records)
	} else if recs, err = d.Records(ctx, PieView); err != nil {
		return nil, err
	}
	t := newTally()
	for _, r := range recs {
		t.add(channelName(r), views(r))
	}
	return &Pie{Title: title, Drill: st, Slices: t.slices()}, nil
}

// Bar is one channel of the engagement histogram.
type Bar struct {
	ChannelID    string  `json:"channelId"`
	Name         string  `json:"name"`
	Country      string  `json:"country"`
	MainCategory string  `json:"mainCategory"`
	Subscribers  float64 `json:"subscribers"`
	Views        float64 `json:"views"`
	Metric       float64 `json:"metric"`
}

// Engagement field names derived by the histogram.
const (
	MetricField       = "engagement"
	MainCategoryField = "main_category"
)

func engagement(r p.Record) float64 { return views(r) / subscribers(r) }

var engagementOps = []p.Operation{
	&project.Derive{Field: MetricField, Fn: func(r p.Record) p.Value { return p.Number(engagement(r)) }},
	&project.Derive{Field: MainCategoryField, Fn: func(r p.Record) p.Value { return p.String(MainCategory(r)) }},
	&filter.Func{Pred: func(r p.Record) bool { return r.Float(MetricField) > 0 }},
	&order.SortBy{Field: MetricField},
}

// Engagement ranks the histogram view's channels by views per subscriber,
// dropping channels with no views.
func (d *Dashboard) Engagement(ctx context.Context) ([]Bar, error) {
	recs, err := d.Records(ctx, HistogramView)
	if err != nil {
		return nil, err
	}
	res, err := d.pl.Fold(ctx, recs, engagementOps...)
	if err != nil {
		return nil, err
	}
	ranked := res.(p.Records)
	out := make([]Bar, len(ranked))
	for i, r := range ranked {
		s, _ := r.Num(SubscriberField)
		out[i] = Bar{
			ChannelID:    r.Str(IDField),
			Name:         channelName(r),
			Country:      r.Str(CountryField),
			MainCategory: r.Str(MainCategoryField),
			Subscribers:  s,
			Views:        views(r),
			Metric:       r.Float(MetricField),
		}
	}
	return out, nil
}

// Comparison sets one channel's engagement against its country's and its
// main category's averages.
type Comparison struct {
	Channel     Bar     `json:"channel"`
	CountryAvg  float64 `json:"countryAvg"`
	CategoryAvg float64 `json:"categoryAvg"`
}

// ErrUnknownChannel is returned by Compare for an id not in the view.
var ErrUnknownChannel = errors.New("unknown channel")

// Compare builds the zoomed histogram for channelID.
func (d *Dashboard) Compare(ctx context.Context, channelID string) (*Comparison, error) {
	bars, err := d.Engagement(ctx)
	if err != nil {
		return nil, err
	}
	var (
		cmp   *Comparison
		byCty = map[string][]float64{}
		byCat = map[string][]float64{}
	)
	for _, b := range bars {
		byCty[b.Country] = append(byCty[b.Country], b.Metric)
		byCat[b.MainCategory] = append(byCat[b.MainCategory], b.Metric)
		if b.ChannelID == channelID && cmp == nil {
			cmp = &Comparison{Channel: b}
		}
	}
	if cmp == nil {
		return nil, ErrUnknownChannel
	}
	cmp.CountryAvg = mean(byCty[cmp.Channel.Country])
	cmp.CategoryAvg = mean(byCat[cmp.Channel.MainCategory])
	return cmp, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// TreemapLimit caps the channels shown in the treemap.
const TreemapLimit = 100

// Node is a treemap or bubble node. Leaves are channels; a parent's value is
// the sum of its children.
type Node struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	ChannelID string  `json:"channelId,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Children  []*Node `json:"children,omitempty"`
}

// ProxyURL rewrites a remote image URL through the local image proxy.
func ProxyURL(raw string) string {
	if raw == "" {
		return ""
	}
	return "/proxy?url=" + url.QueryEscape(raw)
}

func leaf(r p.Record) *Node {
	return &Node{
		Name:      channelName(r),
		Value:     subscribers(r),
		ChannelID: r.Str(IDField),
		Thumbnail: ProxyURL(r.Str(ThumbnailField)),
	}
}

func (n *Node) sort() {
	sort.SliceStable(n.Children, func(i, j int) bool { return n.Children[i].Value > n.Children[j].Value })
}

func parent(name string, kids p.Records) *Node {
	n := &Node{Name: name}
	for _, r := range kids {
		l := leaf(r)
		n.Value += l.Value
		n.Children = append(n.Children, l)
	}
	n.sort()
	return n
}

// Treemap builds the treemap hierarchy from the top channels by subscribers.
// Overview nests channels under their country, CountryDrill under their main
// category, and CategoryDrill lists channels directly.
func (d *Dashboard) Treemap(ctx context.Context) (*Node, error) {
	st, err := d.State(TreemapView)
	if err != nil {
		return nil, err
	}
	recs, err := d.Records(ctx, TreemapView)
	if err != nil {
		return nil, err
	}
	res, err := d.pl.Fold(ctx, recs, &order.SortBy{Field: SubscriberField}, &order.Limit{N: TreemapLimit})
	if err != nil {
		return nil, err
	}
	top := res.(p.Records)

	var key func(p.Record) string
	switch st.State {
	case Overview:
		key = countryOf
	case CountryDrill:
		key = MainCategory
	default:
		return parent("root", top), nil
	}
	grouped, err := d.pl.Fold(ctx, top,
		&project.Derive{Field: "_group", Fn: func(r p.Record) p.Value { return p.String(key(r)) }},
		&group.GroupBy{Field: "_group"},
	)
	if err != nil {
		return nil, err
	}
	root := &Node{Name: "root"}
	for k, members := range grouped.(*p.Groups).All() {
		child := parent(k.Str(), members)
		root.Value += child.Value
		root.Children = append(root.Children, child)
	}
	root.sort()
	return root, nil
}

// Bubble builds the bubble pack. Overview packs countries sized by channel
// count (blank countries are left out); the drill levels pack channels sized
// by subscribers.
func (d *Dashboard) Bubble(ctx context.Context) (*Node, error) {
	st, err := d.State(BubbleView)
	if err != nil {
		return nil, err
	}
	recs, err := d.Records(ctx, BubbleView)
	if err != nil {
		return nil, err
	}
	if st.State != Overview {
		root := parent(CountryName(st.Country), recs)
		if st.Country == "" {
			root.Name = "World"
		}
		return root, nil
	}
	res, err := d.pl.Fold(ctx, recs,
		&project.Normalize{Field: CountryField, Upper: true},
		&filter.Func{Pred: func(r p.Record) bool { return r.Str(CountryField) != "" }},
		&group.GroupBy{Field: CountryField},
		&group.Aggregate{Reducer: reduce.ChannelStats()},
	)
	if err != nil {
		return nil, err
	}
	root := &Node{Name: "World"}
	for _, s := range res.(p.Summaries) {
		stats := s.Value.(reduce.Stats)
		root.Children = append(root.Children, &Node{Name: s.Key.Str(), Value: float64(stats.ChannelCount)})
		root.Value += float64(stats.ChannelCount)
	}
	root.sort()
	return root, nil
}
