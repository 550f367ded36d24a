package reduce

import (
	p "github.com/wdm0006/chandash/pkg/pipeline"
)

// Field names read by the channel statistics.
const (
	SubscriberField = "subscriber_count"
	VideoField      = "video_count"
	CountryField    = "country"
)

// Stats summarises a group of channels.
type Stats struct {
	ChannelCount     int     `json:"channelCount"`
	AvgSubscribers   float64 `json:"avgSubscribers"`
	TotalSubscribers float64 `json:"totalSubscribers"`
	AvgVideos        float64 `json:"avgVideos"`
	TotalVideos      float64 `json:"totalVideos"`
	Countries        int     `json:"countries,omitempty"`
}

// Record flattens the statistics so they can be written as a row.
func (s Stats) Record() p.Record {
	fields := map[string]any{
		"channelCount":     s.ChannelCount,
		"avgSubscribers":   s.AvgSubscribers,
		"totalSubscribers": s.TotalSubscribers,
		"avgVideos":        s.AvgVideos,
		"totalVideos":      s.TotalVideos,
	}
	if s.Countries > 0 {
		fields["countries"] = s.Countries
	}
	return p.RecordOf(fields)
}

// Metric returns one of the statistics by its JSON name.
func (s Stats) Metric(name string) (float64, bool) {
	switch name {
	case "channelCount":
		return float64(s.ChannelCount), true
	case "avgSubscribers":
		return s.AvgSubscribers, true
	case "totalSubscribers":
		return s.TotalSubscribers, true
	case "avgVideos":
		return s.AvgVideos, true
	case "totalVideos":
		return s.TotalVideos, true
	case "countries":
		return float64(s.Countries), true
	}
	return 0, false
}

func channelStats(rs p.Records) Stats {
	subs := numbers(rs, SubscriberField)
	vids := numbers(rs, VideoField)
	s := Stats{
		ChannelCount:     len(rs),
		TotalSubscribers: sum(subs),
		TotalVideos:      sum(vids),
	}
	if len(subs) > 0 {
		s.AvgSubscribers = s.TotalSubscribers / float64(len(subs))
	}
	if len(vids) > 0 {
		s.AvgVideos = s.TotalVideos / float64(len(vids))
	}
	return s
}

// ChannelStats reduces a group to its Stats (without the country count).
func ChannelStats() Reducer {
	return func(rs p.Records) any { return channelStats(rs) }
}

// WorldStats is ChannelStats plus the number of distinct countries.
func WorldStats() Reducer {
	return func(rs p.Records) any {
		s := channelStats(rs)
		seen := map[string]struct{}{}
		for _, r := range rs {
			seen[r.Str(CountryField)] = struct{}{}
		}
		s.Countries = len(seen)
		return s
	}
}
