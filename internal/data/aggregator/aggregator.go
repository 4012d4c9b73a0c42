package aggregator

import (
	"sort"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

const (
	// DefaultTopSenders is how many senders keep their own pie slice.
	DefaultTopSenders = 5
	// DefaultAvgLengthTopN is how many senders appear in the length ranking.
	DefaultAvgLengthTopN = 5
)

// Options tune the grouped series.
type Options struct {
	TopSenders    int
	AvgLengthTopN int
}

// Aggregator computes statistics over resolved records.
type Aggregator struct {
	tp   *util.TimeProvider
	opts Options
}

// NewAggregator creates an Aggregator. Days and hours are bucketed in tp's
// location; zero options fall back to the defaults.
func NewAggregator(tp *util.TimeProvider, opts Options) *Aggregator {
	if opts.TopSenders <= 0 {
		opts.TopSenders = DefaultTopSenders
	}
	if opts.AvgLengthTopN <= 0 {
		opts.AvgLengthTopN = DefaultAvgLengthTopN
	}
	return &Aggregator{tp: tp, opts: opts}
}

type senderStats struct {
	name       string
	count      int
	contentLen int
}

// Aggregate computes every scalar and series. It never fails; an empty input
// yields "none" sentinels and zero-filled series.
func (a *Aggregator) Aggregate(records []model.TimestampedRecord) *model.AggregateResult {
	result := &model.AggregateResult{
		TotalMessages: len(records),
		TopSender:     model.NoneValue,
		BusiestDay:    model.NoneValue,
	}

	// Senders in first-encountered order.
	var senders []*senderStats
	bySender := make(map[string]*senderStats)
	dayCounts := make(map[string]*model.DailyCount)

	for _, rec := range records {
		s, ok := bySender[rec.Sender]
		if !ok {
			s = &senderStats{name: rec.Sender}
			bySender[rec.Sender] = s
			senders = append(senders, s)
		}
		s.count++
		if rec.HasContent() {
			result.HasContent = true
			s.contentLen += ContentLength(*rec.Content)
		}

		local := a.tp.In(rec.Time)
		result.HourlyCounts[local.Hour()]++
		result.WeekdayHourMatrix[util.WeekdayIndex(local)][local.Hour()]++

		day := a.tp.Day(rec.Time)
		key := day.Format(model.DateLayout)
		dc, ok := dayCounts[key]
		if !ok {
			dc = &model.DailyCount{Date: day, Day: key}
			dayCounts[key] = dc
		}
		dc.Count++
	}

	result.UniqueSenders = len(senders)

	counts := make([]model.SenderCount, len(senders))
	for i, s := range senders {
		counts[i] = model.SenderCount{Sender: s.name, Count: s.count}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	if len(counts) > 0 {
		result.TopSender = counts[0].Sender
	}
	result.TopSendersGrouped = GroupTopSenders(counts, a.opts.TopSenders)

	result.DailyCounts = make([]model.DailyCount, 0, len(dayCounts))
	for _, dc := range dayCounts {
		result.DailyCounts = append(result.DailyCounts, *dc)
	}
	sort.Slice(result.DailyCounts, func(i, j int) bool {
		return result.DailyCounts[i].Date.Before(result.DailyCounts[j].Date)
	})
	for _, dc := range result.DailyCounts {
		if dc.Count > result.MaxMsgsOneDay {
			result.MaxMsgsOneDay = dc.Count
			result.BusiestDay = dc.Day
		}
	}

	if result.HasContent {
		result.AvgLengthBySender = rankAverageLength(senders, a.opts.AvgLengthTopN)
	}

	return result
}

// GroupTopSenders keeps the first n entries of counts, which must already be
// sorted by count descending, and folds the rest into an Others bucket.
func GroupTopSenders(counts []model.SenderCount, n int) []model.SenderCount {
	if len(counts) <= n {
		out := make([]model.SenderCount, len(counts))
		copy(out, counts)
		return out
	}

	out := make([]model.SenderCount, n, n+1)
	copy(out, counts[:n])
	others := 0
	for _, c := range counts[n:] {
		others += c.Count
	}
	return append(out, model.SenderCount{Sender: model.OthersBucket, Count: others})
}

// rankAverageLength sorts senders by mean content length ascending and keeps
// the last n, so the longest writers end the series.
func rankAverageLength(senders []*senderStats, n int) []model.SenderAverage {
	avgs := make([]model.SenderAverage, len(senders))
	for i, s := range senders {
		avgs[i] = model.SenderAverage{
			Sender:  s.name,
			Average: float64(s.contentLen) / float64(s.count),
		}
	}
	sort.SliceStable(avgs, func(i, j int) bool {
		return avgs[i].Average < avgs[j].Average
	})
	if len(avgs) > n {
		avgs = avgs[len(avgs)-n:]
	}
	return avgs
}

// ContentLength counts characters after NFC normalization, so composed and
// decomposed forms of the same text have the same length.
func ContentLength(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}
