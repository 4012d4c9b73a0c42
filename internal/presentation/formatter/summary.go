package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// SummaryFormatter is responsible for formatting and outputting summary reports.
type SummaryFormatter struct {
	w     io.Writer
	width int
	color bool
}

// NewSummaryFormatter creates a summary formatter. Terminal width and colors
// are only used when writing to an interactive stdout.
func NewSummaryFormatter(w io.Writer) *SummaryFormatter {
	f := &SummaryFormatter{w: w, width: 80}
	if w == os.Stdout && util.IsTerminal() {
		f.width = util.TerminalWidth()
		f.color = true
	}
	return f
}

// Format writes the report for one analysis.
func (f *SummaryFormatter) Format(source string, analysis *model.Analysis) error {
	stats := analysis.Stats
	rule := strings.Repeat("=", f.width)

	title := "Chat Recap"
	if source != "" {
		title += ": " + source
	}
	fmt.Fprintln(f.w, rule)
	fmt.Fprintln(f.w, util.FormatHeaderTitle(util.TruncateString(title, f.width), f.color))
	fmt.Fprintln(f.w, rule)
	fmt.Fprintln(f.w)

	if stats.TotalMessages == 0 {
		fmt.Fprintln(f.w, "No messages to summarize")
		fmt.Fprintln(f.w)
		fmt.Fprintln(f.w, rule)
		return nil
	}

	fmt.Fprintln(f.w, util.FormatDataTitle("Overview:", f.color))
	fmt.Fprintf(f.w, "  Total Messages:   %s\n", util.FormatCount(stats.TotalMessages))
	fmt.Fprintf(f.w, "  Unique Senders:   %s\n", util.FormatCount(stats.UniqueSenders))
	fmt.Fprintf(f.w, "  Top Sender:       %s\n", stats.TopSender)
	fmt.Fprintf(f.w, "  Busiest Day:      %s (%s messages)\n", stats.BusiestDay, util.FormatCount(stats.MaxMsgsOneDay))
	if len(stats.DailyCounts) > 0 {
		first := stats.DailyCounts[0].Day
		last := stats.DailyCounts[len(stats.DailyCounts)-1].Day
		if first == last {
			fmt.Fprintf(f.w, "  Date Range:       %s\n", first)
		} else {
			fmt.Fprintf(f.w, "  Date Range:       %s to %s (%d active days)\n", first, last, len(stats.DailyCounts))
		}
	}
	if stats.DroppedRecords > 0 {
		fmt.Fprintf(f.w, "  Dropped Records:  %s\n", util.FormatWarning(util.FormatCount(stats.DroppedRecords), f.color))
	}
	fmt.Fprintln(f.w)

	fmt.Fprintln(f.w, util.FormatDataTitle("Top Senders:", f.color))
	senders := NewTable([]string{"Sender", "Messages", "Share"}, 1, 2)
	for _, sc := range stats.TopSendersGrouped {
		senders.AddRow(sc.Sender, util.FormatCount(sc.Count), util.FormatPercent(sc.Count, stats.TotalMessages))
	}
	senders.Render(f.w)
	fmt.Fprintln(f.w)

	fmt.Fprintln(f.w, util.FormatDataTitle("Activity by Hour:", f.color))
	f.printHourly(stats)
	fmt.Fprintln(f.w)

	if len(stats.AvgLengthBySender) > 0 {
		fmt.Fprintln(f.w, util.FormatDataTitle("Longest Messages:", f.color))
		lengths := NewTable([]string{"Sender", "Average Length"}, 1)
		for i := len(stats.AvgLengthBySender) - 1; i >= 0; i-- {
			sa := stats.AvgLengthBySender[i]
			lengths.AddRow(sa.Sender, util.FormatAverage(sa.Average))
		}
		lengths.Render(f.w)
		fmt.Fprintln(f.w)
	}

	if ids := chartIDs(analysis); len(ids) > 0 {
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = string(id)
		}
		fmt.Fprintf(f.w, "Charts: %s\n", strings.Join(names, ", "))
		fmt.Fprintln(f.w)
	}

	fmt.Fprintln(f.w, rule)
	return nil
}

// printHourly draws one bar per hour scaled to the busiest hour.
func (f *SummaryFormatter) printHourly(stats *model.AggregateResult) {
	maxCount := 0
	for _, c := range stats.HourlyCounts {
		if c > maxCount {
			maxCount = c
		}
	}
	countWidth := len(util.FormatCount(maxCount))
	barWidth := f.width - countWidth - 8
	if barWidth > 50 {
		barWidth = 50
	}
	if barWidth < 10 {
		barWidth = 10
	}

	for hour, c := range stats.HourlyCounts {
		fmt.Fprintf(f.w, "  %02d %s %s\n", hour, util.FormatBar(util.CreateBar(c, maxCount, barWidth), f.color),
			util.PadString(util.FormatCount(c), countWidth, false))
	}
}
