package chart

import (
	"bytes"
	"fmt"
	"strconv"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

var pieColors = []drawing.Color{
	drawing.ColorFromHex("7fc97f"),
	drawing.ColorFromHex("beaed4"),
	drawing.ColorFromHex("fdc086"),
	drawing.ColorFromHex("ffff99"),
	drawing.ColorFromHex("386cb0"),
	drawing.ColorFromHex("f0027f"),
	drawing.ColorFromHex("bf5b17"),
	drawing.ColorFromHex("666666"),
}

// RenderSenderPie draws the share of each top sender plus Others.
func RenderSenderPie(stats *model.AggregateResult) ([]byte, error) {
	total := 0
	for _, sc := range stats.TopSendersGrouped {
		total += sc.Count
	}
	if total == 0 {
		return nil, ErrNoData
	}

	values := make([]gochart.Value, 0, len(stats.TopSendersGrouped))
	for i, sc := range stats.TopSendersGrouped {
		if sc.Count == 0 {
			continue
		}
		values = append(values, gochart.Value{
			Value: float64(sc.Count),
			Label: fmt.Sprintf("%s %s", util.TruncateString(sc.Sender, 24), util.FormatPercent(sc.Count, total)),
			Style: gochart.Style{FillColor: pieColors[i%len(pieColors)]},
		})
	}

	pie := gochart.PieChart{
		Title:  "Message Distribution",
		Width:  640,
		Height: 640,
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(gochart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderHourlyBar draws message counts per hour of day.
func RenderHourlyBar(stats *model.AggregateResult) ([]byte, error) {
	maxCount := 0
	for _, c := range stats.HourlyCounts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		return nil, ErrNoData
	}

	bars := make([]gochart.Value, len(stats.HourlyCounts))
	for hour, c := range stats.HourlyCounts {
		label := ""
		if hour%2 == 0 {
			label = strconv.Itoa(hour)
		}
		bars[hour] = gochart.Value{
			Value: float64(c),
			Label: label,
			Style: gochart.Style{
				FillColor:   drawing.ColorFromHex("1db954").WithAlpha(180),
				StrokeColor: drawing.ColorFromHex("1db954"),
				StrokeWidth: 1,
			},
		}
	}

	bar := gochart.BarChart{
		Title: "Activity by Hour",
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40},
		},
		Width:      1100,
		Height:     600,
		BarWidth:   24,
		BarSpacing: 12,
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: 0, Max: float64(maxCount) * 1.1},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bar.Render(gochart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
