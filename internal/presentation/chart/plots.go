package chart

import (
	"bytes"
	"strconv"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 6 * vg.Inch
)

func encodePlot(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, FormatPNG)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderDailyLine draws messages per day as a filled line with markers.
func RenderDailyLine(stats *model.AggregateResult) ([]byte, error) {
	if len(stats.DailyCounts) == 0 {
		return nil, ErrNoData
	}
	loc := stats.DailyCounts[0].Date.Location()

	pts := make(plotter.XYs, len(stats.DailyCounts))
	for i, dc := range stats.DailyCounts {
		pts[i].X = float64(dc.Date.Unix())
		pts[i].Y = float64(dc.Count)
	}

	p := plot.New()
	p.Title.Text = "Daily Message Volume"
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Messages"
	p.Y.Min = 0
	p.X.Tick.Marker = plot.TimeTicks{
		Format: model.DateLayout,
		Time: func(t float64) time.Time {
			return time.Unix(int64(t), 0).In(loc)
		},
	}
	p.X.Tick.Label.Rotation = 0.6
	p.X.Tick.Label.XAlign = -0.9

	grid := plotter.NewGrid()
	grid.Vertical.Color = gridColor
	grid.Horizontal.Color = gridColor
	p.Add(grid)

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = accentColor
	line.Width = vg.Points(2)
	line.FillColor = accentFill
	points.Color = accentColor
	points.Radius = vg.Points(3)
	p.Add(line, points)

	return encodePlot(p, plotWidth, plotHeight)
}

// weekdayGrid adapts the weekday by hour matrix to plotter.GridXYZ. Monday
// is the top row.
type weekdayGrid [7][24]int

func (g *weekdayGrid) Dims() (c, r int)   { return 24, 7 }
func (g *weekdayGrid) Z(c, r int) float64 { return float64(g[6-r][c]) }
func (g *weekdayGrid) X(c int) float64    { return float64(c) }
func (g *weekdayGrid) Y(r int) float64    { return float64(r) }

// RenderHeatmap draws message counts by weekday and hour.
func RenderHeatmap(stats *model.AggregateResult) ([]byte, error) {
	if stats.TotalMessages == 0 {
		return nil, ErrNoData
	}

	grid := weekdayGrid(stats.WeekdayHourMatrix)
	hm := plotter.NewHeatMap(&grid, palette.Heat(16, 1))
	if hm.Max == hm.Min {
		hm.Max = hm.Min + 1
	}

	p := plot.New()
	p.Title.Text = "Activity Heatmap"
	p.X.Label.Text = "Hour of Day"
	p.Add(hm)

	days := make([]string, len(model.Weekdays))
	for i, d := range model.Weekdays {
		days[len(days)-1-i] = d
	}
	p.NominalY(days...)

	hours := make([]string, 24)
	for h := range hours {
		if h%3 == 0 {
			hours[h] = strconv.Itoa(h)
		}
	}
	p.NominalX(hours...)

	return encodePlot(p, plotWidth, 4*vg.Inch)
}

// RenderAvgLengthBar draws the mean content length of the ranked senders as
// horizontal bars, longest on top.
func RenderAvgLengthBar(stats *model.AggregateResult) ([]byte, error) {
	if !stats.HasContent || len(stats.AvgLengthBySender) == 0 {
		return nil, ErrNoData
	}

	values := make(plotter.Values, len(stats.AvgLengthBySender))
	names := make([]string, len(stats.AvgLengthBySender))
	for i, sa := range stats.AvgLengthBySender {
		values[i] = sa.Average
		names[i] = util.TruncateString(sa.Sender, 20)
	}

	p := plot.New()
	p.Title.Text = "Average Message Length"
	p.X.Label.Text = "Characters"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, err
	}
	bars.Horizontal = true
	bars.Color = accentColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)

	height := vg.Length(len(values))*vg.Points(36) + 2*vg.Inch
	return encodePlot(p, 8*vg.Inch, height)
}
