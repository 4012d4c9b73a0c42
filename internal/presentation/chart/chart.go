package chart

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// FormatPNG is the only artifact format produced.
const FormatPNG = "png"

// ErrNoData means the series a chart draws from is missing or empty. The
// chart is omitted without a warning.
var ErrNoData = errors.New("no data for chart")

var (
	accentColor = color.RGBA{R: 0x1d, G: 0xb9, B: 0x54, A: 0xff}
	accentFill  = color.RGBA{R: 0x1d, G: 0xb9, B: 0x54, A: 0x50}
	gridColor   = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
)

// RenderFunc draws one series of stats into a PNG.
type RenderFunc func(stats *model.AggregateResult) ([]byte, error)

// Renderer binds a chart id to the function that draws it.
type Renderer struct {
	ID     model.ChartID
	Render RenderFunc
}

// Options select which optional charts are drawn.
type Options struct {
	Heatmap bool
}

// Generator renders every chart independently.
type Generator struct {
	renderers []Renderer
}

// NewGenerator creates a generator with the standard renderers.
func NewGenerator(opts Options) *Generator {
	renderers := []Renderer{
		{ID: model.ChartSenderPie, Render: RenderSenderPie},
		{ID: model.ChartHourlyBar, Render: RenderHourlyBar},
		{ID: model.ChartDailyLine, Render: RenderDailyLine},
	}
	if opts.Heatmap {
		renderers = append(renderers, Renderer{ID: model.ChartHeatmap, Render: RenderHeatmap})
	}
	renderers = append(renderers, Renderer{ID: model.ChartAvgLenBar, Render: RenderAvgLengthBar})
	return NewGeneratorWithRenderers(renderers...)
}

// NewGeneratorWithRenderers creates a generator from an explicit renderer list.
func NewGeneratorWithRenderers(renderers ...Renderer) *Generator {
	return &Generator{renderers: renderers}
}

// Generate renders each chart. A chart that has no data, returns an error
// or panics is left out; the others are unaffected.
func (g *Generator) Generate(stats *model.AggregateResult) map[model.ChartID]model.ChartArtifact {
	artifacts := make(map[model.ChartID]model.ChartArtifact, len(g.renderers))
	for _, r := range g.renderers {
		start := time.Now()
		data, err := safeRender(r, stats)
		switch {
		case errors.Is(err, ErrNoData):
			util.LogDebug("Chart omitted, no data", util.F("chart", string(r.ID)))
			continue
		case err != nil:
			util.LogWarn("Chart omitted, render failed", util.F("chart", string(r.ID)), util.F("error", err.Error()))
			continue
		}
		util.LogDebug("Chart rendered",
			util.F("chart", string(r.ID)), util.F("bytes", len(data)), util.F("duration", util.FormatDuration(time.Since(start))))
		artifacts[r.ID] = model.ChartArtifact{ID: r.ID, Format: FormatPNG, Data: data}
	}
	return artifacts
}

func safeRender(r Renderer, stats *model.AggregateResult) (data []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = fmt.Errorf("renderer panic: %v", rec)
		}
	}()
	if stats == nil {
		return nil, ErrNoData
	}
	data, err = r.Render(stats)
	if err == nil && len(data) == 0 {
		err = ErrNoData
	}
	return data, err
}
