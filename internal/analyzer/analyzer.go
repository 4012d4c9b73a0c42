package analyzer

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/data/aggregator"
	"github.com/penwyp/go-chat-recap/internal/data/parser"
	"github.com/penwyp/go-chat-recap/internal/data/schema"
	"github.com/penwyp/go-chat-recap/internal/data/timestamp"
	"github.com/penwyp/go-chat-recap/internal/presentation/chart"
	"github.com/penwyp/go-chat-recap/internal/util"
)

// Pipeline phases reported to observers.
const (
	PhaseExtract   = "extract"
	PhaseMap       = "map"
	PhaseResolve   = "resolve"
	PhaseAggregate = "aggregate"
	PhaseRender    = "render"
)

// OutcomeSuccess is reported for runs that produced an analysis. Failed runs
// report their failure kind.
const OutcomeSuccess = "success"

type Config struct {
	Dialect        schema.Dialect
	OnBadTimestamp timestamp.BadRowPolicy
	Timezone       string
	Heatmap        bool
	// AvgLengthTopN defaults to 5 for the loose dialect and 10 for strict.
	AvgLengthTopN int
	TopSenders    int
	// SkipCharts disables rendering, leaving only the statistics.
	SkipCharts bool
}

// Observer receives timing and outcome data for every run.
type Observer interface {
	ObservePhase(phase string, d time.Duration)
	ObserveOutcome(outcome string)
}

type Analyzer struct {
	config     Config
	mapper     *schema.Mapper
	resolver   *timestamp.Resolver
	aggregator *aggregator.Aggregator
	charts     *chart.Generator
	stats      *RunStats
	observer   Observer
}

// New creates an Analyzer. It fails only on an invalid timezone.
func New(config Config) (*Analyzer, error) {
	tp, err := util.NewTimeProvider(config.Timezone)
	if err != nil {
		return nil, err
	}
	if config.Dialect == "" {
		config.Dialect = schema.DialectLoose
	}
	if config.OnBadTimestamp == "" {
		config.OnBadTimestamp = timestamp.PolicyDrop
	}
	if config.AvgLengthTopN <= 0 {
		config.AvgLengthTopN = aggregator.DefaultAvgLengthTopN
		if config.Dialect == schema.DialectStrict {
			config.AvgLengthTopN = 10
		}
	}
	if config.TopSenders <= 0 {
		config.TopSenders = aggregator.DefaultTopSenders
	}

	return &Analyzer{
		config:   config,
		mapper:   schema.NewMapper(config.Dialect),
		resolver: timestamp.NewResolver(tp, config.OnBadTimestamp),
		aggregator: aggregator.NewAggregator(tp, aggregator.Options{
			TopSenders:    config.TopSenders,
			AvgLengthTopN: config.AvgLengthTopN,
		}),
		charts: chart.NewGenerator(chart.Options{Heatmap: config.Heatmap}),
		stats:  NewRunStats(),
	}, nil
}

// WithObserver attaches an observer and returns the analyzer.
func (a *Analyzer) WithObserver(o Observer) *Analyzer {
	a.observer = o
	return a
}

// Stats returns the run counters.
func (a *Analyzer) Stats() *RunStats {
	return a.stats
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config {
	return a.config
}

// AnalyzeBytes decodes raw JSON and analyzes it.
func (a *Analyzer) AnalyzeBytes(data []byte) (*model.Analysis, error) {
	payload, err := parser.Decode(data)
	if err != nil {
		a.record(nil, err)
		return nil, err
	}
	return a.Analyze(payload)
}

// Analyze runs the full pipeline over a decoded payload. Every failure is
// returned as a *model.PipelineError; a panic in any stage becomes an
// InternalFailure carrying the stack trace.
func (a *Analyzer) Analyze(payload any) (analysis *model.Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			util.LogError("Analysis panicked", util.F("panic", fmt.Sprint(r)))
			analysis = nil
			err = &model.PipelineError{
				Kind:    model.KindInternalFailure,
				Message: fmt.Sprintf("unexpected failure: %v", r),
				Trace:   string(debug.Stack()),
			}
		}
		a.record(analysis, err)
	}()

	startTime := time.Now()

	// Phase 1: Extract records
	records, err := timed(a, PhaseExtract, func() ([]model.Record, error) {
		return parser.ExtractRecords(payload)
	})
	if err != nil {
		return nil, err
	}
	util.LogDebug("Phase 1 - Records extracted", util.F("records", len(records)))

	// Phase 2: Map fields onto roles
	mapped, err := timed(a, PhaseMap, func() (*schema.Result, error) {
		return a.mapper.Map(records)
	})
	if err != nil {
		return nil, err
	}
	util.LogDebug("Phase 2 - Schema mapped", util.F("records", len(mapped.Records)), util.F("dropped", mapped.Dropped))

	// Phase 3: Resolve timestamps
	resolved, err := timed(a, PhaseResolve, func() (*timestamp.Result, error) {
		return a.resolver.Resolve(mapped.Records)
	})
	if err != nil {
		return nil, err
	}
	util.LogDebug("Phase 3 - Timestamps resolved",
		util.F("unit", resolved.Policy.Unit.String()), util.F("records", len(resolved.Records)), util.F("dropped", resolved.Dropped))

	// Phase 4: Aggregate
	stats, _ := timed(a, PhaseAggregate, func() (*model.AggregateResult, error) {
		return a.aggregator.Aggregate(resolved.Records), nil
	})
	stats.DroppedRecords = mapped.Dropped + resolved.Dropped
	util.LogDebug("Phase 4 - Aggregated", util.F("messages", stats.TotalMessages), util.F("senders", stats.UniqueSenders))

	// Phase 5: Render charts
	charts := map[model.ChartID]model.ChartArtifact{}
	if !a.config.SkipCharts {
		charts, _ = timed(a, PhaseRender, func() (map[model.ChartID]model.ChartArtifact, error) {
			return a.charts.Generate(stats), nil
		})
	}
	util.LogDebug("Phase 5 - Charts rendered", util.F("charts", len(charts)))

	util.LogDebug("Analysis complete", util.F("duration", util.FormatDuration(time.Since(startTime))))
	return &model.Analysis{Stats: stats, Charts: charts}, nil
}

func (a *Analyzer) record(analysis *model.Analysis, err error) {
	if err != nil {
		kind := model.AsPipelineError(err).Kind
		a.stats.RecordFailure(kind)
		if a.observer != nil {
			a.observer.ObserveOutcome(string(kind))
		}
		return
	}
	a.stats.RecordSuccess(analysis.Stats.TotalMessages, analysis.Stats.DroppedRecords, len(analysis.Charts))
	if a.observer != nil {
		a.observer.ObserveOutcome(OutcomeSuccess)
	}
}

// timed runs fn and reports its duration for phase.
func timed[T any](a *Analyzer, phase string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	d := time.Since(start)
	if a.observer != nil {
		a.observer.ObservePhase(phase, d)
	}
	util.LogDebug("Phase finished", util.F("phase", phase), util.F("duration", util.FormatDuration(d)))
	return v, err
}
