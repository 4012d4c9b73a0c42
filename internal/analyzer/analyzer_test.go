package analyzer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/data/schema"
	"github.com/penwyp/go-chat-recap/internal/data/timestamp"
	"github.com/penwyp/go-chat-recap/internal/testing/fixtures"
)

type recordingObserver struct {
	mu       sync.Mutex
	phases   []string
	outcomes []string
}

func (o *recordingObserver) ObservePhase(phase string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, phase)
}

func (o *recordingObserver) ObserveOutcome(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func newTestAnalyzer(t *testing.T, cfg Config) *Analyzer {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

const chatExport = `[
	{"send_time": 1704096000, "author": "Alice", "text": "0123456789"},
	{"send_time": 1704099600, "author": "Alice", "text": "0123456789"},
	{"send_time": 1704186000, "author": "Bob",   "text": "01234567890123456789012345678901234567890123456789"},
	{"send_time": 1704189600, "author": "Alice", "text": "0123456789"},
	{"send_time": 1704193200, "author": "Bob",   "text": "01234567890123456789012345678901234567890123456789"}
]`

func TestNewDefaults(t *testing.T) {
	a := newTestAnalyzer(t, Config{})
	cfg := a.Config()
	assert.Equal(t, schema.DialectLoose, cfg.Dialect)
	assert.Equal(t, timestamp.PolicyDrop, cfg.OnBadTimestamp)
	assert.Equal(t, 5, cfg.AvgLengthTopN)
	assert.Equal(t, 5, cfg.TopSenders)

	strict := newTestAnalyzer(t, Config{Dialect: schema.DialectStrict})
	assert.Equal(t, 10, strict.Config().AvgLengthTopN)

	_, err := New(Config{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestAnalyzeBytes(t *testing.T) {
	observer := &recordingObserver{}
	a := newTestAnalyzer(t, Config{Heatmap: true}).WithObserver(observer)

	analysis, err := a.AnalyzeBytes([]byte(chatExport))
	require.NoError(t, err)

	stats := analysis.Stats
	assert.Equal(t, 5, stats.TotalMessages)
	assert.Equal(t, 2, stats.UniqueSenders)
	assert.Equal(t, "Alice", stats.TopSender)
	assert.Equal(t, "2024-01-02", stats.BusiestDay)
	assert.Equal(t, 3, stats.MaxMsgsOneDay)
	assert.Equal(t, 0, stats.DroppedRecords)

	require.Len(t, stats.AvgLengthBySender, 2)
	assert.Equal(t, "Alice", stats.AvgLengthBySender[0].Sender)
	assert.Equal(t, "Bob", stats.AvgLengthBySender[1].Sender)

	for _, id := range model.AllCharts {
		assert.Contains(t, analysis.Charts, id)
	}

	assert.Equal(t, []string{PhaseExtract, PhaseMap, PhaseResolve, PhaseAggregate, PhaseRender}, observer.phases)
	assert.Equal(t, []string{OutcomeSuccess}, observer.outcomes)

	total, successes, _, _ := a.Stats().GetStats()
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), successes)
}

func TestAnalyzePayloadShapesAgree(t *testing.T) {
	payloads := map[string]string{
		"list":     `[{"time":1700000000,"sender":"A"},{"time":1700003600,"sender":"B"},{"time":1700007200,"sender":"A"}]`,
		"messages": `{"messages":[{"time":1700000000,"sender":"A"},{"time":1700003600,"sender":"B"},{"time":1700007200,"sender":"A"}]}`,
		"columnar": `{"time":[1700000000,1700003600,1700007200],"sender":["A","B","A"]}`,
	}

	a := newTestAnalyzer(t, Config{SkipCharts: true})
	var results []*model.AggregateResult
	for name, raw := range payloads {
		analysis, err := a.AnalyzeBytes([]byte(raw))
		require.NoError(t, err, name)
		assert.Empty(t, analysis.Charts)
		results = append(results, analysis.Stats)
	}
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestAnalyzeGeneratedExports(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	msgs := fixtures.Conversation(start, []string{"Alice", "Bob", "Carol"}, 30)
	a := newTestAnalyzer(t, Config{SkipCharts: true})

	var first *model.AggregateResult
	for _, shape := range []fixtures.Shape{fixtures.ShapeList, fixtures.ShapeWrapped, fixtures.ShapeColumnar} {
		for _, enc := range []fixtures.TimeEncoding{fixtures.TimeSeconds, fixtures.TimeMillis, fixtures.TimeString} {
			data, err := fixtures.Build(msgs, shape, enc)
			require.NoError(t, err)

			analysis, err := a.AnalyzeBytes(data)
			require.NoError(t, err, "%s/%s", shape, enc)
			assert.Equal(t, 30, analysis.Stats.TotalMessages)
			assert.Equal(t, 3, analysis.Stats.UniqueSenders)
			if first == nil {
				first = analysis.Stats
				continue
			}
			assert.Equal(t, first, analysis.Stats, "%s/%s", shape, enc)
		}
	}
	assert.Equal(t, "2024-03-04", first.BusiestDay)
	assert.Equal(t, 15, first.MaxMsgsOneDay)
}

func TestAnalyzeMillisecondsMatchSeconds(t *testing.T) {
	a := newTestAnalyzer(t, Config{SkipCharts: true})

	secs, err := a.AnalyzeBytes([]byte(`[{"time":1700000000,"sender":"A"},{"time":1700000050,"sender":"B"}]`))
	require.NoError(t, err)
	millis, err := a.AnalyzeBytes([]byte(`[{"time":1700000000000,"sender":"A"},{"time":1700000050000,"sender":"B"}]`))
	require.NoError(t, err)

	assert.Equal(t, secs.Stats.HourlyCounts, millis.Stats.HourlyCounts)
	assert.Equal(t, secs.Stats.BusiestDay, millis.Stats.BusiestDay)
	assert.Equal(t, "2023-11-14", secs.Stats.BusiestDay)
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		cfg    Config
		kind   model.FailureKind
		fields []string
	}{
		{"empty list", `[]`, Config{}, model.KindNoMessagesFound, nil},
		{"invalid json", `{"messages": [`, Config{}, model.KindUnparsablePayload, nil},
		{"scalar", `"hello"`, Config{}, model.KindUnparsablePayload, nil},
		{"unequal columns", `{"time":[1,2],"sender":["A"]}`, Config{}, model.KindUnparsablePayload, nil},
		{"missing columns", `[{"foo":"bar"}]`, Config{}, model.KindMissingRequiredColumns, []string{"foo"}},
		{"no senders", `[{"timestamp":1700000000,"sender":""},{"timestamp":1700000050,"sender":null}]`, Config{}, model.KindNoMessagesFound, []string{"sender", "timestamp"}},
		{"mixed timestamps", `[{"time":1700000000,"sender":"A"},{"time":"2024-01-01","sender":"B"}]`, Config{}, model.KindTimestampParseError, nil},
		{"boolean timestamps", `[{"time":true,"sender":"A"}]`, Config{}, model.KindTimestampParseError, nil},
		{"fail policy", `[{"time":"2024-01-01","sender":"A"},{"time":"garbage","sender":"B"}]`, Config{OnBadTimestamp: timestamp.PolicyFail}, model.KindTimestampParseError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &recordingObserver{}
			a := newTestAnalyzer(t, tt.cfg).WithObserver(observer)

			analysis, err := a.AnalyzeBytes([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, analysis)

			perr := model.AsPipelineError(err)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.fields, perr.Fields)
			assert.Empty(t, perr.Trace)
			assert.Equal(t, []string{string(tt.kind)}, observer.outcomes)
			assert.Equal(t, 1, a.Stats().FailureCounts()[tt.kind])
		})
	}
}

func TestAnalyzeDropsBadRows(t *testing.T) {
	a := newTestAnalyzer(t, Config{SkipCharts: true})
	analysis, err := a.AnalyzeBytes([]byte(`[
		{"time":"2024-01-01 10:00","sender":"A"},
		{"time":"garbage","sender":"B"},
		{"time":"2024-01-01 11:00"},
		{"time":"2024-01-02 09:00","sender":"C"}
	]`))
	require.NoError(t, err)

	assert.Equal(t, 2, analysis.Stats.TotalMessages)
	assert.Equal(t, 2, analysis.Stats.DroppedRecords)
}

func TestAnalyzeWithoutContent(t *testing.T) {
	a := newTestAnalyzer(t, Config{})
	analysis, err := a.AnalyzeBytes([]byte(`[{"time":1700000000,"sender":"A"},{"time":1700000050,"sender":"B"}]`))
	require.NoError(t, err)

	assert.Nil(t, analysis.Stats.AvgLengthBySender)
	assert.NotContains(t, analysis.Charts, model.ChartAvgLenBar)
	assert.NotContains(t, analysis.Charts, model.ChartHeatmap)
	assert.Contains(t, analysis.Charts, model.ChartSenderPie)
}

func TestAnalyzeRecoversPanics(t *testing.T) {
	a := newTestAnalyzer(t, Config{SkipCharts: true})
	a.mapper = nil

	analysis, err := a.Analyze([]any{map[string]any{"time": float64(1), "sender": "A"}})
	require.Error(t, err)
	assert.Nil(t, analysis)

	perr := model.AsPipelineError(err)
	assert.Equal(t, model.KindInternalFailure, perr.Kind)
	assert.NotEmpty(t, perr.Trace)
	assert.Equal(t, 500, perr.Kind.StatusCode())
	assert.Equal(t, 1, a.Stats().FailureCounts()[model.KindInternalFailure])
}

func TestAnalyzeTimezone(t *testing.T) {
	a := newTestAnalyzer(t, Config{Timezone: "Asia/Shanghai", SkipCharts: true})

	// 2024-01-01 20:30 UTC
	analysis, err := a.AnalyzeBytes([]byte(`[{"time":1704141000,"sender":"A"}]`))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", analysis.Stats.BusiestDay)
	assert.Equal(t, 1, analysis.Stats.HourlyCounts[4])
}
