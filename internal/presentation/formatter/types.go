package formatter

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/penwyp/go-chat-recap/internal/core/model"
)

// Output kinds accepted by NewFormatter.
const (
	OutputSummary = "summary"
	OutputJSON    = "json"
	OutputCSV     = "csv"
)

// Formatter writes one analysis. Source names the analyzed export.
type Formatter interface {
	Format(source string, analysis *model.Analysis) error
}

// NewFormatter returns the formatter for an output kind writing to w. A nil
// writer means stdout.
func NewFormatter(kind string, w io.Writer) (Formatter, error) {
	if w == nil {
		w = os.Stdout
	}
	switch kind {
	case "", OutputSummary:
		return NewSummaryFormatter(w), nil
	case OutputJSON:
		return NewJSONFormatter(w), nil
	case OutputCSV:
		return NewCSVFormatter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q (valid: summary, json, csv)", kind)
}

// Series carries the raw chart inputs.
type Series struct {
	HourlyCounts      [24]int               `json:"hourly_counts"`
	DailyCounts       []model.DailyCount    `json:"daily_counts"`
	WeekdayHourMatrix [7][24]int            `json:"weekday_hour_matrix"`
	TopSendersGrouped []model.SenderCount   `json:"top_senders_grouped"`
	AvgLengthBySender []model.SenderAverage `json:"avg_length_by_sender,omitempty"`
}

// Response is the success envelope.
type Response struct {
	TotalMessages  int               `json:"total_messages"`
	UniqueSenders  int               `json:"unique_senders"`
	TopSender      string            `json:"top_sender"`
	BusiestDay     string            `json:"busiest_day"`
	MaxMsgsOneDay  int               `json:"max_msgs_one_day"`
	DroppedRecords int               `json:"dropped_records"`
	Series         Series            `json:"series"`
	Charts         map[string]string `json:"charts"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
	Trace   string   `json:"trace,omitempty"`
}

// BuildResponse packages stats and charts, encoding each PNG as base64.
func BuildResponse(analysis *model.Analysis) *Response {
	stats := analysis.Stats
	resp := &Response{
		TotalMessages:  stats.TotalMessages,
		UniqueSenders:  stats.UniqueSenders,
		TopSender:      stats.TopSender,
		BusiestDay:     stats.BusiestDay,
		MaxMsgsOneDay:  stats.MaxMsgsOneDay,
		DroppedRecords: stats.DroppedRecords,
		Series: Series{
			HourlyCounts:      stats.HourlyCounts,
			DailyCounts:       stats.DailyCounts,
			WeekdayHourMatrix: stats.WeekdayHourMatrix,
			TopSendersGrouped: stats.TopSendersGrouped,
			AvgLengthBySender: stats.AvgLengthBySender,
		},
		Charts: make(map[string]string, len(analysis.Charts)),
	}
	if resp.Series.DailyCounts == nil {
		resp.Series.DailyCounts = []model.DailyCount{}
	}
	if resp.Series.TopSendersGrouped == nil {
		resp.Series.TopSendersGrouped = []model.SenderCount{}
	}
	for id, artifact := range analysis.Charts {
		resp.Charts[string(id)] = base64.StdEncoding.EncodeToString(artifact.Data)
	}
	return resp
}

// BuildErrorResponse converts any error into the failure envelope and its
// HTTP status.
func BuildErrorResponse(err error) (*ErrorResponse, int) {
	perr := model.AsPipelineError(err)
	msg := perr.Message
	if perr.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, perr.Err)
	}
	return &ErrorResponse{
		Error:   string(perr.Kind),
		Message: msg,
		Fields:  perr.Fields,
		Trace:   perr.Trace,
	}, perr.Kind.StatusCode()
}

// chartIDs returns the rendered chart ids in a stable order.
func chartIDs(analysis *model.Analysis) []model.ChartID {
	ids := make([]model.ChartID, 0, len(analysis.Charts))
	for id := range analysis.Charts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
