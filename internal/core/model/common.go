package model

// Canonical roles a source field can be mapped onto.
const (
	RoleTimestamp = "timestamp"
	RoleSender    = "sender"
	RoleContent   = "content"
)

// ChartID identifies one of the rendered summaries.
type ChartID string

const (
	ChartSenderPie ChartID = "sender_pie"
	ChartHourlyBar ChartID = "hourly_bar"
	ChartDailyLine ChartID = "daily_line"
	ChartHeatmap   ChartID = "heatmap"
	ChartAvgLenBar ChartID = "avg_len_bar"
)

// AllCharts lists every chart in render order.
var AllCharts = []ChartID{
	ChartSenderPie,
	ChartHourlyBar,
	ChartDailyLine,
	ChartHeatmap,
	ChartAvgLenBar,
}

// Sentinels used when there is nothing to report.
const (
	NoneValue    = "none"
	OthersBucket = "Others"
	DateLayout   = "2006-01-02"
)

// Weekdays in matrix row order.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
