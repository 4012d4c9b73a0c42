package model

import "time"

// SenderCount is a sender (or the synthetic Others bucket) with its
// message count.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// SenderAverage is a sender's mean content length in characters.
type SenderAverage struct {
	Sender  string  `json:"sender"`
	Average float64 `json:"average"`
}

// DailyCount is the number of messages on one calendar day.
type DailyCount struct {
	Date  time.Time `json:"-"`
	Day   string    `json:"date"` // YYYY-MM-DD
	Count int       `json:"count"`
}

// AggregateResult holds every statistic computed over a record set.
type AggregateResult struct {
	TotalMessages  int    `json:"total_messages"`
	UniqueSenders  int    `json:"unique_senders"`
	TopSender      string `json:"top_sender"`
	BusiestDay     string `json:"busiest_day"`
	MaxMsgsOneDay  int    `json:"max_msgs_one_day"`
	DroppedRecords int    `json:"dropped_records"`

	HourlyCounts      [24]int         `json:"hourly_counts"`
	DailyCounts       []DailyCount    `json:"daily_counts"`
	WeekdayHourMatrix [7][24]int      `json:"weekday_hour_matrix"`
	TopSendersGrouped []SenderCount   `json:"top_senders_grouped"`
	AvgLengthBySender []SenderAverage `json:"avg_length_by_sender,omitempty"`

	// HasContent is true when at least one record carried a content field.
	HasContent bool `json:"-"`
}

// ChartArtifact is one rendered chart.
type ChartArtifact struct {
	ID     ChartID
	Format string
	Data   []byte
}

// Analysis is the full outcome of a successful pipeline run.
type Analysis struct {
	Stats  *AggregateResult
	Charts map[ChartID]ChartArtifact
}
