package formatter

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/penwyp/go-chat-recap/internal/core/model"
)

// CSVFormatter writes the daily message counts, one row per day.
type CSVFormatter struct {
	w io.Writer
}

func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{w: w}
}

func (f *CSVFormatter) Format(source string, analysis *model.Analysis) error {
	w := csv.NewWriter(f.w)

	if err := w.Write([]string{"Source", "Date", "Weekday", "Messages"}); err != nil {
		return err
	}

	for _, dc := range analysis.Stats.DailyCounts {
		record := []string{
			source,
			dc.Day,
			dc.Date.Weekday().String(),
			strconv.Itoa(dc.Count),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
