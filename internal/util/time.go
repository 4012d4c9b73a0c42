package util

import (
	"fmt"
	"strings"
	"time"
)

// TimeProvider handles timezone-aware conversions for one analysis run.
type TimeProvider struct {
	location *time.Location
}

// NewTimeProvider creates a provider for the named timezone. An empty name
// means UTC; "Local" means the host's zone.
func NewTimeProvider(timezone string) (*TimeProvider, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &TimeProvider{location: loc}, nil
}

// LoadLocation resolves a timezone name with a helpful error.
func LoadLocation(timezone string) (*time.Location, error) {
	switch strings.TrimSpace(timezone) {
	case "", "UTC":
		return time.UTC, nil
	case "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w\nValid examples: Local, UTC, America/New_York, Asia/Shanghai, Europe/London, Australia/Sydney", timezone, err)
	}
	return loc, nil
}

// Location returns the configured location.
func (tp *TimeProvider) Location() *time.Location {
	if tp == nil || tp.location == nil {
		return time.UTC
	}
	return tp.location
}

// In converts a time to the configured timezone
func (tp *TimeProvider) In(t time.Time) time.Time {
	return t.In(tp.Location())
}

// Format formats a time according to the layout in the configured timezone
func (tp *TimeProvider) Format(t time.Time, layout string) string {
	return t.In(tp.Location()).Format(layout)
}

// Day truncates t to midnight of its calendar day in the configured zone.
func (tp *TimeProvider) Day(t time.Time) time.Time {
	local := t.In(tp.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, tp.Location())
}

// WeekdayIndex returns 0 for Monday through 6 for Sunday.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
