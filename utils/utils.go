package utils

import "time"

// Reporting granularities for gain summaries.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

// PeriodStart truncates a timestamp to the start of its reporting period
// in UTC. Weeks start on Monday. Unknown periods fall back to the day.
func PeriodStart(at time.Time, period string) time.Time {
	utc := at.UTC()
	switch period {
	case PeriodWeek:
		day := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYear:
		return time.Date(utc.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	}
}
