package utils

import (
	"testing"
	"time"
)

func TestPeriodStart(t *testing.T) {
	// Wednesday.
	at := time.Date(2021, time.June, 16, 15, 30, 45, 0, time.UTC)

	tests := []struct {
		name     string
		period   string
		expected time.Time
	}{
		{"Day", PeriodDay, time.Date(2021, time.June, 16, 0, 0, 0, 0, time.UTC)},
		{"Week starts Monday", PeriodWeek, time.Date(2021, time.June, 14, 0, 0, 0, 0, time.UTC)},
		{"Month", PeriodMonth, time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)},
		{"Year", PeriodYear, time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"Unknown falls back to day", "fortnight", time.Date(2021, time.June, 16, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeriodStart(at, tt.period); !got.Equal(tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestPeriodStartWeekOnSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	at := time.Date(2021, time.June, 20, 8, 0, 0, 0, time.UTC)
	expected := time.Date(2021, time.June, 14, 0, 0, 0, 0, time.UTC)
	if got := PeriodStart(at, PeriodWeek); !got.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}
