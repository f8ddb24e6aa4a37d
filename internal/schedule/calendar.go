package schedule

import (
	"time"

	"agendly/internal/model"
)

// DefaultHorizonDays is how far ahead the public page offers dates.
const DefaultHorizonDays = 14

// OpenDates returns the calendar dates within horizonDays of from whose
// weekday has an active availability rule, in chronological order. An empty
// rule set yields an empty result.
func OpenDates(rules []model.AvailabilityRule, horizonDays int, from time.Time) []time.Time {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	open := [7]bool{}
	for _, r := range rules {
		if r.IsActive && r.Weekday >= 0 && r.Weekday <= 6 {
			open[r.Weekday] = true
		}
	}

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	var dates []time.Time
	for i := 0; i < horizonDays; i++ {
		d := day.AddDate(0, 0, i)
		if open[int(d.Weekday())] {
			dates = append(dates, d)
		}
	}
	return dates
}
