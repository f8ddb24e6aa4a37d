// Package schedule holds the slot-availability engine: pure calendar and
// slot-grid math plus the resolver that combines availability rules,
// professional capacity and the booked-appointment ledger.
package schedule

import (
	"fmt"
	"time"
)

// DefaultStepMinutes is the slot granularity used when none is configured.
const DefaultStepMinutes = 30

// MinutesPerDay bounds minute-of-day values: valid times are [0, 1440).
const MinutesPerDay = 24 * 60

// Slots returns the candidate start times (minutes of day) on a fixed grid
// within the half-open window [startMinute, endMinute). A slot only needs to
// start before the window closes; whether the service fits before closing is
// not checked.
func Slots(startMinute, endMinute, stepMinutes int) []int {
	if stepMinutes <= 0 {
		stepMinutes = DefaultStepMinutes
	}
	if startMinute < 0 || endMinute > MinutesPerDay || startMinute >= endMinute {
		return nil
	}
	var out []int
	for m := startMinute; m < endMinute; m += stepMinutes {
		out = append(out, m)
	}
	return out
}

// MinuteOfDay truncates t to minute precision within its day.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// FormatMinute renders a minute-of-day as "HH:MM".
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseClock parses "HH:MM" (seconds, if present, are discarded) into a
// minute-of-day.
func ParseClock(s string) (int, error) {
	if len(s) > 5 {
		s = s[:5]
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}
