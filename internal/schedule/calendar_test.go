package schedule

import (
	"testing"
	"time"

	"agendly/internal/model"
)

func TestOpenDates_MatchesActiveWeekdays(t *testing.T) {
	// 2026-03-02 is a Monday.
	from := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rules := []model.AvailabilityRule{
		{BusinessID: "b1", Weekday: 1, StartMinute: 540, EndMinute: 1080, IsActive: true},
		{BusinessID: "b1", Weekday: 3, StartMinute: 540, EndMinute: 1080, IsActive: true},
		{BusinessID: "b1", Weekday: 5, StartMinute: 540, EndMinute: 1080, IsActive: false},
	}

	dates := OpenDates(rules, 7, from)
	if len(dates) != 2 {
		t.Fatalf("expected 2 open dates, got %d", len(dates))
	}
	if dates[0].Weekday() != time.Monday || dates[1].Weekday() != time.Wednesday {
		t.Fatalf("expected Mon and Wed, got %s and %s", dates[0].Weekday(), dates[1].Weekday())
	}
	if !dates[0].Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected dates truncated to midnight, got %s", dates[0])
	}
}

func TestOpenDates_EmptyRules(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if dates := OpenDates(nil, 14, from); dates != nil {
		t.Fatalf("expected no dates, got %v", dates)
	}
}

func TestOpenDates_IncludesToday(t *testing.T) {
	from := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC) // Monday, late evening
	rules := []model.AvailabilityRule{
		{BusinessID: "b1", Weekday: 1, StartMinute: 540, EndMinute: 1080, IsActive: true},
	}
	dates := OpenDates(rules, 14, from)
	// Today counts as an open date even late in the day; per-slot past-time
	// filtering happens in the resolver.
	if len(dates) != 2 {
		t.Fatalf("expected 2 Mondays in 14 days, got %d", len(dates))
	}
}
