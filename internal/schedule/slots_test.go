package schedule

import (
	"testing"
	"time"
)

func TestSlots_HalfOpenWindow(t *testing.T) {
	// Mon 09:00-11:00 at 30min: the close time itself is never a slot.
	slots := Slots(540, 660, 30)
	want := []int{540, 570, 600, 630}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot %d: expected %d, got %d", i, want[i], slots[i])
		}
	}
}

func TestSlots_DefaultStep(t *testing.T) {
	slots := Slots(540, 600, 0)
	if len(slots) != 2 || slots[0] != 540 || slots[1] != 570 {
		t.Fatalf("expected [540 570], got %v", slots)
	}
}

func TestSlots_EmptyOrInvalidWindow(t *testing.T) {
	if got := Slots(600, 600, 30); got != nil {
		t.Fatalf("expected nil for empty window, got %v", got)
	}
	if got := Slots(660, 540, 30); got != nil {
		t.Fatalf("expected nil for inverted window, got %v", got)
	}
	if got := Slots(-30, 60, 30); got != nil {
		t.Fatalf("expected nil for negative start, got %v", got)
	}
}

func TestSlots_UnevenTail(t *testing.T) {
	// 09:00-10:15 at 30min: 10:00 starts before close, so it is included.
	slots := Slots(540, 615, 30)
	if len(slots) != 3 || slots[2] != 600 {
		t.Fatalf("expected last slot 600, got %v", slots)
	}
}

func TestMinuteOfDay(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 15, 59, 0, time.UTC)
	if m := MinuteOfDay(ts); m != 555 {
		t.Fatalf("expected 555, got %d", m)
	}
}

func TestFormatMinute(t *testing.T) {
	if s := FormatMinute(540); s != "09:00" {
		t.Fatalf("expected 09:00, got %s", s)
	}
	if s := FormatMinute(615); s != "10:15" {
		t.Fatalf("expected 10:15, got %s", s)
	}
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("18:30")
	if err != nil || m != 1110 {
		t.Fatalf("expected 1110, got %d (err=%v)", m, err)
	}
	// Seconds are discarded (minute precision).
	m, err = ParseClock("09:30:45")
	if err != nil || m != 570 {
		t.Fatalf("expected 570, got %d (err=%v)", m, err)
	}
	for _, bad := range []string{"", "25:00", "09:70", "nope"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q): expected error", bad)
		}
	}
}
