package model

import "testing"

func TestOccupyingStatuses(t *testing.T) {
	occupying := map[AppointmentStatus]bool{}
	for _, s := range OccupyingStatuses() {
		occupying[s] = true
	}
	if len(occupying) != 2 || !occupying[StatusPending] || !occupying[StatusConfirmed] {
		t.Fatalf("expected exactly pending and confirmed to occupy capacity, got %v", OccupyingStatuses())
	}
	for _, s := range []AppointmentStatus{StatusCancelled, StatusNoShow, StatusCompleted} {
		if s.OccupiesCapacity() {
			t.Fatalf("%s should release the slot", s)
		}
	}
}
