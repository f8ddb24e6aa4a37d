// Package appointment defines the appointment status lifecycle. Transitions
// are triggered only by the business dashboard; the public booking page only
// ever creates appointments in the pending state.
package appointment

import (
	"fmt"

	"agendly/internal/model"
)

var successors = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusNoShow, model.StatusCompleted, model.StatusCancelled},
	// completed, cancelled and no_show are terminal
}

// InvalidTransitionError reports an attempted move outside the legal
// successor set, including backward moves out of terminal states.
type InvalidTransitionError struct {
	From model.AppointmentStatus
	To   model.AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid appointment transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to, returning *InvalidTransitionError when
// the move is illegal.
func Transition(from, to model.AppointmentStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether a status has no legal successors.
func IsTerminal(s model.AppointmentStatus) bool {
	return len(successors[s]) == 0
}

// ValidStatus reports whether s is one of the known appointment statuses.
func ValidStatus(s model.AppointmentStatus) bool {
	switch s {
	case model.StatusPending, model.StatusConfirmed, model.StatusCancelled, model.StatusNoShow, model.StatusCompleted:
		return true
	}
	return false
}
