package schedule

import (
	"context"
	"fmt"
	"time"

	"agendly/internal/model"
)

// Store is the read-side data the resolver needs. Implemented by
// storage.Repository; kept narrow so tests can stub it.
type Store interface {
	ActiveRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error)
	Professional(ctx context.Context, businessID, professionalID string) (model.Professional, error)
	CountByStartMinute(ctx context.Context, professionalID string, date time.Time) (map[int]int, error)
}

// Resolver computes the bookable slots shown to the public client. It is a
// pure read: concurrent bookings between this read and the eventual write
// are tolerated here and only rejected at write time.
type Resolver struct {
	store       Store
	stepMinutes int
}

func NewResolver(store Store, stepMinutes int) *Resolver {
	if stepMinutes <= 0 {
		stepMinutes = DefaultStepMinutes
	}
	return &Resolver{store: store, stepMinutes: stepMinutes}
}

// OpenDates lists the dates with at least one open window within horizonDays.
func (r *Resolver) OpenDates(ctx context.Context, businessID string, horizonDays int, from time.Time) ([]time.Time, error) {
	rules, err := r.store.ActiveRules(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("load availability rules: %w", err)
	}
	return OpenDates(rules, horizonDays, from), nil
}

// Resolve returns the bookable start times (minutes of day, chronological)
// for one professional on one date.
func (r *Resolver) Resolve(ctx context.Context, businessID, professionalID string, date time.Time, now time.Time) ([]int, error) {
	rules, err := r.store.ActiveRules(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("load availability rules: %w", err)
	}
	var rule *model.AvailabilityRule
	weekday := int(date.Weekday())
	for i := range rules {
		if rules[i].Weekday == weekday && rules[i].IsActive {
			rule = &rules[i]
			break
		}
	}
	if rule == nil {
		return nil, nil
	}

	prof, err := r.store.Professional(ctx, businessID, professionalID)
	if err != nil {
		return nil, fmt.Errorf("load professional: %w", err)
	}
	if !prof.IsActive {
		return nil, nil
	}
	capacity := prof.Capacity
	if capacity < 1 {
		capacity = 1
	}

	counts, err := r.store.CountByStartMinute(ctx, professionalID, date)
	if err != nil {
		return nil, fmt.Errorf("load slot counts: %w", err)
	}

	candidates := Slots(rule.StartMinute, rule.EndMinute, r.stepMinutes)

	// Past-time exclusion first, then capacity. The current exact minute is
	// excluded too (<=, not <).
	sameDay := date.Year() == now.Year() && date.YearDay() == now.YearDay()
	nowMinute := MinuteOfDay(now)

	var slots []int
	for _, m := range candidates {
		if sameDay && m <= nowMinute {
			continue
		}
		if counts[m] >= capacity {
			continue
		}
		slots = append(slots, m)
	}
	return slots, nil
}
