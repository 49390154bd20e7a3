package orders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"terplink/backend/internal/domain"
)

// BookingSlots is the booking-slot collaborator used exclusively by conflict
// resolution.
type BookingSlots interface {
	FindConflictingAppointmentsBeforeAccept(ctx context.Context, interpreterID string, start, end time.Time) ([]domain.Appointment, error)
}

// Resolver finds the interpreter's existing bookings that overlap one or more
// candidate windows and classifies them for cascading cancellation. It never
// cancels anything itself.
type Resolver struct {
	slots BookingSlots
}

func NewResolver(slots BookingSlots) *Resolver {
	return &Resolver{slots: slots}
}

func (r *Resolver) Resolve(ctx context.Context, interpreterID string, candidates []domain.Appointment) (domain.ConflictSet, error) {
	skip := make(map[uuid.UUID]bool, len(candidates))
	for _, c := range candidates {
		skip[c.ID] = true
	}

	seen := make(map[uuid.UUID]bool)
	var overlaps []domain.Appointment
	for _, c := range candidates {
		found, err := r.slots.FindConflictingAppointmentsBeforeAccept(ctx, interpreterID, c.ScheduledStartTime, c.ScheduledEndTime)
		if err != nil {
			return domain.ConflictSet{}, err
		}
		for _, f := range found {
			if skip[f.ID] || seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			overlaps = append(overlaps, f)
		}
	}
	return domain.ClassifyConflicts(overlaps), nil
}
