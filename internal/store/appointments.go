package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"terplink/backend/internal/domain"
)

type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// Delete removes an appointment record outright. Used only for
	// appointments cancelled before any interpreter interaction and for the
	// cleaned-up originals of recreated appointments.
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateStatus transitions status only when the row still holds `from`,
	// returning ErrConflict otherwise. The interpreter assignment is set or
	// cleared in the same statement.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus, interpreterID *string) (domain.Appointment, error)

	ListByGroupPlatformID(ctx context.Context, platformID string) ([]domain.Appointment, error)
	// RepointGroup rewrites the group label on the given appointments. The
	// appointment side of the two-entity relabel always runs first.
	RepointGroup(ctx context.Context, appointmentIDs []uuid.UUID, platformID string) error

	// FindConflictingAppointmentsBeforeAccept is the booking-slot lookup used
	// by conflict resolution: the interpreter's accepted bookings overlapping
	// the candidate window.
	FindConflictingAppointmentsBeforeAccept(ctx context.Context, interpreterID string, start, end time.Time) ([]domain.Appointment, error)
}

// ChannelRepository relabels shared communication channels when a group is
// replaced. Failures here are retryable and never roll back a recreation.
type ChannelRepository interface {
	RepointGroupChannel(ctx context.Context, oldPlatformID, newPlatformID string) error
}
