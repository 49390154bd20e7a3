// Package meetings wraps the video/meeting-room provisioning collaborator.
// This subsystem only ever releases rooms, on cancellation of accepted
// remote appointments.
package meetings

import (
	"context"

	"github.com/google/uuid"
)

type Rooms interface {
	Release(ctx context.Context, appointmentID uuid.UUID) error
}

type Noop struct{}

func (Noop) Release(context.Context, uuid.UUID) error { return nil }
