package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Channel is the shared communication channel for an appointment or group.
// Only the group label matters to this subsystem: recreation must repoint it
// together with the member appointments.
type Channel struct {
	bun.BaseModel `bun:"table:conversation_channels"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid"`
	AppointmentID   *uuid.UUID `bun:"appointment_id,type:uuid"`
	GroupPlatformID *string    `bun:"group_platform_id"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull"`
}
