package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusPending                 AppointmentStatus = "pending"
	AppointmentStatusAccepted                AppointmentStatus = "accepted"
	AppointmentStatusLive                    AppointmentStatus = "live"
	AppointmentStatusCompletedActionRequired AppointmentStatus = "completed_action_required"
	AppointmentStatusCompleted               AppointmentStatus = "completed"
	AppointmentStatusCancelled               AppointmentStatus = "cancelled"
	AppointmentStatusCancelledOrder          AppointmentStatus = "cancelled_order"
	AppointmentStatusCancelledBySystem       AppointmentStatus = "cancelled_by_system"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending: {
		AppointmentStatusAccepted,
		AppointmentStatusCancelled,
		AppointmentStatusCancelledOrder,
		AppointmentStatusCancelledBySystem,
	},
	AppointmentStatusAccepted: {
		AppointmentStatusLive,
		AppointmentStatusPending,
		AppointmentStatusCancelled,
		AppointmentStatusCancelledBySystem,
	},
	AppointmentStatusLive: {
		AppointmentStatusCompletedActionRequired,
		AppointmentStatusCancelled,
		AppointmentStatusCancelledBySystem,
	},
	AppointmentStatusCompletedActionRequired: {
		AppointmentStatusCompleted,
		AppointmentStatusCancelledBySystem,
	},
}

func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCompleted,
		AppointmentStatusCancelled,
		AppointmentStatusCancelledOrder,
		AppointmentStatusCancelledBySystem:
		return true
	}
	return false
}

func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type SchedulingType string

const (
	SchedulingTypeOnDemand  SchedulingType = "on_demand"
	SchedulingTypePreBooked SchedulingType = "pre_booked"
)

type CommunicationType string

const (
	CommunicationTypeAudio      CommunicationType = "audio"
	CommunicationTypeVideo      CommunicationType = "video"
	CommunicationTypeFaceToFace CommunicationType = "face_to_face"
)

// CancelParty records which side initiated or is responsible for a cancellation.
type CancelParty string

const (
	CancelPartyClient      CancelParty = "client"
	CancelPartyInterpreter CancelParty = "interpreter"
	CancelPartyAdmin       CancelParty = "admin"
	CancelPartySystem      CancelParty = "system"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                 uuid.UUID         `bun:"id,pk,type:uuid"`
	Status             AppointmentStatus `bun:"status,notnull"`
	SchedulingType     SchedulingType    `bun:"scheduling_type,notnull"`
	CommunicationType  CommunicationType `bun:"communication_type,notnull"`
	ScheduledStartTime time.Time         `bun:"scheduled_start_time,notnull"`
	ScheduledEndTime   time.Time         `bun:"scheduled_end_time,notnull"`

	ClientID      string  `bun:"client_id,notnull"`
	CompanyID     string  `bun:"company_id"`
	InterpreterID *string `bun:"interpreter_id"`

	AppointmentsGroupID *string `bun:"appointments_group_id"`
	IsGroupAppointment  bool    `bun:"is_group_appointment,notnull"`
	SameInterpreter     bool    `bun:"same_interpreter,notnull"`

	LanguageFrom     string `bun:"language_from,notnull"`
	LanguageTo       string `bun:"language_to,notnull"`
	Topic            string `bun:"topic"`
	GenderPreference string `bun:"gender_preference"`
	Address          string `bun:"address"`

	CancellationReason *string      `bun:"cancellation_reason"`
	CancelledBy        *CancelParty `bun:"cancelled_by"`
	ResponsibleParty   *CancelParty `bun:"responsible_party"`
	RecreatedFromID    *uuid.UUID   `bun:"recreated_from_id,type:uuid"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.ScheduledStartTime.Before(end) && a.ScheduledEndTime.After(start)
}

// ClientCancellable reports whether the client side may still cancel.
// Live appointments can only be cancelled when interpreting happens on site.
func (a Appointment) ClientCancellable() bool {
	switch a.Status {
	case AppointmentStatusPending, AppointmentStatusAccepted:
		return true
	case AppointmentStatusLive:
		return a.CommunicationType == CommunicationTypeFaceToFace
	}
	return false
}

func (a Appointment) AwaitingInterpreter() bool {
	return a.Status == AppointmentStatusPending && a.InterpreterID == nil
}
