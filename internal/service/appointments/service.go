package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"terplink/backend/internal/domain"
	"terplink/backend/internal/service/recreation"
	"terplink/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Recreator rebuilds order/group structure after a matching-relevant edit.
type Recreator interface {
	Recreate(ctx context.Context, trigger recreation.Trigger) error
}

// EditInput carries the editable appointment attributes. Nil pointers leave
// the attribute untouched.
type EditInput struct {
	ScheduledStartTime *time.Time
	ScheduledEndTime   *time.Time
	Address            *string
	LanguageFrom       *string
	LanguageTo         *string
	Topic              *string
	GenderPreference   *string
}

// Service applies appointment edits and routes the matching-relevant ones
// into the recreation engine.
type Service struct {
	repo      store.AppointmentRepository
	recreator Recreator
	log       *zap.Logger
}

func NewService(repo store.AppointmentRepository, recreator Recreator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		recreator: recreator,
		log:       log.With(zap.String("component", "appointments.service")),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.repo.Get(ctx, id)
}

// Edit updates one appointment. Edits are only allowed while the appointment
// is PENDING or ACCEPTED; when a matching-relevant attribute changed the
// recreation engine rebuilds the order/group structure afterwards.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, in EditInput) (domain.Appointment, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if before.Status != domain.AppointmentStatusPending && before.Status != domain.AppointmentStatusAccepted {
		return domain.Appointment{}, store.ErrInvalidState
	}

	next := before
	changed, err := applyInput(&next, in)
	if err != nil {
		return domain.Appointment{}, err
	}
	if changed == 0 {
		return before, nil
	}

	previous := before
	if before.Status == domain.AppointmentStatusAccepted && !before.IsGroupAppointment {
		// A standalone accepted appointment re-enters matching: the committed
		// interpreter is released and only the trigger keeps the old
		// assignment for the payment pair.
		next.Status = domain.AppointmentStatusPending
		next.InterpreterID = nil
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return domain.Appointment{}, err
	}

	err = s.recreator.Recreate(ctx, recreation.Edited{
		Appointment: updated,
		Previous:    previous,
		Changed:     changed,
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return updated, nil
}

func applyInput(a *domain.Appointment, in EditInput) (recreation.ChangedFields, error) {
	var changed recreation.ChangedFields

	if in.ScheduledStartTime != nil || in.ScheduledEndTime != nil {
		start := a.ScheduledStartTime
		end := a.ScheduledEndTime
		if in.ScheduledStartTime != nil {
			start = *in.ScheduledStartTime
		}
		if in.ScheduledEndTime != nil {
			end = *in.ScheduledEndTime
		}
		if !end.After(start) {
			return 0, validationError("scheduled_end_time must be after scheduled_start_time")
		}
		if !start.Equal(a.ScheduledStartTime) || !end.Equal(a.ScheduledEndTime) {
			a.ScheduledStartTime = start
			a.ScheduledEndTime = end
			changed |= recreation.FieldTime
		}
	}
	if in.Address != nil && *in.Address != a.Address {
		if *in.Address == "" && a.CommunicationType == domain.CommunicationTypeFaceToFace {
			return 0, validationError("address is required for face_to_face appointments")
		}
		a.Address = *in.Address
		changed |= recreation.FieldAddress
	}
	if in.LanguageFrom != nil && *in.LanguageFrom != a.LanguageFrom {
		if *in.LanguageFrom == "" {
			return 0, validationError("language_from is required")
		}
		a.LanguageFrom = *in.LanguageFrom
		changed |= recreation.FieldLanguage
	}
	if in.LanguageTo != nil && *in.LanguageTo != a.LanguageTo {
		if *in.LanguageTo == "" {
			return 0, validationError("language_to is required")
		}
		a.LanguageTo = *in.LanguageTo
		changed |= recreation.FieldLanguage
	}
	if in.Topic != nil && *in.Topic != a.Topic {
		a.Topic = *in.Topic
		changed |= recreation.FieldTopic
	}
	if in.GenderPreference != nil && *in.GenderPreference != a.GenderPreference {
		a.GenderPreference = *in.GenderPreference
		changed |= recreation.FieldGender
	}
	return changed, nil
}

// IsValidation reports whether err is a validation failure, for transport
// error mapping.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
