package cancellation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"terplink/backend/internal/detach"
	"terplink/backend/internal/domain"
	"terplink/backend/internal/metrics"
	"terplink/backend/internal/notify"
	"terplink/backend/internal/payments"
	"terplink/backend/internal/service/recreation"
	"terplink/backend/internal/store"
)

// Recreator is the rebuild entry point the orchestrator hands control to once
// a cancellation frees a slot.
type Recreator interface {
	Recreate(ctx context.Context, trigger recreation.Trigger) error
}

// Rooms releases meeting resources held by cancelled appointments.
type Rooms interface {
	Release(ctx context.Context, appointmentID uuid.UUID) error
}

// Actor identifies who is cancelling. Admins acting on behalf of a client or
// interpreter carry that explicitly in OnBehalfOf, it is never inferred.
type Actor struct {
	Party      domain.CancelParty
	UserID     string
	OnBehalfOf domain.CancelParty
}

// Request carries one cancellation. SkipGroupCheck suppresses the per-member
// recreation pass during a group fan-out so the group is rebuilt exactly once.
type Request struct {
	AppointmentID  uuid.UUID
	Actor          Actor
	Reason         string
	SkipGroupCheck bool
}

type Deps struct {
	Appointments store.AppointmentRepository
	Orders       store.OrderRepository
	Recreator    Recreator
	Gate         *payments.Gate
	Notifier     notify.Notifier
	Rooms        Rooms
	Tasks        *detach.Runner
	Metrics      *metrics.Metrics
	Log          *zap.Logger
}

// Service branches cancellations on the actor's role and the appointment's
// status, each branch with its own side effects.
type Service struct {
	appointments store.AppointmentRepository
	orders       store.OrderRepository
	recreator    Recreator
	gate         *payments.Gate
	notifier     notify.Notifier
	rooms        Rooms
	tasks        *detach.Runner
	metrics      *metrics.Metrics
	log          *zap.Logger
}

func NewService(deps Deps) (*Service, error) {
	if deps.Appointments == nil {
		return nil, errors.New("cancellation: appointment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("cancellation: order repository is required")
	}
	if deps.Recreator == nil {
		return nil, errors.New("cancellation: recreator is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("cancellation: payment gate is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("cancellation: notifier is required")
	}
	if deps.Rooms == nil {
		return nil, errors.New("cancellation: rooms is required")
	}
	if deps.Tasks == nil {
		return nil, errors.New("cancellation: detach runner is required")
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		appointments: deps.Appointments,
		orders:       deps.Orders,
		recreator:    deps.Recreator,
		gate:         deps.Gate,
		notifier:     deps.Notifier,
		rooms:        deps.Rooms,
		tasks:        deps.Tasks,
		metrics:      deps.Metrics,
		log:          log.With(zap.String("component", "cancellation.service")),
	}, nil
}

func (s *Service) CancelAppointment(ctx context.Context, req Request) error {
	appt, err := s.appointments.Get(ctx, req.AppointmentID)
	if err != nil {
		return err
	}
	if appt.Status.Terminal() {
		return store.ErrInvalidState
	}

	switch req.Actor.Party {
	case domain.CancelPartyClient:
		return s.cancelAsClient(ctx, appt, req, domain.CancelPartyClient)
	case domain.CancelPartyInterpreter:
		return s.cancelAsInterpreter(ctx, appt, req, domain.CancelPartyInterpreter)
	case domain.CancelPartyAdmin:
		return s.cancelAsAdmin(ctx, appt, req)
	case domain.CancelPartySystem:
		return s.cancelAsSystem(ctx, appt, req)
	default:
		return fmt.Errorf("cancellation: unknown actor party %q", req.Actor.Party)
	}
}

// cancelAsClient handles the two client-side shapes: a pending appointment is
// withdrawn from matching outright, an appointment the interpreter already
// committed to is cancelled with the interpreter informed. The responsible
// party differs from the actor only when an admin cancels on the client's
// behalf.
func (s *Service) cancelAsClient(ctx context.Context, appt domain.Appointment, req Request, actor domain.CancelParty) error {
	if actor == domain.CancelPartyClient && req.Actor.UserID != appt.ClientID {
		return store.ErrNotFound
	}

	switch {
	case appt.Status == domain.AppointmentStatusPending:
		updated, err := s.appointments.UpdateStatus(ctx, appt.ID, appt.Status, domain.AppointmentStatusCancelledOrder, nil)
		if err != nil {
			return err
		}
		if err := s.recordProvenance(ctx, updated, req, actor, domain.CancelPartyClient); err != nil {
			return err
		}
		if err := s.teardownOrderFor(ctx, appt.ID); err != nil {
			return err
		}
		s.count(actor)
		// Removing one member leaves the group's search frame stale, so the
		// siblings still waiting are rebuilt. Skipped during group fan-out.
		if appt.IsGroupAppointment && appt.AppointmentsGroupID != nil && !req.SkipGroupCheck {
			return s.recreator.Recreate(ctx, recreation.Cancelled{Appointment: updated})
		}
		return nil

	case appt.Status == domain.AppointmentStatusAccepted || appt.ClientCancellable():
		updated, err := s.appointments.UpdateStatus(ctx, appt.ID, appt.Status, domain.AppointmentStatusCancelled, appt.InterpreterID)
		if err != nil {
			return err
		}
		if err := s.recordProvenance(ctx, updated, req, actor, domain.CancelPartyClient); err != nil {
			return err
		}
		if appt.InterpreterID != nil {
			interpreterID := *appt.InterpreterID
			reason := req.Reason
			s.tasks.Go("notify.cancelled", func(ctx context.Context) error {
				return s.notifier.SendCancelled(ctx, interpreterID, appt.ID, reason)
			})
		}
		s.tasks.Go("meetings.release", func(ctx context.Context) error {
			return s.rooms.Release(ctx, appt.ID)
		})
		s.gate.CancelAuthorization(appt, true)
		s.count(actor)
		return nil

	default:
		return store.ErrInvalidState
	}
}

// cancelAsInterpreter returns an accepted appointment to the matching pool
// rather than ending it: the interpreter assignment is cleared, the status
// rolls back to pending and the slot is re-offered.
func (s *Service) cancelAsInterpreter(ctx context.Context, appt domain.Appointment, req Request, actor domain.CancelParty) error {
	if appt.Status != domain.AppointmentStatusAccepted {
		return store.ErrInvalidState
	}
	if actor == domain.CancelPartyInterpreter &&
		(appt.InterpreterID == nil || *appt.InterpreterID != req.Actor.UserID) {
		return store.ErrNotFound
	}

	updated, err := s.appointments.UpdateStatus(ctx, appt.ID, appt.Status, domain.AppointmentStatusPending, nil)
	if err != nil {
		return err
	}
	if err := s.recordProvenance(ctx, updated, req, actor, domain.CancelPartyInterpreter); err != nil {
		return err
	}
	s.count(actor)
	if req.SkipGroupCheck {
		return nil
	}
	return s.recreator.Recreate(ctx, recreation.Cancelled{Appointment: updated})
}

func (s *Service) cancelAsAdmin(ctx context.Context, appt domain.Appointment, req Request) error {
	if req.Actor.OnBehalfOf == domain.CancelPartyInterpreter {
		return s.cancelAsInterpreter(ctx, appt, req, domain.CancelPartyAdmin)
	}
	return s.cancelAsClient(ctx, appt, req, domain.CancelPartyAdmin)
}

// cancelAsSystem is the cascade branch: any non-terminal appointment moves to
// the system-cancelled state and its order is withdrawn. Never recreates.
func (s *Service) cancelAsSystem(ctx context.Context, appt domain.Appointment, req Request) error {
	updated, err := s.appointments.UpdateStatus(ctx, appt.ID, appt.Status, domain.AppointmentStatusCancelledBySystem, nil)
	if err != nil {
		return err
	}
	if err := s.recordProvenance(ctx, updated, req, domain.CancelPartySystem, domain.CancelPartySystem); err != nil {
		return err
	}
	if err := s.teardownOrderFor(ctx, appt.ID); err != nil {
		return err
	}
	if appt.InterpreterID != nil {
		s.gate.CancelAuthorization(appt, false)
	}
	s.count(domain.CancelPartySystem)
	return nil
}

// CancelGroupAppointments fans a cancellation out over the group's accepted
// and pending members, then runs a single recreation pass for the whole
// group instead of one per member.
func (s *Service) CancelGroupAppointments(ctx context.Context, groupPlatformID string, actor Actor, reason string) error {
	siblings, err := s.appointments.ListByGroupPlatformID(ctx, groupPlatformID)
	if err != nil {
		return err
	}

	members := make([]domain.Appointment, 0, len(siblings))
	for _, a := range siblings {
		if a.Status == domain.AppointmentStatusAccepted || a.Status == domain.AppointmentStatusPending {
			members = append(members, a)
		}
	}
	if len(members) == 0 {
		return store.ErrInvalidState
	}

	for _, a := range members {
		err := s.CancelAppointment(ctx, Request{
			AppointmentID:  a.ID,
			Actor:          actor,
			Reason:         reason,
			SkipGroupCheck: true,
		})
		if err != nil {
			return fmt.Errorf("cancel group member %s: %w", a.ID, err)
		}
	}

	return s.recreator.Recreate(ctx, recreation.GroupCancelled{GroupPlatformID: groupPlatformID})
}

// CancelConflicts system-cancels every appointment in a conflict set, one at
// a time, whole groups as one unit.
func (s *Service) CancelConflicts(ctx context.Context, conflicts domain.ConflictSet, reason string) error {
	actor := Actor{Party: domain.CancelPartySystem}

	for _, a := range append(conflicts.Singles, conflicts.GroupedSingles...) {
		err := s.CancelAppointment(ctx, Request{
			AppointmentID:  a.ID,
			Actor:          actor,
			Reason:         reason,
			SkipGroupCheck: true,
		})
		if err != nil {
			return fmt.Errorf("cancel conflicting appointment %s: %w", a.ID, err)
		}
	}

	for _, groupPlatformID := range conflicts.WholeGroupIDs {
		siblings, err := s.appointments.ListByGroupPlatformID(ctx, groupPlatformID)
		if err != nil {
			return err
		}
		for _, a := range siblings {
			if a.Status.Terminal() {
				continue
			}
			err := s.CancelAppointment(ctx, Request{
				AppointmentID:  a.ID,
				Actor:          actor,
				Reason:         reason,
				SkipGroupCheck: true,
			})
			if err != nil {
				return fmt.Errorf("cancel conflicting group %s member %s: %w", groupPlatformID, a.ID, err)
			}
		}
	}
	return nil
}

// recordProvenance persists who cancelled and why after the guarded status
// transition committed.
func (s *Service) recordProvenance(ctx context.Context, appt domain.Appointment, req Request, cancelledBy, responsible domain.CancelParty) error {
	if req.Reason != "" {
		reason := req.Reason
		appt.CancellationReason = &reason
	}
	appt.CancelledBy = &cancelledBy
	appt.ResponsibleParty = &responsible
	_, err := s.appointments.Update(ctx, appt)
	return err
}

func (s *Service) teardownOrderFor(ctx context.Context, appointmentID uuid.UUID) error {
	existing, err := s.orders.GetOrderByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.orders.DeleteOrder(ctx, existing.Order.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if existing.Order.GroupID != nil {
		return s.orders.DeleteGroupIfEmpty(ctx, *existing.Order.GroupID)
	}
	return nil
}

func (s *Service) count(actor domain.CancelParty) {
	if s.metrics != nil {
		s.metrics.Cancellations.WithLabelValues(string(actor)).Inc()
	}
}
