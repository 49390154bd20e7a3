package orders

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
	"terplink/backend/internal/store"
)

// ErrPaymentDeclined reports a hard authorization failure at accept time. The
// order is gone and the appointment has been system-cancelled by the time the
// caller sees it.
var ErrPaymentDeclined = errors.New("payment authorization declined")

// ConflictBlockedError carries the classified conflict set so the caller can
// inspect the collisions and retry with IgnoreConflicts.
type ConflictBlockedError struct {
	Conflicts domain.ConflictSet
}

func (e *ConflictBlockedError) Error() string {
	return fmt.Sprintf("accept blocked by %d conflicting appointments and %d conflicting groups",
		len(e.Conflicts.Singles)+len(e.Conflicts.GroupedSingles), len(e.Conflicts.WholeGroupIDs))
}

// conflictCancelReason is the fixed system-generated reason recorded on
// appointments cancelled to make room for an accept.
const conflictCancelReason = "cancelled due to a scheduling conflict with an accepted appointment"

// ConflictCanceller cascades system cancellation over a classified conflict
// set.
type ConflictCanceller interface {
	CancelConflicts(ctx context.Context, conflicts domain.ConflictSet, reason string) error
}

// Presence marks interpreters offline once they take an on-demand job.
type Presence interface {
	SetOffline(ctx context.Context, interpreterID string) error
}

type Deps struct {
	Orders       store.OrderRepository
	Appointments store.AppointmentRepository
	Resolver     *Resolver
	Canceller    ConflictCanceller
	Gate         *payments.Gate
	Notifier     notify.Notifier
	Presence     Presence
	Tasks        *detach.Runner
	Metrics      *metrics.Metrics
	Log          *zap.Logger
}

// Service implements the interpreter-facing order commands: accept, reject,
// refuse, add-interpreter and repeat-notify, per order and per group.
type Service struct {
	orders       store.OrderRepository
	appointments store.AppointmentRepository
	resolver     *Resolver
	canceller    ConflictCanceller
	gate         *payments.Gate
	notifier     notify.Notifier
	presence     Presence
	tasks        *detach.Runner
	metrics      *metrics.Metrics
	log          *zap.Logger
}

func NewService(deps Deps) (*Service, error) {
	if deps.Orders == nil {
		return nil, errors.New("orders: order repository is required")
	}
	if deps.Appointments == nil {
		return nil, errors.New("orders: appointment repository is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("orders: conflict resolver is required")
	}
	if deps.Canceller == nil {
		return nil, errors.New("orders: conflict canceller is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("orders: payment gate is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("orders: notifier is required")
	}
	if deps.Presence == nil {
		return nil, errors.New("orders: presence directory is required")
	}
	if deps.Tasks == nil {
		return nil, errors.New("orders: detach runner is required")
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		orders:       deps.Orders,
		appointments: deps.Appointments,
		resolver:     deps.Resolver,
		canceller:    deps.Canceller,
		gate:         deps.Gate,
		notifier:     deps.Notifier,
		presence:     deps.Presence,
		tasks:        deps.Tasks,
		metrics:      deps.Metrics,
		log:          log.With(zap.String("component", "orders.service")),
	}, nil
}

// Accept commits one interpreter to one order. The order row's continued
// existence is the mutex: the delete below is the commit point, and a
// concurrent accept that lost the race observes ErrNotFound.
func (s *Service) Accept(ctx context.Context, orderID uuid.UUID, interpreterID string, ignoreConflicts bool) error {
	ow, err := s.orders.GetOrderForAccept(ctx, orderID)
	if err != nil {
		return err
	}
	// A sameInterpreter group decides as one unit, never order by order.
	if ow.Appointment.IsGroupAppointment && ow.Appointment.SameInterpreter {
		return store.ErrInvalidState
	}
	if !ow.Order.HasMatched(interpreterID) {
		return store.ErrNotFound
	}

	if err := s.resolveConflicts(ctx, interpreterID, []domain.Appointment{ow.Appointment}, ignoreConflicts); err != nil {
		return err
	}

	if s.gate.AuthorizeOnAccept(ctx, ow.Appointment) == payments.DecisionCancel {
		return s.declinePayment(ctx, ow)
	}

	if err := s.orders.DeleteOrder(ctx, ow.Order.ID); err != nil {
		return err
	}
	if ow.Order.GroupID != nil {
		if err := s.orders.DeleteGroupIfEmpty(ctx, *ow.Order.GroupID); err != nil {
			return err
		}
	}

	accepted, err := s.appointments.UpdateStatus(ctx, ow.Appointment.ID,
		domain.AppointmentStatusPending, domain.AppointmentStatusAccepted, &interpreterID)
	if err != nil {
		return err
	}

	s.afterAccept(ctx, interpreterID, accepted)
	return nil
}

// AcceptGroup applies the same conflict and payment pipeline to every member
// atomically: either every appointment transitions or, on a conflict block,
// none do.
func (s *Service) AcceptGroup(ctx context.Context, groupID uuid.UUID, interpreterID string, ignoreConflicts bool) error {
	g, err := s.orders.GetGroupForAccept(ctx, groupID)
	if err != nil {
		return err
	}
	if len(g.Orders) == 0 {
		return store.ErrNotFound
	}
	if !g.Group.HasMatched(interpreterID) {
		return store.ErrNotFound
	}

	appts := g.Appointments()
	if err := s.resolveConflicts(ctx, interpreterID, appts, ignoreConflicts); err != nil {
		return err
	}

	if s.gate.AuthorizeGroupOnAccept(ctx, appts) == payments.DecisionCancel {
		return s.declineGroupPayment(ctx, g)
	}

	// Group teardown commits the accept; member transitions follow.
	if err := s.orders.DeleteGroupWithOrders(ctx, g.Group.ID); err != nil {
		return err
	}
	for _, ow := range g.Orders {
		accepted, err := s.appointments.UpdateStatus(ctx, ow.Appointment.ID,
			domain.AppointmentStatusPending, domain.AppointmentStatusAccepted, &interpreterID)
		if err != nil {
			return fmt.Errorf("accept group member %s: %w", ow.Appointment.ID, err)
		}
		s.afterAccept(ctx, interpreterID, accepted)
	}
	return nil
}

// RejectOrder moves the interpreter to the rejected set; the order stays open
// for the remaining candidates.
func (s *Service) RejectOrder(ctx context.Context, orderID uuid.UUID, interpreterID string) error {
	ow, err := s.orders.GetOrderForAccept(ctx, orderID)
	if err != nil {
		return err
	}
	if !ow.Order.Reject(interpreterID) {
		return store.ErrNotFound
	}
	if err := s.orders.SaveOrderCandidates(ctx, ow.Order); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.OrdersRejected.Inc()
	}
	return nil
}

func (s *Service) RejectGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error {
	g, err := s.orders.GetGroupForAccept(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.Group.Reject(interpreterID) {
		return store.ErrNotFound
	}
	if err := s.orders.SaveGroupCandidates(ctx, g.Group); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.OrdersRejected.Inc()
	}
	return nil
}

// RefuseOrder reverses a rejection, returning the interpreter to the matched
// set.
func (s *Service) RefuseOrder(ctx context.Context, orderID uuid.UUID, interpreterID string) error {
	ow, err := s.orders.GetOrderForAccept(ctx, orderID)
	if err != nil {
		return err
	}
	if !ow.Order.Refuse(interpreterID) {
		return store.ErrNotFound
	}
	return s.orders.SaveOrderCandidates(ctx, ow.Order)
}

func (s *Service) RefuseGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error {
	g, err := s.orders.GetGroupForAccept(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.Group.Refuse(interpreterID) {
		return store.ErrNotFound
	}
	return s.orders.SaveGroupCandidates(ctx, g.Group)
}

// AddInterpreter invites a specific candidate administratively. Forbidden for
// on-demand scheduling, which has no manual invitation flow.
func (s *Service) AddInterpreter(ctx context.Context, orderID uuid.UUID, interpreterID string) error {
	ow, err := s.orders.GetOrderForAccept(ctx, orderID)
	if err != nil {
		return err
	}
	if ow.Appointment.SchedulingType == domain.SchedulingTypeOnDemand {
		return store.ErrInvalidState
	}
	if !ow.Order.AddCandidate(interpreterID) {
		return store.ErrInvalidState
	}
	if err := s.orders.SaveOrderCandidates(ctx, ow.Order); err != nil {
		return err
	}
	s.tasks.Go("notify.single_order", func(ctx context.Context) error {
		return s.notifier.SendSingleOrder(ctx, interpreterID, ow.Order.ID)
	})
	return nil
}

func (s *Service) AddInterpreterToGroup(ctx context.Context, groupID uuid.UUID, interpreterID string) error {
	g, err := s.orders.GetGroupForAccept(ctx, groupID)
	if err != nil {
		return err
	}
	if len(g.Orders) > 0 && g.Orders[0].Appointment.SchedulingType == domain.SchedulingTypeOnDemand {
		return store.ErrInvalidState
	}
	if !g.Group.AddCandidate(interpreterID) {
		return store.ErrInvalidState
	}
	if err := s.orders.SaveGroupCandidates(ctx, g.Group); err != nil {
		return err
	}
	platformID := g.Group.PlatformID
	s.tasks.Go("notify.group_order", func(ctx context.Context) error {
		return s.notifier.SendGroupOrder(ctx, interpreterID, platformID)
	})
	return nil
}

// RepeatNotification re-pings every matched candidate on an order. On-demand
// orders have no repeat cadence.
func (s *Service) RepeatNotification(ctx context.Context, orderID uuid.UUID) error {
	ow, err := s.orders.GetOrderForAccept(ctx, orderID)
	if err != nil {
		return err
	}
	if ow.Appointment.SchedulingType == domain.SchedulingTypeOnDemand {
		return store.ErrInvalidState
	}
	for _, id := range ow.Order.MatchedInterpreterIDs {
		interpreterID := id
		s.tasks.Go("notify.repeat", func(ctx context.Context) error {
			return s.notifier.SendRepeat(ctx, interpreterID, ow.Order.ID)
		})
	}
	return nil
}

func (s *Service) RepeatGroupNotification(ctx context.Context, groupID uuid.UUID) error {
	g, err := s.orders.GetGroupForAccept(ctx, groupID)
	if err != nil {
		return err
	}
	if len(g.Orders) > 0 && g.Orders[0].Appointment.SchedulingType == domain.SchedulingTypeOnDemand {
		return store.ErrInvalidState
	}
	platformID := g.Group.PlatformID
	for _, id := range g.Group.MatchedInterpreterIDs {
		interpreterID := id
		s.tasks.Go("notify.repeat_group", func(ctx context.Context) error {
			return s.notifier.SendGroupOrder(ctx, interpreterID, platformID)
		})
	}
	return nil
}

func (s *Service) resolveConflicts(ctx context.Context, interpreterID string, candidates []domain.Appointment, ignoreConflicts bool) error {
	conflicts, err := s.resolver.Resolve(ctx, interpreterID, candidates)
	if err != nil {
		return err
	}
	if conflicts.Empty() {
		return nil
	}
	if !ignoreConflicts {
		return &ConflictBlockedError{Conflicts: conflicts}
	}
	return s.canceller.CancelConflicts(ctx, conflicts, conflictCancelReason)
}

// declinePayment backs a single accept out after a hard authorization
// failure: the order is gone and the appointment is system-cancelled, never
// left open with a dead payment.
func (s *Service) declinePayment(ctx context.Context, ow store.OrderWithAppointment) error {
	if err := s.orders.DeleteOrder(ctx, ow.Order.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if ow.Order.GroupID != nil {
		if err := s.orders.DeleteGroupIfEmpty(ctx, *ow.Order.GroupID); err != nil {
			return err
		}
	}
	if _, err := s.appointments.UpdateStatus(ctx, ow.Appointment.ID,
		ow.Appointment.Status, domain.AppointmentStatusCancelledBySystem, nil); err != nil {
		return err
	}
	return ErrPaymentDeclined
}

func (s *Service) declineGroupPayment(ctx context.Context, g store.GroupWithOrders) error {
	// Members that authorized before the failing one hold live
	// authorizations; void them all.
	s.gate.CancelAuthorizationForGroup(g.Appointments())
	if err := s.orders.DeleteGroupWithOrders(ctx, g.Group.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	for _, ow := range g.Orders {
		if _, err := s.appointments.UpdateStatus(ctx, ow.Appointment.ID,
			ow.Appointment.Status, domain.AppointmentStatusCancelledBySystem, nil); err != nil {
			return err
		}
	}
	return ErrPaymentDeclined
}

// afterAccept runs the post-commit side effects: client notification and, for
// on-demand work, pulling the interpreter out of the pool and withdrawing
// their other open offers.
func (s *Service) afterAccept(ctx context.Context, interpreterID string, accepted domain.Appointment) {
	if s.metrics != nil {
		s.metrics.OrdersAccepted.Inc()
	}

	clientID := accepted.ClientID
	appointmentID := accepted.ID
	s.tasks.Go("notify.accepted", func(ctx context.Context) error {
		return s.notifier.SendAccepted(ctx, clientID, appointmentID)
	})

	if accepted.SchedulingType != domain.SchedulingTypeOnDemand {
		return
	}

	s.tasks.Go("presence.set_offline", func(ctx context.Context) error {
		return s.presence.SetOffline(ctx, interpreterID)
	})
	s.withdrawOtherOnDemandOffers(ctx, interpreterID, appointmentID)
}

// withdrawOtherOnDemandOffers pulls the interpreter out of every other open
// on-demand order. Failures here are logged and absorbed: the accept has
// already committed.
func (s *Service) withdrawOtherOnDemandOffers(ctx context.Context, interpreterID string, acceptedAppointmentID uuid.UUID) {
	open, err := s.orders.ListOpenOnDemandOrdersForInterpreter(ctx, interpreterID)
	if err != nil {
		s.log.Warn("list open on-demand offers failed",
			zap.String("interpreter_id", interpreterID),
			zap.Error(err),
		)
		return
	}
	for _, ow := range open {
		if ow.Appointment.ID == acceptedAppointmentID {
			continue
		}
		if !ow.Order.RemoveCandidate(interpreterID) {
			continue
		}
		if err := s.orders.SaveOrderCandidates(ctx, ow.Order); err != nil {
			s.log.Warn("withdraw on-demand offer failed",
				zap.String("order_id", ow.Order.ID.String()),
				zap.String("interpreter_id", interpreterID),
				zap.Error(err),
			)
		}
	}
}
