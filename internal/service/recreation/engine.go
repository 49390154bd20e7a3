package recreation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"terplink/backend/internal/detach"
	"terplink/backend/internal/domain"
	"terplink/backend/internal/matching"
	"terplink/backend/internal/metrics"
	"terplink/backend/internal/payments"
	"terplink/backend/internal/store"
)

// Deps bundles the collaborators required to construct the engine.
type Deps struct {
	Orders        store.OrderRepository
	Appointments  store.AppointmentRepository
	Channels      store.ChannelRepository
	Gate          *payments.Gate
	Matcher       matching.Matcher
	Tasks         *detach.Runner
	Metrics       *metrics.Metrics
	Log           *zap.Logger
	NewPlatformID func() string
}

// Engine tears down and deterministically rebuilds orders and groups after an
// appointment underneath them was edited or cancelled, so matching can resume
// on consistent state.
type Engine struct {
	orders        store.OrderRepository
	appointments  store.AppointmentRepository
	channels      store.ChannelRepository
	gate          *payments.Gate
	matcher       matching.Matcher
	tasks         *detach.Runner
	metrics       *metrics.Metrics
	log           *zap.Logger
	newPlatformID func() string
}

func NewEngine(deps Deps) (*Engine, error) {
	if deps.Orders == nil {
		return nil, errors.New("recreation: order repository is required")
	}
	if deps.Appointments == nil {
		return nil, errors.New("recreation: appointment repository is required")
	}
	if deps.Channels == nil {
		return nil, errors.New("recreation: channel repository is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("recreation: payment gate is required")
	}
	if deps.Matcher == nil {
		return nil, errors.New("recreation: matcher is required")
	}
	if deps.Tasks == nil {
		return nil, errors.New("recreation: detach runner is required")
	}

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	newPlatformID := deps.NewPlatformID
	if newPlatformID == nil {
		newPlatformID = func() string {
			return ulid.Make().String()
		}
	}

	return &Engine{
		orders:        deps.Orders,
		appointments:  deps.Appointments,
		channels:      deps.Channels,
		gate:          deps.Gate,
		matcher:       deps.Matcher,
		tasks:         deps.Tasks,
		metrics:       deps.Metrics,
		log:           log.With(zap.String("component", "recreation.engine")),
		newPlatformID: newPlatformID,
	}, nil
}

// Recreate is the single dispatcher selecting the single, partial or full
// strategy for a trigger.
func (e *Engine) Recreate(ctx context.Context, trigger Trigger) error {
	switch t := trigger.(type) {
	case Edited:
		return e.recreateEdited(ctx, t)
	case Cancelled:
		a := t.Appointment
		if !a.IsGroupAppointment || a.AppointmentsGroupID == nil {
			return e.recreateSingle(ctx, a, a)
		}
		return e.recreateCancelledGroup(ctx, *a.AppointmentsGroupID)
	case GroupCancelled:
		return e.recreateCancelledGroup(ctx, t.GroupPlatformID)
	default:
		return fmt.Errorf("recreation: unknown trigger %T", trigger)
	}
}

func (e *Engine) recreateEdited(ctx context.Context, t Edited) error {
	a := t.Appointment
	if !a.IsGroupAppointment || a.AppointmentsGroupID == nil {
		return e.recreateSingle(ctx, a, t.Previous)
	}
	if t.Changed.RequiresFullRebuild() || a.SameInterpreter {
		return e.rebuildFullGroup(ctx, *a.AppointmentsGroupID, t)
	}
	return e.rebuildMemberOrder(ctx, a, t.Previous)
}

// recreateSingle rebuilds the order of an ungrouped appointment.
func (e *Engine) recreateSingle(ctx context.Context, a, old domain.Appointment) error {
	if err := e.teardownOrderFor(ctx, a.ID); err != nil {
		return err
	}

	order, err := e.orders.CreateOrder(ctx, domain.AppointmentOrder{AppointmentID: a.ID}, nil)
	if err != nil {
		return err
	}

	pairs := []payments.RecreatedPair{{Old: old, New: a}}
	if e.gate.AuthorizeRecreated(ctx, pairs) == payments.DecisionCancel {
		return e.abortOrder(ctx, order, a)
	}

	e.count("single")
	e.resumeOrder(order.ID)
	return nil
}

// rebuildMemberOrder is the partial strategy: one member's order is
// reconstructed inside the existing group.
func (e *Engine) rebuildMemberOrder(ctx context.Context, a, old domain.Appointment) error {
	group, err := e.orders.GetGroupByPlatformID(ctx, *a.AppointmentsGroupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.recreateSingle(ctx, a, old)
		}
		return err
	}

	if err := e.teardownOrderFor(ctx, a.ID); err != nil {
		return err
	}

	order, err := e.orders.CreateOrder(ctx, domain.AppointmentOrder{
		AppointmentID: a.ID,
		GroupID:       &group.Group.ID,
	}, &group.Group)
	if err != nil {
		return err
	}

	pairs := []payments.RecreatedPair{{Old: old, New: a}}
	if e.gate.AuthorizeRecreated(ctx, pairs) == payments.DecisionCancel {
		if err := e.abortOrder(ctx, order, a); err != nil {
			return err
		}
		return e.orders.DeleteGroupIfEmpty(ctx, group.Group.ID)
	}

	e.count("partial")
	e.resumeOrder(order.ID)
	return nil
}

// rebuildFullGroup clones accepted siblings, applies the edited attributes to
// every member and replaces the whole group.
func (e *Engine) rebuildFullGroup(ctx context.Context, groupPlatformID string, t Edited) error {
	siblings, err := e.appointments.ListByGroupPlatformID(ctx, groupPlatformID)
	if err != nil {
		return err
	}

	// Terminal members keep the group label for audit only; a rebuild must
	// never pull a cancelled or completed booking back into matching.
	open := make([]domain.Appointment, 0, len(siblings))
	for _, s := range siblings {
		if s.Status == domain.AppointmentStatusPending || s.Status == domain.AppointmentStatusAccepted {
			open = append(open, s)
		}
	}
	if len(open) == 0 {
		return e.teardownGroup(ctx, groupPlatformID)
	}

	members := make([]domain.Appointment, 0, len(open))
	pairs := make([]payments.RecreatedPair, 0, len(open))
	for _, s := range open {
		if s.InterpreterID != nil {
			created, err := e.cloneSibling(ctx, s, t)
			if err != nil {
				return err
			}
			pairs = append(pairs, payments.RecreatedPair{Old: s, New: created})
			members = append(members, created)
			continue
		}

		applyEdit(&s, t)
		updated, err := e.appointments.Update(ctx, s)
		if err != nil {
			return err
		}
		members = append(members, updated)
	}

	return e.replaceGroup(ctx, groupPlatformID, members, pairs, "full")
}

// cloneSibling re-creates an accepted sibling as a fresh pending appointment
// carrying the edited attributes and an audit link to the original, then
// cleans the original up.
func (e *Engine) cloneSibling(ctx context.Context, s domain.Appointment, t Edited) (domain.Appointment, error) {
	originalID := s.ID

	clone := s
	clone.ID = uuid.Nil
	clone.Status = domain.AppointmentStatusPending
	clone.InterpreterID = nil
	clone.RecreatedFromID = &originalID
	applyEdit(&clone, t)

	created, err := e.appointments.Create(ctx, clone)
	if err != nil {
		return domain.Appointment{}, err
	}

	if err := e.appointments.Delete(ctx, originalID); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.log.Warn("recreated appointment original cleanup failed",
			zap.String("appointment_id", originalID.String()),
			zap.Error(err),
		)
	}
	return created, nil
}

func (e *Engine) recreateCancelledGroup(ctx context.Context, groupPlatformID string) error {
	siblings, err := e.appointments.ListByGroupPlatformID(ctx, groupPlatformID)
	if err != nil {
		return err
	}

	subset := make([]domain.Appointment, 0, len(siblings))
	for _, s := range siblings {
		if s.AwaitingInterpreter() {
			subset = append(subset, s)
		}
	}
	if len(subset) == 0 {
		return e.teardownGroup(ctx, groupPlatformID)
	}

	if subset[0].SameInterpreter {
		pairs := make([]payments.RecreatedPair, 0, len(subset))
		for _, s := range subset {
			pairs = append(pairs, payments.RecreatedPair{Old: s, New: s})
		}
		return e.replaceGroup(ctx, groupPlatformID, subset, pairs, "full")
	}

	for _, s := range subset {
		if err := e.rebuildMemberOrder(ctx, s, s); err != nil {
			return err
		}
	}
	return nil
}

// replaceGroup tears the old group down and builds a fresh one from the
// member list. The first member always seeds the new group's billing data.
// Relabeling only runs once the payment gate lets the group continue, so a
// declined group leaves its members under the old label. The group label is
// rewritten on the appointments first; relabeling the shared channel is
// detached and retryable, never a reason to roll back.
func (e *Engine) replaceGroup(ctx context.Context, oldPlatformID string, members []domain.Appointment, pairs []payments.RecreatedPair, strategy string) error {
	if err := e.teardownGroup(ctx, oldPlatformID); err != nil {
		return err
	}

	rep := members[0]
	group := domain.AppointmentOrderGroup{
		PlatformID:                  e.newPlatformID(),
		RepresentativeAppointmentID: rep.ID,
		ClientID:                    rep.ClientID,
		CompanyID:                   rep.CompanyID,
		SameInterpreter:             rep.SameInterpreter,
	}
	group.RecomputeSearchFrame(members)

	created, err := e.orders.CreateGroup(ctx, group)
	if err != nil {
		return err
	}

	memberIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if _, err := e.orders.CreateOrder(ctx, domain.AppointmentOrder{
			AppointmentID: m.ID,
			GroupID:       &created.ID,
		}, nil); err != nil {
			return err
		}
		memberIDs = append(memberIDs, m.ID)
	}

	if e.gate.AuthorizeRecreated(ctx, pairs) == payments.DecisionCancel {
		e.gate.CancelAuthorizationForGroup(members)
		if err := e.orders.DeleteGroupWithOrders(ctx, created.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		for _, m := range members {
			e.cancelBySystem(ctx, m)
		}
		return nil
	}

	if err := e.appointments.RepointGroup(ctx, memberIDs, created.PlatformID); err != nil {
		return err
	}
	e.tasks.Go("channels.repoint_group", func(ctx context.Context) error {
		return e.channels.RepointGroupChannel(ctx, oldPlatformID, created.PlatformID)
	})

	e.count(strategy)
	e.resumeGroup(created.PlatformID)
	return nil
}

func applyEdit(a *domain.Appointment, t Edited) {
	if t.Changed.Has(FieldTime) {
		a.ScheduledStartTime = t.Appointment.ScheduledStartTime
		a.ScheduledEndTime = t.Appointment.ScheduledEndTime
	}
	if t.Changed.Has(FieldAddress) {
		a.Address = t.Appointment.Address
	}
	if t.Changed.Has(FieldLanguage) {
		a.LanguageFrom = t.Appointment.LanguageFrom
		a.LanguageTo = t.Appointment.LanguageTo
	}
	if t.Changed.Has(FieldTopic) {
		a.Topic = t.Appointment.Topic
	}
	if t.Changed.Has(FieldGender) {
		a.GenderPreference = t.Appointment.GenderPreference
	}
}

// teardownOrderFor removes a stale order for one appointment, and its group
// row when that left the group empty.
func (e *Engine) teardownOrderFor(ctx context.Context, appointmentID uuid.UUID) error {
	existing, err := e.orders.GetOrderByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := e.orders.DeleteOrder(ctx, existing.Order.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if existing.Order.GroupID != nil {
		return e.orders.DeleteGroupIfEmpty(ctx, *existing.Order.GroupID)
	}
	return nil
}

func (e *Engine) teardownGroup(ctx context.Context, platformID string) error {
	group, err := e.orders.GetGroupByPlatformID(ctx, platformID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := e.orders.DeleteGroupWithOrders(ctx, group.Group.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// abortOrder backs a rebuilt order out after a failed payment authorization
// and system-cancels its appointment, so nothing is left half open.
func (e *Engine) abortOrder(ctx context.Context, order domain.AppointmentOrder, a domain.Appointment) error {
	if err := e.orders.DeleteOrder(ctx, order.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	e.cancelBySystem(ctx, a)
	return nil
}

func (e *Engine) cancelBySystem(ctx context.Context, a domain.Appointment) {
	if a.Status.Terminal() {
		return
	}
	if _, err := e.appointments.UpdateStatus(ctx, a.ID, a.Status, domain.AppointmentStatusCancelledBySystem, nil); err != nil {
		e.log.Warn("system cancel after failed authorization did not apply",
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
	}
}

func (e *Engine) count(strategy string) {
	if e.metrics != nil {
		e.metrics.Recreations.WithLabelValues(strategy).Inc()
	}
}

func (e *Engine) resumeOrder(orderID uuid.UUID) {
	e.tasks.Go("matching.resume_order", func(ctx context.Context) error {
		return e.matcher.ResumeOrder(ctx, orderID)
	})
}

func (e *Engine) resumeGroup(platformID string) {
	e.tasks.Go("matching.resume_group", func(ctx context.Context) error {
		return e.matcher.ResumeGroup(ctx, platformID)
	})
}
