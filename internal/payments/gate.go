package payments

import (
	"context"

	"go.uber.org/zap"

	"terplink/backend/internal/detach"
	"terplink/backend/internal/domain"
)

// Outcome is the three-call payment collaborator's five-valued authorization
// result.
type Outcome string

const (
	OutcomeAuthorizationSuccess Outcome = "authorization_success"
	OutcomeAuthorizationFailed  Outcome = "authorization_failed"
	OutcomeRedirectedToWaitList Outcome = "redirected_to_wait_list"
	OutcomePayInReattached      Outcome = "pay_in_reattached"
	OutcomePayInNotChanged      Outcome = "pay_in_not_changed"
)

type Decision int

const (
	DecisionContinue Decision = iota
	DecisionCancel
)

func (d Decision) String() string {
	if d == DecisionCancel {
		return "cancel"
	}
	return "continue"
}

// Decide maps an authorization outcome onto the single continue/cancel policy
// used everywhere in this subsystem: only a hard authorization failure stops
// matching.
func Decide(o Outcome) Decision {
	if o == OutcomeAuthorizationFailed {
		return DecisionCancel
	}
	return DecisionContinue
}

// DecideGroup resolves a group of outcomes with priority
// FAILED > SUCCESS > neutral: one failure anywhere cancels the whole group,
// any mix of success and neutral outcomes continues. Neutral outcomes are
// equivalent among themselves.
func DecideGroup(outcomes []Outcome) Decision {
	for _, o := range outcomes {
		if Decide(o) == DecisionCancel {
			return DecisionCancel
		}
	}
	return DecisionContinue
}

// Collaborator is the external payment service contract.
type Collaborator interface {
	AuthorizeOnAccept(ctx context.Context, appt domain.Appointment) (Outcome, error)
	AuthorizeIfRecreated(ctx context.Context, newAppt, oldAppt domain.Appointment) (Outcome, error)
	CancelAuthorization(ctx context.Context, appt domain.Appointment, cancelledByClient bool) error
	CancelAuthorizationForGroup(ctx context.Context, appts []domain.Appointment) error
}

// RecreatedPair is one sibling's old appointment (carrying the previously
// accepted interpreter) and its recreated replacement.
type RecreatedPair struct {
	Old domain.Appointment
	New domain.Appointment
}

// Gate wraps the collaborator and owns the continue/cancel policy.
// Authorization calls run in-line because their outcome is the decision the
// caller needs; a transport failure is logged and treated as a neutral
// outcome rather than blocking the flow. Cancellation calls are dispatched
// detached and never surface to the caller.
type Gate struct {
	collaborator Collaborator
	tasks        *detach.Runner
	log          *zap.Logger
}

func NewGate(collaborator Collaborator, tasks *detach.Runner, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		collaborator: collaborator,
		tasks:        tasks,
		log:          log.With(zap.String("component", "payments.gate")),
	}
}

func (g *Gate) AuthorizeOnAccept(ctx context.Context, appt domain.Appointment) Decision {
	outcome, err := g.collaborator.AuthorizeOnAccept(ctx, appt)
	if err != nil {
		g.log.Warn("authorize on accept failed",
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err),
		)
		return DecisionContinue
	}
	return Decide(outcome)
}

// AuthorizeGroupOnAccept runs authorize-on-accept per member and resolves the
// group decision.
func (g *Gate) AuthorizeGroupOnAccept(ctx context.Context, appts []domain.Appointment) Decision {
	outcomes := make([]Outcome, 0, len(appts))
	for _, appt := range appts {
		outcome, err := g.collaborator.AuthorizeOnAccept(ctx, appt)
		if err != nil {
			g.log.Warn("authorize on accept failed",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err),
			)
			outcome = OutcomePayInNotChanged
		}
		outcomes = append(outcomes, outcome)
	}
	return DecideGroup(outcomes)
}

// AuthorizeRecreated runs authorize-on-recreation per pair and resolves the
// group decision.
func (g *Gate) AuthorizeRecreated(ctx context.Context, pairs []RecreatedPair) Decision {
	outcomes := make([]Outcome, 0, len(pairs))
	for _, p := range pairs {
		outcome, err := g.collaborator.AuthorizeIfRecreated(ctx, p.New, p.Old)
		if err != nil {
			g.log.Warn("authorize on recreation failed",
				zap.String("appointment_id", p.New.ID.String()),
				zap.Error(err),
			)
			outcome = OutcomePayInNotChanged
		}
		outcomes = append(outcomes, outcome)
	}
	return DecideGroup(outcomes)
}

func (g *Gate) CancelAuthorization(appt domain.Appointment, cancelledByClient bool) {
	g.tasks.Go("payments.cancel_authorization", func(ctx context.Context) error {
		return g.collaborator.CancelAuthorization(ctx, appt, cancelledByClient)
	})
}

func (g *Gate) CancelAuthorizationForGroup(appts []domain.Appointment) {
	g.tasks.Go("payments.cancel_authorization_group", func(ctx context.Context) error {
		return g.collaborator.CancelAuthorizationForGroup(ctx, appts)
	})
}
