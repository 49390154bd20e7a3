package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"terplink/backend/internal/detach"
	"terplink/backend/internal/domain"
)

func mustUUID(s string) uuid.UUID { return uuid.MustParse(s) }

type fakeCollaborator struct {
	authorizeOnAcceptFn    func(ctx context.Context, appt domain.Appointment) (Outcome, error)
	authorizeIfRecreatedFn func(ctx context.Context, newAppt, oldAppt domain.Appointment) (Outcome, error)
	cancelFn               func(ctx context.Context, appt domain.Appointment, cancelledByClient bool) error
	cancelGroupFn          func(ctx context.Context, appts []domain.Appointment) error
}

func (f *fakeCollaborator) AuthorizeOnAccept(ctx context.Context, appt domain.Appointment) (Outcome, error) {
	if f.authorizeOnAcceptFn == nil {
		panic("AuthorizeOnAccept not configured")
	}
	return f.authorizeOnAcceptFn(ctx, appt)
}

func (f *fakeCollaborator) AuthorizeIfRecreated(ctx context.Context, newAppt, oldAppt domain.Appointment) (Outcome, error) {
	if f.authorizeIfRecreatedFn == nil {
		panic("AuthorizeIfRecreated not configured")
	}
	return f.authorizeIfRecreatedFn(ctx, newAppt, oldAppt)
}

func (f *fakeCollaborator) CancelAuthorization(ctx context.Context, appt domain.Appointment, cancelledByClient bool) error {
	if f.cancelFn == nil {
		panic("CancelAuthorization not configured")
	}
	return f.cancelFn(ctx, appt, cancelledByClient)
}

func (f *fakeCollaborator) CancelAuthorizationForGroup(ctx context.Context, appts []domain.Appointment) error {
	if f.cancelGroupFn == nil {
		panic("CancelAuthorizationForGroup not configured")
	}
	return f.cancelGroupFn(ctx, appts)
}

func TestDecidePolicyTable(t *testing.T) {
	cases := []struct {
		outcome Outcome
		want    Decision
	}{
		{OutcomeAuthorizationSuccess, DecisionContinue},
		{OutcomeAuthorizationFailed, DecisionCancel},
		{OutcomeRedirectedToWaitList, DecisionContinue},
		{OutcomePayInReattached, DecisionContinue},
		{OutcomePayInNotChanged, DecisionContinue},
	}
	for _, tc := range cases {
		if got := Decide(tc.outcome); got != tc.want {
			t.Fatalf("Decide(%s) = %s, want %s", tc.outcome, got, tc.want)
		}
	}
}

func TestDecideGroupOneFailureFailsTheGroup(t *testing.T) {
	got := DecideGroup([]Outcome{
		OutcomeAuthorizationSuccess,
		OutcomePayInNotChanged,
		OutcomeAuthorizationFailed,
		OutcomeAuthorizationSuccess,
	})
	if got != DecisionCancel {
		t.Fatalf("DecideGroup with one failure = %s, want %s", got, DecisionCancel)
	}
}

func TestDecideGroupNeutralOutcomesContinue(t *testing.T) {
	got := DecideGroup([]Outcome{
		OutcomeRedirectedToWaitList,
		OutcomePayInReattached,
		OutcomePayInNotChanged,
	})
	if got != DecisionContinue {
		t.Fatalf("DecideGroup over neutral outcomes = %s, want %s", got, DecisionContinue)
	}
	if DecideGroup(nil) != DecisionContinue {
		t.Fatalf("empty group must continue")
	}
}

func TestGateAuthorizeOnAcceptTransportErrorContinues(t *testing.T) {
	gate := NewGate(&fakeCollaborator{
		authorizeOnAcceptFn: func(ctx context.Context, appt domain.Appointment) (Outcome, error) {
			return "", errors.New("payment service unreachable")
		},
	}, detach.NewRunner(zap.NewNop(), time.Second, nil), nil)

	if got := gate.AuthorizeOnAccept(context.Background(), domain.Appointment{}); got != DecisionContinue {
		t.Fatalf("decision = %s, want %s", got, DecisionContinue)
	}
}

func TestGateAuthorizeRecreatedResolvesGroupDecision(t *testing.T) {
	outcomes := map[string]Outcome{
		"00000000-0000-0000-0000-000000000001": OutcomeAuthorizationSuccess,
		"00000000-0000-0000-0000-000000000002": OutcomeAuthorizationFailed,
	}
	gate := NewGate(&fakeCollaborator{
		authorizeIfRecreatedFn: func(ctx context.Context, newAppt, oldAppt domain.Appointment) (Outcome, error) {
			return outcomes[newAppt.ID.String()], nil
		},
	}, detach.NewRunner(zap.NewNop(), time.Second, nil), nil)

	pairs := []RecreatedPair{
		{New: domain.Appointment{ID: mustUUID("00000000-0000-0000-0000-000000000001")}},
		{New: domain.Appointment{ID: mustUUID("00000000-0000-0000-0000-000000000002")}},
	}
	if got := gate.AuthorizeRecreated(context.Background(), pairs); got != DecisionCancel {
		t.Fatalf("decision = %s, want %s", got, DecisionCancel)
	}
}

func TestGateCancelAuthorizationIsDetached(t *testing.T) {
	done := make(chan struct{})
	tasks := detach.NewRunner(zap.NewNop(), time.Second, nil)
	gate := NewGate(&fakeCollaborator{
		cancelFn: func(ctx context.Context, appt domain.Appointment, cancelledByClient bool) error {
			if !cancelledByClient {
				t.Errorf("cancelledByClient = false, want true")
			}
			close(done)
			return nil
		},
	}, tasks, nil)

	gate.CancelAuthorization(domain.Appointment{}, true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("cancel authorization never dispatched")
	}
}
