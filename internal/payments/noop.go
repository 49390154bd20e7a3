package payments

import (
	"context"

	"terplink/backend/internal/domain"
)

// NoopCollaborator authorizes everything. Used in tests and when no payment
// service is configured.
type NoopCollaborator struct{}

func (NoopCollaborator) AuthorizeOnAccept(context.Context, domain.Appointment) (Outcome, error) {
	return OutcomeAuthorizationSuccess, nil
}

func (NoopCollaborator) AuthorizeIfRecreated(context.Context, domain.Appointment, domain.Appointment) (Outcome, error) {
	return OutcomePayInNotChanged, nil
}

func (NoopCollaborator) CancelAuthorization(context.Context, domain.Appointment, bool) error {
	return nil
}

func (NoopCollaborator) CancelAuthorizationForGroup(context.Context, []domain.Appointment) error {
	return nil
}
