// Package notify defines the outbound notification collaborator. All sends
// are dispatched fire-and-forget by the callers; implementations only need to
// deliver or return an error for the detach runner to log.
package notify

import (
	"context"

	"github.com/google/uuid"
)

type Notifier interface {
	// SendSingleOrder invites an interpreter to one order.
	SendSingleOrder(ctx context.Context, interpreterID string, orderID uuid.UUID) error
	// SendGroupOrder invites an interpreter to a whole group.
	SendGroupOrder(ctx context.Context, interpreterID string, groupPlatformID string) error
	// SendAccepted tells the client an interpreter took the appointment.
	SendAccepted(ctx context.Context, clientID string, appointmentID uuid.UUID) error
	// SendRepeat re-pings an already invited interpreter.
	SendRepeat(ctx context.Context, interpreterID string, orderID uuid.UUID) error
	// SendCancelled informs the counterparty of a cancellation.
	SendCancelled(ctx context.Context, recipientID string, appointmentID uuid.UUID, reason string) error
}

// Noop discards every notification. Used in tests and when no delivery
// endpoint is configured.
type Noop struct{}

func (Noop) SendSingleOrder(context.Context, string, uuid.UUID) error { return nil }

func (Noop) SendGroupOrder(context.Context, string, string) error { return nil }

func (Noop) SendAccepted(context.Context, string, uuid.UUID) error { return nil }

func (Noop) SendRepeat(context.Context, string, uuid.UUID) error { return nil }

func (Noop) SendCancelled(context.Context, string, uuid.UUID, string) error { return nil }
