// Package matching bridges to the external matching/search process. Order
// and group existence in the store is the real signal that matching is open;
// Resume calls are only a nudge so a rebuilt order is picked up before the
// next scheduled tick.
package matching

import (
	"context"

	"github.com/google/uuid"
)

type Matcher interface {
	ResumeOrder(ctx context.Context, orderID uuid.UUID) error
	ResumeGroup(ctx context.Context, groupPlatformID string) error
}

type Noop struct{}

func (Noop) ResumeOrder(context.Context, uuid.UUID) error { return nil }
func (Noop) ResumeGroup(context.Context, string) error    { return nil }
