package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AppointmentOrder is the matchable unit for one appointment awaiting an
// interpreter. The matching process appends candidates to the matched set;
// this subsystem only moves candidates between the matched and rejected sets
// or deletes the order outright. A candidate is never in both sets at once.
type AppointmentOrder struct {
	bun.BaseModel `bun:"table:appointment_orders"`

	ID            uuid.UUID  `bun:"id,pk,type:uuid"`
	AppointmentID uuid.UUID  `bun:"appointment_id,notnull,type:uuid"`
	GroupID       *uuid.UUID `bun:"group_id,type:uuid"`

	MatchedInterpreterIDs  []string `bun:"matched_interpreter_ids,array"`
	RejectedInterpreterIDs []string `bun:"rejected_interpreter_ids,array"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (o *AppointmentOrder) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if o.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			o.ID = id
		}
		// Candidate columns are NOT NULL; nil sets insert as empty arrays.
		if o.MatchedInterpreterIDs == nil {
			o.MatchedInterpreterIDs = []string{}
		}
		if o.RejectedInterpreterIDs == nil {
			o.RejectedInterpreterIDs = []string{}
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		o.UpdatedAt = now
	}
	return nil
}

func (o *AppointmentOrder) HasMatched(interpreterID string) bool {
	return containsCandidate(o.MatchedInterpreterIDs, interpreterID)
}

func (o *AppointmentOrder) HasRejected(interpreterID string) bool {
	return containsCandidate(o.RejectedInterpreterIDs, interpreterID)
}

// Reject moves the candidate from the matched set to the rejected set.
func (o *AppointmentOrder) Reject(interpreterID string) bool {
	matched, rejected, ok := moveCandidate(o.MatchedInterpreterIDs, o.RejectedInterpreterIDs, interpreterID)
	if ok {
		o.MatchedInterpreterIDs = matched
		o.RejectedInterpreterIDs = rejected
	}
	return ok
}

// Refuse reverses a reject, moving the candidate back to the matched set.
func (o *AppointmentOrder) Refuse(interpreterID string) bool {
	rejected, matched, ok := moveCandidate(o.RejectedInterpreterIDs, o.MatchedInterpreterIDs, interpreterID)
	if ok {
		o.RejectedInterpreterIDs = rejected
		o.MatchedInterpreterIDs = matched
	}
	return ok
}

// AddCandidate invites an interpreter that is not already matched. Rejected
// candidates are moved back instead of duplicated.
func (o *AppointmentOrder) AddCandidate(interpreterID string) bool {
	if o.HasMatched(interpreterID) {
		return false
	}
	if o.HasRejected(interpreterID) {
		return o.Refuse(interpreterID)
	}
	o.MatchedInterpreterIDs = append(o.MatchedInterpreterIDs, interpreterID)
	return true
}

// RemoveCandidate withdraws an offer without recording a rejection.
func (o *AppointmentOrder) RemoveCandidate(interpreterID string) bool {
	ids, ok := removeCandidate(o.MatchedInterpreterIDs, interpreterID)
	if ok {
		o.MatchedInterpreterIDs = ids
	}
	return ok
}

// AppointmentOrderGroup aggregates orders that must be answered together.
// Its PlatformID is also written onto every member appointment so the two
// stay in lock-step across recreations.
type AppointmentOrderGroup struct {
	bun.BaseModel `bun:"table:appointment_order_groups"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	PlatformID string    `bun:"platform_id,notnull,unique"`

	// Representative appointment seeding client/company billing data. Always
	// the first element of the appointment list the group was built from.
	RepresentativeAppointmentID uuid.UUID `bun:"representative_appointment_id,notnull,type:uuid"`
	ClientID                    string    `bun:"client_id,notnull"`
	CompanyID                   string    `bun:"company_id"`
	SameInterpreter             bool      `bun:"same_interpreter,notnull"`

	MatchedInterpreterIDs  []string `bun:"matched_interpreter_ids,array"`
	RejectedInterpreterIDs []string `bun:"rejected_interpreter_ids,array"`

	// Cached search time-frame over member appointments.
	SearchFrom time.Time `bun:"search_from,notnull"`
	SearchTo   time.Time `bun:"search_to,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (g *AppointmentOrderGroup) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if g.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			g.ID = id
		}
		if g.MatchedInterpreterIDs == nil {
			g.MatchedInterpreterIDs = []string{}
		}
		if g.RejectedInterpreterIDs == nil {
			g.RejectedInterpreterIDs = []string{}
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		if g.UpdatedAt.IsZero() {
			g.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		g.UpdatedAt = now
	}
	return nil
}

func (g *AppointmentOrderGroup) HasMatched(interpreterID string) bool {
	return containsCandidate(g.MatchedInterpreterIDs, interpreterID)
}

func (g *AppointmentOrderGroup) HasRejected(interpreterID string) bool {
	return containsCandidate(g.RejectedInterpreterIDs, interpreterID)
}

func (g *AppointmentOrderGroup) Reject(interpreterID string) bool {
	matched, rejected, ok := moveCandidate(g.MatchedInterpreterIDs, g.RejectedInterpreterIDs, interpreterID)
	if ok {
		g.MatchedInterpreterIDs = matched
		g.RejectedInterpreterIDs = rejected
	}
	return ok
}

func (g *AppointmentOrderGroup) Refuse(interpreterID string) bool {
	rejected, matched, ok := moveCandidate(g.RejectedInterpreterIDs, g.MatchedInterpreterIDs, interpreterID)
	if ok {
		g.RejectedInterpreterIDs = rejected
		g.MatchedInterpreterIDs = matched
	}
	return ok
}

func (g *AppointmentOrderGroup) AddCandidate(interpreterID string) bool {
	if g.HasMatched(interpreterID) {
		return false
	}
	if g.HasRejected(interpreterID) {
		return g.Refuse(interpreterID)
	}
	g.MatchedInterpreterIDs = append(g.MatchedInterpreterIDs, interpreterID)
	return true
}

// RecomputeSearchFrame refreshes the cached time-frame from the member
// appointments.
func (g *AppointmentOrderGroup) RecomputeSearchFrame(appts []Appointment) {
	if len(appts) == 0 {
		return
	}
	from := appts[0].ScheduledStartTime
	to := appts[0].ScheduledEndTime
	for _, a := range appts[1:] {
		if a.ScheduledStartTime.Before(from) {
			from = a.ScheduledStartTime
		}
		if a.ScheduledEndTime.After(to) {
			to = a.ScheduledEndTime
		}
	}
	g.SearchFrom = from
	g.SearchTo = to
}

func containsCandidate(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeCandidate(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	found := false
	for _, v := range ids {
		if v == id {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		return ids, false
	}
	return out, true
}

// moveCandidate removes id from one set and appends it to the other,
// preserving the invariant that a candidate never appears in both.
func moveCandidate(from, to []string, id string) ([]string, []string, bool) {
	newFrom, ok := removeCandidate(from, id)
	if !ok {
		return from, to, false
	}
	if containsCandidate(to, id) {
		return newFrom, to, true
	}
	return newFrom, append(to, id), true
}
