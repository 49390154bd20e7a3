package recreation

import "terplink/backend/internal/domain"

// ChangedFields is the set of matching-relevant appointment attributes an
// edit touched.
type ChangedFields uint8

const (
	FieldTime ChangedFields = 1 << iota
	FieldAddress
	FieldLanguage
	FieldTopic
	FieldGender
)

func (f ChangedFields) Has(v ChangedFields) bool {
	return f&v != 0
}

// RequiresFullRebuild reports whether the edit forces rebuilding the whole
// group rather than just the edited member's order.
func (f ChangedFields) RequiresFullRebuild() bool {
	return f.Has(FieldTopic | FieldGender | FieldLanguage)
}

// Trigger is the single tagged value driving the engine: one dispatcher
// consumes it and selects the single, partial or full recreation strategy
// instead of each call site re-deriving the branch.
type Trigger interface {
	recreationTrigger()
}

// Edited fires after an appointment edit was persisted. Previous carries the
// pre-edit row for the payment authorization pair.
type Edited struct {
	Appointment domain.Appointment
	Previous    domain.Appointment
	Changed     ChangedFields
}

// Cancelled fires after a cancellation returned an appointment to the
// matching pool, or removed it from a group that now needs re-syncing.
type Cancelled struct {
	Appointment domain.Appointment
}

// GroupCancelled fires once per cancelled group, after the per-appointment
// fan-out, so the group is rebuilt in a single pass.
type GroupCancelled struct {
	GroupPlatformID string
}

func (Edited) recreationTrigger()         {}
func (Cancelled) recreationTrigger()      {}
func (GroupCancelled) recreationTrigger() {}
