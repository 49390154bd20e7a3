package domain

// ConflictSet classifies an interpreter's overlapping bookings by the
// cancellation path each requires: standalone appointments are cancelled
// alone, members of a non-same-interpreter group are cancelled alone inside
// their group, and members of a same-interpreter group force their whole
// sibling group down, deduplicated by group id.
type ConflictSet struct {
	Singles        []Appointment
	GroupedSingles []Appointment
	WholeGroupIDs  []string
}

func (c ConflictSet) Empty() bool {
	return len(c.Singles) == 0 && len(c.GroupedSingles) == 0 && len(c.WholeGroupIDs) == 0
}

// Overlaps returns the raw conflicting appointments for error payloads.
func (c ConflictSet) Overlaps() []Appointment {
	out := make([]Appointment, 0, len(c.Singles)+len(c.GroupedSingles))
	out = append(out, c.Singles...)
	out = append(out, c.GroupedSingles...)
	return out
}

// ClassifyConflicts buckets overlapping appointments. Appointments in a
// same-interpreter group contribute their group id exactly once; a group
// appointment without a group label falls back to the single-in-group bucket
// so the conflict is never lost.
func ClassifyConflicts(overlaps []Appointment) ConflictSet {
	var out ConflictSet
	seenGroups := make(map[string]struct{})
	for _, a := range overlaps {
		switch {
		case !a.IsGroupAppointment:
			out.Singles = append(out.Singles, a)
		case !a.SameInterpreter || a.AppointmentsGroupID == nil:
			out.GroupedSingles = append(out.GroupedSingles, a)
		default:
			gid := *a.AppointmentsGroupID
			if _, ok := seenGroups[gid]; ok {
				continue
			}
			seenGroups[gid] = struct{}{}
			out.WholeGroupIDs = append(out.WholeGroupIDs, gid)
		}
	}
	return out
}
