package reconcile

import (
	"time"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
)

// View is the Reconciled View: every target joined with its room
// assignment. Views handed out by the Cache are shared between callers and
// must be treated as read-only; use Clone or WithAssignment to derive a
// modified copy.
type View struct {
	Targets []model.Target `json:"targets"`
	// Degraded is set when the view was built from assignment rows only
	// because the gateway could not be read. Degraded views are never cached.
	Degraded bool      `json:"degraded"`
	BuiltAt  time.Time `json:"builtAt"`
}

// Clone returns a deep copy of v.
func (v View) Clone() View {
	c := View{Degraded: v.Degraded, BuiltAt: v.BuiltAt}
	if v.Targets != nil {
		c.Targets = make([]model.Target, len(v.Targets))
		for i, t := range v.Targets {
			c.Targets[i] = t.Clone()
		}
	}
	return c
}

// Target looks up a target by id.
func (v View) Target(id string) (model.Target, bool) {
	for _, t := range v.Targets {
		if t.ID == id {
			return t, true
		}
	}
	return model.Target{}, false
}

// WithAssignment returns a copy of v with the given targets moved into
// roomID, or unassigned when roomID is empty. Targets not present in v are
// ignored. v itself is not modified.
func (v View) WithAssignment(targetIDs []string, roomID string) View {
	ids := make(map[string]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		ids[id] = struct{}{}
	}

	c := v.Clone()
	for i := range c.Targets {
		if _, ok := ids[c.Targets[i].ID]; !ok {
			continue
		}
		if roomID == "" {
			c.Targets[i].RoomID = nil
			continue
		}
		room := roomID
		c.Targets[i].RoomID = &room
	}
	return c
}

// merge attaches room ids to the fetched targets and collapses duplicate
// target ids reported by the gateway.
func merge(targets []model.Target, rooms map[string]model.Assignment) []model.Target {
	out := make([]model.Target, 0, len(targets))
	index := make(map[string]int, len(targets))
	for _, t := range targets {
		t = t.Clone()
		t.RoomID = nil
		if a, ok := rooms[t.ID]; ok {
			room := a.RoomID
			t.RoomID = &room
		}

		if i, dup := index[t.ID]; dup {
			if preferred(t, out[i]) {
				out[i] = t
			}
			continue
		}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

// preferred reports whether candidate should replace current: an assigned
// record wins, otherwise the one with more populated fields.
func preferred(candidate, current model.Target) bool {
	if (candidate.RoomID != nil) != (current.RoomID != nil) {
		return candidate.RoomID != nil
	}
	return candidate.PopulatedFields() > current.PopulatedFields()
}

// degradedView rebuilds what is known from assignment rows alone.
func degradedView(assignments []model.Assignment, now time.Time) View {
	targets := make([]model.Target, 0, len(assignments))
	for _, a := range assignments {
		room := a.RoomID
		targets = append(targets, model.Target{
			ID:     a.TargetID,
			Name:   a.TargetName,
			Status: model.StatusUnknown,
			RoomID: &room,
		})
	}
	return View{Targets: targets, Degraded: true, BuiltAt: now}
}
