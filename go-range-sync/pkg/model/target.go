// pkg/model/target.go
package model

import "time"

// Status is the display status of a target. It is derived from the raw
// connectivity inputs, never stored verbatim.
type Status string

const (
	StatusOnline  Status = "online"
	StatusStandby Status = "standby"
	StatusOffline Status = "offline"
	// StatusUnknown only appears in degraded views built without live telemetry.
	StatusUnknown Status = "unknown"
)

// Valid reports whether s is one of the statuses the gateway may derive.
// StatusUnknown is not valid upstream input.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusStandby, StatusOffline:
		return true
	}
	return false
}

// TelemetryValue is one time-stamped reading in a target's telemetry bag.
type TelemetryValue struct {
	Timestamp time.Time `json:"ts"`
	Value     any       `json:"value"`
}

// Target represents one physical training device as reported by the
// telemetry gateway, optionally annotated with its room assignment.
type Target struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`

	// Raw inputs to status derivation. Connected is nil when the gateway
	// does not know the connectivity state.
	Connected    *bool      `json:"connected,omitempty"`
	LastActivity *time.Time `json:"lastActivityTime,omitempty"`

	RoomID *string `json:"roomId"` // nil when unassigned

	Telemetry  map[string][]TelemetryValue `json:"telemetry,omitempty"`
	LastShotAt *time.Time                  `json:"lastShotTime,omitempty"`
	ShotCount  int64                       `json:"shotCount"`
	GameID     string                      `json:"gameId,omitempty"` // set while engaged in a game
}

// InGame reports whether the target is currently engaged in a game session.
func (t Target) InGame() bool {
	return t.GameID != ""
}

// AssignedTo reports whether the target is assigned to roomID.
func (t Target) AssignedTo(roomID string) bool {
	return t.RoomID != nil && *t.RoomID == roomID
}

// Clone returns a deep copy so callers can patch it without touching
// shared views.
func (t Target) Clone() Target {
	c := t
	if t.Connected != nil {
		v := *t.Connected
		c.Connected = &v
	}
	if t.LastActivity != nil {
		v := *t.LastActivity
		c.LastActivity = &v
	}
	if t.RoomID != nil {
		v := *t.RoomID
		c.RoomID = &v
	}
	if t.LastShotAt != nil {
		v := *t.LastShotAt
		c.LastShotAt = &v
	}
	if t.Telemetry != nil {
		c.Telemetry = make(map[string][]TelemetryValue, len(t.Telemetry))
		for k, vals := range t.Telemetry {
			c.Telemetry[k] = append([]TelemetryValue(nil), vals...)
		}
	}
	return c
}

// PopulatedFields counts the optional fields carrying data. It is used to
// pick the richer record when the gateway reports a target twice.
func (t Target) PopulatedFields() int {
	n := 0
	if t.Name != "" {
		n++
	}
	if t.Status != "" {
		n++
	}
	if t.Connected != nil {
		n++
	}
	if t.LastActivity != nil {
		n++
	}
	if t.RoomID != nil {
		n++
	}
	if len(t.Telemetry) > 0 {
		n++
	}
	if t.LastShotAt != nil {
		n++
	}
	if t.ShotCount != 0 {
		n++
	}
	if t.GameID != "" {
		n++
	}
	return n
}
