// pkg/model/room.go
package model

import "time"

// Room is a user-defined grouping of targets.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Type        string    `json:"roomType,omitempty"`
	Order       int       `json:"order"`
	TargetCount int       `json:"targetCount"` // derived at read time
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RoomInput carries the fields needed to create a room.
type RoomInput struct {
	Name  string `json:"name"`
	Type  string `json:"roomType,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Order int    `json:"order"`
}

// RoomPatch is a partial room update. Nil fields are left untouched.
type RoomPatch struct {
	Name  *string `json:"name,omitempty"`
	Type  *string `json:"roomType,omitempty"`
	Icon  *string `json:"icon,omitempty"`
	Order *int    `json:"order,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p RoomPatch) Empty() bool {
	return p.Name == nil && p.Type == nil && p.Icon == nil && p.Order == nil
}

// Assignment links a target to at most one room. The target name is stored
// alongside so a view can be rebuilt when the gateway is unreachable.
type Assignment struct {
	TargetID   string    `json:"targetId"`
	RoomID     string    `json:"roomId"`
	TargetName string    `json:"targetName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TargetRef identifies a target being assigned, with the display name known
// at assignment time.
type TargetRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
