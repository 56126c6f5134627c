// pkg/persistence/store.go
package persistence

import (
	"context" // Use context for cancellation and deadlines
	"errors"
	"fmt"
	"strings"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
)

var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource conflict / already exists") // For duplicate keys
	ErrValidation = errors.New("validation failed")
)

// RoomStore defines the persistence operations for rooms. Every call is
// scoped to the owner identity carried by ctx.
type RoomStore interface {
	// ListRooms lists the owner's rooms ordered by their ordering index.
	ListRooms(ctx context.Context) ([]*model.Room, error)

	// CreateRoom stores a new room. Returns ErrValidation on an empty name.
	CreateRoom(ctx context.Context, in model.RoomInput) (*model.Room, error)

	// UpdateRoom applies a partial update. Returns ErrNotFound if the room doesn't exist.
	UpdateRoom(ctx context.Context, id string, patch model.RoomPatch) (*model.Room, error)

	// DeleteRoom removes a room and every assignment referencing it.
	DeleteRoom(ctx context.Context, id string) error
}

// AssignmentStore defines the persistence operations for room<->target
// assignments.
type AssignmentStore interface {
	// Assign moves each target into roomID, removing any previous assignment
	// for that target first. Returns ErrNotFound if the room doesn't exist.
	Assign(ctx context.Context, targets []model.TargetRef, roomID string) error

	// Unassign removes the assignments of the given targets. Unknown ids are ignored.
	Unassign(ctx context.Context, targetIDs []string) error

	// ListAssignments returns the full current target -> room mapping.
	ListAssignments(ctx context.Context) ([]model.Assignment, error)
}

// Store is the combined Room Assignment Store.
type Store interface {
	RoomStore
	AssignmentStore
	Close() // Single Close method
}

// Pinger is implemented by stores that can check their backend connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidateRoomInput rejects rooms without a usable name.
func ValidateRoomInput(in model.RoomInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: room name must not be empty", ErrValidation)
	}
	return nil
}

// ValidateRoomPatch rejects patches that would blank the room name.
func ValidateRoomPatch(p model.RoomPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: room name must not be empty", ErrValidation)
	}
	return nil
}

// dedupeIDs drops empty and repeated ids, keeping first-seen order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// dedupeRefs drops refs without an id and keeps the first ref per target.
func dedupeRefs(refs []model.TargetRef) []model.TargetRef {
	seen := make(map[string]struct{}, len(refs))
	out := make([]model.TargetRef, 0, len(refs))
	for _, ref := range refs {
		if ref.ID == "" {
			continue
		}
		if _, ok := seen[ref.ID]; ok {
			continue
		}
		seen[ref.ID] = struct{}{}
		out = append(out, ref)
	}
	return out
}
