// pkg/persistence/memory_store.go
package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aleka07/range_egizz/go-range-sync/pkg/identity"
	"github.com/aleka07/range_egizz/go-range-sync/pkg/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests and development mode.
// Rooms and assignments are scoped by owner identity like the database rows.
type MemoryStore struct {
	mu          sync.RWMutex
	rooms       map[string]*memRoom                    // room id -> room
	assignments map[string]map[string]model.Assignment // owner -> target id -> assignment
	now         func() time.Time
}

type memRoom struct {
	owner string
	room  model.Room
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:       make(map[string]*memRoom),
		assignments: make(map[string]map[string]model.Assignment),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Seed loads rooms and assignments for owner as-is, bypassing validation.
// Rooms keep their IDs; assignments may reference rooms that don't exist so
// tests can model dangling rows.
func (m *MemoryStore) Seed(owner string, rooms []model.Room, assignments []model.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rooms {
		m.rooms[r.ID] = &memRoom{owner: owner, room: r}
	}
	byTarget := m.ownerAssignments(owner)
	for _, a := range assignments {
		byTarget[a.TargetID] = a
	}
}

func (m *MemoryStore) ownerAssignments(owner string) map[string]model.Assignment {
	byTarget, ok := m.assignments[owner]
	if !ok {
		byTarget = make(map[string]model.Assignment)
		m.assignments[owner] = byTarget
	}
	return byTarget
}

func (m *MemoryStore) lookupRoom(owner, id string) (*memRoom, bool) {
	r, ok := m.rooms[id]
	if !ok || r.owner != owner {
		return nil, false
	}
	return r, true
}

func (m *MemoryStore) countTargets(owner, roomID string) int {
	n := 0
	for _, a := range m.assignments[owner] {
		if a.RoomID == roomID {
			n++
		}
	}
	return n
}

// ListRooms returns copies of the owner's rooms ordered by index, then name.
func (m *MemoryStore) ListRooms(ctx context.Context) ([]*model.Room, error) {
	owner := identity.FromContext(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := []*model.Room{}
	for _, r := range m.rooms {
		if r.owner != owner {
			continue
		}
		room := r.room
		room.TargetCount = m.countTargets(owner, room.ID)
		rooms = append(rooms, &room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Order != rooms[j].Order {
			return rooms[i].Order < rooms[j].Order
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms, nil
}

// CreateRoom stores a new room with a generated id.
func (m *MemoryStore) CreateRoom(ctx context.Context, in model.RoomInput) (*model.Room, error) {
	if err := ValidateRoomInput(in); err != nil {
		return nil, err
	}
	owner := identity.FromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	room := model.Room{
		ID:        "room-" + uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Icon:      in.Icon,
		Type:      in.Type,
		Order:     in.Order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[room.ID] = &memRoom{owner: owner, room: room}
	return &room, nil
}

// UpdateRoom applies the non-nil fields of patch.
func (m *MemoryStore) UpdateRoom(ctx context.Context, id string, patch model.RoomPatch) (*model.Room, error) {
	if err := ValidateRoomPatch(patch); err != nil {
		return nil, err
	}
	owner := identity.FromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.lookupRoom(owner, id)
	if !ok {
		return nil, fmt.Errorf("%w: room with ID '%s' not found for update", ErrNotFound, id)
	}
	if patch.Name != nil {
		r.room.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Icon != nil {
		r.room.Icon = *patch.Icon
	}
	if patch.Type != nil {
		r.room.Type = *patch.Type
	}
	if patch.Order != nil {
		r.room.Order = *patch.Order
	}
	r.room.UpdatedAt = m.now()

	room := r.room
	room.TargetCount = m.countTargets(owner, id)
	return &room, nil
}

// DeleteRoom removes the room and cascades to its assignments.
func (m *MemoryStore) DeleteRoom(ctx context.Context, id string) error {
	owner := identity.FromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookupRoom(owner, id); !ok {
		return fmt.Errorf("%w: room with ID '%s' not found for deletion", ErrNotFound, id)
	}
	delete(m.rooms, id)
	for targetID, a := range m.assignments[owner] {
		if a.RoomID == id {
			delete(m.assignments[owner], targetID)
		}
	}
	return nil
}

// Assign replaces any existing assignment of each target with roomID.
func (m *MemoryStore) Assign(ctx context.Context, targets []model.TargetRef, roomID string) error {
	owner := identity.FromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookupRoom(owner, roomID); !ok {
		return fmt.Errorf("%w: room with ID '%s' not found", ErrNotFound, roomID)
	}
	byTarget := m.ownerAssignments(owner)
	for _, ref := range dedupeRefs(targets) {
		delete(byTarget, ref.ID)
		byTarget[ref.ID] = model.Assignment{
			TargetID:   ref.ID,
			RoomID:     roomID,
			TargetName: ref.Name,
			CreatedAt:  m.now(),
		}
	}
	return nil
}

// Unassign removes the targets' assignments. Missing rows are ignored.
func (m *MemoryStore) Unassign(ctx context.Context, targetIDs []string) error {
	owner := identity.FromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range targetIDs {
		delete(m.assignments[owner], id)
	}
	return nil
}

// ListAssignments returns the owner's assignments ordered by target id.
func (m *MemoryStore) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	owner := identity.FromContext(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Assignment, 0, len(m.assignments[owner]))
	for _, a := range m.assignments[owner] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() {}
