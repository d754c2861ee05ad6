// Package server maintains the room table: named groups of session ids with
// membership operations. Like the registry, the table is owned by the hub
// goroutine and mutated nowhere else.
package server

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrRoomNotFound is returned for operations referencing an absent room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when creating a room whose name or id is
	// already taken.
	ErrRoomExists = errors.New("room already exists")
)

type room struct {
	name    string
	members map[uuid.UUID]struct{}
}

// roomTable maps room ids to rooms, with a name index kept in sync inside
// every mutating operation so duplicate names are rejected at creation.
type roomTable struct {
	rooms map[uuid.UUID]*room
	names map[string]uuid.UUID
}

func newRoomTable() *roomTable {
	return &roomTable{
		rooms: make(map[uuid.UUID]*room),
		names: make(map[string]uuid.UUID),
	}
}

// create registers a new room owned by the creating session. The room id is
// the creator's session id, so room ids stay unguessable and a creator can
// own at most one room. The creator becomes the room's first member, which
// keeps the emptiness invariant intact when it disconnects without anyone
// else ever joining.
func (t *roomTable) create(owner uuid.UUID, name string) (RoomInfo, error) {
	if _, taken := t.names[name]; taken {
		return RoomInfo{}, ErrRoomExists
	}
	if _, taken := t.rooms[owner]; taken {
		return RoomInfo{}, ErrRoomExists
	}

	t.rooms[owner] = &room{
		name:    name,
		members: map[uuid.UUID]struct{}{owner: {}},
	}
	t.names[name] = owner

	return RoomInfo{ID: owner, Name: name, Num: 1}, nil
}

// join adds the session to the room and returns the updated snapshot.
func (t *roomTable) join(roomID, sessionID uuid.UUID) (RoomInfo, error) {
	r, ok := t.rooms[roomID]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}

	r.members[sessionID] = struct{}{}
	return RoomInfo{ID: roomID, Name: r.name, Num: len(r.members)}, nil
}

// leaveAll removes the session from every room. Rooms emptied by the removal
// are deleted from the table in the same pass and their ids returned so the
// hub can drop any per-room state of its own.
func (t *roomTable) leaveAll(sessionID uuid.UUID) []uuid.UUID {
	var emptied []uuid.UUID

	for id, r := range t.rooms {
		if _, member := r.members[sessionID]; !member {
			continue
		}
		delete(r.members, sessionID)
		if len(r.members) == 0 {
			delete(t.rooms, id)
			delete(t.names, r.name)
			emptied = append(emptied, id)
		}
	}

	return emptied
}

// list returns a snapshot of every room. Ordering is unspecified.
func (t *roomTable) list() []RoomInfo {
	rooms := make([]RoomInfo, 0, len(t.rooms))
	for id, r := range t.rooms {
		rooms = append(rooms, RoomInfo{ID: id, Name: r.name, Num: len(r.members)})
	}
	return rooms
}

// broadcastTarget returns the room's members minus the excluded sender, so a
// relayed message is never echoed back to its origin. A missing room or a
// non-member sender simply yields fewer (or zero) targets.
func (t *roomTable) broadcastTarget(roomID, exclude uuid.UUID) []uuid.UUID {
	r, ok := t.rooms[roomID]
	if !ok {
		return nil
	}

	targets := make([]uuid.UUID, 0, len(r.members))
	for id := range r.members {
		if id == exclude {
			continue
		}
		targets = append(targets, id)
	}
	return targets
}

func (t *roomTable) contains(roomID uuid.UUID) bool {
	_, ok := t.rooms[roomID]
	return ok
}

// isMember reports whether the session currently belongs to the room.
func (t *roomTable) isMember(roomID, sessionID uuid.UUID) bool {
	r, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	_, member := r.members[sessionID]
	return member
}
