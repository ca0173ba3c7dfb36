package chat

import (
	"fmt"
	"sync"
)

// OperatorRoom is the shared room every operator connection joins.
const OperatorRoom = "operator"

// visitorRoomPrefix keys per-visitor rooms; the stable key is the user id for
// authenticated visitors and the connection id otherwise, so an anonymous
// visitor's room dies with the tab while an authenticated one converges
// across tabs and reconnects.
const visitorRoomPrefix = "visitor-"

// RoomFor computes the canonical room for a presence entry. Pure function of
// identity and connection id; no I/O.
func RoomFor(e *Entry) string {
	if e.Role == RoleOperator {
		return OperatorRoom
	}
	if e.Identity != nil {
		return VisitorRoomForUser(e.Identity.UserID)
	}
	return visitorRoomPrefix + e.ConnID
}

// VisitorRoomForUser returns the room of an authenticated visitor.
func VisitorRoomForUser(userID int64) string {
	return fmt.Sprintf("%s%d", visitorRoomPrefix, userID)
}

// Rooms tracks which connections are members of which delivery group.
// Rooms are created lazily on first join and retained for the process
// lifetime; member sets shrink on disconnect but room entries are never
// collected (bounded by distinct visitors seen).
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{members: make(map[string]map[string]struct{})}
}

// Join subscribes a connection to a room. Idempotent.
func (r *Rooms) Join(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.members[roomID] = set
	}
	set[connID] = struct{}{}
}

// Contains reports whether a connection is a member of a room.
func (r *Rooms) Contains(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[roomID][connID]
	return ok
}

// Members returns a snapshot of a room's member connection ids.
func (r *Rooms) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.members[roomID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// LeaveAll removes a connection from every member set. Room entries stay.
func (r *Rooms) LeaveAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range r.members {
		delete(set, connID)
	}
}

// Count returns the number of rooms seen since startup.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
