package realtime

import (
	"sync"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
)

// UserRoom is the single-member room every connection joins for direct
// delivery to that user.
func UserRoom(userID string) string { return "user:" + userID }

// RoleRoom fans out to every connected user of one role.
func RoleRoom(role models.Role) string { return "role:" + string(role) }

// Rooms is the broadcast topology. Two maps are kept so that both
// per-room fan-out and whole-connection eviction stay O(membership).
type Rooms struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]session
	byConn map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		byRoom: make(map[string]map[string]session),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join is idempotent: joining an already joined room changes nothing.
func (r *Rooms) Join(s session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.byRoom[room]
	if !ok {
		members = make(map[string]session)
		r.byRoom[room] = members
	}
	members[s.ID()] = s

	joined, ok := r.byConn[s.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[s.ID()] = joined
	}
	joined[room] = struct{}{}
}

// Leave is idempotent: leaving a room never joined is a no-op.
func (r *Rooms) Leave(s session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(s.ID(), room)
}

// Evict removes the connection from every room it joined. Called on
// disconnect and when a newer connection replaces a stale one.
func (r *Rooms) Evict(s session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.byConn[s.ID()] {
		r.leaveLocked(s.ID(), room)
	}
	delete(r.byConn, s.ID())
}

func (r *Rooms) leaveLocked(connID, room string) {
	if members, ok := r.byRoom[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.byRoom, room)
		}
	}
	if joined, ok := r.byConn[connID]; ok {
		delete(joined, room)
	}
}

// Broadcast delivers the event to every member of the room except the
// connection named by exceptConnID (empty means nobody is excluded).
// Best-effort: a member with a full send buffer misses the frame. Returns
// the number of members the frame was handed to.
func (r *Rooms) Broadcast(room, event string, data any, exceptConnID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for id, member := range r.byRoom[room] {
		if id == exceptConnID {
			continue
		}
		member.deliver(event, data)
		n++
	}
	if n > 0 {
		observability.BroadcastsTotal.Inc()
	}
	return n
}

// Members returns the current member count, for tests and stats.
func (r *Rooms) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom[room])
}
