package realtime

import (
	"testing"

	"github.com/example/ride-hail/internal/models"
)

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRooms()
	s := newFakeSession("c1", "u1", models.RolePassenger)

	r.Join(s, "watchers")
	r.Join(s, "watchers")
	if got := r.Members("watchers"); got != 1 {
		t.Fatalf("members = %d, want 1", got)
	}

	// double join must not cause double delivery
	r.Broadcast("watchers", "hello", nil, "")
	if got := s.count("hello"); got != 1 {
		t.Fatalf("delivered %d times, want 1", got)
	}
}

func TestLeaveNotJoinedIsNoop(t *testing.T) {
	r := NewRooms()
	s := newFakeSession("c1", "u1", models.RolePassenger)
	r.Leave(s, "never-joined") // must not panic or error
	if got := r.Members("never-joined"); got != 0 {
		t.Fatalf("members = %d, want 0", got)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRooms()
	a := newFakeSession("ca", "ua", models.RoleDriver)
	b := newFakeSession("cb", "ub", models.RoleDriver)
	r.Join(a, "room")
	r.Join(b, "room")

	n := r.Broadcast("room", "ev", "x", "ca")
	if n != 1 {
		t.Fatalf("delivered to %d members, want 1", n)
	}
	if a.count("ev") != 0 || b.count("ev") != 1 {
		t.Fatalf("wrong recipients: a=%d b=%d", a.count("ev"), b.count("ev"))
	}
}

func TestBroadcastEmptyRoom(t *testing.T) {
	r := NewRooms()
	if n := r.Broadcast("ghost-town", "ev", nil, ""); n != 0 {
		t.Fatalf("delivered to %d members of an empty room", n)
	}
}

func TestEvictRemovesAllMemberships(t *testing.T) {
	r := NewRooms()
	s := newFakeSession("c1", "u1", models.RoleDriver)
	r.Join(s, "a")
	r.Join(s, "b")
	r.Evict(s)

	if r.Members("a") != 0 || r.Members("b") != 0 {
		t.Fatalf("memberships survived eviction: a=%d b=%d", r.Members("a"), r.Members("b"))
	}
	if n := r.Broadcast("a", "ev", nil, ""); n != 0 {
		t.Fatalf("evicted session still reachable: %d", n)
	}
}
