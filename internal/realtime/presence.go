package realtime

import (
	"sync"

	"github.com/example/ride-hail/internal/models"
)

// session is the view of a connection the coordination layer needs.
// *Conn implements it; tests substitute in-process fakes.
type session interface {
	ID() string
	UserID() string
	Role() models.Role
	deliver(event string, data any)
	close()
}

// Presence maps each user to their single live connection, plus the last
// reported location for connected drivers. Process-local only: it starts
// empty on every boot and clients re-register by reconnecting.
type Presence struct {
	mu        sync.RWMutex
	users     map[string]session
	locations map[string]models.DriverLocation
}

func NewPresence() *Presence {
	return &Presence{
		users:     make(map[string]session),
		locations: make(map[string]models.DriverLocation),
	}
}

// Register stores s as the live connection for its user. Last connect
// wins: the replaced stale session, if any, is returned so the caller can
// release its room memberships before anything is broadcast to the user.
func (p *Presence) Register(s session) session {
	p.mu.Lock()
	defer p.mu.Unlock()
	stale := p.users[s.UserID()]
	p.users[s.UserID()] = s
	return stale
}

// Unregister removes the presence entry only while it still points at
// connID, so a stale connection tearing down cannot evict its
// replacement. The driver location entry goes with it.
func (p *Presence) Unregister(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.users[userID]
	if !ok || cur.ID() != connID {
		return false
	}
	delete(p.users, userID)
	delete(p.locations, userID)
	return true
}

func (p *Presence) Get(userID string) (session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.users[userID]
	return s, ok
}

// ListByRole returns a snapshot of user ids currently connected with the
// given role. Used for aggregate statistics only, never authorization.
func (p *Presence) ListByRole(role models.Role) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for id, s := range p.users {
		if s.Role() == role {
			out = append(out, id)
		}
	}
	return out
}

func (p *Presence) SetLocation(loc models.DriverLocation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locations[loc.DriverID] = loc
}

// Locations returns a snapshot of all live driver locations.
func (p *Presence) Locations() []models.DriverLocation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.DriverLocation, 0, len(p.locations))
	for _, loc := range p.locations {
		out = append(out, loc)
	}
	return out
}
