package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-hail/internal/models"
)

// MemoryStore is an in-process implementation of the store interfaces.
// It applies the same status guards as the Postgres store so tests and
// local runs observe identical race semantics.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	rides map[string]*models.Ride
	bids  map[string]*models.Bid
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*models.User),
		rides: make(map[string]*models.Ride),
		bids:  make(map[string]*models.Bid),
	}
}

// AddUser seeds a user row. Intended for tests and local bootstrap.
func (m *MemoryStore) AddUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNoMatch
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) SetDriverStatus(ctx context.Context, driverID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[driverID]
	if !ok || u.Role != models.RoleDriver {
		return ErrNoMatch
	}
	u.DriverStatus = status
	u.LastSeen = time.Now()
	return nil
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNoMatch
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.Status != models.RidePending {
		return nil, ErrNoMatch
	}
	r.DriverID = driverID
	r.Status = models.RideAccepted
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) StartRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.DriverID != driverID || r.Status != models.RideAccepted {
		return nil, ErrNoMatch
	}
	now := time.Now()
	r.Status = models.RideStarted
	r.StartedAt = &now
	r.UpdatedAt = now
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) CompleteRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.DriverID != driverID || r.Status != models.RideStarted {
		return nil, ErrNoMatch
	}
	now := time.Now()
	r.Status = models.RideCompleted
	r.CompletedAt = &now
	r.UpdatedAt = now
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) CancelRide(ctx context.Context, rideID, passengerID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok || r.PassengerID != passengerID {
		return nil, ErrNoMatch
	}
	if r.Status != models.RidePending && r.Status != models.RideAccepted {
		return nil, ErrNoMatch
	}
	r.Status = models.RideCancelled
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) SetPaymentRef(ctx context.Context, rideID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNoMatch
	}
	r.PaymentRef = ref
	return nil
}

func (m *MemoryStore) CreateBid(ctx context.Context, b *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *MemoryStore) AcceptBid(ctx context.Context, bidID, rideID, passengerID string) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[bidID]
	if !ok || b.RideID != rideID || b.Status != models.BidPending {
		return nil, ErrNoMatch
	}
	r, ok := m.rides[rideID]
	if !ok || r.PassengerID != passengerID {
		return nil, ErrNoMatch
	}
	b.Status = models.BidAccepted
	for _, other := range m.bids {
		if other.RideID == rideID && other.ID != bidID && other.Status == models.BidPending {
			other.Status = models.BidRejected
		}
	}
	r.DriverID = b.DriverID
	r.Status = models.RideAccepted
	r.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

// GetBid is a test helper mirroring GetRide.
func (m *MemoryStore) GetBid(id string) (*models.Bid, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

var _ interface {
	UserStore
	RideStore
	BidStore
} = (*MemoryStore)(nil)
