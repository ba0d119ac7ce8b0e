package storage

import (
	"context"
	"errors"

	"github.com/example/ride-hail/internal/models"
)

// ErrNoMatch is returned by guarded mutations when no row satisfied the
// guard. It covers both "not found" and "already transitioned"; the store
// deliberately does not distinguish the two, the affected-row count is the
// concurrency arbiter.
var ErrNoMatch = errors.New("storage: no matching row")

// UserStore reads user rows for credential verification and persists
// driver availability updates.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetDriverStatus(ctx context.Context, driverID, status string) error
}

// RideStore defines persistence operations for rides. Every transition is
// a conditional update: it only applies when the ride is currently in the
// expected predecessor status (and, where relevant, owned by the caller).
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)

	// AcceptRide assigns driverID and moves pending -> accepted.
	AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error)
	// StartRide moves accepted -> started for the assigned driver.
	StartRide(ctx context.Context, rideID, driverID string) (*models.Ride, error)
	// CompleteRide moves started -> completed for the assigned driver.
	CompleteRide(ctx context.Context, rideID, driverID string) (*models.Ride, error)
	// CancelRide moves pending|accepted -> cancelled for the owning passenger.
	CancelRide(ctx context.Context, rideID, passengerID string) (*models.Ride, error)

	SetPaymentRef(ctx context.Context, rideID, ref string) error
}

// BidStore defines persistence for auction bids.
type BidStore interface {
	CreateBid(ctx context.Context, b *models.Bid) error

	// AcceptBid moves the bid pending -> accepted, rejects every sibling
	// bid on the same ride, and assigns the bid's driver to the ride, all
	// in one transaction. The ride must belong to passengerID.
	AcceptBid(ctx context.Context, bidID, rideID, passengerID string) (*models.Bid, error)
}
