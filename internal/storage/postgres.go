package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/ride-hail/internal/models"
)

// PostgresStore implements UserStore, RideStore and BidStore on a single
// *sql.DB. All status guards are expressed in the WHERE clause so the
// row count decides races, not application logic.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const rideColumns = `id, passenger_id, COALESCE(driver_id, ''), pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	category, status, estimated_fare, currency, COALESCE(payment_ref, ''), created_at, updated_at, started_at, completed_at`

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, email, phone, role, status, COALESCE(driver_status, ''), COALESCE(last_seen, to_timestamp(0)) FROM users WHERE id = $1`, id)
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.Role, &u.Status, &u.DriverStatus, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) SetDriverStatus(ctx context.Context, driverID, status string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET driver_status = $1, last_seen = now() WHERE id = $2 AND role = 'driver'`, status, driverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoMatch
	}
	return nil
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rides (id, passenger_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, category, status, estimated_fare, currency, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.PassengerID, r.Pickup.Lat, r.Pickup.Lng, r.Dropoff.Lat, r.Dropoff.Lng,
		r.Category, r.Status, r.EstimatedFare, r.Currency, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	return scanRide(p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
}

func (p *PostgresStore) AcceptRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	return scanRide(p.db.QueryRowContext(ctx,
		`UPDATE rides SET driver_id = $1, status = 'accepted', updated_at = now()
		 WHERE id = $2 AND status = 'pending'
		 RETURNING `+rideColumns, driverID, rideID))
}

func (p *PostgresStore) StartRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	return scanRide(p.db.QueryRowContext(ctx,
		`UPDATE rides SET status = 'started', started_at = now(), updated_at = now()
		 WHERE id = $1 AND driver_id = $2 AND status = 'accepted'
		 RETURNING `+rideColumns, rideID, driverID))
}

func (p *PostgresStore) CompleteRide(ctx context.Context, rideID, driverID string) (*models.Ride, error) {
	return scanRide(p.db.QueryRowContext(ctx,
		`UPDATE rides SET status = 'completed', completed_at = now(), updated_at = now()
		 WHERE id = $1 AND driver_id = $2 AND status = 'started'
		 RETURNING `+rideColumns, rideID, driverID))
}

func (p *PostgresStore) CancelRide(ctx context.Context, rideID, passengerID string) (*models.Ride, error) {
	return scanRide(p.db.QueryRowContext(ctx,
		`UPDATE rides SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND passenger_id = $2 AND status IN ('pending', 'accepted')
		 RETURNING `+rideColumns, rideID, passengerID))
}

func (p *PostgresStore) SetPaymentRef(ctx context.Context, rideID, ref string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE rides SET payment_ref = $1, updated_at = now() WHERE id = $2`, ref, rideID)
	return err
}

func (p *PostgresStore) CreateBid(ctx context.Context, b *models.Bid) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO bids (id, ride_id, driver_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.RideID, b.DriverID, b.Amount, b.Status, b.CreatedAt)
	return err
}

// AcceptBid runs the accept-one/reject-siblings/assign-driver sequence in a
// single transaction so a crash can never strand sibling bids in pending.
func (p *PostgresStore) AcceptBid(ctx context.Context, bidID, rideID, passengerID string) (*models.Bid, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`UPDATE bids SET status = 'accepted'
		 WHERE id = $1 AND ride_id = $2 AND status = 'pending'
		   AND EXISTS (SELECT 1 FROM rides WHERE id = $2 AND passenger_id = $3)
		 RETURNING id, ride_id, driver_id, amount, status, created_at`,
		bidID, rideID, passengerID)
	var b models.Bid
	err = row.Scan(&b.ID, &b.RideID, &b.DriverID, &b.Amount, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bids SET status = 'rejected' WHERE ride_id = $1 AND id <> $2 AND status = 'pending'`,
		rideID, bidID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rides SET driver_id = $1, status = 'accepted', updated_at = now() WHERE id = $2`,
		b.DriverID, rideID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("accept bid commit: %w", err)
	}
	return &b, nil
}

func scanRide(row *sql.Row) (*models.Ride, error) {
	var r models.Ride
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.PassengerID, &r.DriverID,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng,
		&r.Category, &r.Status, &r.EstimatedFare, &r.Currency, &r.PaymentRef,
		&r.CreatedAt, &r.UpdatedAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		r.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

var _ interface {
	UserStore
	RideStore
	BidStore
} = (*PostgresStore)(nil)
