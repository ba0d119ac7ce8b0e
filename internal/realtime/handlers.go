package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/storage"
)

func (h *Hub) handlePing(ctx context.Context, s session, data json.RawMessage) error {
	s.deliver(EventPong, nil)
	return nil
}

type roomPayload struct {
	Room string `json:"room"`
}

func (h *Hub) handleJoinRoom(ctx context.Context, s session, data json.RawMessage) error {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		return invalidPayload("room name required")
	}
	h.rooms.Join(s, p.Room)
	s.deliver(EventJoinedRoom, p.Room)
	return nil
}

func (h *Hub) handleLeaveRoom(ctx context.Context, s session, data json.RawMessage) error {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		return invalidPayload("room name required")
	}
	h.rooms.Leave(s, p.Room)
	s.deliver(EventLeftRoom, p.Room)
	return nil
}

type locationPayload struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// handleLocationUpdate is the highest-frequency event, so it is the
// cheapest: no store round-trip, an in-memory overwrite and a fan-out to
// admins. The Kafka publish happens on a separate goroutine.
func (h *Hub) handleLocationUpdate(ctx context.Context, s session, data json.RawMessage) error {
	var p locationPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Lat == nil || p.Lng == nil {
		return invalidPayload("invalid location data")
	}
	loc := models.DriverLocation{
		DriverID: s.UserID(),
		Loc:      models.Coord{Lat: *p.Lat, Lng: *p.Lng},
		Observed: time.Now(),
	}
	h.presence.SetLocation(loc)
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventLocationUpdated, map[string]any{
		"driverId":  loc.DriverID,
		"location":  loc.Loc,
		"timestamp": loc.Observed.UnixMilli(),
	}, s.ID())

	if h.publisher != nil {
		go func() {
			if err := h.publisher.PublishLocation(loc); err != nil {
				h.log.Warn("location publish failed", "driver_id", loc.DriverID, "error", err)
			}
		}()
	}
	return nil
}

type statusPayload struct {
	Status string `json:"status"`
}

func (h *Hub) handleStatusUpdate(ctx context.Context, s session, data json.RawMessage) error {
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return invalidPayload("invalid status data")
	}
	switch p.Status {
	case "online", "offline", "busy":
	default:
		return invalidPayload("status must be online, offline or busy")
	}
	if err := h.users.SetDriverStatus(ctx, s.UserID(), p.Status); err != nil {
		if errors.Is(err, storage.ErrNoMatch) {
			return preconditionFailed("driver profile not found")
		}
		return upstreamUnavailable("failed to update status")
	}
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventStatusUpdated, map[string]any{
		"driverId":  s.UserID(),
		"status":    p.Status,
		"timestamp": time.Now().UnixMilli(),
	}, s.ID())
	s.deliver(EventStatusUpdated, map[string]any{"status": p.Status})
	return nil
}

type ridePayload struct {
	RideID string `json:"rideId"`
}

func (h *Hub) handleAcceptRide(ctx context.Context, s session, data json.RawMessage) error {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		return invalidPayload("rideId required")
	}
	ride, err := h.rides.AcceptRide(ctx, p.RideID, s.UserID())
	if errors.Is(err, storage.ErrNoMatch) {
		return preconditionFailed("ride no longer available")
	}
	if err != nil {
		return upstreamUnavailable("failed to accept ride")
	}

	h.holdPayment(ctx, ride)

	h.rooms.Broadcast(UserRoom(ride.PassengerID), EventRideAccepted, map[string]any{
		"rideId":   ride.ID,
		"driverId": ride.DriverID,
		"ride":     ride,
	}, s.ID())
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventRideAccepted, map[string]any{
		"rideId":      ride.ID,
		"driverId":    ride.DriverID,
		"passengerId": ride.PassengerID,
	}, s.ID())
	s.deliver(EventRideAccepted, map[string]any{"rideId": ride.ID, "ride": ride})

	h.notifyAsync(ride.PassengerID, "Your ride has been accepted, the driver is on the way.")
	h.log.Info("ride accepted", "ride_id", ride.ID, "driver_id", ride.DriverID)
	return nil
}

func (h *Hub) handleStartRide(ctx context.Context, s session, data json.RawMessage) error {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		return invalidPayload("rideId required")
	}
	ride, err := h.rides.StartRide(ctx, p.RideID, s.UserID())
	if errors.Is(err, storage.ErrNoMatch) {
		return preconditionFailed("ride not found or not ready to start")
	}
	if err != nil {
		return upstreamUnavailable("failed to start ride")
	}

	h.rooms.Broadcast(UserRoom(ride.PassengerID), EventRideStarted, map[string]any{
		"rideId":    ride.ID,
		"driverId":  ride.DriverID,
		"startedAt": ride.StartedAt,
	}, s.ID())
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventRideStarted, map[string]any{
		"rideId":      ride.ID,
		"driverId":    ride.DriverID,
		"passengerId": ride.PassengerID,
	}, s.ID())
	s.deliver(EventRideStarted, map[string]any{"rideId": ride.ID})

	h.log.Info("ride started", "ride_id", ride.ID, "driver_id", ride.DriverID)
	return nil
}

func (h *Hub) handleCompleteRide(ctx context.Context, s session, data json.RawMessage) error {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		return invalidPayload("rideId required")
	}
	ride, err := h.rides.CompleteRide(ctx, p.RideID, s.UserID())
	if errors.Is(err, storage.ErrNoMatch) {
		return preconditionFailed("ride not found or not in progress")
	}
	if err != nil {
		return upstreamUnavailable("failed to complete ride")
	}

	if h.charger != nil && ride.PaymentRef != "" {
		if err := h.charger.Capture(ctx, ride.PaymentRef); err != nil {
			h.log.Warn("payment capture failed", "ride_id", ride.ID, "error", err)
		}
	}

	h.rooms.Broadcast(UserRoom(ride.PassengerID), EventRideCompleted, map[string]any{
		"rideId":      ride.ID,
		"driverId":    ride.DriverID,
		"completedAt": ride.CompletedAt,
	}, s.ID())
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventRideCompleted, map[string]any{
		"rideId":      ride.ID,
		"driverId":    ride.DriverID,
		"passengerId": ride.PassengerID,
	}, s.ID())
	s.deliver(EventRideCompleted, map[string]any{"rideId": ride.ID})

	h.notifyAsync(ride.PassengerID, "Your ride is complete. Thanks for riding with us.")
	h.log.Info("ride completed", "ride_id", ride.ID, "driver_id", ride.DriverID)
	return nil
}

type requestRidePayload struct {
	Pickup   *models.Coord `json:"pickup"`
	Dropoff  *models.Coord `json:"dropoff"`
	Category string        `json:"category"`
}

func (h *Hub) handleRequestRide(ctx context.Context, s session, data json.RawMessage) error {
	var p requestRidePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Pickup == nil || p.Dropoff == nil {
		return invalidPayload("pickup and dropoff required")
	}
	if p.Category == "" || !h.fares.ValidCategory(p.Category) {
		return invalidPayload("unknown ride category")
	}

	now := time.Now()
	ride := &models.Ride{
		ID:            uuid.NewString(),
		PassengerID:   s.UserID(),
		Pickup:        *p.Pickup,
		Dropoff:       *p.Dropoff,
		Category:      p.Category,
		Status:        models.RidePending,
		EstimatedFare: h.fares.Estimate(*p.Pickup, *p.Dropoff, p.Category),
		Currency:      h.fares.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.rides.CreateRide(ctx, ride); err != nil {
		return upstreamUnavailable("failed to create ride request")
	}

	h.rooms.Broadcast(RoleRoom(models.RoleDriver), EventRideNewRequest, ride, s.ID())
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventRideNewRequest, ride, s.ID())
	s.deliver(EventRideRequested, map[string]any{"ride": ride})

	h.log.Info("ride requested", "ride_id", ride.ID, "passenger_id", ride.PassengerID, "fare", ride.EstimatedFare)
	return nil
}

func (h *Hub) handleCancelRide(ctx context.Context, s session, data json.RawMessage) error {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		return invalidPayload("rideId required")
	}
	ride, err := h.rides.CancelRide(ctx, p.RideID, s.UserID())
	if errors.Is(err, storage.ErrNoMatch) {
		return preconditionFailed("ride cannot be cancelled")
	}
	if err != nil {
		return upstreamUnavailable("failed to cancel ride")
	}

	if h.charger != nil && ride.PaymentRef != "" {
		if err := h.charger.Cancel(ctx, ride.PaymentRef); err != nil {
			h.log.Warn("payment release failed", "ride_id", ride.ID, "error", err)
		}
	}

	if ride.DriverID != "" {
		h.rooms.Broadcast(UserRoom(ride.DriverID), EventRideCancelled, map[string]any{"rideId": ride.ID}, s.ID())
	}
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventRideCancelled, map[string]any{
		"rideId":      ride.ID,
		"passengerId": ride.PassengerID,
	}, s.ID())
	s.deliver(EventRideCancelled, map[string]any{"rideId": ride.ID})

	h.log.Info("ride cancelled", "ride_id", ride.ID, "passenger_id", ride.PassengerID)
	return nil
}

type bidPlacePayload struct {
	RideID string   `json:"rideId"`
	Amount *float64 `json:"amount"`
}

func (h *Hub) handleBidPlace(ctx context.Context, s session, data json.RawMessage) error {
	var p bidPlacePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		return invalidPayload("rideId required")
	}
	if p.Amount == nil || *p.Amount <= 0 {
		return invalidPayload("invalid bid amount")
	}

	ride, err := h.rides.GetRide(ctx, p.RideID)
	if errors.Is(err, storage.ErrNoMatch) {
		return preconditionFailed("ride not found")
	}
	if err != nil {
		return upstreamUnavailable("failed to place bid")
	}

	bid := &models.Bid{
		ID:        uuid.NewString(),
		RideID:    p.RideID,
		DriverID:  s.UserID(),
		Amount:    *p.Amount,
		Status:    models.BidPending,
		CreatedAt: time.Now(),
	}
	if err := h.bids.CreateBid(ctx, bid); err != nil {
		return upstreamUnavailable("failed to place bid")
	}

	h.rooms.Broadcast(UserRoom(ride.PassengerID), EventBidNew, map[string]any{
		"bidId":     bid.ID,
		"rideId":    bid.RideID,
		"driverId":  bid.DriverID,
		"amount":    bid.Amount,
		"createdAt": bid.CreatedAt,
	}, s.ID())
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventBidNew, map[string]any{
		"bidId":    bid.ID,
		"rideId":   bid.RideID,
		"driverId": bid.DriverID,
		"amount":   bid.Amount,
	}, s.ID())
	s.deliver(EventBidPlaced, map[string]any{"bidId": bid.ID, "bid": bid})

	h.log.Info("bid placed", "bid_id", bid.ID, "ride_id", bid.RideID, "amount", bid.Amount)
	return nil
}

type bidAcceptPayload struct {
	BidID  string `json:"bidId"`
	RideID string `json:"rideId"`
}

func (h *Hub) handleBidAccept(ctx context.Context, s session, data json.RawMessage) error {
	var p bidAcceptPayload
	if err := json.Unmarshal(data, &p); err != nil || p.BidID == "" || p.RideID == "" {
		return invalidPayload("bidId and rideId required")
	}
	bid, err := h.bids.AcceptBid(ctx, p.BidID, p.RideID, s.UserID())
	if errors.Is(err, storage.ErrNoMatch) {
		return preconditionFailed("bid no longer available")
	}
	if err != nil {
		return upstreamUnavailable("failed to accept bid")
	}

	if ride, err := h.rides.GetRide(ctx, p.RideID); err == nil {
		h.holdPayment(ctx, ride)
	}

	h.rooms.Broadcast(UserRoom(bid.DriverID), EventBidAccepted, map[string]any{
		"bidId":  bid.ID,
		"rideId": bid.RideID,
		"status": bid.Status,
	}, s.ID())
	h.rooms.Broadcast(RoleRoom(models.RoleAdmin), EventBidAccepted, map[string]any{
		"bidId":    bid.ID,
		"rideId":   bid.RideID,
		"driverId": bid.DriverID,
	}, s.ID())
	s.deliver(EventBidAccepted, map[string]any{"bidId": bid.ID, "rideId": bid.RideID})

	h.notifyAsync(bid.DriverID, "Your bid was accepted.")
	h.log.Info("bid accepted", "bid_id", bid.ID, "ride_id", bid.RideID, "driver_id", bid.DriverID)
	return nil
}

func (h *Hub) handleGetStats(ctx context.Context, s session, data json.RawMessage) error {
	s.deliver(EventAdminStats, map[string]any{
		"activeDrivers":    len(h.presence.ListByRole(models.RoleDriver)),
		"activePassengers": len(h.presence.ListByRole(models.RolePassenger)),
		"driverLocations":  h.presence.Locations(),
	})
	return nil
}

// holdPayment places a manual-capture hold for the estimated fare. Best
// effort: the ride transition has already committed, so a payment error
// is logged and the ride proceeds unfunded.
func (h *Hub) holdPayment(ctx context.Context, ride *models.Ride) {
	if h.charger == nil || ride.PaymentRef != "" {
		return
	}
	ref, err := h.charger.Hold(ctx, ride.EstimatedFare, ride.Currency, ride.PassengerID)
	if err != nil {
		h.log.Warn("payment hold failed", "ride_id", ride.ID, "error", err)
		return
	}
	ride.PaymentRef = ref
	if err := h.rides.SetPaymentRef(ctx, ride.ID, ref); err != nil {
		h.log.Warn("payment ref persist failed", "ride_id", ride.ID, "error", err)
	}
}

// notifyAsync pushes a lifecycle message without blocking the handler or
// inheriting its deadline.
func (h *Hub) notifyAsync(userID, message string) {
	if h.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.notifier.RideUpdate(ctx, userID, message)
	}()
}
