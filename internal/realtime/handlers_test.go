package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-hail/internal/models"
)

func seedPendingRide(env *testEnv, id, passengerID string) {
	_ = env.store.CreateRide(context.Background(), &models.Ride{
		ID:          id,
		PassengerID: passengerID,
		Status:      models.RidePending,
		Category:    "classic",
		Currency:    "mad",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})
}

func TestRequestRideFansOutToDriversAndAdmins(t *testing.T) {
	env := newTestEnv(t)
	passenger := env.connect("cp", "p1", models.RolePassenger)
	driver := env.connect("cd", "d1", models.RoleDriver)
	admin := env.connect("ca", "a1", models.RoleAdmin)

	env.send(t, passenger, EventRequestRide, map[string]any{
		"pickup":   map[string]float64{"lat": 33.5731, "lng": -7.5898},
		"dropoff":  map[string]float64{"lat": 33.5950, "lng": -7.6187},
		"category": "classic",
	})

	if driver.count(EventRideNewRequest) != 1 {
		t.Fatalf("driver new_request frames = %d, want 1", driver.count(EventRideNewRequest))
	}
	if admin.count(EventRideNewRequest) != 1 {
		t.Fatalf("admin new_request frames = %d, want 1", admin.count(EventRideNewRequest))
	}
	if passenger.count(EventRideRequested) != 1 {
		t.Fatal("missing ride:requested ack")
	}

	data, _ := driver.last(EventRideNewRequest)
	ride := data.(*models.Ride)
	if ride.Status != models.RidePending || ride.PassengerID != "p1" {
		t.Fatalf("broadcast ride wrong: %+v", ride)
	}
	if ride.EstimatedFare <= 0 {
		t.Fatalf("fare not estimated: %f", ride.EstimatedFare)
	}

	stored, err := env.store.GetRide(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("ride not persisted: %v", err)
	}
	if stored.Status != models.RidePending {
		t.Fatalf("stored status = %s", stored.Status)
	}
}

func TestRequestRideUnknownCategory(t *testing.T) {
	env := newTestEnv(t)
	passenger := env.connect("cp", "p1", models.RolePassenger)
	driver := env.connect("cd", "d1", models.RoleDriver)

	env.send(t, passenger, EventRequestRide, map[string]any{
		"pickup":   map[string]float64{"lat": 1, "lng": 1},
		"dropoff":  map[string]float64{"lat": 2, "lng": 2},
		"category": "zeppelin",
	})
	if passenger.count(EventError) != 1 {
		t.Fatal("expected error for unknown category")
	}
	if driver.count(EventRideNewRequest) != 0 {
		t.Fatal("invalid request was broadcast")
	}
}

func TestAcceptRideNotifiesPassenger(t *testing.T) {
	env := newTestEnv(t)
	seedPendingRide(env, "r1", "p1")
	passenger := env.connect("cp", "p1", models.RolePassenger)
	driver := env.connect("cd", "d1", models.RoleDriver)
	admin := env.connect("ca", "a1", models.RoleAdmin)

	env.send(t, driver, EventAcceptRide, map[string]any{"rideId": "r1"})

	if passenger.count(EventRideAccepted) != 1 {
		t.Fatalf("passenger frames = %d, want 1", passenger.count(EventRideAccepted))
	}
	if admin.count(EventRideAccepted) != 1 {
		t.Fatalf("admin frames = %d, want 1", admin.count(EventRideAccepted))
	}
	if driver.count(EventRideAccepted) != 1 {
		t.Fatal("missing sender ack")
	}

	ride, _ := env.store.GetRide(context.Background(), "r1")
	if ride.Status != models.RideAccepted || ride.DriverID != "d1" {
		t.Fatalf("store state wrong: %+v", ride)
	}
}

func TestSecondAcceptFails(t *testing.T) {
	env := newTestEnv(t)
	seedPendingRide(env, "r1", "p1")
	first := env.connect("c1", "d1", models.RoleDriver)
	second := env.connect("c2", "d2", models.RoleDriver)

	env.send(t, first, EventAcceptRide, map[string]any{"rideId": "r1"})
	env.send(t, second, EventAcceptRide, map[string]any{"rideId": "r1"})

	if first.count(EventRideAccepted) != 1 || first.count(EventError) != 0 {
		t.Fatalf("winner: accepted=%d errors=%d", first.count(EventRideAccepted), first.count(EventError))
	}
	if second.count(EventError) != 1 || second.count(EventRideAccepted) != 0 {
		t.Fatalf("loser: accepted=%d errors=%d", second.count(EventRideAccepted), second.count(EventError))
	}
	ride, _ := env.store.GetRide(context.Background(), "r1")
	if ride.DriverID != "d1" {
		t.Fatalf("loser overwrote winner: %+v", ride)
	}
}

func TestConcurrentAcceptsExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	seedPendingRide(env, "r1", "p1")

	const n = 6
	sessions := make([]*fakeSession, n)
	for i := range sessions {
		sessions[i] = env.connect("c"+string(rune('0'+i)), "d"+string(rune('0'+i)), models.RoleDriver)
	}

	payload, err := json.Marshal(map[string]any{"rideId": "r1"})
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *fakeSession) {
			defer wg.Done()
			env.hub.Dispatch(context.Background(), s, Envelope{Event: EventAcceptRide, Data: payload})
		}(s)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, s := range sessions {
		winners += s.count(EventRideAccepted)
		losers += s.count(EventError)
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if losers != n-1 {
		t.Fatalf("losers = %d, want %d", losers, n-1)
	}
}

func TestFullRideLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seedPendingRide(env, "r1", "p1")
	passenger := env.connect("cp", "p1", models.RolePassenger)
	driver := env.connect("cd", "d1", models.RoleDriver)

	env.send(t, driver, EventAcceptRide, map[string]any{"rideId": "r1"})
	env.send(t, driver, EventStartRide, map[string]any{"rideId": "r1"})
	env.send(t, driver, EventCompleteRide, map[string]any{"rideId": "r1"})

	for _, ev := range []string{EventRideAccepted, EventRideStarted, EventRideCompleted} {
		if passenger.count(ev) != 1 {
			t.Errorf("passenger %s frames = %d, want 1", ev, passenger.count(ev))
		}
	}
	ride, _ := env.store.GetRide(context.Background(), "r1")
	if ride.Status != models.RideCompleted {
		t.Fatalf("final status = %s", ride.Status)
	}

	// completed rides cannot be cancelled
	env.send(t, passenger, EventCancelRide, map[string]any{"rideId": "r1"})
	if passenger.count(EventError) != 1 {
		t.Fatal("cancel of completed ride did not error")
	}
}

func TestCancelNotifiesAssignedDriver(t *testing.T) {
	env := newTestEnv(t)
	seedPendingRide(env, "r1", "p1")
	passenger := env.connect("cp", "p1", models.RolePassenger)
	driver := env.connect("cd", "d1", models.RoleDriver)

	env.send(t, driver, EventAcceptRide, map[string]any{"rideId": "r1"})
	env.send(t, passenger, EventCancelRide, map[string]any{"rideId": "r1"})

	if driver.count(EventRideCancelled) != 1 {
		t.Fatalf("driver cancelled frames = %d, want 1", driver.count(EventRideCancelled))
	}
	ride, _ := env.store.GetRide(context.Background(), "r1")
	if ride.Status != models.RideCancelled {
		t.Fatalf("status = %s", ride.Status)
	}
}

func TestBidFlow(t *testing.T) {
	env := newTestEnv(t)
	seedPendingRide(env, "r1", "p1")
	passenger := env.connect("cp", "p1", models.RolePassenger)
	d1 := env.connect("c1", "d1", models.RoleDriver)
	d2 := env.connect("c2", "d2", models.RoleDriver)

	env.send(t, d1, EventBidPlace, map[string]any{"rideId": "r1", "amount": 25.0})
	env.send(t, d2, EventBidPlace, map[string]any{"rideId": "r1", "amount": 22.0})

	if passenger.count(EventBidNew) != 2 {
		t.Fatalf("passenger bid:new frames = %d, want 2", passenger.count(EventBidNew))
	}
	if d1.count(EventBidPlaced) != 1 || d2.count(EventBidPlaced) != 1 {
		t.Fatal("missing bid:placed acks")
	}

	// accept d2's bid
	data, _ := d2.last(EventBidPlaced)
	bid := data.(map[string]any)["bid"].(*models.Bid)

	env.send(t, passenger, EventBidAccept, map[string]any{"bidId": bid.ID, "rideId": "r1"})

	if d2.count(EventBidAccepted) != 1 {
		t.Fatal("winning driver not notified")
	}
	if d1.count(EventBidAccepted) != 0 {
		t.Fatal("losing driver notified of acceptance")
	}

	got, _ := env.store.GetBid(bid.ID)
	if got.Status != models.BidAccepted {
		t.Fatalf("winning bid status = %s", got.Status)
	}
	ride, _ := env.store.GetRide(context.Background(), "r1")
	if ride.Status != models.RideAccepted || ride.DriverID != "d2" {
		t.Fatalf("ride not assigned: %+v", ride)
	}

	// double accept must fail with no state change
	env.send(t, passenger, EventBidAccept, map[string]any{"bidId": bid.ID, "rideId": "r1"})
	if passenger.count(EventError) != 1 {
		t.Fatal("double accept did not error")
	}
}

func TestBidPlaceValidation(t *testing.T) {
	env := newTestEnv(t)
	seedPendingRide(env, "r1", "p1")
	d := env.connect("c1", "d1", models.RoleDriver)

	env.send(t, d, EventBidPlace, map[string]any{"rideId": "r1", "amount": -5.0})
	env.send(t, d, EventBidPlace, map[string]any{"rideId": "r1"})
	env.send(t, d, EventBidPlace, map[string]any{"rideId": "ghost", "amount": 10.0})

	if got := d.count(EventError); got != 3 {
		t.Fatalf("errors = %d, want 3", got)
	}
	if d.count(EventBidPlaced) != 0 {
		t.Fatal("invalid bid was accepted")
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func (r *recordingNotifier) RideUpdate(ctx context.Context, userID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.msgs == nil {
		r.msgs = make(map[string][]string)
	}
	r.msgs[userID] = append(r.msgs[userID], message)
}

func TestAcceptRideTriggersNotification(t *testing.T) {
	env := newTestEnv(t)
	n := &recordingNotifier{}
	env.hub.notifier = n
	seedPendingRide(env, "r1", "p1")
	driver := env.connect("cd", "d1", models.RoleDriver)

	env.send(t, driver, EventAcceptRide, map[string]any{"rideId": "r1"})

	// the notification is asynchronous
	deadline := time.Now().Add(time.Second)
	for {
		n.mu.Lock()
		got := len(n.msgs["p1"])
		n.mu.Unlock()
		if got == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("passenger never notified")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
