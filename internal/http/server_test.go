package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"

	"github.com/example/ride-hail/internal/auth"
	"github.com/example/ride-hail/internal/geo"
	"github.com/example/ride-hail/internal/logging"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/pricing"
	"github.com/example/ride-hail/internal/realtime"
	"github.com/example/ride-hail/internal/storage"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	store.AddUser(&models.User{ID: "d1", Role: models.RoleDriver, Status: models.UserActive})

	hub := realtime.NewHub(realtime.Config{
		Log:   logging.Discard(),
		Users: store,
		Rides: store,
		Bids:  store,
		Fares: pricing.NewEstimator(10, 15, "mad", 3.50, 5.00, 4.00),
	})
	verifier := auth.NewVerifier(testSecret, store, nil, time.Second)

	g := geo.NewIndex()
	g.Upsert(models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 33.57, Lng: -7.59}, Observed: time.Now()})

	return NewServer(logging.Discard(), hub, verifier, g), store
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNearbyDrivers(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/drivers/nearby?lat=33.57&lng=-7.59", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Drivers []models.DriverLocation `json:"drivers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Drivers) != 1 || body.Drivers[0].DriverID != "d1" {
		t.Fatalf("drivers = %+v", body.Drivers)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/drivers/nearby?lat=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad coords status = %d", rec.Code)
	}
}

func TestWSRejectsBadCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	for _, target := range []string{
		"/ws",
		"/ws?token=garbage",
	} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", target, rec.Code)
		}
	}
}

func TestWSPingPong(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signToken(t, "d1")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"event": "ping"}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply struct {
		Event string `json:"event"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Event != "pong" {
		t.Fatalf("event = %q, want pong", reply.Event)
	}
}
