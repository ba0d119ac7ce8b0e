package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-hail/internal/auth"
	"github.com/example/ride-hail/internal/geo"
	"github.com/example/ride-hail/internal/realtime"
)

// Server exposes the websocket endpoint plus a small REST surface. All
// collaborators are injected; nothing here reads the environment.
type Server struct {
	logger   *slog.Logger
	hub      *realtime.Hub
	verifier *auth.Verifier
	geo      geo.Geo
	mux      *mux.Router
}

func NewServer(logger *slog.Logger, hub *realtime.Hub, verifier *auth.Verifier, g geo.Geo) *Server {
	s := &Server{logger: logger, hub: hub, verifier: verifier, geo: g, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ws", s.handleWS).Methods("GET")
	s.mux.HandleFunc("/api/v1/drivers/nearby", s.handleNearbyDrivers).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients carry arbitrary origins; the token check is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS verifies the caller before the protocol upgrade, so a bad
// token costs a plain 401 instead of an open socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.logger.Error("token verification failed", "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		s.logger.Warn("websocket upgrade failed", "error", err, "user_id", identity.UserID)
		return
	}
	s.hub.HandleConn(r.Context(), conn, identity)
}

// bearerToken pulls the credential from the Authorization header, or
// from the token query parameter for clients that cannot set headers on
// a websocket dial.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
		return h
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		http.Error(w, "lat and lng are required", http.StatusBadRequest)
		return
	}
	limit := 8
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 50 {
		limit = v
	}

	drivers := s.geo.Nearby(lat, lng, limit)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"drivers": drivers})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
