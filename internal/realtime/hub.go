package realtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-hail/internal/auth"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
	"github.com/example/ride-hail/internal/payments"
	"github.com/example/ride-hail/internal/pricing"
	"github.com/example/ride-hail/internal/storage"
)

// LocationPublisher ships location updates off the event hot path.
type LocationPublisher interface {
	PublishLocation(loc models.DriverLocation) error
}

// Notifier pushes ride lifecycle messages to users out of band.
type Notifier interface {
	RideUpdate(ctx context.Context, userID, message string)
}

// Config wires the hub's collaborators. Publisher, Charger and Notifier
// are optional; nil disables the corresponding side effect.
type Config struct {
	Log   *slog.Logger
	Users storage.UserStore
	Rides storage.RideStore
	Bids  storage.BidStore
	Fares *pricing.Estimator

	Publisher LocationPublisher
	Charger   payments.Charger
	Notifier  Notifier

	HandlerTimeout time.Duration
	SendBuffer     int
	ReadLimit      int64
}

// Hub owns the presence registry, the room topology and the event
// routing table. One hub per process; constructed at server start and
// handed to the connection-accept path.
type Hub struct {
	log      *slog.Logger
	presence *Presence
	rooms    *Rooms

	users storage.UserStore
	rides storage.RideStore
	bids  storage.BidStore
	fares *pricing.Estimator

	publisher LocationPublisher
	charger   payments.Charger
	notifier  Notifier

	timeout    time.Duration
	sendBuffer int
	readLimit  int64

	routes map[string]route
}

func NewHub(cfg Config) *Hub {
	h := &Hub{
		log:        cfg.Log,
		presence:   NewPresence(),
		rooms:      NewRooms(),
		users:      cfg.Users,
		rides:      cfg.Rides,
		bids:       cfg.Bids,
		fares:      cfg.Fares,
		publisher:  cfg.Publisher,
		charger:    cfg.Charger,
		notifier:   cfg.Notifier,
		timeout:    cfg.HandlerTimeout,
		sendBuffer: cfg.SendBuffer,
		readLimit:  cfg.ReadLimit,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.timeout <= 0 {
		h.timeout = 5 * time.Second
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = 32
	}
	if h.readLimit <= 0 {
		h.readLimit = 1 << 16
	}

	// One static table consulted uniformly for every event, regardless of
	// the connection's role. An empty role set means any authenticated
	// connection may send the event.
	h.routes = map[string]route{
		EventPing:           {handle: h.handlePing},
		EventJoinRoom:       {handle: h.handleJoinRoom},
		EventLeaveRoom:      {handle: h.handleLeaveRoom},
		EventLocationUpdate: {roles: []models.Role{models.RoleDriver}, handle: h.handleLocationUpdate},
		EventStatusUpdate:   {roles: []models.Role{models.RoleDriver}, handle: h.handleStatusUpdate},
		EventAcceptRide:     {roles: []models.Role{models.RoleDriver}, handle: h.handleAcceptRide},
		EventStartRide:      {roles: []models.Role{models.RoleDriver}, handle: h.handleStartRide},
		EventCompleteRide:   {roles: []models.Role{models.RoleDriver}, handle: h.handleCompleteRide},
		EventRequestRide:    {roles: []models.Role{models.RolePassenger}, handle: h.handleRequestRide},
		EventCancelRide:     {roles: []models.Role{models.RolePassenger}, handle: h.handleCancelRide},
		EventBidPlace:       {roles: []models.Role{models.RoleDriver, models.RolePassenger}, handle: h.handleBidPlace},
		EventBidAccept:      {roles: []models.Role{models.RolePassenger}, handle: h.handleBidAccept},
		EventGetStats:       {roles: []models.Role{models.RoleAdmin}, handle: h.handleGetStats},
	}
	return h
}

// HandleConn runs one verified connection to completion. Blocks until
// the peer disconnects or the context ends.
func (h *Hub) HandleConn(ctx context.Context, sock *websocket.Conn, id auth.Identity) {
	c := newConn(h, sock, id.UserID, id.Role)
	h.attach(c)
	go c.writePump()
	c.readPump(ctx)
}

// attach registers the connection and derives its automatic room
// memberships. A stale connection for the same user is evicted from all
// rooms first, so later broadcasts to user:<id> reach only the newcomer.
func (h *Hub) attach(c session) {
	if stale := h.presence.Register(c); stale != nil {
		h.rooms.Evict(stale)
		stale.close()
		h.log.Info("presence replaced", "user_id", c.UserID(), "stale_conn", stale.ID())
	}
	h.rooms.Join(c, UserRoom(c.UserID()))
	h.rooms.Join(c, RoleRoom(c.Role()))
	observability.ActiveConnections.WithLabelValues(string(c.Role())).Inc()
	h.log.Info("user connected", "user_id", c.UserID(), "role", c.Role(), "conn_id", c.ID())
}

// Disconnect releases everything the connection held. Safe to call for a
// connection that was already replaced: the presence entry and location
// of the replacement are left untouched.
func (h *Hub) Disconnect(c session) {
	h.rooms.Evict(c)
	h.presence.Unregister(c.UserID(), c.ID())
	c.close()
	observability.ActiveConnections.WithLabelValues(string(c.Role())).Dec()
	h.log.Info("user disconnected", "user_id", c.UserID(), "conn_id", c.ID())
}

// Dispatch routes one inbound event through the authorization gate to
// its handler. Every failure results in exactly one error frame to the
// sender; other connections never notice.
func (h *Hub) Dispatch(ctx context.Context, s session, env Envelope) {
	rt, ok := h.routes[env.Event]
	if !ok {
		observability.EventsTotal.WithLabelValues(env.Event, observability.OutcomeUnknown).Inc()
		s.deliver(EventError, errorPayload("unknown event"))
		return
	}
	if !rt.allows(s.Role()) {
		observability.EventsTotal.WithLabelValues(env.Event, observability.OutcomeUnauthorized).Inc()
		h.log.Warn("event not permitted", "event", env.Event, "user_id", s.UserID(), "role", s.Role())
		s.deliver(EventError, errorPayload("event not permitted for your role"))
		return
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := rt.handle(cctx, s, env.Data)
	observability.EventDuration.WithLabelValues(env.Event).Observe(time.Since(start).Seconds())

	outcome := observability.OutcomeOK
	if err != nil {
		msg := "internal error"
		var f *fail
		if errors.As(err, &f) {
			outcome = f.outcome
			msg = f.message
		} else {
			outcome = observability.OutcomeUpstream
		}
		s.deliver(EventError, errorPayload(msg))
		h.log.Warn("event failed", "event", env.Event, "user_id", s.UserID(), "outcome", outcome, "error", err)
	}
	observability.EventsTotal.WithLabelValues(env.Event, outcome).Inc()
}
