package realtime

import (
	"context"
	"encoding/json"

	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/observability"
)

// Envelope is the wire format in both directions:
// {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound events.
const (
	EventPing           = "ping"
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventLocationUpdate = "driver:location_update"
	EventStatusUpdate   = "driver:status_update"
	EventAcceptRide     = "driver:accept_ride"
	EventStartRide      = "driver:start_ride"
	EventCompleteRide   = "driver:complete_ride"
	EventRequestRide    = "passenger:request_ride"
	EventCancelRide     = "passenger:cancel_ride"
	EventBidPlace       = "bid:place"
	EventBidAccept      = "bid:accept"
	EventGetStats       = "admin:get_stats"
)

// Outbound events.
const (
	EventPong            = "pong"
	EventJoinedRoom      = "joined_room"
	EventLeftRoom        = "left_room"
	EventLocationUpdated = "driver:location_updated"
	EventStatusUpdated   = "driver:status_updated"
	EventRideAccepted    = "ride:accepted"
	EventRideStarted     = "ride:started"
	EventRideCompleted   = "ride:completed"
	EventRideCancelled   = "ride:cancelled"
	EventRideNewRequest  = "ride:new_request"
	EventRideRequested   = "ride:requested"
	EventBidNew          = "bid:new"
	EventBidPlaced       = "bid:placed"
	EventBidAccepted     = "bid:accepted"
	EventAdminStats      = "admin:stats"
	EventError           = "error"
)

// HandlerFunc processes one inbound event for one connection. A returned
// error is terminal for that event only: the sender gets a single error
// frame and nothing is broadcast.
type HandlerFunc func(ctx context.Context, s session, data json.RawMessage) error

// route pairs a handler with the roles allowed to invoke it. An empty
// role set means any authenticated connection.
type route struct {
	roles  []models.Role
	handle HandlerFunc
}

func (r route) allows(role models.Role) bool {
	if len(r.roles) == 0 {
		return true
	}
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// fail is a per-event failure carrying a client-safe message and a
// metrics outcome label. Internal error details never reach the wire.
type fail struct {
	outcome string
	message string
}

func (f *fail) Error() string { return f.message }

func invalidPayload(msg string) error {
	return &fail{outcome: observability.OutcomeInvalid, message: msg}
}

func preconditionFailed(msg string) error {
	return &fail{outcome: observability.OutcomePrecondition, message: msg}
}

func upstreamUnavailable(msg string) error {
	return &fail{outcome: observability.OutcomeUpstream, message: msg}
}

// errorPayload is the body of every outbound error frame.
func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}
