package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/ride-hail/internal/storage"
)

// Sender delivers one message to one destination. Fire-and-forget: a
// failure is reported to the caller and goes no further, no retries.
type Sender interface {
	Send(ctx context.Context, destination, message string) error
}

// HTTPSink posts JSON to a provider HTTP endpoint (SMS gateway, email
// relay). The provider contract is a 2xx on acceptance.
type HTTPSink struct {
	Endpoint string
	Channel  string // "sms" or "email", informational for the provider
	Client   *http.Client
}

func NewHTTPSink(endpoint, channel string) *HTTPSink {
	return &HTTPSink{Endpoint: endpoint, Channel: channel, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (s *HTTPSink) Send(ctx context.Context, destination, message string) error {
	body := map[string]string{"to": destination, "message": message, "channel": s.Channel}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", s.Channel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send %s: provider returned %d", s.Channel, resp.StatusCode)
	}
	return nil
}

// Notifier resolves a user to a destination and pushes a ride lifecycle
// message through the first configured sink (SMS preferred, email as
// fallback). All failures are logged and swallowed.
type Notifier struct {
	users storage.UserStore
	sms   Sender
	email Sender
	log   *slog.Logger
}

func NewNotifier(users storage.UserStore, sms, email Sender, log *slog.Logger) *Notifier {
	return &Notifier{users: users, sms: sms, email: email, log: log}
}

func (n *Notifier) RideUpdate(ctx context.Context, userID, message string) {
	user, err := n.users.GetUser(ctx, userID)
	if err != nil {
		n.log.Warn("notify: user lookup failed", "user_id", userID, "error", err)
		return
	}
	if n.sms != nil && user.Phone != "" {
		if err := n.sms.Send(ctx, user.Phone, message); err != nil {
			n.log.Warn("notify: sms failed", "user_id", userID, "error", err)
		}
		return
	}
	if n.email != nil && user.Email != "" {
		if err := n.email.Send(ctx, user.Email, message); err != nil {
			n.log.Warn("notify: email failed", "user_id", userID, "error", err)
		}
	}
}
