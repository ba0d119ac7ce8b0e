package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/example/ride-hail/internal/logging"
	"github.com/example/ride-hail/internal/models"
	"github.com/example/ride-hail/internal/pricing"
	"github.com/example/ride-hail/internal/storage"
)

// fakeSession records every frame delivered to it.
type fakeSession struct {
	id     string
	userID string
	role   models.Role

	mu       sync.Mutex
	frames   []frame
	isClosed bool
}

func newFakeSession(id, userID string, role models.Role) *fakeSession {
	return &fakeSession{id: id, userID: userID, role: role}
}

func (f *fakeSession) ID() string        { return f.id }
func (f *fakeSession) UserID() string    { return f.userID }
func (f *fakeSession) Role() models.Role { return f.role }

func (f *fakeSession) deliver(event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame{Event: event, Data: data})
}

func (f *fakeSession) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isClosed = true
}

func (f *fakeSession) closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isClosed
}

// count returns how many frames with the given event were delivered.
func (f *fakeSession) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.Event == event {
			n++
		}
	}
	return n
}

// last returns the data of the most recent frame with the given event.
func (f *fakeSession) last(event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Event == event {
			return f.frames[i].Data, true
		}
	}
	return nil, false
}

type testEnv struct {
	hub   *Hub
	store *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	hub := NewHub(Config{
		Log:   logging.Discard(),
		Users: store,
		Rides: store,
		Bids:  store,
		Fares: pricing.NewEstimator(10, 15, "mad", 3.50, 5.00, 4.00),
	})
	return &testEnv{hub: hub, store: store}
}

// connect attaches a fake session the way a real websocket upgrade would.
func (e *testEnv) connect(id, userID string, role models.Role) *fakeSession {
	s := newFakeSession(id, userID, role)
	e.hub.attach(s)
	return s
}

func (e *testEnv) send(t *testing.T, s session, event string, payload any) {
	t.Helper()
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		data = b
	}
	e.hub.Dispatch(context.Background(), s, Envelope{Event: event, Data: data})
}
