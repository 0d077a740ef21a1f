package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"connection-chat/internal/cache"
	"connection-chat/internal/mocks"
	"connection-chat/internal/models"
	"connection-chat/internal/relay"
)

const (
	doctorID   = "doc-1"
	patientID  = "pat-1"
	strangerID = "pat-2"
	connID     = "conn-123"
	offConnID  = "conn-off"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type sequence struct {
	mu     sync.Mutex
	n      int
	preset []string
}

func (s *sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.preset) > 0 {
		id := s.preset[0]
		s.preset = s.preset[1:]
		return id
	}
	s.n++
	return fmt.Sprintf("id-%05d", s.n)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []relay.Event
	err    error
}

func (r *eventRecorder) Publish(ctx context.Context, ev relay.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *eventRecorder) ofType(t relay.EventType) []relay.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []relay.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]models.IdentitySnapshot
}

func (c *memoryCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.items[key]
	if !ok {
		return false, nil
	}
	*dst.(*models.IdentitySnapshot) = snap
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value.(models.IdentitySnapshot)
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

type fixture struct {
	store      *mocks.Store
	ids        *sequence
	clock      *stepClock
	events     *eventRecorder
	directory  *ChatDirectory
	ledger     *MessageLedger
	reconciler *Reconciler
	messenger  *Messenger
}

func newFixture(t *testing.T, presence PresenceReader) *fixture {
	t.Helper()
	store := mocks.NewStore()
	store.AddDoctor(doctorID, "dp-1", "Ada", "Lovelace")
	store.AddPatient(patientID, "pp-1", "Bob", "Smith")
	store.AddPatient(strangerID, "pp-2", "Cy", "Young")
	store.AddConnection(connID, "dp-1", "pp-1", models.ConnectionActive)
	store.AddConnection(offConnID, "dp-1", "pp-2", models.ConnectionInactive)

	f := &fixture{
		store:  store,
		ids:    &sequence{},
		clock:  &stepClock{now: baseTime, step: time.Second},
		events: &eventRecorder{},
	}
	opts := []Option{WithClock(f.clock.Now), WithIDGenerator(f.ids.Next)}
	identities := cache.NewIdentityCache(&memoryCache{items: map[string]models.IdentitySnapshot{}}, store, time.Minute, nil)

	f.directory = NewChatDirectory(store, store, store, presence, opts...)
	f.ledger = NewMessageLedger(store, f.directory, identities, opts...)
	f.reconciler = NewReconciler(store, opts...)
	f.messenger = NewMessenger(f.directory, f.ledger, f.reconciler, f.events, opts...)
	return f
}

// openChat creates the chat of connID and returns its id.
func (f *fixture) openChat(t *testing.T) string {
	t.Helper()
	detail, err := f.directory.GetOrCreateChat(context.Background(), connID)
	require.NoError(t, err)
	return detail.ID
}

func (f *fixture) send(t *testing.T, chatID, senderID, content string) models.MessageView {
	t.Helper()
	view, err := f.messenger.Send(context.Background(), chatID, senderID, content, models.MessageText)
	require.NoError(t, err)
	return view
}
