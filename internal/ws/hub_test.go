package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connection-chat/internal/relay"
)

func testClient(userID string) *Client {
	return newClient(nil, ConnInfo{ConnID: newConnID(), UserID: userID, ConnectedAt: time.Now()})
}

func testEvent(t *testing.T, recipients ...string) relay.Event {
	t.Helper()
	ev, err := relay.NewEvent(relay.MessageDeleted, recipients, relay.MessageDeletedPayload{MessageID: "m1", ChatID: "c1"}, time.Now())
	require.NoError(t, err)
	return ev
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub(nil)
	first, second := testClient("u1"), testClient("u1")

	assert.Equal(t, 1, hub.Register(first))
	assert.Equal(t, 2, hub.Register(second))
	assert.Equal(t, 2, hub.Connected("u1"))

	assert.True(t, hub.Unregister(first))
	assert.False(t, hub.Unregister(first), "second unregister is a no-op")
	assert.True(t, hub.Unregister(second))
	assert.Zero(t, hub.Connected("u1"))
	assert.Empty(t, hub.clients)
}

func TestHubDeliversOnlyToRecipients(t *testing.T) {
	hub := NewHub(nil)
	a, b, other := testClient("u1"), testClient("u2"), testClient("u3")
	for _, c := range []*Client{a, b, other} {
		hub.Register(c)
	}

	hub.Deliver(testEvent(t, "u1", "u2"))

	assert.Len(t, a.send, 1)
	assert.Len(t, b.send, 1)
	assert.Empty(t, other.send)
	assert.Contains(t, string(<-a.send), `"type":"message.deleted"`)
}

func TestHubKicksSlowConsumer(t *testing.T) {
	hub := NewHub(nil)
	slow, fast := testClient("u1"), testClient("u1")
	hub.Register(slow)
	hub.Register(fast)

	for i := 0; i < sendBufferSize; i++ {
		hub.Deliver(testEvent(t, "u1"))
		<-fast.send
	}
	_, kicked := slow.closeReason()
	require.False(t, kicked)

	hub.Deliver(testEvent(t, "u1"))
	reason, kicked := slow.closeReason()
	assert.True(t, kicked)
	assert.Equal(t, "slow_consumer", reason)
	_, fastKicked := fast.closeReason()
	assert.False(t, fastKicked)

	assert.True(t, slow.enqueue([]byte("late")), "frames for a closing client are discarded")
}
