package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"connection-chat/internal/auth"
	"connection-chat/internal/mocks"
	"connection-chat/internal/models"
	"connection-chat/internal/presence"
	"connection-chat/internal/relay"
	"connection-chat/internal/services"
)

const testSecret = "ws-secret"

type gatewayEnv struct {
	server    *httptest.Server
	hub       *Hub
	bus       *relay.Bus
	messenger *mocks.MessengerMock
	tracker   *presence.Tracker
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := mocks.NewStore()
	store.AddDoctor("doc-1", "dp-1", "Ada", "Lovelace")
	store.AddPatient("pat-1", "pp-1", "Bob", "Smith")
	store.AddConnection("conn-1", "dp-1", "pp-1", models.ConnectionActive)

	env := &gatewayEnv{
		hub:       NewHub(nil),
		bus:       relay.NewBus(nil),
		messenger: new(mocks.MessengerMock),
		tracker:   presence.NewTracker(rdb, time.Minute, nil),
	}
	env.bus.Subscribe(env.hub.Deliver)
	gw := NewGateway(env.hub, auth.NewJWTValidator(testSecret), env.messenger, env.tracker, store, env.bus, nil)

	r := gin.New()
	r.GET("/ws", gw.Handle)
	env.server = httptest.NewServer(r)
	t.Cleanup(env.server.Close)
	return env
}

func (e *gatewayEnv) dial(t *testing.T, userID string, role models.Role) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(auth.Principal{UserID: userID, Role: role}, testSecret, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return e.hub.Connected(userID) > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, frameType string) models.ChatEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev models.ChatEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == frameType {
			return ev
		}
	}
}

func payloadOf(t *testing.T, ev models.ChatEvent, dst any) {
	t.Helper()
	raw, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}

func TestGatewayRejectsUnauthenticated(t *testing.T) {
	env := newGatewayEnv(t)
	base := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"

	for _, url := range []string{base, base + "?token=garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Zero(t, env.hub.Connected(""))
}

func TestGatewayHeaderToken(t *testing.T) {
	env := newGatewayEnv(t)
	token, err := auth.GenerateToken(auth.Principal{UserID: "doc-1", Role: models.RoleDoctor}, testSecret, time.Hour)
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Connected("doc-1") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, env.tracker.IsOnline(context.Background(), "doc-1"))
}

func TestGatewayPresenceEdges(t *testing.T) {
	env := newGatewayEnv(t)
	doctor := env.dial(t, "doc-1", models.RoleDoctor)
	patient := env.dial(t, "pat-1", models.RolePatient)

	var online relay.PresencePayload
	payloadOf(t, readFrame(t, doctor, string(relay.PresenceChanged)), &online)
	assert.Equal(t, relay.PresencePayload{UserID: "pat-1", Online: true}, online)

	require.NoError(t, patient.Close())

	var offline relay.PresencePayload
	payloadOf(t, readFrame(t, doctor, string(relay.PresenceChanged)), &offline)
	assert.Equal(t, relay.PresencePayload{UserID: "pat-1", Online: false}, offline)
	assert.Zero(t, env.hub.Connected("pat-1"))
	assert.False(t, env.tracker.IsOnline(context.Background(), "pat-1"))
}

func TestGatewayRelaysEventsToRecipients(t *testing.T) {
	env := newGatewayEnv(t)
	doctor := env.dial(t, "doc-1", models.RoleDoctor)

	ev, err := relay.NewEvent(relay.MessageRead, []string{"doc-1"}, relay.MessageReadPayload{MessageID: "m1", ChatID: "c1", ReaderID: "pat-1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.bus.Publish(context.Background(), ev))

	frame := readFrame(t, doctor, string(relay.MessageRead))
	require.NotNil(t, frame.OccurredAt)
	var payload relay.MessageReadPayload
	payloadOf(t, frame, &payload)
	assert.Equal(t, "m1", payload.MessageID)
}

func TestGatewayCommands(t *testing.T) {
	env := newGatewayEnv(t)
	patient := env.dial(t, "pat-1", models.RolePatient)

	sent := models.MessageView{Message: models.Message{ID: "m1", ChatID: "chat-1", SenderID: "pat-1", Content: "hello", MessageType: models.MessageText}}
	env.messenger.On("Send", mock.Anything, "chat-1", "pat-1", "hello", models.MessageType("")).Return(sent, nil).Once()
	env.messenger.On("Send", mock.Anything, "chat-x", "pat-1", "hello", models.MessageType("")).
		Return(nil, services.NewForbiddenError("send message", "not a participant of this chat")).Once()
	env.messenger.On("MarkAllRead", mock.Anything, "chat-1", "pat-1").Return(nil).Once()
	env.messenger.On("Delete", mock.Anything, "m9", "pat-1").Return(nil, assert.AnError).Once()

	require.NoError(t, patient.WriteJSON(map[string]string{"type": "message.send", "request_id": "r1", "chat_id": "chat-1", "content": "hello"}))
	ack := readFrame(t, patient, frameAck)
	assert.Equal(t, "r1", ack.RequestID)
	var view models.MessageView
	payloadOf(t, ack, &view)
	assert.Equal(t, "m1", view.ID)

	require.NoError(t, patient.WriteJSON(map[string]string{"type": "message.send", "request_id": "r2", "chat_id": "chat-x", "content": "hello"}))
	failed := readFrame(t, patient, frameError)
	assert.Equal(t, "r2", failed.RequestID)
	assert.Equal(t, "not a participant of this chat", failed.Error)

	require.NoError(t, patient.WriteJSON(map[string]string{"type": "messages.read", "request_id": "r3", "chat_id": "chat-1"}))
	assert.Equal(t, "r3", readFrame(t, patient, frameAck).RequestID)

	require.NoError(t, patient.WriteJSON(map[string]string{"type": "message.delete", "request_id": "r4", "message_id": "m9"}))
	internal := readFrame(t, patient, frameError)
	assert.Equal(t, errInternal, internal.Error)

	require.NoError(t, patient.WriteJSON(map[string]string{"type": "message.read", "request_id": "r5"}))
	assert.Equal(t, errFields, readFrame(t, patient, frameError).Error)

	require.NoError(t, patient.WriteJSON(map[string]string{"type": "typing", "request_id": "r6"}))
	assert.Equal(t, errBadType, readFrame(t, patient, frameError).Error)

	require.NoError(t, patient.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, errBadJSON, readFrame(t, patient, frameError).Error)

	require.NoError(t, patient.WriteJSON(map[string]string{"type": "ping", "request_id": "r7"}))
	assert.Equal(t, "r7", readFrame(t, patient, framePong).RequestID)

	env.messenger.AssertExpectations(t)
}
