package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"connection-chat/internal/auth"
	"connection-chat/internal/middleware"
	"connection-chat/internal/mocks"
	"connection-chat/internal/models"
	"connection-chat/internal/services"
)

var (
	doctor   = auth.Principal{UserID: "doc-1", Role: models.RoleDoctor}
	patient  = auth.Principal{UserID: "pat-1", Role: models.RolePatient}
	stranger = auth.Principal{UserID: "pat-2", Role: models.RolePatient}
	admin    = auth.Principal{UserID: "adm-1", Role: models.RoleAdmin}
)

type chatEnv struct {
	store    *mocks.Store
	presence *mocks.PresenceMock
	handler  *ChatHandler
}

func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()
	store := mocks.NewStore()
	store.AddDoctor("doc-1", "dp-1", "Ada", "Lovelace")
	store.AddPatient("pat-1", "pp-1", "Bob", "Smith")
	store.AddPatient("pat-2", "pp-2", "Cy", "Young")
	store.AddUser("adm-1", "Root", "Admin", models.RoleAdmin)
	store.AddConnection("conn-1", "dp-1", "pp-1", models.ConnectionActive)
	store.AddConnection("conn-off", "dp-1", "pp-2", models.ConnectionInactive)

	presence := new(mocks.PresenceMock)
	presence.On("OnlineSet", mock.Anything, mock.Anything).Return(map[string]bool{}).Maybe()

	directory := services.NewChatDirectory(store, store, store, presence)
	ledger := services.NewMessageLedger(store, directory, nil)
	reconciler := services.NewReconciler(store)
	messenger := services.NewMessenger(directory, ledger, reconciler, nil)

	return &chatEnv{
		store:    store,
		presence: presence,
		handler:  NewChatHandler(directory, ledger, messenger, nil, nil),
	}
}

func (e *chatEnv) router(caller *auth.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) {
		if caller != nil {
			middleware.SetPrincipal(c, *caller)
		}
		c.Next()
	})
	e.handler.Register(r)
	return r
}

func (e *chatEnv) do(t *testing.T, caller *auth.Principal, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router(caller).ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func (e *chatEnv) openChat(t *testing.T) string {
	t.Helper()
	rec := e.do(t, &patient, http.MethodPost, "/connections/conn-1/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[models.ChatDetail](t, rec).ID
}

func (e *chatEnv) post(t *testing.T, caller auth.Principal, chatID, content string) models.MessageView {
	t.Helper()
	rec := e.do(t, &caller, http.MethodPost, "/chats/"+chatID+"/messages", gin.H{"content": content, "type": "TEXT"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.MessageView](t, rec)
}

func TestStartChat(t *testing.T) {
	env := newChatEnv(t)
	chatID := env.openChat(t)
	assert.NotEmpty(t, chatID)

	rec := env.do(t, &doctor, http.MethodPost, "/connections/conn-1/chat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chatID, decode[models.ChatDetail](t, rec).ID, "second call returns the same chat")
	assert.Len(t, env.store.Chats(), 1)

	cases := []struct {
		name   string
		caller auth.Principal
		path   string
		status int
	}{
		{"stranger", stranger, "/connections/conn-1/chat", http.StatusForbidden},
		{"missing connection", patient, "/connections/nope/chat", http.StatusNotFound},
		{"inactive connection", doctor, "/connections/conn-off/chat", http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, &tc.caller, http.MethodPost, tc.path, nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestListChats(t *testing.T) {
	env := newChatEnv(t)
	chatID := env.openChat(t)
	env.post(t, doctor, chatID, "hello bob")

	rec := env.do(t, &patient, http.MethodGet, "/chats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Chats []models.InboxEntry `json:"chats"`
	}](t, rec)
	require.Len(t, resp.Chats, 1)
	assert.Equal(t, "doc-1", resp.Chats[0].CounterpartUserID)
	assert.Equal(t, 1, resp.Chats[0].UnreadCount)
	require.NotNil(t, resp.Chats[0].LastMessagePreview)
	assert.Equal(t, "hello bob", *resp.Chats[0].LastMessagePreview)

	rec = env.do(t, &admin, http.MethodGet, "/chats", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListChatsStoreFailure(t *testing.T) {
	env := newChatEnv(t)
	env.store.FailOn("ListInbox", errors.New("connection refused"))

	rec := env.do(t, &patient, http.MethodGet, "/chats", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode[map[string]string](t, rec)["error"])
}

func TestRoutesRequirePrincipal(t *testing.T) {
	env := newChatEnv(t)
	rec := env.do(t, nil, http.MethodGet, "/chats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetChat(t *testing.T) {
	env := newChatEnv(t)
	chatID := env.openChat(t)

	rec := env.do(t, &doctor, http.MethodGet, "/chats/"+chatID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[models.ChatDetail](t, rec)
	assert.Equal(t, "Bob", detail.Patient.FirstName)
	assert.Equal(t, models.ConnectionActive, detail.Status)

	assert.Equal(t, http.StatusForbidden, env.do(t, &stranger, http.MethodGet, "/chats/"+chatID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, &doctor, http.MethodGet, "/chats/missing", nil).Code)
}

func TestPostChatMessage(t *testing.T) {
	env := newChatEnv(t)
	chatID := env.openChat(t)

	view := env.post(t, patient, chatID, "hi doctor")
	assert.Equal(t, "hi doctor", view.Content)
	require.NotNil(t, view.Sender)
	assert.Equal(t, "Bob", view.Sender.FirstName)

	cases := []struct {
		name   string
		caller auth.Principal
		body   any
		status int
	}{
		{"empty content", patient, gin.H{"content": "   "}, http.StatusBadRequest},
		{"system type", patient, gin.H{"content": "x", "type": "SYSTEM"}, http.StatusBadRequest},
		{"malformed json", patient, "{", http.StatusBadRequest},
		{"stranger", stranger, gin.H{"content": "x"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, &tc.caller, http.MethodPost, "/chats/"+chatID+"/messages", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	env.store.SetStatus("conn-1", models.ConnectionInactive)
	rec := env.do(t, &patient, http.MethodPost, "/chats/"+chatID+"/messages", gin.H{"content": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetChatMessages(t *testing.T) {
	env := newChatEnv(t)
	chatID := env.openChat(t)
	for _, content := range []string{"one", "two", "three"} {
		env.post(t, patient, chatID, content)
	}

	rec := env.do(t, &doctor, http.MethodGet, "/chats/"+chatID+"/messages?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[models.MessagePage](t, rec)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)

	rec = env.do(t, &doctor, http.MethodGet, "/chats/"+chatID+"/messages?limit=2&cursor="+page.Cursor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[models.MessagePage](t, rec)
	require.Len(t, next.Messages, 2, "one text message plus the opening system message")
	assert.False(t, next.HasMore)
	assert.Equal(t, models.MessageSystem, next.Messages[1].MessageType)

	assert.Equal(t, http.StatusBadRequest, env.do(t, &doctor, http.MethodGet, "/chats/"+chatID+"/messages?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, &doctor, http.MethodGet, "/chats/"+chatID+"/messages?cursor=bogus", nil).Code)
}

func TestReadAndUnreadFlow(t *testing.T) {
	env := newChatEnv(t)
	chatID := env.openChat(t)
	first := env.post(t, patient, chatID, "one")
	env.post(t, patient, chatID, "two")

	rec := env.do(t, &doctor, http.MethodGet, "/unread-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread_count":2}`, rec.Body.String())

	rec = env.do(t, &patient, http.MethodPatch, "/messages/"+first.ID+"/read", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "own message")

	rec = env.do(t, &doctor, http.MethodPatch, "/messages/"+first.ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[models.Message](t, rec).IsRead)

	rec = env.do(t, &doctor, http.MethodGet, "/chats/"+chatID+"/unread-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["unread_count"])

	rec = env.do(t, &doctor, http.MethodPost, "/chats/"+chatID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = env.do(t, &doctor, http.MethodGet, "/unread-count", nil)
	assert.JSONEq(t, `{"unread_count":0}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, env.do(t, &admin, http.MethodGet, "/unread-count", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, &stranger, http.MethodPost, "/chats/"+chatID+"/read", nil).Code)
}

func TestDeleteMessage(t *testing.T) {
	env := newChatEnv(t)
	chatID := env.openChat(t)
	msg := env.post(t, patient, chatID, "oops")

	assert.Equal(t, http.StatusForbidden, env.do(t, &doctor, http.MethodDelete, "/messages/"+msg.ID, nil).Code)

	rec := env.do(t, &patient, http.MethodDelete, "/messages/"+msg.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode[models.Message](t, rec)
	assert.Equal(t, models.DeletedPlaceholder, deleted.Content)
	assert.Equal(t, models.MessageDeleted, deleted.MessageType)

	assert.Equal(t, http.StatusConflict, env.do(t, &patient, http.MethodDelete, "/messages/"+msg.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, &patient, http.MethodDelete, "/messages/missing", nil).Code)
}

func TestGetPresence(t *testing.T) {
	env := newChatEnv(t)
	env.presence.On("IsOnline", mock.Anything, "doc-1").Return(true).Once()

	rec := env.do(t, &patient, http.MethodGet, "/presence/doc-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"doc-1","online":true}`, rec.Body.String())
	env.presence.AssertExpectations(t)
}

func TestGetPresenceRequiresSharedConnection(t *testing.T) {
	env := newChatEnv(t)

	// pat-2 only shares an inactive connection with doc-1
	assert.Equal(t, http.StatusForbidden, env.do(t, &stranger, http.MethodGet, "/presence/doc-1", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, &patient, http.MethodGet, "/presence/pat-2", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, &admin, http.MethodGet, "/presence/doc-1", nil).Code)
	env.presence.AssertNotCalled(t, "IsOnline", mock.Anything, mock.Anything)
}

func TestRequestIDEchoed(t *testing.T) {
	env := newChatEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.router(&patient).ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	env.router(&patient).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
