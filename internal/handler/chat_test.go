package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/internal/identity"
	"github.com/chatrelay/internal/middleware"
	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/presence"
	"github.com/chatrelay/internal/service"
	"github.com/chatrelay/internal/store/memory"
)

func newTestRouter(t *testing.T) (chi.Router, *memory.Client) {
	t.Helper()
	gw := memory.New()
	pipeline := service.NewMessagePipeline(gw, gw)
	statuses := service.NewStatusTracker(gw)
	reactions := service.NewReactionManager(gw)
	notifier := service.NewNotificationDispatcher(gw)
	tracker := presence.NewTracker(gw)

	chatH := NewChatHandler(gw)
	msgH := NewMessageHandler(pipeline, statuses, reactions)
	notifH := NewNotificationHandler(notifier)
	presH := NewPresenceHandler(tracker, gw)

	r := chi.NewRouter()
	r.Use(middleware.Authenticate(identity.StaticProvider{}))
	r.Post("/api/chats", chatH.Create)
	r.Get("/api/chats/{chatID}", chatH.Get)
	r.Delete("/api/chats/{chatID}", chatH.Delete)
	r.Get("/api/chats/{chatID}/participants", chatH.Participants)
	r.Post("/api/chats/{chatID}/participants", chatH.AddParticipant)
	r.Delete("/api/chats/{chatID}/participants/{userID}", chatH.RemoveParticipant)
	r.Get("/api/chats/{chatID}/messages", msgH.ChatMessages)
	r.Get("/api/notifications", notifH.List)
	r.Post("/api/presence/touch", presH.Touch)
	r.Get("/api/presence/{userID}", presH.Get)
	return r, gw
}

func doRequest(t *testing.T, r chi.Router, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateChatAndManageParticipants(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(t, r, "POST", "/api/chats", "alice",
		`{"chat_type":"group","name":"team","member_ids":["bob"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var chat model.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chat))
	assert.Equal(t, model.ChatTypeGroup, chat.ChatType)
	assert.Equal(t, "alice", chat.CreatedBy)

	t.Run("ParticipantsVisibleToMembers", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/chats/"+chat.ID+"/participants", "bob", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "alice")
		assert.Contains(t, w.Body.String(), "bob")
	})

	t.Run("OutsiderForbidden", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/chats/"+chat.ID, "mallory", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("AddParticipantOwnerOnly", func(t *testing.T) {
		w := doRequest(t, r, "POST", "/api/chats/"+chat.ID+"/participants", "bob",
			`{"user_id":"carol"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doRequest(t, r, "POST", "/api/chats/"+chat.ID+"/participants", "alice",
			`{"user_id":"carol"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("DuplicateParticipantConflicts", func(t *testing.T) {
		w := doRequest(t, r, "POST", "/api/chats/"+chat.ID+"/participants", "alice",
			`{"user_id":"carol"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("RemoveParticipant", func(t *testing.T) {
		w := doRequest(t, r, "DELETE", "/api/chats/"+chat.ID+"/participants/carol", "alice", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		// Removing again is a no-op.
		w = doRequest(t, r, "DELETE", "/api/chats/"+chat.ID+"/participants/carol", "alice", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("DeleteChatIdempotent", func(t *testing.T) {
		w := doRequest(t, r, "DELETE", "/api/chats/"+chat.ID, "alice", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = doRequest(t, r, "DELETE", "/api/chats/"+chat.ID, "alice", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestCreateChatValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	t.Run("Unauthenticated", func(t *testing.T) {
		w := doRequest(t, r, "POST", "/api/chats", "", `{"chat_type":"group"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("UnknownType", func(t *testing.T) {
		w := doRequest(t, r, "POST", "/api/chats", "alice",
			`{"chat_type":"broadcast","member_ids":["bob"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("PrivateNeedsExactlyTwo", func(t *testing.T) {
		w := doRequest(t, r, "POST", "/api/chats", "alice",
			`{"chat_type":"private","member_ids":["bob","carol"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doRequest(t, r, "POST", "/api/chats", "alice",
			`{"chat_type":"private","member_ids":["bob"]}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})
}

func TestChatMessagesEndpoint(t *testing.T) {
	r, gw := newTestRouter(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, gw.CreateChat(ctx, &model.Chat{
		ID: "c1", ChatType: model.ChatTypeGroup, CreatedBy: "alice", CreatedAt: now,
	}))
	for _, uid := range []string{"alice", "bob"} {
		require.NoError(t, gw.AddParticipant(ctx, &model.Participant{
			ChatID: "c1", UserID: uid, JoinedAt: now,
		}))
	}
	require.NoError(t, gw.CreateMessage(ctx, &model.Message{
		ID: "m1", ChatID: "c1", SenderID: "alice", Text: "hello", CreatedAt: now,
	}))

	t.Run("MemberSeesHistory", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/chats/c1/messages", "bob", "")
		require.Equal(t, http.StatusOK, w.Code)
		var msgs []model.Message
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Text)
	})

	t.Run("OutsiderForbidden", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/chats/c1/messages", "mallory", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestPresenceEndpoints(t *testing.T) {
	r, gw := newTestRouter(t)
	ctx := context.Background()

	t.Run("UnknownUserReportsOffline", func(t *testing.T) {
		w := doRequest(t, r, "GET", "/api/presence/ghost", "alice", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"online":false`)
	})

	t.Run("TouchUpdatesLastActivity", func(t *testing.T) {
		at := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, gw.SetPresence(ctx, &model.PresenceRecord{
			UserID: "alice", Online: true, LastActivity: at,
		}))

		w := doRequest(t, r, "POST", "/api/presence/touch", "alice", "")
		require.Equal(t, http.StatusOK, w.Code)

		rec, err := gw.GetPresence(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, rec.LastActivity.After(at))
	})
}
