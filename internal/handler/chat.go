package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/middleware"
	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

// ChatHandler covers chat bootstrap: creating chats and managing the
// participant set. Messaging itself goes over the WebSocket.
type ChatHandler struct {
	chats store.ChatStore
}

func NewChatHandler(chats store.ChatStore) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type CreateChatRequest struct {
	ChatType  model.ChatType `json:"chat_type"`
	Name      string         `json:"name"`
	MemberIDs []string       `json:"member_ids"`
}

// Create creates a private or group chat. The caller becomes the owner and is
// always a participant, listed in member_ids or not.
// POST /api/chats
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	currentUserID := middleware.GetUserID(r.Context())

	members := map[string]struct{}{currentUserID: {}}
	for _, id := range req.MemberIDs {
		if id != "" {
			members[id] = struct{}{}
		}
	}

	switch req.ChatType {
	case model.ChatTypePrivate:
		if len(members) != 2 {
			writeError(w, http.StatusBadRequest, "private chat needs exactly one other member")
			return
		}
	case model.ChatTypeGroup:
		if len(members) < 2 {
			writeError(w, http.StatusBadRequest, "group chat needs at least one other member")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown chat_type")
		return
	}

	now := time.Now().UTC()
	chat := &model.Chat{
		ID:        uuid.NewString(),
		ChatType:  req.ChatType,
		Name:      req.Name,
		CreatedBy: currentUserID,
		CreatedAt: now,
	}
	if err := h.chats.CreateChat(r.Context(), chat); err != nil {
		logger.Errorf("create chat: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	for uid := range members {
		role := model.RoleParticipant
		if uid == currentUserID {
			role = model.RoleOwner
		}
		p := &model.Participant{ChatID: chat.ID, UserID: uid, Role: role, JoinedAt: now}
		if err := h.chats.AddParticipant(r.Context(), p); err != nil {
			logger.Errorf("create chat add participant %s: %v", uid, err)
			writeError(w, http.StatusInternalServerError, "failed to add participant")
			return
		}
	}

	writeJSON(w, http.StatusCreated, chat)
}

// Get returns a chat visible to its participants.
// GET /api/chats/{chatID}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.memberChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// Participants returns the participant user ids of a chat.
// GET /api/chats/{chatID}/participants
func (h *ChatHandler) Participants(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.memberChat(w, r)
	if !ok {
		return
	}
	ids, err := h.chats.ParticipantIDs(r.Context(), chat.ID)
	if err != nil {
		logger.Errorf("chat participants %s: %v", chat.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chat.ID, "participants": ids})
}

type addParticipantRequest struct {
	UserID string `json:"user_id"`
}

// AddParticipant adds a user to a group chat. Owner only. Duplicate insert is
// a 409.
// POST /api/chats/{chatID}/participants
func (h *ChatHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	if chat.ChatType != model.ChatTypeGroup {
		writeError(w, http.StatusBadRequest, "participants are fixed for private chats")
		return
	}

	var req addParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	p := &model.Participant{
		ChatID:   chat.ID,
		UserID:   req.UserID,
		Role:     model.RoleParticipant,
		JoinedAt: time.Now().UTC(),
	}
	if err := h.chats.AddParticipant(r.Context(), p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "already a participant")
			return
		}
		logger.Errorf("add participant chat=%s user=%s: %v", chat.ID, req.UserID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// RemoveParticipant removes a user from a group chat. Owner only; removing an
// absent user is a no-op.
// DELETE /api/chats/{chatID}/participants/{userID}
func (h *ChatHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	if userID == chat.CreatedBy {
		writeError(w, http.StatusBadRequest, "owner cannot be removed")
		return
	}
	if err := h.chats.RemoveParticipant(r.Context(), chat.ID, userID); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Errorf("remove participant chat=%s user=%s: %v", chat.ID, userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a chat with everything attached to it. Owner only;
// repeating the call is a no-op.
// DELETE /api/chats/{chatID}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat id required")
		return
	}

	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		logger.Errorf("delete chat lookup %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if chat.CreatedBy != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "owner only")
		return
	}

	if err := h.chats.DeleteChat(r.Context(), chatID); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Errorf("delete chat %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) memberChat(w http.ResponseWriter, r *http.Request) (*model.Chat, bool) {
	chatID := chi.URLParam(r, "chatID")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat id required")
		return nil, false
	}
	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return nil, false
		}
		logger.Errorf("chat lookup %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	isMember, err := h.chats.IsParticipant(r.Context(), chat.ID, middleware.GetUserID(r.Context()))
	if err != nil {
		logger.Errorf("chat membership %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a participant")
		return nil, false
	}
	return chat, true
}

func (h *ChatHandler) ownedChat(w http.ResponseWriter, r *http.Request) (*model.Chat, bool) {
	chat, ok := h.memberChat(w, r)
	if !ok {
		return nil, false
	}
	if chat.CreatedBy != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "owner only")
		return nil, false
	}
	return chat, true
}
