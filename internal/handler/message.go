package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/middleware"
	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/service"
	"github.com/chatrelay/internal/store"
)

// MessageHandler serves message history and per-message detail reads. All
// state changes go through the WebSocket; these endpoints are read-only.
type MessageHandler struct {
	pipeline  *service.MessagePipeline
	statuses  *service.StatusTracker
	reactions *service.ReactionManager
}

func NewMessageHandler(pipeline *service.MessagePipeline, statuses *service.StatusTracker, reactions *service.ReactionManager) *MessageHandler {
	return &MessageHandler{pipeline: pipeline, statuses: statuses, reactions: reactions}
}

// ChatMessages returns the chat history newest-first. Only participants see it.
// GET /api/chats/{chatID}/messages?limit=&offset=
func (h *MessageHandler) ChatMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID := chi.URLParam(r, "chatID")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat id required")
		return
	}

	isMember, err := h.pipeline.IsParticipant(r.Context(), chatID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		logger.Errorf("chat messages membership chat=%s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	messages, err := h.pipeline.ChatMessages(r.Context(), chatID, limit, offset)
	if err != nil {
		logger.Errorf("chat messages chat=%s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// MessageStatuses returns delivery states for a message, visible to
// participants of the message's chat.
// GET /api/messages/{messageID}/statuses
func (h *MessageHandler) MessageStatuses(w http.ResponseWriter, r *http.Request) {
	m, ok := h.visibleMessage(w, r)
	if !ok {
		return
	}
	statuses, err := h.statuses.Get(r.Context(), m.ID)
	if err != nil {
		logger.Errorf("message statuses %s: %v", m.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// MessageReactions returns reactions for a message.
// GET /api/messages/{messageID}/reactions
func (h *MessageHandler) MessageReactions(w http.ResponseWriter, r *http.Request) {
	m, ok := h.visibleMessage(w, r)
	if !ok {
		return
	}
	reactions, err := h.reactions.Get(r.Context(), m.ID)
	if err != nil {
		logger.Errorf("message reactions %s: %v", m.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, reactions)
}

// visibleMessage loads the message and checks the caller participates in its
// chat. Writes the error response itself when visibility fails.
func (h *MessageHandler) visibleMessage(w http.ResponseWriter, r *http.Request) (*model.Message, bool) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageID")
	if messageID == "" {
		writeError(w, http.StatusBadRequest, "message id required")
		return nil, false
	}

	msg, err := h.pipeline.Message(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return nil, false
		}
		logger.Errorf("message lookup %s: %v", messageID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}

	isMember, err := h.pipeline.IsParticipant(r.Context(), msg.ChatID, userID)
	if err != nil {
		logger.Errorf("message membership %s: %v", messageID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if !isMember {
		writeError(w, http.StatusForbidden, "not a participant")
		return nil, false
	}
	return msg, true
}
