package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/middleware"
	"github.com/chatrelay/internal/presence"
	"github.com/chatrelay/internal/store"
)

type PresenceHandler struct {
	tracker *presence.Tracker
	records store.PresenceStore
}

func NewPresenceHandler(tracker *presence.Tracker, records store.PresenceStore) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, records: records}
}

// Touch refreshes the caller's last-activity timestamp.
// POST /api/presence/touch
func (h *PresenceHandler) Touch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.tracker.Touch(r.Context(), userID); err != nil {
		logger.Errorf("presence touch user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Get returns the stored presence record for a user. A user never seen before
// is reported as offline rather than 404.
// GET /api/presence/{userID}
func (h *PresenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	rec, err := h.records.GetPresence(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "online": false})
			return
		}
		logger.Errorf("presence get user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Subscribers lists connection ids subscribed to a group. Diagnostics only.
// GET /api/diag/subscribers?group=chat:123
func (h *PresenceHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("group")
	if name == "" {
		writeError(w, http.StatusBadRequest, "group required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group":       name,
		"subscribers": h.tracker.Subscribers(name),
	})
}
