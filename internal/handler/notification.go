package handler

import (
	"net/http"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/middleware"
	"github.com/chatrelay/internal/service"
)

type NotificationHandler struct {
	notifier *service.NotificationDispatcher
}

func NewNotificationHandler(notifier *service.NotificationDispatcher) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// List returns the caller's notifications, newest-first.
// GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	notifications, err := h.notifier.ListFor(r.Context(), userID)
	if err != nil {
		logger.Errorf("notifications list user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}
