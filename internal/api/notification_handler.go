package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/sweeply/gateway/internal/auth"
	"github.com/sweeply/gateway/internal/database"
	"github.com/sweeply/gateway/internal/domain"
)

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	notifs *database.NotificationRepository
	logger *slog.Logger
}

func NewNotificationHandler(notifs *database.NotificationRepository, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifs: notifs,
		logger: logger,
	}
}

// List handles GET /notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	notifications, err := h.notifs.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("list notifications failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}

// UnreadCount handles GET /notifications/unread_count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.notifs.CountUnread(r.Context(), userID)
	if err != nil {
		h.logger.Error("unread count failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

// MarkRead handles POST /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	// Scoped to the caller; a stranger's notification reads as not found
	if err := h.notifs.MarkRead(r.Context(), id, userID); err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.Error("mark notification read failed", "error", err, "notification_id", id)
		writeError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
