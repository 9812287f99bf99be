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

// RoomHandler handles room and message history endpoints
type RoomHandler struct {
	rooms  *database.RoomRepository
	logger *slog.Logger
}

func NewRoomHandler(rooms *database.RoomRepository, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{
		rooms:  rooms,
		logger: logger,
	}
}

// ListRooms handles GET /rooms
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rooms, err := h.rooms.GetUserRooms(r.Context(), userID)
	if err != nil {
		h.logger.Error("list rooms failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to load rooms")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
	})
}

// GetMessages handles GET /rooms/{id}/messages
func (h *RoomHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	if _, err := h.rooms.GetRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		h.logger.Error("room lookup failed", "error", err, "room_id", roomID)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}

	isParticipant, err := h.rooms.IsParticipant(r.Context(), roomID, userID)
	if err != nil {
		h.logger.Error("participant check failed", "error", err, "room_id", roomID)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}
	if !isParticipant {
		writeError(w, http.StatusForbidden, "not a participant of this room")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var before *uuid.UUID
	if raw := r.URL.Query().Get("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = &id
	}

	messages, err := h.rooms.GetRoomMessages(r.Context(), roomID, limit, before)
	if err != nil {
		h.logger.Error("message history failed", "error", err, "room_id", roomID)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  roomID,
		"messages": messages,
	})
}
