package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	// Auth errors
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")

	// Room errors
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotParticipant = errors.New("user is not a participant of this room")

	// Message errors
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message content cannot be empty")

	// Notification errors
	ErrNotificationNotFound = errors.New("notification not found")
)
