package database

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sweeply/gateway/internal/domain"
)

// RoomRepository handles room, participant and message data access
type RoomRepository struct {
	db *DB
}

func NewRoomRepository(db *DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetRoom retrieves a room by ID
func (r *RoomRepository) GetRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room := &domain.Room{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, kind, title, job_id, last_message_preview, last_message_at,
		       created_at, updated_at
		FROM rooms WHERE id = $1
	`, roomID).Scan(
		&room.ID, &room.Kind, &room.Title, &room.JobID,
		&room.LastMessagePreview, &room.LastMessageAt,
		&room.CreatedAt, &room.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// IsParticipant checks if a user belongs to a room
func (r *RoomRepository) IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM room_participants
			WHERE room_id = $1 AND user_id = $2
		)
	`, roomID, userID).Scan(&exists)
	return exists, err
}

// GetRoomParticipants returns the user IDs of everyone in a room
func (r *RoomRepository) GetRoomParticipants(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT user_id FROM room_participants WHERE room_id = $1
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateMessage persists a message and refreshes the room's denormalized
// last-message fields and the other participants' unread counters, all in
// one transaction.
func (r *RoomRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, room_id, sender_id, kind, content, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.RoomID, msg.SenderID, msg.Kind, msg.Content, msg.ReplyTo, msg.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE rooms
		SET last_message_preview = left($2, 120),
		    last_message_at = $3,
		    updated_at = $3
		WHERE id = $1
	`, msg.RoomID, msg.Content, msg.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE room_participants
		SET unread_count = unread_count + 1
		WHERE room_id = $1 AND user_id != $2
	`, msg.RoomID, msg.SenderID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// MarkRead marks messages in a room as read on behalf of a user and
// returns the IDs actually flipped. An empty messageIDs list marks every
// unread message not sent by the user. The user's unread counter is reset
// whenever anything was flipped.
func (r *RoomRepository) MarkRead(ctx context.Context, roomID, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var rows pgx.Rows
	if len(messageIDs) == 0 {
		rows, err = tx.Query(ctx, `
			UPDATE messages SET read = TRUE
			WHERE room_id = $1 AND sender_id != $2 AND read = FALSE
			RETURNING id
		`, roomID, userID)
	} else {
		rows, err = tx.Query(ctx, `
			UPDATE messages SET read = TRUE
			WHERE room_id = $1 AND sender_id != $2 AND read = FALSE AND id = ANY($3)
			RETURNING id
		`, roomID, userID, messageIDs)
	}
	if err != nil {
		return nil, err
	}

	var affected []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		affected = append(affected, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(affected) > 0 {
		_, err = tx.Exec(ctx, `
			UPDATE room_participants SET unread_count = 0
			WHERE room_id = $1 AND user_id = $2
		`, roomID, userID)
		if err != nil {
			return nil, err
		}
	}

	return affected, tx.Commit(ctx)
}

// GetUserRooms returns every room the user participates in, most recently
// active first, with the user's own unread counter
func (r *RoomRepository) GetUserRooms(ctx context.Context, userID uuid.UUID) ([]domain.Room, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT r.id, r.kind, r.title, r.job_id, r.last_message_preview,
		       r.last_message_at, rp.unread_count, r.created_at, r.updated_at
		FROM rooms r
		JOIN room_participants rp ON rp.room_id = r.id
		WHERE rp.user_id = $1
		ORDER BY r.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		var room domain.Room
		err := rows.Scan(
			&room.ID, &room.Kind, &room.Title, &room.JobID,
			&room.LastMessagePreview, &room.LastMessageAt,
			&room.UnreadCount, &room.CreatedAt, &room.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// GetRoomMessages returns a page of room history, newest first
func (r *RoomRepository) GetRoomMessages(ctx context.Context, roomID uuid.UUID, limit int, before *uuid.UUID) ([]domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT m.id, m.room_id, m.sender_id, u.username, m.kind, m.content,
		       m.reply_to, m.read, m.edited_at, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = $1
	`
	args := []interface{}{roomID}

	if before != nil {
		query += ` AND m.created_at < (SELECT created_at FROM messages WHERE id = $2)`
		args = append(args, *before)
	}
	query += ` ORDER BY m.created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		err := rows.Scan(
			&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Kind,
			&m.Content, &m.ReplyTo, &m.Read, &m.EditedAt, &m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
