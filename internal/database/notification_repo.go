package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sweeply/gateway/internal/domain"
)

// NotificationRepository handles notification data access
type NotificationRepository struct {
	db *DB
}

func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, type, title, body, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Body, n.ReferenceID, n.CreatedAt)
	return err
}

// GetByID retrieves a notification
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	n := &domain.Notification{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, recipient_id, sender_id, type, title, body, reference_id,
		       read, delivered, read_at, delivered_at, created_at
		FROM notifications WHERE id = $1
	`, id).Scan(
		&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Body,
		&n.ReferenceID, &n.Read, &n.Delivered, &n.ReadAt, &n.DeliveredAt, &n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// MarkDelivered records that a notification reached a live connection
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	// Already-delivered rows match nothing, which keeps this idempotent
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE notifications SET delivered = TRUE, delivered_at = $2
		WHERE id = $1 AND delivered = FALSE
	`, id, time.Now())
	return err
}

// MarkRead marks a notification read on behalf of its recipient
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	// COALESCE keeps the original read timestamp on repeated calls
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
	`, id, recipientID, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// CountUnread returns the recipient's unread notification count
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND read = FALSE
	`, recipientID).Scan(&count)
	return count, err
}

// ListForUser returns a page of the recipient's notifications, newest first
func (r *NotificationRepository) ListForUser(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, recipient_id, sender_id, type, title, body, reference_id,
		       read, delivered, read_at, delivered_at, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Body,
			&n.ReferenceID, &n.Read, &n.Delivered, &n.ReadAt, &n.DeliveredAt, &n.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
