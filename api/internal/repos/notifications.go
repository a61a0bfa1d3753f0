package repos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"taskflow/api/internal/fanout"
	"taskflow/api/internal/models"
)

type NotificationsRepo struct {
	db DBTX
}

func NewNotificationsRepo(db DBTX) *NotificationsRepo {
	return &NotificationsRepo{db: db}
}

const notificationColumns = `notification_id, recipient_user_id, kind, message, subject_type, subject_id, read, created_at, updated_at`

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.NotificationID, &n.RecipientUserID, &n.Kind, &n.Message, &n.SubjectType, &n.SubjectID, &n.Read, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// InsertNotification always stores the row unread.
func (r *NotificationsRepo) InsertNotification(ctx context.Context, ev fanout.NotificationEvent) (models.Notification, error) {
	var subjectType *string
	var subjectID *int64
	if !ev.Subject.IsZero() {
		t := string(ev.Subject.Type)
		id := ev.Subject.ID
		subjectType, subjectID = &t, &id
	}
	return scanNotification(r.db.QueryRow(ctx, `
		INSERT INTO notifications (recipient_user_id, kind, message, subject_type, subject_id, read)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING `+notificationColumns,
		ev.RecipientUserID, string(ev.Kind), ev.Message, subjectType, subjectID))
}

func (r *NotificationsRepo) GetByID(ctx context.Context, notificationID int64) (models.Notification, error) {
	n, err := scanNotification(r.db.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE notification_id = $1
	`, notificationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Notification{}, ErrNotFound
	}
	return n, err
}

func (r *NotificationsRepo) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int, offset int) ([]models.Notification, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_user_id = $1 AND ($2 = false OR read = false)
		ORDER BY created_at DESC, notification_id DESC
		LIMIT $3 OFFSET $4
	`, userID, unreadOnly, clampLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationsRepo) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE recipient_user_id = $1 AND read = false
	`, userID).Scan(&count)
	return count, err
}

// MarkRead flips read to true. It reports false when the row was already
// read or does not exist.
func (r *NotificationsRepo) MarkRead(ctx context.Context, notificationID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET read = true, updated_at = now()
		WHERE notification_id = $1 AND read = false
	`, notificationID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationsRepo) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET read = true, updated_at = now()
		WHERE recipient_user_id = $1 AND read = false
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
