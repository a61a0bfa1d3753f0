package repos

import (
	"context"

	"taskflow/api/internal/fanout"
	"taskflow/api/internal/models"
)

// Store bundles the repositories the job handlers and the inbox need behind
// one value.
type Store struct {
	Users         *UsersRepo
	Subjects      *SubjectRegistry
	Activities    *ActivitiesRepo
	Notifications *NotificationsRepo
}

func NewStore(db DBTX) *Store {
	return &Store{
		Users:         NewUsersRepo(db),
		Subjects:      NewDefaultSubjectRegistry(db),
		Activities:    NewActivitiesRepo(db),
		Notifications: NewNotificationsRepo(db),
	}
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	return s.Users.UserExists(ctx, userID)
}

func (s *Store) SubjectExists(ctx context.Context, subject fanout.Subject) (bool, error) {
	return s.Subjects.Exists(ctx, subject)
}

func (s *Store) InsertActivity(ctx context.Context, ev fanout.AuditEvent) (models.Activity, error) {
	return s.Activities.InsertActivity(ctx, ev)
}

func (s *Store) InsertNotification(ctx context.Context, ev fanout.NotificationEvent) (models.Notification, error) {
	return s.Notifications.InsertNotification(ctx, ev)
}
