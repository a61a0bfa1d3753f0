package models

import (
	"time"
)

type User struct {
	UserID    int64
	Email     string
	FullName  string
	CreatedAt time.Time
}

type Project struct {
	ProjectID int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

type Task struct {
	TaskID     int64
	ProjectID  int64
	Title      string
	Status     string
	AssigneeID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Activity is one audit row. SubjectID may point at a row that no longer
// exists; nothing cascades from subjects to activities.
type Activity struct {
	ActivityID  int64
	SubjectType string
	SubjectID   int64
	Action      string
	ActorUserID int64
	Metadata    []byte
	CreatedAt   time.Time
}

type Notification struct {
	NotificationID  int64
	RecipientUserID int64
	Kind            string
	Message         string
	SubjectType     *string
	SubjectID       *int64
	Read            bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
