package fanout

import (
	"fmt"
	"maps"
	"strings"
)

// SubjectType tags the table a polymorphic reference points at.
type SubjectType string

const (
	SubjectProject SubjectType = "project"
	SubjectTask    SubjectType = "task"
)

// Subject is a {type, id} reference that may outlive the row it names.
type Subject struct {
	Type SubjectType `json:"type"`
	ID   int64       `json:"id"`
}

func (s Subject) IsZero() bool {
	return s.Type == "" && s.ID == 0
}

func (s Subject) String() string {
	return fmt.Sprintf("%s#%d", s.Type, s.ID)
}

type Action string

const (
	ActionCreated       Action = "created"
	ActionUpdated       Action = "updated"
	ActionStatusChanged Action = "status_changed"
	ActionDeleted       Action = "deleted"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionStatusChanged, ActionDeleted:
		return true
	}
	return false
}

type NotificationKind string

const (
	KindTaskAssigned              NotificationKind = "task_assigned"
	KindTaskAssignedByYou         NotificationKind = "task_assigned_by_you"
	KindTaskCompleted             NotificationKind = "task_completed"
	KindTaskCompletedProjectOwner NotificationKind = "task_completed_project_owner"
	KindTaskCompletedByYou        NotificationKind = "task_completed_by_you"
)

// AuditEvent asks for one audit row. Values are built by BuildAuditEvent and
// treated as read-only afterwards.
type AuditEvent struct {
	Subject     Subject        `json:"subject"`
	Action      Action         `json:"action"`
	ActorUserID int64          `json:"actor_user_id"`
	Metadata    map[string]any `json:"metadata"`
}

// NotificationEvent asks for one notification addressed to exactly one user.
// Subject is zero when the notification is not about a specific entity.
type NotificationEvent struct {
	RecipientUserID int64            `json:"recipient_user_id"`
	Kind            NotificationKind `json:"notification_kind"`
	Message         string           `json:"message"`
	Subject         Subject          `json:"subject"`
}

// BuildAuditEvent copies metadata so later changes by the caller do not leak
// into an event already handed to the queue.
func BuildAuditEvent(subjectType SubjectType, subjectID int64, action Action, actorID int64, metadata map[string]any) AuditEvent {
	md := maps.Clone(metadata)
	if md == nil {
		md = map[string]any{}
	}
	return AuditEvent{
		Subject:     Subject{Type: subjectType, ID: subjectID},
		Action:      action,
		ActorUserID: actorID,
		Metadata:    md,
	}
}

// Validate checks the fields a handler cannot recover from.
func (e AuditEvent) Validate() error {
	if strings.TrimSpace(string(e.Subject.Type)) == "" || e.Subject.ID <= 0 {
		return fmt.Errorf("audit event: subject is required")
	}
	if !e.Action.Valid() {
		return fmt.Errorf("audit event: unknown action %q", e.Action)
	}
	if e.ActorUserID <= 0 {
		return fmt.Errorf("audit event: actor_user_id is required")
	}
	return nil
}

func (e NotificationEvent) Validate() error {
	if e.RecipientUserID <= 0 {
		return fmt.Errorf("notification event: recipient_user_id is required")
	}
	if strings.TrimSpace(string(e.Kind)) == "" {
		return fmt.Errorf("notification event: notification_kind is required")
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("notification event: message is required")
	}
	return nil
}
