package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"taskflow/api/internal/fanout"
	"taskflow/api/internal/models"
	"taskflow/api/internal/repos"
	"taskflow/shared/events"
	"taskflow/shared/logx"
	"taskflow/shared/metricsx"
)

type AuditStore interface {
	SubjectExists(ctx context.Context, subject fanout.Subject) (bool, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	InsertActivity(ctx context.Context, ev fanout.AuditEvent) (models.Activity, error)
}

type NotificationStore interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	InsertNotification(ctx context.Context, ev fanout.NotificationEvent) (models.Notification, error)
}

// Publisher is satisfied by *mqx.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

type UnreadInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// MissingReferenceError means an entity named by a job is gone. The job is
// finished without writing anything.
type MissingReferenceError struct {
	Kind string
	ID   int64
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("%s #%d not found", e.Kind, e.ID)
}

type AuditHandler struct {
	Store     AuditStore
	Publisher Publisher
	Logger    logx.Logger
}

func (h *AuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ev, err := decodeAuditEvent(t)
	if err != nil {
		h.Logger.Error(ctx, "audit_payload_invalid", "dropping undecodable audit job",
			slog.String("error_code", "INVALID_ARGUMENT"),
			slog.String("error", err.Error()),
		)
		return err
	}
	_, err = h.Handle(ctx, ev)
	return err
}

// Handle writes one activity row. A missing subject or actor is logged and
// treated as done; storage failures are returned so the queue retries.
func (h *AuditHandler) Handle(ctx context.Context, ev fanout.AuditEvent) (models.Activity, error) {
	attrs := []slog.Attr{
		slog.String("subject", ev.Subject.String()),
		slog.String("action", string(ev.Action)),
		slog.Int64("actor_user_id", ev.ActorUserID),
	}

	if err := h.resolve(ctx, ev); err != nil {
		var missing *MissingReferenceError
		switch {
		case errors.As(err, &missing):
			h.Logger.Warn(ctx, "audit_reference_missing", missing.Error(), attrs...)
			markSkipped(ctx)
			return models.Activity{}, nil
		case errors.Is(err, repos.ErrUnknownSubjectType):
			h.Logger.Error(ctx, "audit_subject_type_unknown", "unknown subject type",
				append(attrs, slog.String("error_code", "INVALID_ARGUMENT"))...)
			return models.Activity{}, fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		default:
			h.Logger.Error(ctx, "audit_lookup_failed", "failed to resolve audit references",
				append(attrs, slog.String("error_code", "INTERNAL_ERROR"), slog.String("error", err.Error()))...)
			return models.Activity{}, err
		}
	}

	activity, err := h.Store.InsertActivity(ctx, ev)
	if err != nil {
		h.Logger.Error(ctx, "audit_insert_failed", "failed to insert activity",
			append(attrs, slog.String("error_code", "INTERNAL_ERROR"), slog.String("error", err.Error()))...)
		return models.Activity{}, err
	}
	h.Logger.Info(ctx, "audit_recorded", "activity recorded",
		append(attrs, slog.Int64("activity_id", activity.ActivityID))...)

	publish(ctx, h.Publisher, h.Logger, events.TopicActivityRecorded, "activity", activity.ActivityID, events.EventActivityRecorded, ev)
	return activity, nil
}

func (h *AuditHandler) resolve(ctx context.Context, ev fanout.AuditEvent) error {
	ok, err := h.Store.SubjectExists(ctx, ev.Subject)
	if err != nil {
		return err
	}
	if !ok {
		return &MissingReferenceError{Kind: string(ev.Subject.Type), ID: ev.Subject.ID}
	}
	ok, err = h.Store.UserExists(ctx, ev.ActorUserID)
	if err != nil {
		return err
	}
	if !ok {
		return &MissingReferenceError{Kind: "user", ID: ev.ActorUserID}
	}
	return nil
}

type NotificationHandler struct {
	Store     NotificationStore
	Inbox     UnreadInvalidator
	Publisher Publisher
	Logger    logx.Logger
}

func (h *NotificationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ev, err := decodeNotificationEvent(t)
	if err != nil {
		h.Logger.Error(ctx, "notification_payload_invalid", "dropping undecodable notification job",
			slog.String("error_code", "INVALID_ARGUMENT"),
			slog.String("error", err.Error()),
		)
		return err
	}
	_, err = h.Handle(ctx, ev)
	return err
}

// Handle stores one unread notification for the recipient.
func (h *NotificationHandler) Handle(ctx context.Context, ev fanout.NotificationEvent) (models.Notification, error) {
	attrs := []slog.Attr{
		slog.Int64("recipient_user_id", ev.RecipientUserID),
		slog.String("notification_kind", string(ev.Kind)),
	}

	ok, err := h.Store.UserExists(ctx, ev.RecipientUserID)
	if err != nil {
		h.Logger.Error(ctx, "notification_lookup_failed", "failed to resolve recipient",
			append(attrs, slog.String("error_code", "INTERNAL_ERROR"), slog.String("error", err.Error()))...)
		return models.Notification{}, err
	}
	if !ok {
		missing := &MissingReferenceError{Kind: "user", ID: ev.RecipientUserID}
		h.Logger.Warn(ctx, "notification_recipient_missing", missing.Error(), attrs...)
		markSkipped(ctx)
		return models.Notification{}, nil
	}

	n, err := h.Store.InsertNotification(ctx, ev)
	if err != nil {
		h.Logger.Error(ctx, "notification_insert_failed", "failed to insert notification",
			append(attrs, slog.String("error_code", "INTERNAL_ERROR"), slog.String("error", err.Error()))...)
		return models.Notification{}, err
	}
	h.Logger.Info(ctx, "notification_created", "notification created",
		append(attrs, slog.Int64("notification_id", n.NotificationID))...)

	if h.Inbox != nil {
		if err := h.Inbox.Invalidate(ctx, ev.RecipientUserID); err != nil {
			h.Logger.Warn(ctx, "unread_cache_invalidate_failed", "failed to drop cached unread count",
				append(attrs, slog.String("error", err.Error()))...)
		}
	}
	publish(ctx, h.Publisher, h.Logger, events.TopicNotificationCreated, "notification", n.NotificationID, events.EventNotificationCreated, ev)
	return n, nil
}

// publish mirrors a stored row onto the domain stream. The row is already
// committed, so failures are logged and counted but never retried.
func publish(ctx context.Context, p Publisher, logger logx.Logger, topic string, aggregateType string, aggregateID int64, eventType string, payload any) {
	if p == nil {
		return
	}
	env, err := events.NewEnvelope(aggregateType, aggregateID, eventType, payload)
	if err == nil {
		var value []byte
		value, err = json.Marshal(env)
		if err == nil {
			err = p.Publish(ctx, topic, env.Key(), value, env.Headers())
		}
	}
	if err != nil {
		metricsx.IncKafkaPublishFailure(topic)
		logger.Warn(ctx, "stream_publish_failed", "failed to publish domain event",
			slog.String("topic", topic),
			slog.Int64("aggregate_id", aggregateID),
			slog.String("error", err.Error()),
		)
	}
}
